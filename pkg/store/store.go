package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kode4food/cascade/pkg/api"
)

// Store saves and loads run snapshots keyed by run ID
type Store interface {
	Save(ctx context.Context, id api.RunID, snap *api.Snapshot) error
	Load(ctx context.Context, id api.RunID) (*api.Snapshot, error)
	Close() error
}

var (
	ErrNotFound       = errors.New("snapshot not found")
	ErrInvalidRunID   = errors.New("invalid run id")
	ErrSnapshotNil    = errors.New("snapshot is required")
	ErrInvalidURL     = errors.New("invalid store url")
	ErrInvalidOptions = errors.New("invalid store options")
)

const (
	SchemeMemory = "memory"
	SchemeRedis  = "redis"
	SchemeRedisS = "rediss"
	SchemeSQLite = "sqlite"

	DefaultKeyPrefix  = "cascade"
	DefaultBlobPrefix = "runs/"
)

// Open creates a Store from a URL. The ttl query parameter is honored by
// memory and redis stores, prefix by redis and blob stores
func Open(ctx context.Context, rawURL string) (Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	switch u.Scheme {
	case SchemeMemory:
		ttl, err := durationParam(u, "ttl")
		if err != nil {
			return nil, err
		}
		return NewMemoryStore(ttl), nil
	case SchemeRedis, SchemeRedisS:
		return OpenRedis(ctx, u)
	case SchemeSQLite:
		path := u.Host + u.Path
		if path == "" {
			path = u.Opaque
		}
		return OpenSQLite(ctx, path)
	default:
		prefix := u.Query().Get("prefix")
		if prefix == "" {
			prefix = DefaultBlobPrefix
		}
		bucketURL := rawURL
		if u.Query().Has("prefix") {
			bucketURL = withoutParams(u, "prefix")
		}
		return OpenBlob(ctx, bucketURL, prefix)
	}
}

func durationParam(u *url.URL, name string) (time.Duration, error) {
	raw := u.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidOptions, name, raw)
	}
	return d, nil
}

func withoutParams(u *url.URL, names ...string) string {
	q := u.Query()
	found := false
	for _, n := range names {
		if q.Has(n) {
			q.Del(n)
			found = true
		}
	}
	if !found {
		return u.String()
	}
	res := *u
	res.RawQuery = q.Encode()
	return res.String()
}

func checkSave(id api.RunID, snap *api.Snapshot) error {
	if err := checkID(id); err != nil {
		return err
	}
	if snap == nil {
		return ErrSnapshotNil
	}
	return nil
}

func checkID(id api.RunID) error {
	if strings.TrimSpace(string(id)) == "" || strings.ContainsAny(
		string(id), "/\\",
	) {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, id)
	}
	return nil
}

func encode(snap *api.Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}

func decode(data []byte) (*api.Snapshot, error) {
	var snap api.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
