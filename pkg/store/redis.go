package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kode4food/cascade/pkg/api"
)

// RedisStore keeps snapshots as JSON strings under <prefix>:run:<id>
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing client. The store owns the client and
// closes it on Close
func NewRedisStore(
	client *redis.Client, prefix string, ttl time.Duration,
) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// OpenRedis connects to the server named by a redis:// or rediss:// URL and
// verifies the connection
func OpenRedis(ctx context.Context, u *url.URL) (*RedisStore, error) {
	ttl, err := durationParam(u, "ttl")
	if err != nil {
		return nil, err
	}
	prefix := u.Query().Get("prefix")

	opts, err := redis.ParseURL(withoutParams(u, "ttl", "prefix"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisStore(client, prefix, ttl), nil
}

func (s *RedisStore) Save(
	ctx context.Context, id api.RunID, snap *api.Snapshot,
) error {
	if err := checkSave(id, snap); err != nil {
		return err
	}
	data, err := encode(snap)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.keyFor(id), data, s.ttl).Err()
}

func (s *RedisStore) Load(
	ctx context.Context, id api.RunID,
) (*api.Snapshot, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.keyFor(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(data)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) keyFor(id api.RunID) string {
	return s.prefix + ":run:" + string(id)
}
