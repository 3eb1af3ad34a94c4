package store

import (
	"context"
	"time"

	c "github.com/patrickmn/go-cache"

	"github.com/kode4food/cascade/pkg/api"
)

// MemoryStore keeps encoded snapshots in an in-process cache
type MemoryStore struct {
	cache *c.Cache
	ttl   time.Duration
}

const memoryCleanupInterval = 10 * time.Minute

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a MemoryStore. A zero ttl keeps snapshots until the
// process exits
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = c.NoExpiration
	}
	return &MemoryStore{
		cache: c.New(ttl, memoryCleanupInterval),
		ttl:   ttl,
	}
}

func (s *MemoryStore) Save(
	_ context.Context, id api.RunID, snap *api.Snapshot,
) error {
	if err := checkSave(id, snap); err != nil {
		return err
	}
	data, err := encode(snap)
	if err != nil {
		return err
	}
	s.cache.Set(string(id), data, s.ttl)
	return nil
}

func (s *MemoryStore) Load(
	_ context.Context, id api.RunID,
) (*api.Snapshot, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	data, ok := s.cache.Get(string(id))
	if !ok {
		return nil, ErrNotFound
	}
	return decode(data.([]byte))
}

// Len returns the number of stored snapshots
func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}

func (s *MemoryStore) Close() error {
	s.cache.Flush()
	return nil
}
