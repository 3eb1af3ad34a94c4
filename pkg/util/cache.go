package util

import (
	"container/list"
	"sync"
)

type (
	// LRU is a size-bounded cache that evicts the least recently used entry
	LRU[K comparable, V any] struct {
		entries map[K]*list.Element
		order   *list.List
		maxSize int
		mu      sync.Mutex
	}

	// Constructor creates a value on a cache miss
	Constructor[V any] func() (V, error)

	lruEntry[K comparable, V any] struct {
		key   K
		value V
	}
)

// NewLRU creates an LRU holding at most maxSize entries
func NewLRU[K comparable, V any](maxSize int) *LRU[K, V] {
	return &LRU[K, V]{
		entries: map[K]*list.Element{},
		order:   list.New(),
		maxSize: max(maxSize, 1),
	}
}

// Get returns the cached value for key, calling create on a miss. Failed
// constructions are not cached. create runs without the lock held, so
// concurrent misses may construct more than once
func (c *LRU[K, V]) Get(key K, create Constructor[V]) (V, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	value, err := create()
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(*lruEntry[K, V]).value, nil
	}
	c.entries[key] = c.order.PushFront(&lruEntry[K, V]{
		key:   key,
		value: value,
	})
	for c.order.Len() > c.maxSize {
		c.evictOldest()
	}
	return value, nil
}

// Len returns the number of cached entries
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRU[K, V]) lookup(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*lruEntry[K, V]).value, true
}

func (c *LRU[K, V]) evictOldest() {
	back := c.order.Back()
	if back == nil {
		return
	}
	c.order.Remove(back)
	delete(c.entries, back.Value.(*lruEntry[K, V]).key)
}
