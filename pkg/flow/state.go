package flow

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/kode4food/cascade/pkg/api"
	"github.com/kode4food/cascade/pkg/util"
)

type (
	// State is the shared, revisioned data of one run. Every mutating call
	// is serialized and bumps the revision exactly once
	State struct {
		runID    api.RunID
		values   api.Values
		shape    *shape
		revision uint64
		mu       sync.RWMutex
	}

	// shape fixes the permitted keys of a State and their defaults
	shape struct {
		keys     util.Set[string]
		defaults api.Values
	}
)

// NewState creates an open State holding a copy of seed at revision zero
func NewState(runID api.RunID, seed api.Values) *State {
	st, _ := newState(runID, nil, seed)
	return st
}

func newState(runID api.RunID, sh *shape, seed api.Values) (*State, error) {
	st := &State{
		runID:  runID,
		values: api.Values{},
		shape:  sh,
	}
	if sh != nil {
		st.values = sh.defaults.Clone()
	}
	if err := st.checkKeys(seed); err != nil {
		return nil, err
	}
	maps.Copy(st.values, seed.Clone())
	return st, nil
}

// newShape derives the permitted keys and defaults from the JSON encoding of
// proto, which must be an object
func newShape(proto any) (*shape, error) {
	data, err := json.Marshal(proto)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidShape, err)
	}
	var defaults api.Values
	if err := json.Unmarshal(data, &defaults); err != nil || defaults == nil {
		return nil, fmt.Errorf("%w: %T", ErrInvalidShape, proto)
	}
	keys := make(util.Set[string], len(defaults))
	for k := range defaults {
		keys.Add(k)
	}
	return &shape{keys: keys, defaults: defaults}, nil
}

// RunID returns the identifier of the run that owns the state
func (s *State) RunID() api.RunID {
	return s.runID
}

// Revision returns the current revision
func (s *State) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Get returns a copy of the value stored under key
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return api.CloneValue(v), ok
}

// GetOr returns the value stored under key, or def when absent
func (s *State) GetOr(key string, def any) any {
	if v, ok := s.Get(key); ok {
		return v
	}
	return def
}

// Set stores a value and returns the new revision
func (s *State) Set(key string, value any) (uint64, error) {
	return s.SetMany(api.Values{key: value})
}

// SetMany stores every value as a single mutation. An empty map leaves the
// revision unchanged
func (s *State) SetMany(values api.Values) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(values) == 0 {
		return s.revision, nil
	}
	if err := s.checkKeys(values); err != nil {
		return s.revision, err
	}
	maps.Copy(s.values, values.Clone())
	s.revision++
	return s.revision, nil
}

// Update applies fn to a working copy of the values and commits the result
// as a single mutation. Nothing is committed when fn returns an error
func (s *State) Update(fn func(api.Values) error) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.values.Clone()
	if err := fn(work); err != nil {
		return s.revision, err
	}
	if err := s.checkKeys(work); err != nil {
		return s.revision, err
	}
	s.values = work
	s.revision++
	return s.revision, nil
}

// Delete removes a key and returns the revision. In a shaped state the key
// is reset to its default instead. Deleting an absent key is not a mutation
func (s *State) Delete(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return s.revision
	}
	if s.shape != nil {
		if def, ok := s.shape.defaults[key]; ok {
			s.values[key] = api.CloneValue(def)
			s.revision++
			return s.revision
		}
	}
	delete(s.values, key)
	s.revision++
	return s.revision
}

// Keys returns the stored keys in sorted order
func (s *State) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.values))
}

// Snapshot returns a deep copy of the values
func (s *State) Snapshot() api.Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.Clone()
}

// Decode unmarshals the values into dst, typically a pointer to the struct
// the state was shaped with
func (s *State) Decode(dst any) error {
	data, err := s.marshal()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// Lookup evaluates a gjson path against the values
func (s *State) Lookup(path string) (any, bool) {
	data, err := s.marshal()
	if err != nil {
		return nil, false
	}
	res := gjson.GetBytes(data, path)
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

func (s *State) marshal() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s.values)
}

func (s *State) restore(values api.Values, rev uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkKeys(values); err != nil {
		return err
	}
	maps.Copy(s.values, values.Clone())
	s.revision = rev
	return nil
}

func (s *State) checkKeys(values api.Values) error {
	if s.shape == nil {
		return nil
	}
	for k := range values {
		if !s.shape.keys.Contains(k) {
			return fmt.Errorf("%w: %s", ErrUnknownKey, k)
		}
	}
	return nil
}
