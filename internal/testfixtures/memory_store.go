package testfixtures

import (
	"context"
	"sync"
)

// StoreOp is one recorded key/value store operation.
type StoreOp struct {
	Kind  string
	Key   string
	Value string
}

// MemoryStore is an in-memory key/value store that records writes and can
// fail on demand.
type MemoryStore struct {
	mu      sync.Mutex
	values  map[string]string
	ops     []StoreOp
	getErr  error
	setErrs map[string]error
	delErr  error
}

// NewMemoryStore returns a store seeded with values.
func NewMemoryStore(values map[string]string) *MemoryStore {
	seeded := make(map[string]string, len(values))
	for k, v := range values {
		seeded[k] = v
	}
	return &MemoryStore{values: seeded, setErrs: make(map[string]error)}
}

// Get returns the value stored under key.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", false, s.getErr
	}
	value, ok := s.values[key]
	return value, ok, nil
}

// Set stores value under key.
func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.setErrs[key]; err != nil {
		return err
	}
	s.values[key] = value
	s.ops = append(s.ops, StoreOp{Kind: "set", Key: key, Value: value})
	return nil
}

// Delete removes key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delErr != nil {
		return s.delErr
	}
	delete(s.values, key)
	s.ops = append(s.ops, StoreOp{Kind: "delete", Key: key})
	return nil
}

// Value returns the stored value for key without recording an operation.
func (s *MemoryStore) Value(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok
}

// Ops returns a copy of the recorded write operations.
func (s *MemoryStore) Ops() []StoreOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StoreOp(nil), s.ops...)
}

// FailGet makes every Get return err until cleared with nil.
func (s *MemoryStore) FailGet(err error) {
	s.mu.Lock()
	s.getErr = err
	s.mu.Unlock()
}

// FailSet makes Set on key return err until cleared with nil.
func (s *MemoryStore) FailSet(key string, err error) {
	s.mu.Lock()
	if err == nil {
		delete(s.setErrs, key)
	} else {
		s.setErrs[key] = err
	}
	s.mu.Unlock()
}

// FailDelete makes every Delete return err until cleared with nil.
func (s *MemoryStore) FailDelete(err error) {
	s.mu.Lock()
	s.delErr = err
	s.mu.Unlock()
}
