package checkpoint

import (
	"context"
	"sync"
)

// MemoryStore keeps checkpoints in process memory. Used for dry runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]int
	puts    int
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]int)}
}

func (s *MemoryStore) Get(ctx context.Context, partitionKey, rowKey string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index, ok := s.entries[string(makeKey(partitionKey, rowKey))]
	return index, ok, nil
}

func (s *MemoryStore) Put(ctx context.Context, partitionKey, rowKey string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[string(makeKey(partitionKey, rowKey))] = index
	s.puts++
	return nil
}

// Puts returns how many writes the store received
func (s *MemoryStore) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func (s *MemoryStore) Close() error { return nil }
