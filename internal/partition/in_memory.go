package partition

import (
	"bytes"
	"context"
	"sync"
)

// inMemory implements Store using an in-memory map. Payloads are copied in and out.
type inMemory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewInMemoryStore creates a new instance of Store that lives as long as the process.
func NewInMemoryStore() Store {
	return &inMemory{
		items: make(map[string][]byte),
	}
}

func (s *inMemory) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, ok := s.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(payload), nil
}

func (s *inMemory) Save(_ context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = bytes.Clone(payload)
	return nil
}
