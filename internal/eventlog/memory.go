package eventlog

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is a process-local Store. Records do not survive a restart, so
// it is meant for tests and ephemeral deployments.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]string)}
}

func (s *MemoryStore) Put(_ context.Context, namespace, key, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.data[namespace]
	if !ok {
		ns = make(map[string]string)
		s.data[namespace] = ns
	}
	ns[key] = text
	return nil
}

func (s *MemoryStore) Get(_ context.Context, namespace, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	text, ok := s.data[namespace][key]
	if !ok {
		return "", fmt.Errorf("%s/%s: %w", namespace, key, ErrNotFound)
	}
	return text, nil
}

func (s *MemoryStore) Scan(_ context.Context, namespace string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.data[namespace]))
	for k, v := range s.data[namespace] {
		out = append(out, Record{Key: k, Text: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data[namespace], key)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, namespace)
	return nil
}
