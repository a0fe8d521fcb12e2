package spcline

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements MetricStore with an in-process map. Useful for
// tests, embedded use, and as the default when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	metrics map[string]*Metric
	closed  bool
}

// NewMemoryStore creates an empty in-memory metric store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{metrics: make(map[string]*Metric)}
}

func (s *MemoryStore) SaveMetric(ctx context.Context, m *Metric) error {
	if m == nil || m.Name == "" {
		return newStoreError("save", "", ErrBadInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	saved := m.Clone()
	saved.UpdatedAt = time.Now().UTC()
	s.metrics[m.Name] = saved
	return nil
}

func (s *MemoryStore) Metric(ctx context.Context, name string) (*Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	m, ok := s.metrics[name]
	if !ok {
		return nil, newStoreError("get", name, ErrMetricNotFound)
	}
	return m.Clone(), nil
}

func (s *MemoryStore) Metrics(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	names := make([]string, 0, len(s.metrics))
	for name := range s.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) AppendObservations(ctx context.Context, name string, obs ...Observation) error {
	if name == "" {
		return newStoreError("append", "", ErrBadInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	m, ok := s.metrics[name]
	if !ok {
		m = &Metric{Name: name}
		s.metrics[name] = m
	}
	merged, err := MergeObservations(m.Series, obs...)
	if err != nil {
		return newStoreError("append", name, err)
	}
	m.Series = merged
	m.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) DeleteMetric(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.metrics[name]; !ok {
		return newStoreError("delete", name, ErrMetricNotFound)
	}
	delete(s.metrics, name)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.metrics = nil
	return nil
}

// Size returns the number of stored metrics.
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metrics)
}
