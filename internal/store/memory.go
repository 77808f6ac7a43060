package store

import (
	"context"
	"slices"
	"sync"
)

// DefaultCapacity bounds each Memory ring.
const DefaultCapacity = 1000

// Memory keeps the most recent records in bounded rings.
type Memory struct {
	mu       sync.RWMutex
	capacity int
	runs     []RunRecord
	checks   []CheckRecord
	closed   bool
}

// NewMemory creates an in-memory store. capacity <= 0 uses DefaultCapacity.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{capacity: capacity}
}

func (m *Memory) SaveRun(_ context.Context, run RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.runs = appendBounded(m.runs, run, m.capacity)
	return nil
}

func (m *Memory) SaveCheck(_ context.Context, check CheckRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	check.Steps = slices.Clone(check.Steps)
	m.checks = appendBounded(m.checks, check, m.capacity)
	return nil
}

func (m *Memory) RecentChecks(_ context.Context, n int) ([]CheckRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return newestFirst(m.checks, n), nil
}

func (m *Memory) RecentRuns(_ context.Context, n int) ([]RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return newestFirst(m.runs, n), nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func appendBounded[T any](s []T, v T, capacity int) []T {
	s = append(s, v)
	if len(s) > capacity {
		s = slices.Delete(s, 0, len(s)-capacity)
	}
	return s
}

func newestFirst[T any](s []T, n int) []T {
	if n <= 0 || n > len(s) {
		n = len(s)
	}
	out := make([]T, 0, n)
	for i := len(s) - 1; i >= len(s)-n; i-- {
		out = append(out, s[i])
	}
	return out
}
