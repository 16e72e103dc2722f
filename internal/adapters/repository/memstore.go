package repository

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/okian/fibertrace/internal/domain/model"
	"github.com/okian/fibertrace/pkg/metrics"
)

// MemStore is an in-memory Store that keeps rows in insertion order.
type MemStore struct {
	mu     sync.RWMutex
	rows   map[string]model.Record
	order  []string
	closed bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[string]model.Record)}
}

func (s *MemStore) List(_ context.Context) ([]model.Record, error) {
	defer observe("list", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]model.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, maps.Clone(s.rows[id]))
	}
	return out, nil
}

func (s *MemStore) Get(_ context.Context, id string) (model.Record, error) {
	defer observe("get", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	rec, ok := s.rows[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return nil, ErrNotFound
	}
	return maps.Clone(rec), nil
}

func (s *MemStore) Insert(_ context.Context, rec model.Record) error {
	defer observe("insert", time.Now())
	id := recordID(rec)
	if id == "" {
		return ErrMissingID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.rows[id]; ok {
		return ErrDuplicateID
	}
	s.rows[id] = maps.Clone(rec)
	s.order = append(s.order, id)
	return nil
}

func (s *MemStore) Update(_ context.Context, id string, rec model.Record) error {
	defer observe("update", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	cur, ok := s.rows[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return ErrNotFound
	}
	next := maps.Clone(cur)
	for k, v := range rec {
		if k == model.ColID {
			continue
		}
		next[k] = v
	}
	s.rows[id] = next
	return nil
}

func (s *MemStore) Delete(_ context.Context, id string) error {
	defer observe("delete", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.rows[id]; !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return ErrNotFound
	}
	delete(s.rows, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.rows), nil
}

// Close marks the store closed; later calls return ErrClosed.
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func observe(op string, start time.Time) {
	metrics.RecordRepositoryLatency(op, float64(time.Since(start).Microseconds())/1000)
}
