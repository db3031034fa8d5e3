package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"veritas/internal/consensus/models"
	"veritas/pkg/domain"
	"veritas/pkg/platform/sentinel"
	"veritas/pkg/platform/tx"
)

// InMemoryStore keeps queries in a map. Writes register undo steps with the
// enclosing transaction.
type InMemoryStore struct {
	mu      sync.RWMutex
	queries map[domain.QueryID]*models.Query
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{queries: make(map[domain.QueryID]*models.Query)}
}

// Create stores q. An existing id yields sentinel.ErrConflict.
func (s *InMemoryStore) Create(ctx context.Context, q *models.Query) error {
	s.mu.Lock()
	if _, exists := s.queries[q.ID]; exists {
		s.mu.Unlock()
		return sentinel.ErrConflict
	}
	s.queries[q.ID] = q.Clone()
	s.mu.Unlock()

	tx.OnRollback(ctx, func(context.Context) {
		s.mu.Lock()
		delete(s.queries, q.ID)
		s.mu.Unlock()
	})
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, id domain.QueryID) (*models.Query, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.queries[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return q.Clone(), nil
}

func (s *InMemoryStore) Execute(ctx context.Context, id domain.QueryID, validate func(*models.Query) error, mutate func(*models.Query)) (*models.Query, error) {
	s.mu.Lock()
	current, ok := s.queries[id]
	if !ok {
		s.mu.Unlock()
		return nil, sentinel.ErrNotFound
	}
	working := current.Clone()
	if err := validate(working); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	mutate(working)
	s.queries[id] = working
	s.mu.Unlock()

	tx.OnRollback(ctx, func(context.Context) {
		s.mu.Lock()
		s.queries[id] = current
		s.mu.Unlock()
	})
	return working.Clone(), nil
}

// ListOpenExpired returns unresolved queries whose expiry is at or before
// now, oldest expiry first.
func (s *InMemoryStore) ListOpenExpired(_ context.Context, now time.Time, limit int) ([]*models.Query, error) {
	s.mu.RLock()
	var out []*models.Query
	for _, q := range s.queries {
		if !q.Resolved && q.IsExpired(now) {
			out = append(out, q.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
