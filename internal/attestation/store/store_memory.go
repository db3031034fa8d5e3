package store

import (
	"context"
	"sync"

	"veritas/internal/attestation/models"
	"veritas/pkg/domain"
	"veritas/pkg/platform/tx"
)

// InMemoryStore is an append-only attestation log.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []*models.Attestation
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(ctx context.Context, a *models.Attestation) error {
	cp := *a
	s.mu.Lock()
	s.records = append(s.records, &cp)
	s.mu.Unlock()

	tx.OnRollback(ctx, func(context.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i := len(s.records) - 1; i >= 0; i-- {
			if s.records[i].ID == cp.ID {
				s.records = append(s.records[:i], s.records[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (s *InMemoryStore) ListByQuery(_ context.Context, queryID domain.QueryID) ([]*models.Attestation, error) {
	return s.filter(func(a *models.Attestation) bool { return a.QueryID == queryID }), nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subject domain.Address) ([]*models.Attestation, error) {
	return s.filter(func(a *models.Attestation) bool { return a.Subject == subject }), nil
}

func (s *InMemoryStore) filter(keep func(*models.Attestation) bool) []*models.Attestation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Attestation
	for _, a := range s.records {
		if keep(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}
