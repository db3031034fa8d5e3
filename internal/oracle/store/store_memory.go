package store

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"veritas/internal/oracle/models"
	"veritas/pkg/domain"
	"veritas/pkg/platform/sentinel"
	"veritas/pkg/platform/tx"
)

// InMemoryStore keeps oracle records in a map guarded by a RWMutex.
// Writes register undo steps so an enclosing transaction can roll them back.
type InMemoryStore struct {
	mu      sync.RWMutex
	oracles map[domain.Address]*models.Oracle
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{oracles: make(map[domain.Address]*models.Oracle)}
}

// Save inserts or replaces the record for o.Address.
func (s *InMemoryStore) Save(ctx context.Context, o *models.Oracle) error {
	s.mu.Lock()
	prev, existed := s.oracles[o.Address]
	s.oracles[o.Address] = o.Clone()
	s.mu.Unlock()

	s.onRollback(ctx, o.Address, prev, existed)
	return nil
}

func (s *InMemoryStore) FindByAddress(_ context.Context, addr domain.Address) (*models.Oracle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.oracles[addr]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return o.Clone(), nil
}

// List returns every record ever registered, ordered by address.
func (s *InMemoryStore) List(_ context.Context) ([]*models.Oracle, error) {
	s.mu.RLock()
	out := make([]*models.Oracle, 0, len(s.oracles))
	for _, o := range s.oracles {
		out = append(out, o.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address.Bytes(), out[j].Address.Bytes()) < 0
	})
	return out, nil
}

// Execute validates and mutates one record under the store lock.
func (s *InMemoryStore) Execute(ctx context.Context, addr domain.Address, validate func(*models.Oracle) error, mutate func(*models.Oracle)) (*models.Oracle, error) {
	s.mu.Lock()
	current, ok := s.oracles[addr]
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
	s.oracles[addr] = working
	s.mu.Unlock()

	s.onRollback(ctx, addr, current, true)
	return working.Clone(), nil
}

func (s *InMemoryStore) onRollback(ctx context.Context, addr domain.Address, prev *models.Oracle, existed bool) {
	tx.OnRollback(ctx, func(context.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			s.oracles[addr] = prev
		} else {
			delete(s.oracles, addr)
		}
	})
}
