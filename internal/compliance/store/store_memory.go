package store

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"veritas/internal/compliance/models"
	"veritas/pkg/domain"
	"veritas/pkg/platform/sentinel"
	"veritas/pkg/platform/tx"
)

type entryKey struct {
	list    models.ListKind
	subject domain.Address
}

// InMemoryStore holds both lists and the emergency oracle set.
type InMemoryStore struct {
	mu        sync.RWMutex
	entries   map[entryKey]*models.Entry
	emergency map[domain.Address]struct{}
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		entries:   make(map[entryKey]*models.Entry),
		emergency: make(map[domain.Address]struct{}),
	}
}

// Save replaces whatever entry the subject had on e.List.
func (s *InMemoryStore) Save(ctx context.Context, e *models.Entry) error {
	key := entryKey{list: e.List, subject: e.Subject}
	s.mu.Lock()
	prev, existed := s.entries[key]
	s.entries[key] = e.Clone()
	s.mu.Unlock()

	s.onRollback(ctx, key, prev, existed)
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, list models.ListKind, subject domain.Address) (*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[entryKey{list: list, subject: subject}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return e.Clone(), nil
}

func (s *InMemoryStore) Execute(ctx context.Context, list models.ListKind, subject domain.Address, validate func(*models.Entry) error, mutate func(*models.Entry)) (*models.Entry, error) {
	key := entryKey{list: list, subject: subject}
	s.mu.Lock()
	current, ok := s.entries[key]
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
	s.entries[key] = working
	s.mu.Unlock()

	s.onRollback(ctx, key, current, true)
	return working.Clone(), nil
}

// ListStale returns entries on list still flagged active but past expiry,
// oldest expiry first.
func (s *InMemoryStore) ListStale(_ context.Context, list models.ListKind, now time.Time, limit int) ([]*models.Entry, error) {
	s.mu.RLock()
	var out []*models.Entry
	for key, e := range s.entries {
		if key.list == list && e.IsStale(now) {
			out = append(out, e.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(out[j].ExpiresAt)
		}
		return bytes.Compare(out[i].Subject.Bytes(), out[j].Subject.Bytes()) < 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) SetEmergencyOracle(ctx context.Context, addr domain.Address, enabled bool) error {
	s.mu.Lock()
	_, was := s.emergency[addr]
	if enabled {
		s.emergency[addr] = struct{}{}
	} else {
		delete(s.emergency, addr)
	}
	s.mu.Unlock()

	tx.OnRollback(ctx, func(context.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if was {
			s.emergency[addr] = struct{}{}
		} else {
			delete(s.emergency, addr)
		}
	})
	return nil
}

func (s *InMemoryStore) IsEmergencyOracle(_ context.Context, addr domain.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.emergency[addr]
	return ok, nil
}

func (s *InMemoryStore) onRollback(ctx context.Context, key entryKey, prev *models.Entry, existed bool) {
	tx.OnRollback(ctx, func(context.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			s.entries[key] = prev
		} else {
			delete(s.entries, key)
		}
	})
}
