package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/internal/consensus/models"
	"veritas/pkg/domain"
	"veritas/pkg/platform/sentinel"
	"veritas/pkg/platform/tx"
)

var (
	subject   = domain.MustAddress("0x5000000000000000000000000000000000000001")
	requester = domain.MustAddress("0x00000000000000000000000000000000000000bb")
)

func newQuery(t *testing.T, payload string, now time.Time) *models.Query {
	t.Helper()
	q, err := models.NewQuery(subject, models.TypeWhitelistApproval, []byte(payload), requester, models.PolicyWeighted, time.Hour, now)
	require.NoError(t, err)
	return q
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("create rejects duplicate ids", func(t *testing.T) {
		s := NewInMemory()
		q := newQuery(t, "a", now)
		require.NoError(t, s.Create(ctx, q))
		assert.ErrorIs(t, s.Create(ctx, q), sentinel.ErrConflict)
	})

	t.Run("find unknown returns not found", func(t *testing.T) {
		_, err := NewInMemory().Find(ctx, newQuery(t, "x", now).ID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("execute rolls back with the transaction", func(t *testing.T) {
		s := NewInMemory()
		q := newQuery(t, "b", now)
		require.NoError(t, s.Create(ctx, q))

		err := tx.New().RunInTx(ctx, func(ctx context.Context) error {
			_, err := s.Execute(ctx, q.ID,
				func(*models.Query) error { return nil },
				func(q *models.Query) { q.ApplyVote(models.Vote{Caller: requester, Signer: requester, Yes: true, Weight: 5}) },
			)
			require.NoError(t, err)
			return errors.New("abort")
		})
		require.Error(t, err)

		got, err := s.Find(ctx, q.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Votes)
		assert.Zero(t, got.YesWeight)
	})

	t.Run("create rolls back with the transaction", func(t *testing.T) {
		s := NewInMemory()
		q := newQuery(t, "c", now)
		_ = tx.New().RunInTx(ctx, func(ctx context.Context) error {
			require.NoError(t, s.Create(ctx, q))
			return errors.New("abort")
		})
		_, err := s.Find(ctx, q.ID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("list open expired skips resolved and future queries", func(t *testing.T) {
		s := NewInMemory()
		early := newQuery(t, "early", now)
		late := newQuery(t, "late", now.Add(30*time.Minute))
		done := newQuery(t, "done", now)
		done.ApplyResolution(true, false, now)
		for _, q := range []*models.Query{late, early, done} {
			require.NoError(t, s.Create(ctx, q))
		}

		got, err := s.ListOpenExpired(ctx, now.Add(time.Hour), 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, early.ID, got[0].ID)

		got, err = s.ListOpenExpired(ctx, now.Add(2*time.Hour), 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, early.ID, got[0].ID)
	})
}
