package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/internal/attestation/models"
	"veritas/pkg/domain"
	"veritas/pkg/platform/tx"
)

func newAttestation(t *testing.T, subject domain.Address, q domain.QueryID) *models.Attestation {
	t.Helper()
	a, err := models.NewAttestation(subject, q, true, []byte{1}, subject, "kyc provider ref", time.Now())
	require.NoError(t, err)
	return a
}

func TestInMemoryStore(t *testing.T) {
	subject := domain.MustAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	q1, _ := domain.ParseQueryID("0x" + strings.Repeat("01", 32))
	q2, _ := domain.ParseQueryID("0x" + strings.Repeat("02", 32))

	t.Run("lists by query and subject", func(t *testing.T) {
		s := NewInMemory()
		require.NoError(t, s.Append(context.Background(), newAttestation(t, subject, q1)))
		require.NoError(t, s.Append(context.Background(), newAttestation(t, subject, q1)))
		require.NoError(t, s.Append(context.Background(), newAttestation(t, subject, q2)))

		byQuery, err := s.ListByQuery(context.Background(), q1)
		require.NoError(t, err)
		assert.Len(t, byQuery, 2)

		bySubject, err := s.ListBySubject(context.Background(), subject)
		require.NoError(t, err)
		assert.Len(t, bySubject, 3)
	})

	t.Run("append is undone with the transaction", func(t *testing.T) {
		s := NewInMemory()
		err := tx.New().RunInTx(context.Background(), func(ctx context.Context) error {
			require.NoError(t, s.Append(ctx, newAttestation(t, subject, q1)))
			return errors.New("vote rejected")
		})
		require.Error(t, err)

		got, _ := s.ListByQuery(context.Background(), q1)
		assert.Empty(t, got)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		s := NewInMemory()
		require.NoError(t, s.Append(context.Background(), newAttestation(t, subject, q1)))
		got, _ := s.ListByQuery(context.Background(), q1)
		got[0].Valid = true

		again, _ := s.ListByQuery(context.Background(), q1)
		assert.False(t, again[0].Valid)
	})
}
