package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/internal/oracle/models"
	"veritas/pkg/domain"
	"veritas/pkg/platform/sentinel"
	"veritas/pkg/platform/tx"
)

var (
	addrA = domain.MustAddress("0x0000000000000000000000000000000000000001")
	addrB = domain.MustAddress("0x0000000000000000000000000000000000000002")
)

func newOracle(t *testing.T, addr domain.Address) *models.Oracle {
	t.Helper()
	o, err := models.NewOracle(addr, "o", "", 500, models.DefaultLimits(), time.Now())
	require.NoError(t, err)
	return o
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("find unknown returns not found", func(t *testing.T) {
		s := NewInMemory()
		_, err := s.FindByAddress(ctx, addrA)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		s := NewInMemory()
		require.NoError(t, s.Save(ctx, newOracle(t, addrA)))

		got, err := s.FindByAddress(ctx, addrA)
		require.NoError(t, err)
		got.Reputation = 1

		again, err := s.FindByAddress(ctx, addrA)
		require.NoError(t, err)
		assert.Equal(t, 500, again.Reputation)
	})

	t.Run("list is ordered by address", func(t *testing.T) {
		s := NewInMemory()
		require.NoError(t, s.Save(ctx, newOracle(t, addrB)))
		require.NoError(t, s.Save(ctx, newOracle(t, addrA)))

		all, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, addrA, all[0].Address)
		assert.Equal(t, addrB, all[1].Address)
	})

	t.Run("execute validation failure leaves record untouched", func(t *testing.T) {
		s := NewInMemory()
		require.NoError(t, s.Save(ctx, newOracle(t, addrA)))

		_, err := s.Execute(ctx, addrA,
			func(*models.Oracle) error { return errors.New("nope") },
			func(o *models.Oracle) { o.Reputation = 1 },
		)
		require.Error(t, err)

		got, _ := s.FindByAddress(ctx, addrA)
		assert.Equal(t, 500, got.Reputation)
	})

	t.Run("transaction rollback reverts save and execute", func(t *testing.T) {
		s := NewInMemory()
		require.NoError(t, s.Save(ctx, newOracle(t, addrA)))
		coord := tx.New()

		err := coord.RunInTx(ctx, func(ctx context.Context) error {
			if err := s.Save(ctx, newOracle(t, addrB)); err != nil {
				return err
			}
			if _, err := s.Execute(ctx, addrA,
				func(*models.Oracle) error { return nil },
				func(o *models.Oracle) { o.Active = false },
			); err != nil {
				return err
			}
			return errors.New("abort")
		})
		require.Error(t, err)

		_, err = s.FindByAddress(ctx, addrB)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		got, _ := s.FindByAddress(ctx, addrA)
		assert.True(t, got.Active)
	})
}
