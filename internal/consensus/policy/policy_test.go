package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/internal/consensus/models"
	dErrors "veritas/pkg/domain-errors"
	"veritas/pkg/platform/tx"
)

func tally(yes, no uint64) *models.Query {
	return &models.Query{YesWeight: yes, NoWeight: no}
}

func TestCountPolicy(t *testing.T) {
	p := NewCount(2)

	t.Run("resolves on whichever side reaches threshold", func(t *testing.T) {
		resolved, _ := p.Evaluate(tally(1, 1), Panel{ActiveCount: 3})
		assert.False(t, resolved)

		resolved, result := p.Evaluate(tally(2, 1), Panel{ActiveCount: 3})
		assert.True(t, resolved)
		assert.True(t, result)

		resolved, result = p.Evaluate(tally(0, 2), Panel{ActiveCount: 3})
		assert.True(t, resolved)
		assert.False(t, result)
	})

	t.Run("no signature and no expiry", func(t *testing.T) {
		assert.False(t, p.RequiresSignature())
		assert.Zero(t, p.Expiry())
	})

	t.Run("threshold bounded by active count", func(t *testing.T) {
		err := p.SetThreshold(context.Background(), 4, Panel{ActiveCount: 3})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		err = p.SetThreshold(context.Background(), 0, Panel{ActiveCount: 3})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		require.NoError(t, p.SetThreshold(context.Background(), 3, Panel{ActiveCount: 3}))
		assert.Equal(t, 3, p.Threshold())
	})
}

func TestWeightedPolicy(t *testing.T) {
	// three oracles of weight 100
	panel := Panel{ActiveCount: 3, TotalWeight: 300}
	p := NewWeighted(66, 2, time.Hour)

	t.Run("participation floor holds back the first vote", func(t *testing.T) {
		assert.Equal(t, uint64(200), p.RequiredParticipation(panel))
		resolved, _ := p.Evaluate(tally(100, 0), panel)
		assert.False(t, resolved)
	})

	t.Run("second yes vote resolves true", func(t *testing.T) {
		assert.Equal(t, uint64(132), RequiredWeight(200, 66))
		resolved, result := p.Evaluate(tally(200, 0), panel)
		assert.True(t, resolved)
		assert.True(t, result)
	})

	t.Run("split vote below threshold stays open", func(t *testing.T) {
		resolved, _ := p.Evaluate(tally(100, 100), panel)
		assert.False(t, resolved)
	})

	t.Run("no side can win", func(t *testing.T) {
		resolved, result := p.Evaluate(tally(0, 300), panel)
		assert.True(t, resolved)
		assert.False(t, result)
	})

	t.Run("empty panel never resolves", func(t *testing.T) {
		resolved, _ := p.Evaluate(tally(100, 0), Panel{})
		assert.False(t, resolved)
	})

	t.Run("threshold must be a strict majority", func(t *testing.T) {
		for _, v := range []int{0, 50, 101} {
			err := p.SetThreshold(context.Background(), v, panel)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "value %d", v)
		}
		require.NoError(t, p.SetThreshold(context.Background(), 51, panel))
		assert.Equal(t, 51, p.Threshold())
		require.NoError(t, p.SetThreshold(context.Background(), 100, panel))
	})
}

func TestSetThresholdRollsBack(t *testing.T) {
	p := NewWeighted(66, 2, time.Hour)
	coord := tx.New()

	err := coord.RunInTx(context.Background(), func(ctx context.Context) error {
		if err := p.SetThreshold(ctx, 90, Panel{ActiveCount: 3}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.Equal(t, 66, p.Threshold())
}

func TestForcedResult(t *testing.T) {
	assert.True(t, ForcedResult(tally(300, 100)))
	assert.False(t, ForcedResult(tally(100, 100)))
	assert.False(t, ForcedResult(tally(0, 0)))
	assert.False(t, ForcedResult(tally(1, 2)))
}
