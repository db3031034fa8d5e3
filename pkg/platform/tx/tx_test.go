package tx

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "veritas/pkg/domain-errors"
)

func TestRunInTx_UnwindsOnError(t *testing.T) {
	c := New()
	state := []string{"base"}

	err := c.RunInTx(context.Background(), func(ctx context.Context) error {
		state = append(state, "first")
		OnRollback(ctx, func(context.Context) { state = state[:len(state)-1] })
		state = append(state, "second")
		OnRollback(ctx, func(context.Context) { state = state[:len(state)-1] })
		return errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, []string{"base"}, state)
}

func TestRunInTx_CommitKeepsWrites(t *testing.T) {
	c := New()
	var undone bool

	err := c.RunInTx(context.Background(), func(ctx context.Context) error {
		OnRollback(ctx, func(context.Context) { undone = true })
		return nil
	})

	require.NoError(t, err)
	assert.False(t, undone)
}

func TestRunInTx_NestedJoinsOuter(t *testing.T) {
	c := New()
	var order []string

	err := c.RunInTx(context.Background(), func(ctx context.Context) error {
		OnRollback(ctx, func(context.Context) { order = append(order, "outer") })
		inner := c.RunInTx(ctx, func(ctx context.Context) error {
			OnRollback(ctx, func(context.Context) { order = append(order, "inner") })
			return nil
		})
		require.NoError(t, inner)
		return errors.New("abort after inner commit")
	})

	require.Error(t, err)
	assert.Equal(t, []string{"inner", "outer"}, order)
}

func TestRunInTx_PanicUnwindsAndRepanics(t *testing.T) {
	c := New()
	var undone bool

	assert.Panics(t, func() {
		_ = c.RunInTx(context.Background(), func(ctx context.Context) error {
			OnRollback(ctx, func(context.Context) { undone = true })
			panic("bug")
		})
	})
	assert.True(t, undone)

	// lock released after the panic
	require.NoError(t, c.RunInTx(context.Background(), func(context.Context) error { return nil }))
}

func TestRunInTx_CancelledContext(t *testing.T) {
	c := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.RunInTx(ctx, func(context.Context) error {
		t.Fatal("callback must not run")
		return nil
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestRunInTx_Serializes(t *testing.T) {
	c := New()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.RunInTx(context.Background(), func(context.Context) error {
				v := counter
				counter = v + 1
				return nil
			})
		}()
	}
	wg.Wait()

	var got int
	require.NoError(t, c.View(context.Background(), func(context.Context) error {
		got = counter
		return nil
	}))
	assert.Equal(t, 50, got)
}

func TestRunInTx_SQLTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := New(WithDB(db))

	t.Run("commit on success", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectCommit()
		err := c.RunInTx(context.Background(), func(ctx context.Context) error {
			_, ok := From(ctx)
			assert.True(t, ok)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("rollback on failure", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()
		err := c.RunInTx(context.Background(), func(context.Context) error {
			return errors.New("nope")
		})
		require.Error(t, err)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOnRollbackOutsideTxIsNoop(t *testing.T) {
	called := false
	OnRollback(context.Background(), func(context.Context) { called = true })
	assert.False(t, called)
	assert.False(t, InTx(context.Background()))
}

func TestOnCommit(t *testing.T) {
	c := New()

	t.Run("runs after commit", func(t *testing.T) {
		var ran bool
		err := c.RunInTx(context.Background(), func(ctx context.Context) error {
			OnCommit(ctx, func(context.Context) { ran = true })
			assert.False(t, ran)
			return nil
		})
		require.NoError(t, err)
		assert.True(t, ran)
	})

	t.Run("dropped on rollback", func(t *testing.T) {
		var ran bool
		_ = c.RunInTx(context.Background(), func(ctx context.Context) error {
			OnCommit(ctx, func(context.Context) { ran = true })
			return errors.New("fail")
		})
		assert.False(t, ran)
	})

	t.Run("immediate outside a transaction", func(t *testing.T) {
		var ran bool
		OnCommit(context.Background(), func(context.Context) { ran = true })
		assert.True(t, ran)
	})
}
