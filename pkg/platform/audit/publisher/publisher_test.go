package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "veritas/pkg/platform/audit"
	"veritas/pkg/platform/audit/store/memory"
	"veritas/pkg/platform/tx"
	"veritas/pkg/requestcontext"
)

const subject = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		Subject: subject,
		Action:  string(audit.EventOracleRegistered),
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), subject)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventOracleRegistered), events[0].Action)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{
			Subject: subject,
			Action:  string(audit.EventVoteCast),
		}))
	}
	require.NoError(t, pub.Close())

	events, err := store.ListBySubject(context.Background(), subject)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")

	assert.ErrorIs(t, pub.Emit(context.Background(), audit.Event{Action: "late"}), ErrClosed)
}

func TestPublisher_BufferFullDoesNotBlock(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventVoteCast)})
			if err != nil {
				assert.ErrorIs(t, err, ErrBufferFull)
			}
		}()
	}
	wg.Wait()
}

func TestPublisher_FillsFromContext(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), fixed)
	ctx = requestcontext.WithRequestID(ctx, "req-1")

	require.NoError(t, pub.Emit(ctx, audit.Event{Subject: subject, Action: string(audit.EventWhitelistAdded)}))

	events, err := pub.List(ctx, subject)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, fixed, events[0].Timestamp)
	assert.Equal(t, "req-1", events[0].RequestID)
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	custom := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		Subject:   subject,
		Action:    string(audit.EventWhitelistAdded),
		Timestamp: custom,
	}))

	events, err := pub.List(context.Background(), subject)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, custom, events[0].Timestamp)
}

func TestPublisher_DeferredUntilCommit(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	coord := tx.New()

	err := coord.RunInTx(context.Background(), func(ctx context.Context) error {
		require.NoError(t, pub.Emit(ctx, audit.Event{Subject: subject, Action: string(audit.EventBlacklistAdded)}))
		return errors.New("rolled back")
	})
	require.Error(t, err)

	events, _ := store.ListBySubject(context.Background(), subject)
	assert.Empty(t, events, "rolled back transaction must not leave audit events")

	err = coord.RunInTx(context.Background(), func(ctx context.Context) error {
		return pub.Emit(ctx, audit.Event{Subject: subject, Action: string(audit.EventBlacklistAdded)})
	})
	require.NoError(t, err)

	events, _ = store.ListBySubject(context.Background(), subject)
	assert.Len(t, events, 1)
}
