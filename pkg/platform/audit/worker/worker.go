package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	audit "veritas/pkg/platform/audit"
	"veritas/pkg/platform/audit/store/postgres"
)

// Outbox is the read side of the Postgres audit outbox.
type Outbox interface {
	FetchUnpublished(ctx context.Context, limit int) ([]postgres.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Publisher delivers one encoded event.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte, category audit.EventCategory) error
}

// Worker relays outbox entries to Kafka until ctx is cancelled.
type Worker struct {
	outbox    Outbox
	publisher Publisher
	interval  time.Duration
	batch     int
	logger    *slog.Logger
}

func NewWorker(outbox Outbox, publisher Publisher, interval time.Duration, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Worker{outbox: outbox, publisher: publisher, interval: interval, batch: 100, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.RelayOnce(ctx); err != nil && w.logger != nil {
				w.logger.WarnContext(ctx, "audit outbox relay failed", "error", err)
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many entries were delivered.
// Delivery stops at the first failure so ordering is preserved.
func (w *Worker) RelayOnce(ctx context.Context) (int, error) {
	entries, err := w.outbox.FetchUnpublished(ctx, w.batch)
	if err != nil {
		return 0, err
	}
	delivered := make([]uuid.UUID, 0, len(entries))
	var relayErr error
	for _, e := range entries {
		if err := w.publisher.Publish(ctx, e.Subject, e.Payload, ""); err != nil {
			relayErr = err
			break
		}
		delivered = append(delivered, e.ID)
	}
	if err := w.outbox.MarkPublished(ctx, delivered, time.Now()); err != nil {
		return 0, err
	}
	return len(delivered), relayErr
}
