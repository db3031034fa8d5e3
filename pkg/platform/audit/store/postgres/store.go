package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "veritas/pkg/platform/audit"
	txcontext "veritas/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events land in the audit_outbox table and are relayed to Kafka by the
// outbox worker.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Payload is the JSON document published per event.
type Payload struct {
	ID        string            `json:"id"`
	Category  string            `json:"category"`
	Timestamp string            `json:"timestamp"`
	Action    string            `json:"action"`
	Actor     string            `json:"actor,omitempty"`
	Subject   string            `json:"subject,omitempty"`
	QueryID   string            `json:"query_id,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// ToPayload converts an event to its published form.
func ToPayload(event audit.Event) Payload {
	return Payload{
		ID:        event.ID.String(),
		Category:  string(event.Category),
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:    event.Action,
		Actor:     event.Actor,
		Subject:   event.Subject,
		QueryID:   event.QueryID,
		Reason:    event.Reason,
		RequestID: event.RequestID,
		Details:   event.Details,
	}
}

// Append writes an audit event to the outbox.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	event.Normalize(time.Now())
	body, err := json.Marshal(ToPayload(event))
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	const query = `
		INSERT INTO audit_outbox (id, category, action, subject, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		event.ID,
		string(event.Category),
		event.Action,
		event.Subject,
		body,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// OutboxEntry is one unpublished event.
type OutboxEntry struct {
	ID      uuid.UUID
	Subject string
	Payload []byte
}

// FetchUnpublished returns up to limit entries in insertion order.
func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]OutboxEntry, error) {
	const query = `
		SELECT id, subject, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.Subject, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

// MarkPublished stamps entries as delivered.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `UPDATE audit_outbox SET published_at = $1 WHERE id = ANY($2::uuid[])`
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	if _, err := s.db.ExecContext(ctx, query, at, pq.Array(strs)); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
