package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"veritas/internal/compliance/models"
	"veritas/pkg/domain"
	"veritas/pkg/platform/sentinel"
	txcontext "veritas/pkg/platform/tx"
)

// PostgresStore persists list entries and the emergency oracle set.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const entryColumns = `list, subject, active, tier, severity, reason, attesters, emergency,
	query_id, created_at, expires_at, removed_reason, updated_at`

func (s *PostgresStore) Save(ctx context.Context, e *models.Entry) error {
	const query = `
		INSERT INTO list_entries (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (list, subject) DO UPDATE SET
			active = EXCLUDED.active,
			tier = EXCLUDED.tier,
			severity = EXCLUDED.severity,
			reason = EXCLUDED.reason,
			attesters = EXCLUDED.attesters,
			emergency = EXCLUDED.emergency,
			query_id = EXCLUDED.query_id,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at,
			removed_reason = EXCLUDED.removed_reason,
			updated_at = EXCLUDED.updated_at
	`
	attesters := make([]string, len(e.Attesters))
	for i, a := range e.Attesters {
		attesters[i] = a.String()
	}
	var queryID sql.NullString
	if e.QueryID != nil {
		queryID = sql.NullString{String: e.QueryID.String(), Valid: true}
	}
	_, err := s.execer(ctx).ExecContext(ctx, query,
		string(e.List),
		e.Subject.String(),
		e.Active,
		string(e.Tier),
		string(e.Severity),
		e.Reason,
		pq.Array(attesters),
		e.Emergency,
		queryID,
		e.CreatedAt,
		e.ExpiresAt,
		e.RemovedReason,
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save list entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, list models.ListKind, subject domain.Address) (*models.Entry, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM list_entries WHERE list = $1 AND subject = $2`,
		string(list), subject.String())
	return scanEntry(row)
}

// Execute locks the row with FOR UPDATE, validates, mutates and saves.
func (s *PostgresStore) Execute(ctx context.Context, list models.ListKind, subject domain.Address, validate func(*models.Entry) error, mutate func(*models.Entry)) (*models.Entry, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM list_entries WHERE list = $1 AND subject = $2 FOR UPDATE`,
		string(list), subject.String())
	e, err := scanEntry(row)
	if err != nil {
		return nil, err
	}
	if err := validate(e); err != nil {
		return nil, err
	}
	mutate(e)
	if err := s.Save(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *PostgresStore) ListStale(ctx context.Context, list models.ListKind, now time.Time, limit int) ([]*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM list_entries
		WHERE list = $1 AND active AND expires_at <= $2
		ORDER BY expires_at, subject`
	args := []any{string(list), now}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stale entries: %w", err)
	}
	defer rows.Close()

	var out []*models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale entries: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SetEmergencyOracle(ctx context.Context, addr domain.Address, enabled bool) error {
	var err error
	if enabled {
		_, err = s.execer(ctx).ExecContext(ctx,
			`INSERT INTO emergency_oracles (address) VALUES ($1) ON CONFLICT (address) DO NOTHING`,
			addr.String())
	} else {
		_, err = s.execer(ctx).ExecContext(ctx,
			`DELETE FROM emergency_oracles WHERE address = $1`, addr.String())
	}
	if err != nil {
		return fmt.Errorf("set emergency oracle: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsEmergencyOracle(ctx context.Context, addr domain.Address) (bool, error) {
	var exists bool
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM emergency_oracles WHERE address = $1)`, addr.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check emergency oracle: %w", err)
	}
	return exists, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*models.Entry, error) {
	var (
		e                             models.Entry
		list, subject, tier, severity string
		attesters                     []string
		queryID                       sql.NullString
	)
	err := row.Scan(&list, &subject, &e.Active, &tier, &severity, &e.Reason, pq.Array(&attesters),
		&e.Emergency, &queryID, &e.CreatedAt, &e.ExpiresAt, &e.RemovedReason, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan list entry: %w", err)
	}
	if e.Subject, err = domain.ParseAddress(subject); err != nil {
		return nil, fmt.Errorf("scan list entry subject: %w", err)
	}
	e.List = models.ListKind(list)
	e.Tier = models.Tier(tier)
	e.Severity = models.Severity(severity)
	for _, a := range attesters {
		addr, err := domain.ParseAddress(a)
		if err != nil {
			return nil, fmt.Errorf("scan list entry attester: %w", err)
		}
		e.Attesters = append(e.Attesters, addr)
	}
	if queryID.Valid {
		id, err := domain.ParseQueryID(queryID.String)
		if err != nil {
			return nil, fmt.Errorf("scan list entry query id: %w", err)
		}
		e.QueryID = &id
	}
	return &e, nil
}
