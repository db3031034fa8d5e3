package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"veritas/internal/oracle/models"
	"veritas/pkg/domain"
	"veritas/pkg/platform/sentinel"
	txcontext "veritas/pkg/platform/tx"
)

// PostgresStore persists oracle records. Inside a transaction every
// statement runs on the context's *sql.Tx.
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

const oracleColumns = `address, name, description, registered, active, reputation, explicit_weight,
	total_attestations, correct_attestations, deregister_reason, registered_at, updated_at`

func (s *PostgresStore) Save(ctx context.Context, o *models.Oracle) error {
	const query = `
		INSERT INTO oracles (` + oracleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (address) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			registered = EXCLUDED.registered,
			active = EXCLUDED.active,
			reputation = EXCLUDED.reputation,
			explicit_weight = EXCLUDED.explicit_weight,
			total_attestations = EXCLUDED.total_attestations,
			correct_attestations = EXCLUDED.correct_attestations,
			deregister_reason = EXCLUDED.deregister_reason,
			registered_at = EXCLUDED.registered_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		o.Address.String(),
		o.Name,
		o.Description,
		o.Registered,
		o.Active,
		o.Reputation,
		int64(o.ExplicitWeight),
		int64(o.TotalAttestations),
		int64(o.CorrectAttestations),
		o.DeregisterReason,
		o.RegisteredAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save oracle: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByAddress(ctx context.Context, addr domain.Address) (*models.Oracle, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+oracleColumns+` FROM oracles WHERE address = $1`, addr.String())
	return scanOracle(row)
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Oracle, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `SELECT `+oracleColumns+` FROM oracles ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("list oracles: %w", err)
	}
	defer rows.Close()

	var out []*models.Oracle
	for rows.Next() {
		o, err := scanOracle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate oracles: %w", err)
	}
	return out, nil
}

// Execute locks the row with FOR UPDATE, validates, mutates and saves.
func (s *PostgresStore) Execute(ctx context.Context, addr domain.Address, validate func(*models.Oracle) error, mutate func(*models.Oracle)) (*models.Oracle, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+oracleColumns+` FROM oracles WHERE address = $1 FOR UPDATE`, addr.String())
	o, err := scanOracle(row)
	if err != nil {
		return nil, err
	}
	if err := validate(o); err != nil {
		return nil, err
	}
	mutate(o)
	if err := s.Save(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOracle(row scanner) (*models.Oracle, error) {
	var (
		o                      models.Oracle
		address                string
		weight, total, correct int64
	)
	err := row.Scan(&address, &o.Name, &o.Description, &o.Registered, &o.Active, &o.Reputation,
		&weight, &total, &correct, &o.DeregisterReason, &o.RegisteredAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan oracle: %w", err)
	}
	addr, err := domain.ParseAddress(address)
	if err != nil {
		return nil, fmt.Errorf("scan oracle address: %w", err)
	}
	o.Address = addr
	o.ExplicitWeight = uint64(weight)
	o.TotalAttestations = uint64(total)
	o.CorrectAttestations = uint64(correct)
	return &o, nil
}
