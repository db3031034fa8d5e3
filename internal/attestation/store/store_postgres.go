package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"veritas/internal/attestation/models"
	"veritas/pkg/domain"
	"veritas/pkg/platform/tx"
)

// PostgresStore keeps the attestation log in Postgres through a pgx pool.
// It sits outside the database/sql transaction, so appends made inside a
// transaction register a compensating delete.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const selectColumns = `id, subject, query_id, result, signature, submitter, signer, submitted_at, valid, metadata`

func (s *PostgresStore) Append(ctx context.Context, a *models.Attestation) error {
	const query = `
		INSERT INTO attestations (` + selectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	id := uuid.UUID(a.ID)
	_, err := s.pool.Exec(ctx, query,
		id,
		a.Subject.Bytes(),
		a.QueryID.Bytes(),
		a.Result,
		a.Signature,
		a.Submitter.Bytes(),
		a.Signer.Bytes(),
		a.SubmittedAt,
		a.Valid,
		a.Metadata,
	)
	if err != nil {
		return fmt.Errorf("insert attestation: %w", err)
	}

	tx.OnRollback(ctx, func(ctx context.Context) {
		_, _ = s.pool.Exec(ctx, `DELETE FROM attestations WHERE id = $1`, id)
	})
	return nil
}

func (s *PostgresStore) ListByQuery(ctx context.Context, queryID domain.QueryID) ([]*models.Attestation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM attestations WHERE query_id = $1 ORDER BY submitted_at, id`,
		queryID.Bytes())
	if err != nil {
		return nil, fmt.Errorf("list attestations by query: %w", err)
	}
	return collect(rows)
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subject domain.Address) ([]*models.Attestation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM attestations WHERE subject = $1 ORDER BY submitted_at, id`,
		subject.Bytes())
	if err != nil {
		return nil, fmt.Errorf("list attestations by subject: %w", err)
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]*models.Attestation, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Attestation, error) {
		var (
			a                                   models.Attestation
			id                                  uuid.UUID
			subject, queryID, submitter, signer []byte
		)
		if err := row.Scan(&id, &subject, &queryID, &a.Result, &a.Signature, &submitter, &signer, &a.SubmittedAt, &a.Valid, &a.Metadata); err != nil {
			return nil, err
		}
		a.ID = domain.AttestationID(id)
		copy(a.Subject[:], subject)
		copy(a.QueryID[:], queryID)
		copy(a.Submitter[:], submitter)
		copy(a.Signer[:], signer)
		return &a, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan attestations: %w", err)
	}
	return out, nil
}
