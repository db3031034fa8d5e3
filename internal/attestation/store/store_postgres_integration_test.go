//go:build integration

package store_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"veritas/internal/attestation/models"
	"veritas/internal/attestation/store"
	"veritas/pkg/domain"
	"veritas/pkg/platform/tx"
	"veritas/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	subject  domain.Address
	signer   domain.Address
	query    domain.QueryID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.Pool)
	s.subject = domain.MustAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	s.signer = domain.MustAddress("0x0000000000000000000000000000000000000001")
	q, err := domain.ParseQueryID("0x" + strings.Repeat("0c", 32))
	s.Require().NoError(err)
	s.query = q
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "attestations"))
}

func (s *PostgresStoreSuite) attestation(at time.Time) *models.Attestation {
	a, err := models.NewAttestation(s.subject, s.query, true, []byte{0xde, 0xad}, s.signer, "ref-1", at)
	s.Require().NoError(err)
	a.Accept(s.signer)
	return a
}

func (s *PostgresStoreSuite) TestAppendAndList() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)
	first := s.attestation(base)
	second := s.attestation(base.Add(time.Second))
	s.Require().NoError(s.store.Append(ctx, second))
	s.Require().NoError(s.store.Append(ctx, first))

	byQuery, err := s.store.ListByQuery(ctx, s.query)
	s.Require().NoError(err)
	s.Require().Len(byQuery, 2)
	s.Equal(first.ID, byQuery[0].ID)
	s.Equal(s.signer, byQuery[0].Signer)
	s.Equal([]byte{0xde, 0xad}, byQuery[0].Signature)
	s.True(byQuery[0].Valid)

	bySubject, err := s.store.ListBySubject(ctx, s.subject)
	s.Require().NoError(err)
	s.Len(bySubject, 2)
}

func (s *PostgresStoreSuite) TestAppendIsCompensatedOnRollback() {
	ctx := context.Background()
	err := tx.New().RunInTx(ctx, func(ctx context.Context) error {
		s.Require().NoError(s.store.Append(ctx, s.attestation(time.Now().UTC())))
		return errors.New("vote rejected")
	})
	s.Require().Error(err)

	got, err := s.store.ListByQuery(ctx, s.query)
	s.Require().NoError(err)
	s.Empty(got)
}
