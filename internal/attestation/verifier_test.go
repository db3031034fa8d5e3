package attestation

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/suite"

	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
)

type stubDirectory struct {
	active map[domain.Address]bool
	err    error
}

func (d stubDirectory) IsActive(_ context.Context, addr domain.Address) (bool, error) {
	return d.active[addr], d.err
}

type VerifierSuite struct {
	suite.Suite
	key      *ecdsa.PrivateKey
	oracle   domain.Address
	subject  domain.Address
	queryID  domain.QueryID
	verifier *Verifier
}

func TestVerifierSuite(t *testing.T) {
	suite.Run(t, new(VerifierSuite))
}

func (s *VerifierSuite) SetupTest() {
	key, err := crypto.GenerateKey()
	s.Require().NoError(err)
	s.key = key
	s.oracle = AddressOf(key)
	s.subject = domain.MustAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	s.queryID, err = domain.ParseQueryID("0x" + strings.Repeat("11", 32))
	s.Require().NoError(err)
	s.verifier = NewVerifier(1337, stubDirectory{active: map[domain.Address]bool{s.oracle: true}})
}

func (s *VerifierSuite) TestValidSignatureRecoversOracle() {
	sig, err := Sign(s.key, s.subject, s.queryID, true, 1337)
	s.Require().NoError(err)
	s.Contains([]byte{27, 28}, sig[64])

	signer, err := s.verifier.Verify(context.Background(), s.subject, s.queryID, true, sig)
	s.Require().NoError(err)
	s.Equal(s.oracle, signer)
}

func (s *VerifierSuite) TestAcceptsZeroOneRecoveryID() {
	sig, err := Sign(s.key, s.subject, s.queryID, false, 1337)
	s.Require().NoError(err)
	sig[64] -= 27

	signer, err := s.verifier.Verify(context.Background(), s.subject, s.queryID, false, sig)
	s.Require().NoError(err)
	s.Equal(s.oracle, signer)
}

func (s *VerifierSuite) TestMessageBindsEveryField() {
	sig, err := Sign(s.key, s.subject, s.queryID, true, 1337)
	s.Require().NoError(err)

	s.Run("flipped vote", func() {
		_, err := s.verifier.Verify(context.Background(), s.subject, s.queryID, false, sig)
		s.True(dErrors.IsKind(err, dErrors.KindSignature))
	})

	s.Run("other chain scope", func() {
		other := NewVerifier(1, stubDirectory{active: map[domain.Address]bool{s.oracle: true}})
		_, err := other.Verify(context.Background(), s.subject, s.queryID, true, sig)
		s.True(dErrors.IsKind(err, dErrors.KindSignature))
	})

	s.Run("other subject", func() {
		other := domain.MustAddress("0x1000000000000000000000000000000000000001")
		_, err := s.verifier.Verify(context.Background(), other, s.queryID, true, sig)
		s.True(dErrors.IsKind(err, dErrors.KindSignature))
	})
}

func (s *VerifierSuite) TestInactiveSignerRejected() {
	stranger, err := crypto.GenerateKey()
	s.Require().NoError(err)
	sig, err := Sign(stranger, s.subject, s.queryID, true, 1337)
	s.Require().NoError(err)

	_, err = s.verifier.Verify(context.Background(), s.subject, s.queryID, true, sig)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidSignature))
}

func (s *VerifierSuite) TestMalformedSignatures() {
	s.Run("wrong length", func() {
		_, err := s.verifier.Verify(context.Background(), s.subject, s.queryID, true, []byte{1, 2, 3})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidSignature))
	})

	s.Run("bad recovery id", func() {
		sig, err := Sign(s.key, s.subject, s.queryID, true, 1337)
		s.Require().NoError(err)
		sig[64] = 35
		_, err = s.verifier.Verify(context.Background(), s.subject, s.queryID, true, sig)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidSignature))
	})

	s.Run("high S is rejected", func() {
		sig, err := Sign(s.key, s.subject, s.queryID, true, 1337)
		s.Require().NoError(err)
		for i := 32; i < 64; i++ {
			sig[i] = 0xff
		}
		_, err = s.verifier.Verify(context.Background(), s.subject, s.queryID, true, sig)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidSignature))
	})
}

func (s *VerifierSuite) TestDirectoryFailureIsInternal() {
	v := NewVerifier(1337, stubDirectory{err: errors.New("db down")})
	sig, err := Sign(s.key, s.subject, s.queryID, true, 1337)
	s.Require().NoError(err)

	_, err = v.Verify(context.Background(), s.subject, s.queryID, true, sig)
	s.Equal(dErrors.KindInternal, dErrors.KindOf(err))
}

func (s *VerifierSuite) TestMessageHashIsDeterministic() {
	a := MessageHash(s.subject, s.queryID, true, 1337)
	b := MessageHash(s.subject, s.queryID, true, 1337)
	c := MessageHash(s.subject, s.queryID, false, 1337)
	s.Equal(a, b)
	s.NotEqual(a, c)
}
