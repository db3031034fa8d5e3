package attestation

import (
	"context"

	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
)

// OracleDirectory answers whether an account may currently attest.
type OracleDirectory interface {
	IsActive(ctx context.Context, oracle domain.Address) (bool, error)
}

// Verifier binds recovery to a chain scope and the live oracle set.
type Verifier struct {
	chainID uint64
	oracles OracleDirectory
}

func NewVerifier(chainID uint64, oracles OracleDirectory) *Verifier {
	return &Verifier{chainID: chainID, oracles: oracles}
}

func (v *Verifier) ChainID() uint64 {
	return v.chainID
}

// Verify recovers the signer of (subject, queryID, result) and confirms it
// is an active oracle.
func (v *Verifier) Verify(ctx context.Context, subject domain.Address, queryID domain.QueryID, result bool, sig []byte) (domain.Address, error) {
	signer, err := Recover(Digest(subject, queryID, result, v.chainID), sig)
	if err != nil {
		return domain.Address{}, err
	}
	active, err := v.oracles.IsActive(ctx, signer)
	if err != nil {
		return domain.Address{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check signer")
	}
	if !active {
		return domain.Address{}, dErrors.Newf(dErrors.CodeInvalidSignature, "signer %s is not an active oracle", signer)
	}
	return signer, nil
}
