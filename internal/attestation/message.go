// Package attestation authenticates oracle attestations.
//
// An oracle signs keccak256(subject || queryID || result || chainID) using
// the EIP-191 personal-message prefix. The 65-byte [R || S || V] signature
// accepts V as 0/1 or 27/28. Recovery is pure; deciding whether the signer
// is allowed to vote is delegated to the oracle registry.
package attestation

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
)

// SignatureLength is the size of a recoverable secp256k1 signature.
const SignatureLength = crypto.SignatureLength

// MessageHash is the inner hash an oracle commits to.
func MessageHash(subject domain.Address, queryID domain.QueryID, result bool, chainID uint64) common.Hash {
	var vote byte
	if result {
		vote = 1
	}
	scope := common.LeftPadBytes(new(big.Int).SetUint64(chainID).Bytes(), 32)
	return crypto.Keccak256Hash(subject.Bytes(), queryID.Bytes(), []byte{vote}, scope)
}

// Digest is the EIP-191 prefixed hash that is actually signed.
func Digest(subject domain.Address, queryID domain.QueryID, result bool, chainID uint64) []byte {
	return accounts.TextHash(MessageHash(subject, queryID, result, chainID).Bytes())
}

// Sign produces a signature with V in {27, 28}.
func Sign(key *ecdsa.PrivateKey, subject domain.Address, queryID domain.QueryID, result bool, chainID uint64) ([]byte, error) {
	sig, err := crypto.Sign(Digest(subject, queryID, result, chainID), key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Recover returns the account that produced sig over digest.
// Malformed and malleable (high-S) signatures fail with CodeInvalidSignature.
func Recover(digest, sig []byte) (domain.Address, error) {
	if len(sig) != SignatureLength {
		return domain.Address{}, dErrors.New(dErrors.CodeInvalidSignature, "signature must be 65 bytes")
	}
	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	v := normalized[crypto.RecoveryIDOffset]
	r := new(big.Int).SetBytes(normalized[:32])
	s := new(big.Int).SetBytes(normalized[32:64])
	if v > 1 || !crypto.ValidateSignatureValues(v, r, s, true) {
		return domain.Address{}, dErrors.New(dErrors.CodeInvalidSignature, "signature values are out of range")
	}

	pub, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return domain.Address{}, dErrors.Wrap(err, dErrors.CodeInvalidSignature, "signature does not recover")
	}
	return domain.Address(crypto.PubkeyToAddress(*pub)), nil
}

// AddressOf derives the account for a private key.
func AddressOf(key *ecdsa.PrivateKey) domain.Address {
	return domain.Address(crypto.PubkeyToAddress(key.PublicKey))
}
