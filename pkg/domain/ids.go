// Package domain holds identifier primitives shared by every module.
//
// Accounts and query identifiers are distinct named types over the
// go-ethereum byte arrays so an oracle address can never be passed where a
// query id is expected. Parse* functions are the trust boundary: they reject
// malformed and zero values with CodeInvalidInput.
package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	dErrors "veritas/pkg/domain-errors"
)

// maxHexInput bounds untrusted input before any decoding work is done.
const maxHexInput = 128

// Address identifies an account: an oracle, the administrator, a relayer or
// a compliance subject.
type Address common.Address

// ZeroAddress is the null account.
var ZeroAddress = Address{}

// ParseAddress validates a 0x-prefixed or bare 40 hex character address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "address is required")
	}
	if len(s) > maxHexInput || !common.IsHexAddress(s) {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "address must be 20 hex-encoded bytes")
	}
	addr := Address(common.HexToAddress(s))
	if addr.IsZero() {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "address must not be the zero address")
	}
	return addr, nil
}

// MustAddress parses s and panics on failure. Intended for tests and constants.
func MustAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Common returns the go-ethereum representation.
func (a Address) Common() common.Address {
	return common.Address(a)
}

func (a Address) Bytes() []byte {
	return a[:]
}

// String returns the EIP-55 checksummed hex form.
func (a Address) String() string {
	return common.Address(a).Hex()
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// QueryID is the content-addressed identifier of a consensus query.
type QueryID common.Hash

// ParseQueryID validates a 32-byte hex identifier.
func ParseQueryID(s string) (QueryID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return QueryID{}, dErrors.New(dErrors.CodeInvalidInput, "query id is required")
	}
	if len(s) > maxHexInput {
		return QueryID{}, dErrors.New(dErrors.CodeInvalidInput, "query id is too long")
	}
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(raw) != 2*common.HashLength || !isHex(raw) {
		return QueryID{}, dErrors.New(dErrors.CodeInvalidInput, "query id must be 32 hex-encoded bytes")
	}
	q := QueryID(common.HexToHash(raw))
	if q.IsZero() {
		return QueryID{}, dErrors.New(dErrors.CodeInvalidInput, "query id must not be zero")
	}
	return q, nil
}

func (q QueryID) IsZero() bool {
	return q == QueryID{}
}

func (q QueryID) Bytes() []byte {
	return q[:]
}

func (q QueryID) String() string {
	return common.Hash(q).Hex()
}

func (q QueryID) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

func (q *QueryID) UnmarshalText(text []byte) error {
	parsed, err := ParseQueryID(string(text))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// AttestationID identifies one append-only attestation record.
type AttestationID uuid.UUID

func NewAttestationID() AttestationID {
	return AttestationID(uuid.New())
}

// ParseAttestationID validates a non-nil UUID.
func ParseAttestationID(s string) (AttestationID, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return AttestationID{}, dErrors.New(dErrors.CodeInvalidInput, "attestation id must be a UUID")
	}
	if u == uuid.Nil {
		return AttestationID{}, dErrors.New(dErrors.CodeInvalidInput, "attestation id must not be nil")
	}
	return AttestationID(u), nil
}

func (a AttestationID) IsNil() bool {
	return uuid.UUID(a) == uuid.Nil
}

func (a AttestationID) String() string {
	return uuid.UUID(a).String()
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
