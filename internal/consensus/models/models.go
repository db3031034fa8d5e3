package models

import (
	"encoding/binary"
	"time"

	"golang.org/x/crypto/sha3"

	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
)

// QueryType tags what a consensus query decides.
type QueryType string

const (
	TypeWhitelistApproval QueryType = "whitelist_approval"
	TypeBlacklistListing  QueryType = "blacklist_listing"
)

func ParseQueryType(s string) (QueryType, error) {
	switch QueryType(s) {
	case TypeWhitelistApproval, TypeBlacklistListing:
		return QueryType(s), nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown query type %q", s)
	}
}

// PolicyKind names the tally policy a query is resolved under.
type PolicyKind string

const (
	PolicyCount    PolicyKind = "count"
	PolicyWeighted PolicyKind = "weighted"
)

func ParsePolicyKind(s string) (PolicyKind, error) {
	switch PolicyKind(s) {
	case PolicyCount, PolicyWeighted:
		return PolicyKind(s), nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown consensus policy %q", s)
	}
}

const MaxPayloadBytes = 8 << 10

// Vote is one accepted ballot. Caller is the account that submitted it,
// Signer the account recovered from its signature (equal to Caller on the
// count path, which carries no signature).
type Vote struct {
	Caller domain.Address `json:"caller"`
	Signer domain.Address `json:"signer"`
	Yes    bool           `json:"yes"`
	Weight uint64         `json:"weight"`
	CastAt time.Time      `json:"cast_at"`
}

// Query is the aggregate root for one consensus round.
//
// Invariants:
//   - ID is the content hash of subject, type, payload, creation time and requester
//   - at most one vote per calling account
//   - once Resolved, Result and the tallies never change
type Query struct {
	ID        domain.QueryID `json:"id"`
	Subject   domain.Address `json:"subject"`
	Type      QueryType      `json:"query_type"`
	Payload   []byte         `json:"payload,omitempty"`
	Requester domain.Address `json:"requester"`
	Policy    PolicyKind     `json:"policy"`
	CreatedAt time.Time      `json:"created_at"`
	// ExpiresAt is zero for count-policy queries, which never expire.
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
	Votes         []Vote    `json:"votes"`
	YesWeight     uint64    `json:"yes_weight"`
	NoWeight      uint64    `json:"no_weight"`
	Resolved      bool      `json:"resolved"`
	Result        bool      `json:"result"`
	ForceResolved bool      `json:"force_resolved,omitempty"`
	ResolvedAt    time.Time `json:"resolved_at,omitempty"`
	// AppliedAt is set once the result has been written to the lists. A
	// result is applied at most once.
	AppliedAt time.Time `json:"applied_at,omitempty"`
}

// DeriveID hashes the creation inputs with Keccak-256. The timestamp is
// encoded as a big-endian 256-bit unsigned integer of unix seconds.
func DeriveID(subject domain.Address, qt QueryType, payload []byte, createdAt time.Time, requester domain.Address) domain.QueryID {
	var ts [32]byte
	binary.BigEndian.PutUint64(ts[24:], uint64(createdAt.Unix()))

	h := sha3.NewLegacyKeccak256()
	h.Write(subject.Bytes())
	h.Write([]byte(qt))
	h.Write(payload)
	h.Write(ts[:])
	h.Write(requester.Bytes())

	var id domain.QueryID
	copy(id[:], h.Sum(nil))
	return id
}

func NewQuery(subject domain.Address, qt QueryType, payload []byte, requester domain.Address, policy PolicyKind, expiry time.Duration, now time.Time) (*Query, error) {
	if subject.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "query subject must not be the zero address")
	}
	if _, err := ParseQueryType(string(qt)); err != nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, err.Error())
	}
	if len(payload) > MaxPayloadBytes {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "payload must be %d bytes or less", MaxPayloadBytes)
	}
	q := &Query{
		ID:        DeriveID(subject, qt, payload, now, requester),
		Subject:   subject,
		Type:      qt,
		Payload:   append([]byte(nil), payload...),
		Requester: requester,
		Policy:    policy,
		CreatedAt: now,
	}
	if policy == PolicyWeighted {
		if expiry <= 0 {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "weighted queries need a positive expiry window")
		}
		q.ExpiresAt = now.Add(expiry)
	}
	return q, nil
}

func (q *Query) HasExpiry() bool {
	return !q.ExpiresAt.IsZero()
}

func (q *Query) IsExpired(now time.Time) bool {
	return q.HasExpiry() && !now.Before(q.ExpiresAt)
}

func (q *Query) HasVoted(caller domain.Address) bool {
	for _, v := range q.Votes {
		if v.Caller == caller {
			return true
		}
	}
	return false
}

// TotalVotes is the weight cast so far on both sides.
func (q *Query) TotalVotes() uint64 {
	return q.YesWeight + q.NoWeight
}

// CanVote checks state only: resolution, expiry, then the caller's ballot.
func (q *Query) CanVote(caller domain.Address, now time.Time) error {
	if q.Resolved {
		return dErrors.New(dErrors.CodeInvalidState, "query is already resolved")
	}
	if q.IsExpired(now) {
		return dErrors.New(dErrors.CodeInvalidState, "query has expired")
	}
	if q.HasVoted(caller) {
		return dErrors.New(dErrors.CodeInvalidState, "already voted")
	}
	return nil
}

func (q *Query) ApplyVote(v Vote) {
	q.Votes = append(q.Votes, v)
	if v.Yes {
		q.YesWeight += v.Weight
	} else {
		q.NoWeight += v.Weight
	}
}

// ApplyResolution freezes the outcome. Callers check Resolved first.
func (q *Query) ApplyResolution(result, forced bool, now time.Time) {
	q.Resolved = true
	q.Result = result
	q.ForceResolved = forced
	q.ResolvedAt = now
}

func (q *Query) CanForceResolve(now time.Time) error {
	if q.Resolved {
		return dErrors.New(dErrors.CodeInvalidState, "query is already resolved")
	}
	if !q.HasExpiry() {
		return dErrors.New(dErrors.CodeInvalidState, "query has no expiry and cannot be force resolved")
	}
	if now.Before(q.ExpiresAt) {
		return dErrors.New(dErrors.CodeInvalidState, "query has not expired yet")
	}
	return nil
}

func (q *Query) IsApplied() bool {
	return !q.AppliedAt.IsZero()
}

// CanApply allows a resolved result to reach the lists exactly once.
func (q *Query) CanApply() error {
	if !q.Resolved {
		return dErrors.New(dErrors.CodeInvalidState, "query is not resolved")
	}
	if q.IsApplied() {
		return dErrors.New(dErrors.CodeInvalidState, "query result was already applied")
	}
	return nil
}

func (q *Query) ApplyApplied(now time.Time) {
	q.AppliedAt = now
}

// Outcome reports the frozen result, if any.
func (q *Query) Outcome() (hasResult, result bool) {
	return q.Resolved, q.Result
}

// Attesters returns the signers whose ballot matched side.
func (q *Query) Attesters(side bool) []domain.Address {
	var out []domain.Address
	seen := make(map[domain.Address]struct{}, len(q.Votes))
	for _, v := range q.Votes {
		if v.Yes != side {
			continue
		}
		if _, ok := seen[v.Signer]; ok {
			continue
		}
		seen[v.Signer] = struct{}{}
		out = append(out, v.Signer)
	}
	return out
}

func (q *Query) Clone() *Query {
	cp := *q
	cp.Payload = append([]byte(nil), q.Payload...)
	cp.Votes = append([]Vote(nil), q.Votes...)
	return &cp
}
