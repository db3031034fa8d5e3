package handler

import (
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	attmodels "veritas/internal/attestation/models"
	"veritas/internal/compliance/models"
	consensusmodels "veritas/internal/consensus/models"
	"veritas/pkg/domain"
)

// EntryResponse is a list entry with its status evaluated at request time.
type EntryResponse struct {
	Subject       string    `json:"subject"`
	List          string    `json:"list"`
	Active        bool      `json:"active"`
	Tier          string    `json:"tier,omitempty"`
	Severity      string    `json:"severity,omitempty"`
	Reason        string    `json:"reason"`
	Attesters     []string  `json:"attesters"`
	Emergency     bool      `json:"emergency_listing"`
	QueryID       string    `json:"query_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	RemovedReason string    `json:"removed_reason,omitempty"`
}

func FromEntry(e *models.Entry, now time.Time) *EntryResponse {
	out := &EntryResponse{
		Subject:       e.Subject.String(),
		List:          string(e.List),
		Active:        e.IsActiveAt(now),
		Tier:          string(e.Tier),
		Severity:      string(e.Severity),
		Reason:        e.Reason,
		Attesters:     make([]string, 0, len(e.Attesters)),
		Emergency:     e.Emergency,
		CreatedAt:     e.CreatedAt,
		ExpiresAt:     e.ExpiresAt,
		RemovedReason: e.RemovedReason,
	}
	for _, a := range e.Attesters {
		out.Attesters = append(out.Attesters, a.String())
	}
	if e.QueryID != nil {
		out.QueryID = e.QueryID.String()
	}
	return out
}

type EntriesResponse struct {
	Entries []*EntryResponse `json:"entries"`
	Total   int              `json:"total"`
}

func FromEntries(entries []*models.Entry, now time.Time) *EntriesResponse {
	out := &EntriesResponse{Entries: make([]*EntryResponse, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, FromEntry(e, now))
	}
	out.Total = len(out.Entries)
	return out
}

// LookupResponse carries whitelisted or blacklisted, depending on the list.
type LookupResponse struct {
	Subject     string         `json:"subject"`
	Whitelisted *bool          `json:"whitelisted,omitempty"`
	Blacklisted *bool          `json:"blacklisted,omitempty"`
	Entry       *EntryResponse `json:"entry"`
}

func FromLookup(list models.ListKind, subject domain.Address, listed bool, e *models.Entry, now time.Time) *LookupResponse {
	out := &LookupResponse{Subject: subject.String()}
	if list == models.Whitelist {
		out.Whitelisted = &listed
	} else {
		out.Blacklisted = &listed
	}
	if e != nil {
		out.Entry = FromEntry(e, now)
	}
	return out
}

type AttestationResponse struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	QueryID     string    `json:"query_id"`
	Result      bool      `json:"result"`
	Signature   string    `json:"signature"`
	Submitter   string    `json:"submitter"`
	Signer      string    `json:"signer,omitempty"`
	Valid       bool      `json:"valid"`
	Metadata    string    `json:"metadata,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func FromAttestation(a *attmodels.Attestation) *AttestationResponse {
	out := &AttestationResponse{
		ID:          a.ID.String(),
		Subject:     a.Subject.String(),
		QueryID:     a.QueryID.String(),
		Result:      a.Result,
		Signature:   hexutil.Encode(a.Signature),
		Submitter:   a.Submitter.String(),
		Valid:       a.Valid,
		Metadata:    a.Metadata,
		SubmittedAt: a.SubmittedAt,
	}
	if !a.Signer.IsZero() {
		out.Signer = a.Signer.String()
	}
	return out
}

type AttestationsResponse struct {
	Attestations []*AttestationResponse `json:"attestations"`
	Total        int                    `json:"total"`
}

func FromAttestations(list []*attmodels.Attestation) *AttestationsResponse {
	out := &AttestationsResponse{Attestations: make([]*AttestationResponse, 0, len(list))}
	for _, a := range list {
		out.Attestations = append(out.Attestations, FromAttestation(a))
	}
	out.Total = len(out.Attestations)
	return out
}

// ResolutionResponse summarizes a query's state after a vote or forced resolution.
type ResolutionResponse struct {
	QueryID       string `json:"query_id"`
	Resolved      bool   `json:"resolved"`
	ForceResolved bool   `json:"force_resolved"`
	HasResult     bool   `json:"has_result"`
	Result        bool   `json:"result"`
	YesWeight     uint64 `json:"yes_weight"`
	NoWeight      uint64 `json:"no_weight"`
}

func FromResolution(q *consensusmodels.Query) *ResolutionResponse {
	hasResult, result := q.Outcome()
	return &ResolutionResponse{
		QueryID:       q.ID.String(),
		Resolved:      q.Resolved,
		ForceResolved: q.ForceResolved,
		HasResult:     hasResult,
		Result:        result,
		YesWeight:     q.YesWeight,
		NoWeight:      q.NoWeight,
	}
}

type AttestationResultResponse struct {
	Attestation *AttestationResponse `json:"attestation"`
	Query       *ResolutionResponse  `json:"query"`
}

func FromAttestationResult(a *attmodels.Attestation, q *consensusmodels.Query) *AttestationResultResponse {
	return &AttestationResultResponse{
		Attestation: FromAttestation(a),
		Query:       FromResolution(q),
	}
}

type CleanupResponse struct {
	Cleaned int `json:"cleaned"`
}

type EmergencyOracleResponse struct {
	Address string `json:"address"`
	Enabled bool   `json:"enabled"`
}
