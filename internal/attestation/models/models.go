package models

import (
	"time"

	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
)

// MaxMetadataLength bounds the free-form metadata an attester may attach.
const MaxMetadataLength = 4096

// Attestation is one submitted claim about a subject for a query.
// Records are append-only; a rejected submission is kept with Valid=false.
type Attestation struct {
	ID          domain.AttestationID `json:"id"`
	Subject     domain.Address       `json:"subject"`
	QueryID     domain.QueryID       `json:"query_id"`
	Result      bool                 `json:"result"`
	Signature   []byte               `json:"signature"`
	Submitter   domain.Address       `json:"submitter"`
	Signer      domain.Address       `json:"signer"`
	SubmittedAt time.Time            `json:"submitted_at"`
	Valid       bool                 `json:"valid"`
	Metadata    string               `json:"metadata,omitempty"`
}

func NewAttestation(subject domain.Address, queryID domain.QueryID, result bool, sig []byte, submitter domain.Address, metadata string, now time.Time) (*Attestation, error) {
	if subject.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "attestation subject is required")
	}
	if queryID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "attestation query id is required")
	}
	if len(metadata) > MaxMetadataLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "attestation metadata is too long")
	}
	return &Attestation{
		ID:          domain.NewAttestationID(),
		Subject:     subject,
		QueryID:     queryID,
		Result:      result,
		Signature:   append([]byte(nil), sig...),
		Submitter:   submitter,
		SubmittedAt: now,
		Metadata:    metadata,
	}, nil
}

// Accept marks the attestation as counted, recording who signed it.
func (a *Attestation) Accept(signer domain.Address) {
	a.Signer = signer
	a.Valid = true
}
