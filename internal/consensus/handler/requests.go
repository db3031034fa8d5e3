package handler

import (
	"veritas/internal/consensus/models"
	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
)

// CreateQueryRequest is the body for opening a query under either policy.
type CreateQueryRequest struct {
	Subject   string `json:"subject"`
	QueryType string `json:"query_type"`
	Payload   string `json:"payload"`

	parsedSubject domain.Address
	parsedType    models.QueryType
}

func (r *CreateQueryRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Payload) > models.MaxPayloadBytes {
		return dErrors.Newf(dErrors.CodeValidation, "payload must be %d bytes or less", models.MaxPayloadBytes)
	}
	subject, err := domain.ParseAddress(r.Subject)
	if err != nil {
		return err
	}
	qt, err := models.ParseQueryType(r.QueryType)
	if err != nil {
		return err
	}
	r.parsedSubject = subject
	r.parsedType = qt
	return nil
}

func (r *CreateQueryRequest) ParsedSubject() domain.Address {
	return r.parsedSubject
}

func (r *CreateQueryRequest) ParsedType() models.QueryType {
	return r.parsedType
}

// VoteRequest carries a count-policy ballot. Vote is a pointer so a missing
// field is rejected instead of read as "no".
type VoteRequest struct {
	Vote *bool `json:"vote"`
}

func (r *VoteRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Vote == nil {
		return dErrors.New(dErrors.CodeValidation, "vote is required")
	}
	return nil
}

type ThresholdRequest struct {
	Policy string `json:"policy"`
	Value  int    `json:"value"`

	parsedPolicy models.PolicyKind
}

func (r *ThresholdRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	kind, err := models.ParsePolicyKind(r.Policy)
	if err != nil {
		return err
	}
	r.parsedPolicy = kind
	return nil
}

func (r *ThresholdRequest) ParsedPolicy() models.PolicyKind {
	return r.parsedPolicy
}
