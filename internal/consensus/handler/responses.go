package handler

import (
	"time"

	"veritas/internal/consensus/models"
)

type CreateQueryResponse struct {
	QueryID string `json:"query_id"`
}

type VoteResponse struct {
	Caller string    `json:"caller"`
	Signer string    `json:"signer"`
	Yes    bool      `json:"yes"`
	Weight uint64    `json:"weight"`
	CastAt time.Time `json:"cast_at"`
}

// QueryResponse is the public view of a query with its outcome.
type QueryResponse struct {
	ID            string         `json:"id"`
	Subject       string         `json:"subject"`
	QueryType     string         `json:"query_type"`
	Payload       string         `json:"payload,omitempty"`
	Requester     string         `json:"requester"`
	Policy        string         `json:"policy"`
	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
	Votes         []VoteResponse `json:"votes"`
	YesWeight     uint64         `json:"yes_weight"`
	NoWeight      uint64         `json:"no_weight"`
	Resolved      bool           `json:"resolved"`
	ForceResolved bool           `json:"force_resolved"`
	HasResult     bool           `json:"has_result"`
	Result        bool           `json:"result"`
}

func FromQuery(q *models.Query) *QueryResponse {
	hasResult, result := q.Outcome()
	out := &QueryResponse{
		ID:            q.ID.String(),
		Subject:       q.Subject.String(),
		QueryType:     string(q.Type),
		Payload:       string(q.Payload),
		Requester:     q.Requester.String(),
		Policy:        string(q.Policy),
		CreatedAt:     q.CreatedAt,
		Votes:         make([]VoteResponse, 0, len(q.Votes)),
		YesWeight:     q.YesWeight,
		NoWeight:      q.NoWeight,
		Resolved:      q.Resolved,
		ForceResolved: q.ForceResolved,
		HasResult:     hasResult,
		Result:        result,
	}
	if q.HasExpiry() {
		expires := q.ExpiresAt
		out.ExpiresAt = &expires
	}
	for _, v := range q.Votes {
		out.Votes = append(out.Votes, VoteResponse{
			Caller: v.Caller.String(),
			Signer: v.Signer.String(),
			Yes:    v.Yes,
			Weight: v.Weight,
			CastAt: v.CastAt,
		})
	}
	return out
}

type ThresholdsResponse struct {
	Count    int `json:"count"`
	Weighted int `json:"weighted"`
}
