package handler

import (
	"time"

	"veritas/internal/oracle/models"
)

type OracleResponse struct {
	Address             string    `json:"address"`
	Name                string    `json:"name"`
	Description         string    `json:"description,omitempty"`
	Registered          bool      `json:"registered"`
	Active              bool      `json:"active"`
	Reputation          int       `json:"reputation"`
	Weight              uint64    `json:"weight"`
	TotalAttestations   uint64    `json:"total_attestations"`
	CorrectAttestations uint64    `json:"correct_attestations"`
	DeregisterReason    string    `json:"deregister_reason,omitempty"`
	RegisteredAt        time.Time `json:"registered_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type OraclesResponse struct {
	Oracles []*OracleResponse `json:"oracles"`
	Total   int               `json:"total"`
}

// FromOracle reports the effective weight alongside the stored record.
func FromOracle(o *models.Oracle, limits models.Limits) *OracleResponse {
	return &OracleResponse{
		Address:             o.Address.String(),
		Name:                o.Name,
		Description:         o.Description,
		Registered:          o.Registered,
		Active:              o.IsActive(),
		Reputation:          o.Reputation,
		Weight:              o.Weight(limits),
		TotalAttestations:   o.TotalAttestations,
		CorrectAttestations: o.CorrectAttestations,
		DeregisterReason:    o.DeregisterReason,
		RegisteredAt:        o.RegisteredAt,
		UpdatedAt:           o.UpdatedAt,
	}
}

func FromOracles(oracles []*models.Oracle, limits models.Limits) *OraclesResponse {
	out := &OraclesResponse{Oracles: make([]*OracleResponse, 0, len(oracles))}
	for _, o := range oracles {
		out.Oracles = append(out.Oracles, FromOracle(o, limits))
	}
	out.Total = len(out.Oracles)
	return out
}
