package models

import (
	"strings"
	"time"

	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
)

// Limits bound the oracle panel. They are configuration, not per-oracle state.
type Limits struct {
	MinReputation int
	MaxReputation int
	// DefaultWeight applies when an oracle has neither an explicit weight
	// nor a positive reputation.
	DefaultWeight uint64
	MaxOracles    int
}

func DefaultLimits() Limits {
	return Limits{
		MinReputation: 100,
		MaxReputation: 1000,
		DefaultWeight: 1,
		MaxOracles:    100,
	}
}

// Clamp forces value into [MinReputation, MaxReputation].
func (l Limits) Clamp(value int) int {
	if value < l.MinReputation {
		return l.MinReputation
	}
	if value > l.MaxReputation {
		return l.MaxReputation
	}
	return value
}

func (l Limits) InBounds(value int) bool {
	return value >= l.MinReputation && value <= l.MaxReputation
}

// Oracle is the aggregate root for one registered attester.
//
// Invariants:
//   - Address is never the zero address
//   - Active implies Registered
//   - Reputation stays within the configured bounds
//   - Weight is zero unless the oracle is active
//   - Records are never deleted; deregistration only clears flags
type Oracle struct {
	Address             domain.Address `json:"address"`
	Name                string         `json:"name"`
	Description         string         `json:"description"`
	Registered          bool           `json:"registered"`
	Active              bool           `json:"active"`
	Reputation          int            `json:"reputation"`
	ExplicitWeight      uint64         `json:"explicit_weight,omitempty"`
	TotalAttestations   uint64         `json:"total_attestations"`
	CorrectAttestations uint64         `json:"correct_attestations"`
	DeregisterReason    string         `json:"deregister_reason,omitempty"`
	RegisteredAt        time.Time      `json:"registered_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

const maxNameLength = 128

func NewOracle(addr domain.Address, name, description string, reputation int, limits Limits, now time.Time) (*Oracle, error) {
	if addr.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "oracle address must not be the zero address")
	}
	name = strings.TrimSpace(name)
	if len(name) > maxNameLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "oracle name must be 128 characters or less")
	}
	if !limits.InBounds(reputation) {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation,
			"initial reputation must be between %d and %d", limits.MinReputation, limits.MaxReputation)
	}
	return &Oracle{
		Address:      addr,
		Name:         name,
		Description:  strings.TrimSpace(description),
		Registered:   true,
		Active:       true,
		Reputation:   reputation,
		RegisteredAt: now,
		UpdatedAt:    now,
	}, nil
}

// Reregister restores a previously deregistered oracle, keeping its
// attestation history.
func (o *Oracle) Reregister(name, description string, reputation int, now time.Time) {
	o.Name = strings.TrimSpace(name)
	o.Description = strings.TrimSpace(description)
	o.Registered = true
	o.Active = true
	o.Reputation = reputation
	o.DeregisterReason = ""
	o.RegisteredAt = now
	o.UpdatedAt = now
}

func (o *Oracle) IsActive() bool {
	return o.Registered && o.Active
}

// Weight is the oracle's voting weight: zero when inactive, else the
// explicit weight, else reputation/10 (at least 1), else the default.
func (o *Oracle) Weight(limits Limits) uint64 {
	if !o.IsActive() {
		return 0
	}
	if o.ExplicitWeight > 0 {
		return o.ExplicitWeight
	}
	if o.Reputation > 0 {
		return uint64(max(o.Reputation/10, 1))
	}
	return limits.DefaultWeight
}

func (o *Oracle) CanActivate() error {
	if !o.Registered {
		return dErrors.New(dErrors.CodeInvariantViolation, "oracle is not registered")
	}
	if o.Active {
		return dErrors.New(dErrors.CodeInvariantViolation, "oracle is already active")
	}
	return nil
}

func (o *Oracle) ApplyActivation(now time.Time) {
	o.Active = true
	o.UpdatedAt = now
}

func (o *Oracle) CanDeactivate() error {
	if !o.Registered {
		return dErrors.New(dErrors.CodeInvariantViolation, "oracle is not registered")
	}
	if !o.Active {
		return dErrors.New(dErrors.CodeInvariantViolation, "oracle is already inactive")
	}
	return nil
}

func (o *Oracle) ApplyDeactivation(now time.Time) {
	o.Active = false
	o.UpdatedAt = now
}

func (o *Oracle) CanDeregister() error {
	if !o.Registered {
		return dErrors.New(dErrors.CodeInvariantViolation, "oracle is not registered")
	}
	return nil
}

func (o *Oracle) ApplyDeregistration(reason string, now time.Time) {
	o.Registered = false
	o.Active = false
	o.DeregisterReason = reason
	o.UpdatedAt = now
}

// ApplyReputation sets the clamped reputation. When the result sits at the
// floor the oracle is deactivated; the return value reports that case.
func (o *Oracle) ApplyReputation(value int, limits Limits, deactivateAtFloor bool, now time.Time) (deactivated bool) {
	o.Reputation = limits.Clamp(value)
	o.UpdatedAt = now
	if deactivateAtFloor && o.Reputation <= limits.MinReputation && o.Active {
		o.Active = false
		return true
	}
	return false
}

func (o *Oracle) RecordAttestation(correct bool, now time.Time) {
	o.TotalAttestations++
	if correct {
		o.CorrectAttestations++
	}
	o.UpdatedAt = now
}

// CreditCorrect marks an already counted submission as correct. The
// correct counter never overtakes the total.
func (o *Oracle) CreditCorrect(now time.Time) {
	if o.CorrectAttestations < o.TotalAttestations {
		o.CorrectAttestations++
	}
	o.UpdatedAt = now
}

// Clone returns a deep copy; stores hand out clones so callers cannot
// mutate committed state.
func (o *Oracle) Clone() *Oracle {
	cp := *o
	return &cp
}
