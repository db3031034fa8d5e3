package handler

import (
	"strings"

	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
)

// RegisterRequest is the body for POST /admin/oracles.
type RegisterRequest struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Reputation  int    `json:"reputation"`

	parsedAddress domain.Address
}

func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Description) > 1024 {
		return dErrors.New(dErrors.CodeValidation, "description must be 1024 characters or less")
	}
	addr, err := domain.ParseAddress(r.Address)
	if err != nil {
		return err
	}
	r.parsedAddress = addr
	r.Name = strings.TrimSpace(r.Name)
	return nil
}

func (r *RegisterRequest) ParsedAddress() domain.Address {
	return r.parsedAddress
}

type DeregisterRequest struct {
	Reason string `json:"reason"`
}

func (r *DeregisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if len(r.Reason) > 512 {
		return dErrors.New(dErrors.CodeValidation, "reason must be 512 characters or less")
	}
	return nil
}

const (
	opSet      = "set"
	opReward   = "reward"
	opPenalize = "penalize"
)

// ReputationRequest sets, rewards or penalizes an oracle's reputation.
type ReputationRequest struct {
	Op    string `json:"op"`
	Value int    `json:"value"`
}

func (r *ReputationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Op = strings.ToLower(strings.TrimSpace(r.Op))
	switch r.Op {
	case opSet:
	case opReward, opPenalize:
		if r.Value < 0 {
			return dErrors.New(dErrors.CodeValidation, "value must not be negative")
		}
	default:
		return dErrors.New(dErrors.CodeValidation, "op must be one of set, reward, penalize")
	}
	return nil
}

type WeightRequest struct {
	Weight uint64 `json:"weight"`
}

func (r *WeightRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}
