package handler

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	attmodels "veritas/internal/attestation/models"
	"veritas/internal/compliance/models"
	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
	strutil "veritas/pkg/platform/strings"
)

const (
	maxBatchSize   = 200
	maxReasonBytes = 512
	// secp256k1 signatures are 65 bytes; anything much larger is not worth decoding.
	maxSignatureHex = 2 + 2*128
)

// AttestationRequest is the body for POST /attestations. Signature is the
// 0x-prefixed hex encoding of the 65-byte signature.
type AttestationRequest struct {
	Subject   string `json:"subject"`
	QueryID   string `json:"query_id"`
	Result    *bool  `json:"result"`
	Signature string `json:"signature"`
	Metadata  string `json:"metadata"`

	parsedSubject   domain.Address
	parsedQueryID   domain.QueryID
	parsedSignature []byte
}

func (r *AttestationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Signature) > maxSignatureHex {
		return dErrors.New(dErrors.CodeValidation, "signature is too long")
	}
	if len(r.Metadata) > attmodels.MaxMetadataLength {
		return dErrors.New(dErrors.CodeValidation, "metadata is too long")
	}
	if r.Result == nil {
		return dErrors.New(dErrors.CodeValidation, "result is required")
	}
	subject, err := domain.ParseAddress(r.Subject)
	if err != nil {
		return err
	}
	queryID, err := domain.ParseQueryID(r.QueryID)
	if err != nil {
		return err
	}
	sig, err := hexutil.Decode(strings.TrimSpace(r.Signature))
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "signature must be 0x-prefixed hex")
	}
	r.parsedSubject = subject
	r.parsedQueryID = queryID
	r.parsedSignature = sig
	return nil
}

func (r *AttestationRequest) ParsedSubject() domain.Address { return r.parsedSubject }
func (r *AttestationRequest) ParsedQueryID() domain.QueryID { return r.parsedQueryID }
func (r *AttestationRequest) ParsedSignature() []byte       { return r.parsedSignature }

type ApplyResultRequest struct {
	Subject string `json:"subject"`

	parsedSubject domain.Address
}

func (r *ApplyResultRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	subject, err := domain.ParseAddress(r.Subject)
	if err != nil {
		return err
	}
	r.parsedSubject = subject
	return nil
}

func (r *ApplyResultRequest) ParsedSubject() domain.Address { return r.parsedSubject }

// EmergencyRequest is the body for POST /lists/blacklist/emergency.
type EmergencyRequest struct {
	Subject  string `json:"subject"`
	Severity string `json:"severity"`
	Reason   string `json:"reason"`

	parsedSubject  domain.Address
	parsedSeverity models.Severity
}

func (r *EmergencyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Reason) > maxReasonBytes {
		return dErrors.New(dErrors.CodeValidation, "reason must be 512 characters or less")
	}
	subject, err := domain.ParseAddress(r.Subject)
	if err != nil {
		return err
	}
	severity, err := models.ParseSeverity(r.Severity)
	if err != nil {
		return err
	}
	r.parsedSubject = subject
	r.parsedSeverity = severity
	return nil
}

func (r *EmergencyRequest) ParsedSubject() domain.Address   { return r.parsedSubject }
func (r *EmergencyRequest) ParsedSeverity() models.Severity { return r.parsedSeverity }

type CleanupRequest struct {
	List     string   `json:"list"`
	Subjects []string `json:"subjects"`

	parsedList     models.ListKind
	parsedSubjects []domain.Address
}

func (r *CleanupRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Subjects) > maxBatchSize {
		return dErrors.Newf(dErrors.CodeValidation, "at most %d subjects per cleanup", maxBatchSize)
	}
	list, err := models.ParseListKind(r.List)
	if err != nil {
		return err
	}
	subjects, err := parseAddresses(strutil.DedupeAndTrimLower(r.Subjects))
	if err != nil {
		return err
	}
	r.parsedList = list
	r.parsedSubjects = subjects
	return nil
}

func (r *CleanupRequest) ParsedList() models.ListKind        { return r.parsedList }
func (r *CleanupRequest) ParsedSubjects() []domain.Address { return r.parsedSubjects }

// AddEntryRequest is the body for POST /admin/lists/{list}. Level is a tier
// for the whitelist and a severity for the blacklist; it is parsed by the
// handler once the list is known.
type AddEntryRequest struct {
	Subject         string `json:"subject"`
	Level           string `json:"level"`
	DurationSeconds int64  `json:"duration_seconds"`
	Reason          string `json:"reason"`

	parsedSubject domain.Address
}

func (r *AddEntryRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Reason) > maxReasonBytes {
		return dErrors.New(dErrors.CodeValidation, "reason must be 512 characters or less")
	}
	if r.DurationSeconds < 0 {
		return dErrors.New(dErrors.CodeValidation, "duration_seconds must not be negative")
	}
	subject, err := domain.ParseAddress(r.Subject)
	if err != nil {
		return err
	}
	r.parsedSubject = subject
	return nil
}

func (r *AddEntryRequest) ParsedSubject() domain.Address { return r.parsedSubject }

// Lifetime is zero when no duration was given, selecting the default.
func (r *AddEntryRequest) Lifetime() time.Duration {
	return time.Duration(r.DurationSeconds) * time.Second
}

// BatchWhitelistRequest carries parallel arrays; their lengths are checked
// by the service.
type BatchWhitelistRequest struct {
	Subjects        []string `json:"subjects"`
	Tiers           []string `json:"tiers"`
	DurationSeconds []int64  `json:"duration_seconds"`
	Reasons         []string `json:"reasons"`

	parsedSubjects []domain.Address
	parsedTiers    []models.Tier
}

func (r *BatchWhitelistRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Subjects) > maxBatchSize {
		return dErrors.Newf(dErrors.CodeValidation, "at most %d entries per batch", maxBatchSize)
	}
	subjects, err := parseAddresses(r.Subjects)
	if err != nil {
		return err
	}
	tiers := make([]models.Tier, 0, len(r.Tiers))
	for _, t := range r.Tiers {
		tier, err := models.ParseTier(t)
		if err != nil {
			return err
		}
		tiers = append(tiers, tier)
	}
	for _, d := range r.DurationSeconds {
		if d < 0 {
			return dErrors.New(dErrors.CodeValidation, "duration_seconds must not be negative")
		}
	}
	r.parsedSubjects = subjects
	r.parsedTiers = tiers
	return nil
}

func (r *BatchWhitelistRequest) ParsedSubjects() []domain.Address { return r.parsedSubjects }
func (r *BatchWhitelistRequest) ParsedTiers() []models.Tier       { return r.parsedTiers }

func (r *BatchWhitelistRequest) Lifetimes() []time.Duration {
	out := make([]time.Duration, 0, len(r.DurationSeconds))
	for _, d := range r.DurationSeconds {
		out = append(out, time.Duration(d)*time.Second)
	}
	return out
}

type RemoveRequest struct {
	Reason string `json:"reason"`
}

func (r *RemoveRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Reason) > maxReasonBytes {
		return dErrors.New(dErrors.CodeValidation, "reason must be 512 characters or less")
	}
	return nil
}

type EmergencyOracleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (r *EmergencyOracleRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Enabled == nil {
		return dErrors.New(dErrors.CodeValidation, "enabled is required")
	}
	return nil
}

func parseAddresses(values []string) ([]domain.Address, error) {
	out := make([]domain.Address, 0, len(values))
	for _, v := range values {
		addr, err := domain.ParseAddress(v)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}
