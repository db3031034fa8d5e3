package models

import (
	"strings"
	"time"

	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
)

// ListKind selects one of the two independent lists.
type ListKind string

const (
	Whitelist ListKind = "whitelist"
	Blacklist ListKind = "blacklist"
)

func ParseListKind(s string) (ListKind, error) {
	switch ListKind(s) {
	case Whitelist, Blacklist:
		return ListKind(s), nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown list %q", s)
	}
}

// Tier classifies whitelist entries.
type Tier string

const (
	TierBasic         Tier = "basic"
	TierStandard      Tier = "standard"
	TierPremium       Tier = "premium"
	TierInstitutional Tier = "institutional"
)

func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierBasic:
		return TierBasic, nil
	case TierStandard:
		return TierStandard, nil
	case TierPremium:
		return TierPremium, nil
	case TierInstitutional:
		return TierInstitutional, nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown tier %q", s)
	}
}

// Severity classifies blacklist entries, lowest first.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow, nil
	case SeverityMedium:
		return SeverityMedium, nil
	case SeverityHigh:
		return SeverityHigh, nil
	case SeverityCritical:
		return SeverityCritical, nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown severity %q", s)
	}
}

const (
	// DefaultTier and DefaultSeverity are used for consensus-created entries.
	DefaultTier     = TierStandard
	DefaultSeverity = SeverityMedium

	day = 24 * time.Hour
)

// Durations are the default entry lifetimes.
type Durations struct {
	Whitelist time.Duration
	Low       time.Duration
	Medium    time.Duration
	High      time.Duration
	Critical  time.Duration
	Emergency time.Duration
}

func DefaultDurations() Durations {
	return Durations{
		Whitelist: 365 * day,
		Low:       7 * day,
		Medium:    30 * day,
		High:      90 * day,
		Critical:  365 * day,
		Emergency: 30 * day,
	}
}

func (d Durations) ForSeverity(sev Severity) time.Duration {
	switch sev {
	case SeverityLow:
		return d.Low
	case SeverityMedium:
		return d.Medium
	case SeverityHigh:
		return d.High
	case SeverityCritical:
		return d.Critical
	default:
		return 0
	}
}

const (
	ReasonConsensusApproval  = "consensus approval"
	ReasonConsensusRejection = "consensus rejection"
	ReasonExpired            = "expired"

	maxReasonLength = 512
)

// Entry is one subject's record on one list.
//
// Invariants:
//   - Subject is never the zero address
//   - Tier is set only on whitelist entries, Severity only on blacklist entries
//   - Emergency entries are blacklist entries at critical severity
//   - Status is evaluated lazily: Active and now before ExpiresAt
type Entry struct {
	Subject   domain.Address   `json:"subject"`
	List      ListKind         `json:"list"`
	Active    bool             `json:"active"`
	Tier      Tier             `json:"tier,omitempty"`
	Severity  Severity         `json:"severity,omitempty"`
	Reason    string           `json:"reason"`
	Attesters []domain.Address `json:"attesters"`
	Emergency bool             `json:"emergency_listing"`
	QueryID   *domain.QueryID  `json:"query_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	ExpiresAt time.Time        `json:"expires_at"`
	// RemovedReason records why the entry was deactivated; Reason keeps
	// the reason it was created with.
	RemovedReason string    `json:"removed_reason,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func validateCommon(subject domain.Address, reason string, lifetime time.Duration) error {
	if subject.IsZero() {
		return dErrors.New(dErrors.CodeInvariantViolation, "subject must not be the zero address")
	}
	if len(reason) > maxReasonLength {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "reason must be %d characters or less", maxReasonLength)
	}
	if lifetime <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "entry lifetime must be positive")
	}
	return nil
}

func NewWhitelistEntry(subject domain.Address, tier Tier, lifetime time.Duration, reason string, attesters []domain.Address, now time.Time) (*Entry, error) {
	reason = strings.TrimSpace(reason)
	if err := validateCommon(subject, reason, lifetime); err != nil {
		return nil, err
	}
	if _, err := ParseTier(string(tier)); err != nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, err.Error())
	}
	return &Entry{
		Subject:   subject,
		List:      Whitelist,
		Active:    true,
		Tier:      tier,
		Reason:    reason,
		Attesters: append([]domain.Address(nil), attesters...),
		CreatedAt: now,
		ExpiresAt: now.Add(lifetime),
		UpdatedAt: now,
	}, nil
}

func NewBlacklistEntry(subject domain.Address, severity Severity, lifetime time.Duration, reason string, attesters []domain.Address, now time.Time) (*Entry, error) {
	reason = strings.TrimSpace(reason)
	if err := validateCommon(subject, reason, lifetime); err != nil {
		return nil, err
	}
	if _, err := ParseSeverity(string(severity)); err != nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, err.Error())
	}
	return &Entry{
		Subject:   subject,
		List:      Blacklist,
		Active:    true,
		Severity:  severity,
		Reason:    reason,
		Attesters: append([]domain.Address(nil), attesters...),
		CreatedAt: now,
		ExpiresAt: now.Add(lifetime),
		UpdatedAt: now,
	}, nil
}

// NewEmergencyEntry lists subject at critical severity on the word of a
// single emergency oracle.
func NewEmergencyEntry(subject domain.Address, severity Severity, lifetime time.Duration, reason string, oracle domain.Address, now time.Time) (*Entry, error) {
	if severity != SeverityCritical {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "emergency listings must be critical severity")
	}
	e, err := NewBlacklistEntry(subject, severity, lifetime, reason, []domain.Address{oracle}, now)
	if err != nil {
		return nil, err
	}
	e.Emergency = true
	return e, nil
}

// IsActiveAt is the lazily evaluated status.
func (e *Entry) IsActiveAt(now time.Time) bool {
	return e.Active && now.Before(e.ExpiresAt)
}

func (e *Entry) CanRemove(now time.Time) error {
	if !e.IsActiveAt(now) {
		return dErrors.New(dErrors.CodeInvalidState, "no active entry for subject")
	}
	return nil
}

func (e *Entry) ApplyRemoval(reason string, now time.Time) {
	e.Active = false
	e.RemovedReason = strings.TrimSpace(reason)
	e.UpdatedAt = now
}

// IsStale reports an entry past expiry that is still flagged active.
func (e *Entry) IsStale(now time.Time) bool {
	return e.Active && !now.Before(e.ExpiresAt)
}

func (e *Entry) ApplyExpiry(now time.Time) {
	e.Active = false
	e.RemovedReason = ReasonExpired
	e.UpdatedAt = now
}

func (e *Entry) Clone() *Entry {
	cp := *e
	cp.Attesters = append([]domain.Address(nil), e.Attesters...)
	if e.QueryID != nil {
		q := *e.QueryID
		cp.QueryID = &q
	}
	return &cp
}
