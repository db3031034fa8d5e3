// Package service owns the whitelist and blacklist. Entries are written by
// the administrator, by resolved consensus queries and by emergency oracles;
// reads evaluate expiry lazily.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	attmodels "veritas/internal/attestation/models"
	"veritas/internal/compliance/metrics"
	"veritas/internal/compliance/models"
	consensusmodels "veritas/internal/consensus/models"
	oraclemodels "veritas/internal/oracle/models"
	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
	audit "veritas/pkg/platform/audit"
	"veritas/pkg/platform/sentinel"
	"veritas/pkg/platform/tx"
	"veritas/pkg/requestcontext"
)

type Store interface {
	Save(ctx context.Context, e *models.Entry) error
	Find(ctx context.Context, list models.ListKind, subject domain.Address) (*models.Entry, error)
	Execute(ctx context.Context, list models.ListKind, subject domain.Address, validate func(*models.Entry) error, mutate func(*models.Entry)) (*models.Entry, error)
	ListStale(ctx context.Context, list models.ListKind, now time.Time, limit int) ([]*models.Entry, error)
	SetEmergencyOracle(ctx context.Context, addr domain.Address, enabled bool) error
	IsEmergencyOracle(ctx context.Context, addr domain.Address) (bool, error)
}

// Consensus is the slice of the query engine the lists react to.
type Consensus interface {
	Get(ctx context.Context, id domain.QueryID) (*consensusmodels.Query, error)
	SubmitVote(ctx context.Context, id domain.QueryID, vote bool, sig []byte) (*consensusmodels.Query, error)
	MarkApplied(ctx context.Context, id domain.QueryID) (*consensusmodels.Query, error)
}

// Registry advances oracle attestation counters.
type Registry interface {
	Get(ctx context.Context, addr domain.Address) (*oraclemodels.Oracle, error)
	RecordAttestation(ctx context.Context, addr domain.Address, correct bool) error
	CreditCorrect(ctx context.Context, addr domain.Address) error
}

type AttestationLog interface {
	Append(ctx context.Context, a *attmodels.Attestation) error
	ListByQuery(ctx context.Context, queryID domain.QueryID) ([]*attmodels.Attestation, error)
	ListBySubject(ctx context.Context, subject domain.Address) ([]*attmodels.Attestation, error)
}

type AdminGuard interface {
	Require(ctx context.Context) error
}

type Service struct {
	store        Store
	consensus    Consensus
	registry     Registry
	attestations AttestationLog
	admin        AdminGuard
	durations    models.Durations
	tx           tx.Runner
	audit        *audit.Emitter
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(p audit.Publisher) Option {
	return func(s *Service) {
		s.audit = audit.NewEmitter(s.logger, p)
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTx must share the coordinator of the consensus engine and the
// registry so an attestation commits or rolls back as one unit.
func WithTx(r tx.Runner) Option {
	return func(s *Service) {
		s.tx = r
	}
}

func WithDurations(d models.Durations) Option {
	return func(s *Service) {
		s.durations = d
	}
}

func New(store Store, consensus Consensus, registry Registry, attestations AttestationLog, admin AdminGuard, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "list store is required")
	}
	if consensus == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "consensus engine is required")
	}
	if registry == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "oracle registry is required")
	}
	if attestations == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "attestation log is required")
	}
	if admin == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "admin guard is required")
	}
	s := &Service{
		store:        store,
		consensus:    consensus,
		registry:     registry,
		attestations: attestations,
		admin:        admin,
		durations:    models.DefaultDurations(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = tx.New()
	}
	if s.audit == nil {
		s.audit = audit.NewEmitter(s.logger, nil)
	}
	return s, nil
}

// =============================================================================
// Administrative writes
// =============================================================================

// AddWhitelist writes a whitelist entry, replacing any prior one. A zero
// lifetime selects the default whitelist duration.
func (s *Service) AddWhitelist(ctx context.Context, subject domain.Address, tier models.Tier, lifetime time.Duration, reason string) (*models.Entry, error) {
	if err := s.admin.Require(ctx); err != nil {
		return nil, err
	}
	var out *models.Entry
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		e, err := s.putWhitelist(ctx, subject, tier, lifetime, reason)
		out = e
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncAdded(string(models.Whitelist), "admin")
	return out, nil
}

func (s *Service) putWhitelist(ctx context.Context, subject domain.Address, tier models.Tier, lifetime time.Duration, reason string) (*models.Entry, error) {
	if lifetime == 0 {
		lifetime = s.durations.Whitelist
	}
	e, err := models.NewWhitelistEntry(subject, tier, lifetime, reason, nil, requestcontext.Now(ctx))
	if err != nil {
		return nil, toValidation(err)
	}
	if err := s.store.Save(ctx, e); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save whitelist entry")
	}
	s.audit.Emit(ctx, audit.EventWhitelistAdded, subject.String(),
		"tier", string(e.Tier),
		"expires_at", e.ExpiresAt,
		"reason", e.Reason,
	)
	return e, nil
}

// AddBlacklist writes a blacklist entry, replacing any prior one. A zero
// lifetime selects the default for severity.
func (s *Service) AddBlacklist(ctx context.Context, subject domain.Address, severity models.Severity, lifetime time.Duration, reason string) (*models.Entry, error) {
	if err := s.admin.Require(ctx); err != nil {
		return nil, err
	}
	var out *models.Entry
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if lifetime == 0 {
			lifetime = s.durations.ForSeverity(severity)
		}
		e, err := models.NewBlacklistEntry(subject, severity, lifetime, reason, nil, requestcontext.Now(ctx))
		if err != nil {
			return toValidation(err)
		}
		if err := s.store.Save(ctx, e); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save blacklist entry")
		}
		s.audit.Emit(ctx, audit.EventBlacklistAdded, subject.String(),
			"severity", string(e.Severity),
			"expires_at", e.ExpiresAt,
			"reason", e.Reason,
		)
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncAdded(string(models.Blacklist), "admin")
	return out, nil
}

// BatchAddWhitelist writes one whitelist entry per index. The slices must
// have equal length; the batch commits entirely or not at all.
func (s *Service) BatchAddWhitelist(ctx context.Context, subjects []domain.Address, tiers []models.Tier, lifetimes []time.Duration, reasons []string) ([]*models.Entry, error) {
	if err := s.admin.Require(ctx); err != nil {
		return nil, err
	}
	n := len(subjects)
	if len(tiers) != n || len(lifetimes) != n || len(reasons) != n {
		return nil, dErrors.New(dErrors.CodeValidation, "batch arrays must have equal length")
	}
	if n == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "batch must not be empty")
	}

	out := make([]*models.Entry, 0, n)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		for i := range subjects {
			e, err := s.putWhitelist(ctx, subjects[i], tiers[i], lifetimes[i], reasons[i])
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for range out {
		s.metrics.IncAdded(string(models.Whitelist), "admin")
	}
	return out, nil
}

// Remove deactivates the subject's active entry on list.
func (s *Service) Remove(ctx context.Context, list models.ListKind, subject domain.Address, reason string) (*models.Entry, error) {
	if err := s.admin.Require(ctx); err != nil {
		return nil, err
	}
	var out *models.Entry
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		e, err := s.store.Execute(ctx, list, subject,
			func(e *models.Entry) error { return e.CanRemove(now) },
			func(e *models.Entry) { e.ApplyRemoval(reason, now) },
		)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeInvalidState, "no active entry for subject")
		}
		if err != nil {
			return wrapStoreErr(err)
		}
		s.audit.Emit(ctx, audit.EventEntryRemoved, subject.String(),
			"list", string(list),
			"reason", e.RemovedReason,
		)
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncRemoved(string(list), "admin")
	return out, nil
}

// SetEmergencyOracle grants or revokes the right to list subjects on the
// blacklist without consensus.
func (s *Service) SetEmergencyOracle(ctx context.Context, addr domain.Address, enabled bool) error {
	if err := s.admin.Require(ctx); err != nil {
		return err
	}
	if addr.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "emergency oracle must not be the zero address")
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.SetEmergencyOracle(ctx, addr, enabled); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update emergency oracle")
		}
		s.audit.Emit(ctx, audit.EventEmergencyOracleSet, addr.String(), "enabled", enabled)
		return nil
	})
}

// =============================================================================
// Emergency path
// =============================================================================

// EmergencyAdd blacklists subject on the sole authority of a flagged
// emergency oracle. Only critical severity is accepted and the entry lives
// for the shorter emergency duration.
func (s *Service) EmergencyAdd(ctx context.Context, subject domain.Address, severity models.Severity, reason string) (*models.Entry, error) {
	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}
	var out *models.Entry
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		flagged, err := s.store.IsEmergencyOracle(ctx, caller)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check emergency oracle")
		}
		if !flagged {
			return dErrors.New(dErrors.CodeForbidden, "caller is not an emergency oracle")
		}
		e, err := models.NewEmergencyEntry(subject, severity, s.durations.Emergency, reason, caller, requestcontext.Now(ctx))
		if err != nil {
			return toValidation(err)
		}
		if err := s.store.Save(ctx, e); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save emergency listing")
		}
		s.audit.Emit(ctx, audit.EventEmergencyBlacklisted, subject.String(),
			"severity", string(e.Severity),
			"expires_at", e.ExpiresAt,
			"reason", e.Reason,
		)
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncAdded(string(models.Blacklist), "emergency")
	s.metrics.IncEmergency()
	return out, nil
}

// =============================================================================
// Consensus path
// =============================================================================

// ProvideAttestation submits the caller's signed claim about subject as a
// vote on queryID. The vote, the attestation record, the oracle counters
// and, on resolution, the list update commit together. A rejected vote is
// still logged, outside the rolled back transaction, with Valid=false.
func (s *Service) ProvideAttestation(ctx context.Context, subject domain.Address, queryID domain.QueryID, result bool, sig []byte, metadata string) (*attmodels.Attestation, *consensusmodels.Query, error) {
	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		return nil, nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}
	a, err := attmodels.NewAttestation(subject, queryID, result, sig, caller, metadata, requestcontext.Now(ctx))
	if err != nil {
		return nil, nil, toValidation(err)
	}

	var (
		q       *consensusmodels.Query
		applied string
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.consensus.Get(ctx, queryID)
		if err != nil {
			return err
		}
		if current.Subject != subject {
			return dErrors.New(dErrors.CodeValidation, "subject does not match the query subject")
		}
		q, err = s.consensus.SubmitVote(ctx, queryID, result, sig)
		if err != nil {
			return err
		}
		a.Accept(signerOf(q, caller))
		if err := s.attestations.Append(ctx, a); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record attestation")
		}
		oracle, err := s.isOracle(ctx, caller)
		if err != nil {
			return err
		}
		if oracle {
			if err := s.registry.RecordAttestation(ctx, caller, false); err != nil {
				return err
			}
		}
		if !q.Resolved {
			return nil
		}
		if q, err = s.consensus.MarkApplied(ctx, queryID); err != nil {
			return err
		}
		applied, err = s.applyResult(ctx, q)
		if err != nil {
			return err
		}
		// Only the oracle whose attestation resolved the query is credited,
		// and it is credited on either outcome.
		if oracle {
			return s.registry.CreditCorrect(ctx, caller)
		}
		return nil
	})
	if err != nil {
		s.logRejected(ctx, a, err)
		return nil, nil, err
	}
	s.metrics.IncAttestation(true)
	s.countApplied(q, applied)
	return a, q, nil
}

// logRejected keeps a Valid=false record of attestations the engine refused
// on signature or state grounds.
func (s *Service) logRejected(ctx context.Context, a *attmodels.Attestation, cause error) {
	if dErrors.KindOf(cause) != dErrors.KindSignature && !dErrors.HasCode(cause, dErrors.CodeInvalidState) {
		return
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return s.attestations.Append(ctx, a)
	})
	if err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to record rejected attestation",
				"query_id", a.QueryID.String(),
				"error", err,
			)
		}
		return
	}
	s.metrics.IncAttestation(false)
}

// ApplyConsensusResult applies a resolved query to the list its type
// selects. Approval creates an entry when the subject has no active one;
// rejection deactivates an active one. It serves queries resolved outside
// ProvideAttestation (forced resolution, the count path); a result reaches
// the lists at most once, so a replay fails with CodeInvalidState. Nobody
// is credited here.
func (s *Service) ApplyConsensusResult(ctx context.Context, subject domain.Address, queryID domain.QueryID) error {
	var (
		q       *consensusmodels.Query
		applied string
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		q, err = s.consensus.Get(ctx, queryID)
		if err != nil {
			return err
		}
		if q.Subject != subject {
			return dErrors.New(dErrors.CodeValidation, "subject does not match the query subject")
		}
		if err := q.CanApply(); err != nil {
			return err
		}
		applied, err = s.applyResult(ctx, q)
		if err != nil {
			return err
		}
		_, err = s.consensus.MarkApplied(ctx, queryID)
		return err
	})
	if err != nil {
		return err
	}
	s.countApplied(q, applied)
	return nil
}

const (
	appliedAdded   = "added"
	appliedRemoved = "removed"
)

func (s *Service) applyResult(ctx context.Context, q *consensusmodels.Query) (string, error) {
	list, err := listFor(q.Type)
	if err != nil {
		return "", err
	}
	now := requestcontext.Now(ctx)
	existing, err := s.store.Find(ctx, list, q.Subject)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load list entry")
	}
	hasActive := existing != nil && existing.IsActiveAt(now)

	var applied string
	switch {
	case q.Result && !hasActive:
		e, err := s.consensusEntry(list, q, now)
		if err != nil {
			return "", err
		}
		if err := s.store.Save(ctx, e); err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to save list entry")
		}
		event := audit.EventWhitelistAdded
		if list == models.Blacklist {
			event = audit.EventBlacklistAdded
		}
		s.audit.Emit(ctx, event, q.Subject.String(),
			"query_id", q.ID.String(),
			"expires_at", e.ExpiresAt,
			"reason", e.Reason,
		)
		applied = appliedAdded
	case !q.Result && hasActive:
		if _, err := s.store.Execute(ctx, list, q.Subject,
			func(e *models.Entry) error { return e.CanRemove(now) },
			func(e *models.Entry) { e.ApplyRemoval(models.ReasonConsensusRejection, now) },
		); err != nil {
			return "", wrapStoreErr(err)
		}
		s.audit.Emit(ctx, audit.EventEntryRemoved, q.Subject.String(),
			"list", string(list),
			"query_id", q.ID.String(),
			"reason", models.ReasonConsensusRejection,
		)
		applied = appliedRemoved
	}
	return applied, nil
}

func (s *Service) consensusEntry(list models.ListKind, q *consensusmodels.Query, now time.Time) (*models.Entry, error) {
	var (
		e   *models.Entry
		err error
	)
	attesters := q.Attesters(true)
	switch list {
	case models.Whitelist:
		e, err = models.NewWhitelistEntry(q.Subject, models.DefaultTier, s.durations.Whitelist,
			models.ReasonConsensusApproval, attesters, now)
	case models.Blacklist:
		e, err = models.NewBlacklistEntry(q.Subject, models.DefaultSeverity, s.durations.ForSeverity(models.DefaultSeverity),
			models.ReasonConsensusApproval, attesters, now)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build consensus entry")
	}
	id := q.ID
	e.QueryID = &id
	return e, nil
}

func (s *Service) countApplied(q *consensusmodels.Query, applied string) {
	if q == nil || applied == "" {
		return
	}
	list, err := listFor(q.Type)
	if err != nil {
		return
	}
	switch applied {
	case appliedAdded:
		s.metrics.IncAdded(string(list), "consensus")
	case appliedRemoved:
		s.metrics.IncRemoved(string(list), "consensus")
	}
}

// =============================================================================
// Hygiene
// =============================================================================

var errNotStale = errors.New("entry is not stale")

// CleanupExpired flips the active flag of each listed subject whose entry
// is past expiry. Subjects without a stale entry are skipped. Anyone may
// call it; reads already ignore expired entries.
func (s *Service) CleanupExpired(ctx context.Context, list models.ListKind, subjects []domain.Address) (int, error) {
	var cleaned int
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		cleaned = 0
		now := requestcontext.Now(ctx)
		for _, subject := range subjects {
			_, err := s.store.Execute(ctx, list, subject,
				func(e *models.Entry) error {
					if !e.IsStale(now) {
						return errNotStale
					}
					return nil
				},
				func(e *models.Entry) { e.ApplyExpiry(now) },
			)
			if errors.Is(err, errNotStale) || errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			if err != nil {
				return wrapStoreErr(err)
			}
			s.audit.Emit(ctx, audit.EventEntryExpired, subject.String(),
				"list", string(list),
				"reason", models.ReasonExpired,
			)
			cleaned++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for range cleaned {
		s.metrics.IncRemoved(string(list), "expired")
	}
	return cleaned, nil
}

// SweepExpired finds up to limit stale entries on list and cleans them.
func (s *Service) SweepExpired(ctx context.Context, list models.ListKind, limit int) (int, error) {
	var subjects []domain.Address
	err := s.tx.View(ctx, func(ctx context.Context) error {
		stale, err := s.store.ListStale(ctx, list, requestcontext.Now(ctx), limit)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list stale entries")
		}
		for _, e := range stale {
			subjects = append(subjects, e.Subject)
		}
		return nil
	})
	if err != nil || len(subjects) == 0 {
		return 0, err
	}
	return s.CleanupExpired(ctx, list, subjects)
}

// =============================================================================
// Reads
// =============================================================================

func (s *Service) IsWhitelisted(ctx context.Context, subject domain.Address) (bool, error) {
	return s.isListed(ctx, models.Whitelist, subject)
}

func (s *Service) IsBlacklisted(ctx context.Context, subject domain.Address) (bool, error) {
	return s.isListed(ctx, models.Blacklist, subject)
}

func (s *Service) isListed(ctx context.Context, list models.ListKind, subject domain.Address) (bool, error) {
	var listed bool
	err := s.tx.View(ctx, func(ctx context.Context) error {
		e, err := s.store.Find(ctx, list, subject)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load list entry")
		}
		listed = e.IsActiveAt(requestcontext.Now(ctx))
		return nil
	})
	if err != nil {
		return false, err
	}
	s.metrics.IncLookup(string(list), listed)
	return listed, nil
}

// Info returns the stored entry as is, expired or not.
func (s *Service) Info(ctx context.Context, list models.ListKind, subject domain.Address) (*models.Entry, error) {
	var out *models.Entry
	err := s.tx.View(ctx, func(ctx context.Context) error {
		e, err := s.store.Find(ctx, list, subject)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "no %s entry for subject", list)
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load list entry")
		}
		out = e
		return nil
	})
	return out, err
}

func (s *Service) IsEmergencyOracle(ctx context.Context, addr domain.Address) (bool, error) {
	var flagged bool
	err := s.tx.View(ctx, func(ctx context.Context) error {
		ok, err := s.store.IsEmergencyOracle(ctx, addr)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check emergency oracle")
		}
		flagged = ok
		return nil
	})
	return flagged, err
}

func (s *Service) AttestationsByQuery(ctx context.Context, queryID domain.QueryID) ([]*attmodels.Attestation, error) {
	out, err := s.attestations.ListByQuery(ctx, queryID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list attestations")
	}
	return out, nil
}

func (s *Service) AttestationsBySubject(ctx context.Context, subject domain.Address) ([]*attmodels.Attestation, error) {
	out, err := s.attestations.ListBySubject(ctx, subject)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list attestations")
	}
	return out, nil
}

// =============================================================================
// Helpers
// =============================================================================

func listFor(qt consensusmodels.QueryType) (models.ListKind, error) {
	switch qt {
	case consensusmodels.TypeWhitelistApproval:
		return models.Whitelist, nil
	case consensusmodels.TypeBlacklistListing:
		return models.Blacklist, nil
	default:
		return "", dErrors.Newf(dErrors.CodeInternal, "no list for query type %q", qt)
	}
}

func (s *Service) isOracle(ctx context.Context, addr domain.Address) (bool, error) {
	if addr.IsZero() {
		return false, nil
	}
	o, err := s.registry.Get(ctx, addr)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return o.Registered, nil
}

// signerOf finds the signer recorded for caller's ballot.
func signerOf(q *consensusmodels.Query, caller domain.Address) domain.Address {
	for _, v := range q.Votes {
		if v.Caller == caller {
			return v.Signer
		}
	}
	return caller
}

func toValidation(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) && de.Code == dErrors.CodeInvariantViolation {
		return dErrors.New(dErrors.CodeValidation, de.Message)
	}
	return err
}

func wrapStoreErr(err error) error {
	var de *dErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeInvalidState, "no active entry for subject")
	case errors.As(err, &de):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "list store failure")
	}
}
