// Package service runs consensus queries: creation, authenticated voting,
// threshold resolution and permissionless forced resolution after expiry.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"veritas/internal/consensus/metrics"
	"veritas/internal/consensus/models"
	"veritas/internal/consensus/policy"
	oracleservice "veritas/internal/oracle/service"
	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
	audit "veritas/pkg/platform/audit"
	"veritas/pkg/platform/sentinel"
	"veritas/pkg/platform/tx"
	"veritas/pkg/requestcontext"
)

const (
	DefaultCountThreshold  = 2
	DefaultWeightedPercent = 66
	DefaultMinOracles      = 2
	DefaultQueryExpiry     = time.Hour
)

type Store interface {
	Create(ctx context.Context, q *models.Query) error
	Find(ctx context.Context, id domain.QueryID) (*models.Query, error)
	Execute(ctx context.Context, id domain.QueryID, validate func(*models.Query) error, mutate func(*models.Query)) (*models.Query, error)
	ListOpenExpired(ctx context.Context, now time.Time, limit int) ([]*models.Query, error)
}

// Registry is the read side of the oracle panel.
type Registry interface {
	Weight(ctx context.Context, addr domain.Address) (uint64, error)
	IsActive(ctx context.Context, addr domain.Address) (bool, error)
	Snapshot(ctx context.Context) (oracleservice.Snapshot, error)
}

// SignatureVerifier recovers the active oracle that signed a ballot.
type SignatureVerifier interface {
	Verify(ctx context.Context, subject domain.Address, queryID domain.QueryID, result bool, sig []byte) (domain.Address, error)
}

type AdminGuard interface {
	Require(ctx context.Context) error
}

type Service struct {
	store    Store
	registry Registry
	verifier SignatureVerifier
	admin    AdminGuard
	count    *policy.Count
	weighted *policy.Weighted
	tx       tx.Runner
	audit    *audit.Emitter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
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

func WithTx(r tx.Runner) Option {
	return func(s *Service) {
		s.tx = r
	}
}

func WithCountPolicy(p *policy.Count) Option {
	return func(s *Service) {
		s.count = p
	}
}

func WithWeightedPolicy(p *policy.Weighted) Option {
	return func(s *Service) {
		s.weighted = p
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(store Store, registry Registry, verifier SignatureVerifier, admin AdminGuard, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "query store is required")
	}
	if registry == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "oracle registry is required")
	}
	if verifier == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "signature verifier is required")
	}
	if admin == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "admin guard is required")
	}
	s := &Service{
		store:    store,
		registry: registry,
		verifier: verifier,
		admin:    admin,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.count == nil {
		s.count = policy.NewCount(DefaultCountThreshold)
	}
	if s.weighted == nil {
		s.weighted = policy.NewWeighted(DefaultWeightedPercent, DefaultMinOracles, DefaultQueryExpiry)
	}
	if s.tx == nil {
		s.tx = tx.New()
	}
	if s.audit == nil {
		s.audit = audit.NewEmitter(s.logger, nil)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("veritas/consensus")
	}
	return s, nil
}

func (s *Service) policyFor(kind models.PolicyKind) policy.ConsensusPolicy {
	if kind == models.PolicyCount {
		return s.count
	}
	return s.weighted
}

// CreateQuery opens a weighted, signature-authenticated query. Anyone with
// an identity may open one.
func (s *Service) CreateQuery(ctx context.Context, subject domain.Address, qt models.QueryType, payload []byte) (*models.Query, error) {
	return s.create(ctx, models.PolicyWeighted, subject, qt, payload)
}

// RequestVerification opens a count-policy query. It never expires.
func (s *Service) RequestVerification(ctx context.Context, subject domain.Address, qt models.QueryType, payload []byte) (*models.Query, error) {
	return s.create(ctx, models.PolicyCount, subject, qt, payload)
}

func (s *Service) create(ctx context.Context, kind models.PolicyKind, subject domain.Address, qt models.QueryType, payload []byte) (*models.Query, error) {
	requester := requestcontext.Caller(ctx)
	if requester.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}
	pol := s.policyFor(kind)

	var created *models.Query
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		q, err := models.NewQuery(subject, qt, payload, requester, kind, pol.Expiry(), requestcontext.Now(ctx))
		if err != nil {
			return toValidation(err)
		}
		if err := s.store.Create(ctx, q); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "query already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create query")
		}
		s.audit.Emit(ctx, audit.EventQueryCreated, subject.String(),
			"query_id", q.ID.String(),
			"query_type", string(qt),
			"policy", string(kind),
		)
		created = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncCreated(string(kind))
	return created, nil
}

// SubmitVote casts the caller's ballot on a weighted query. The ballot
// counts with the weight of the oracle recovered from sig; double voting
// is tracked per caller, so a relayer may submit on an oracle's behalf.
func (s *Service) SubmitVote(ctx context.Context, id domain.QueryID, vote bool, sig []byte) (*models.Query, error) {
	ctx, span := s.tracer.Start(ctx, "consensus.SubmitVote", trace.WithAttributes(
		attribute.String("query_id", id.String()),
		attribute.Bool("vote", vote),
	))
	defer span.End()

	q, err := s.submitVote(ctx, id, vote, sig)
	s.record(span, err)
	return q, err
}

func (s *Service) submitVote(ctx context.Context, id domain.QueryID, vote bool, sig []byte) (*models.Query, error) {
	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}

	var (
		out      *models.Query
		resolved bool
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		current, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		if current.Policy != models.PolicyWeighted {
			return dErrors.New(dErrors.CodeInvalidState, "query does not accept signed votes")
		}
		if err := current.CanVote(caller, now); err != nil {
			return err
		}
		signer, err := s.verifier.Verify(ctx, current.Subject, id, vote, sig)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvalidSignature) && s.logger != nil {
				s.logger.WarnContext(ctx, "attestation signature rejected",
					"query_id", id.String(),
					"caller", caller.String(),
					"error", err,
				)
			}
			return err
		}
		weight, err := s.registry.Weight(ctx, signer)
		if err != nil {
			return err
		}
		snap, err := s.registry.Snapshot(ctx)
		if err != nil {
			return err
		}
		panel := policy.Panel{ActiveCount: snap.ActiveCount, TotalWeight: snap.TotalWeight}

		out, resolved, err = s.applyVote(ctx, id, models.Vote{
			Caller: caller,
			Signer: signer,
			Yes:    vote,
			Weight: weight,
			CastAt: now,
		}, s.weighted, panel)
		return err
	})
	if err != nil {
		s.metrics.IncRejected(string(dErrors.KindOf(err)))
		return nil, err
	}
	s.afterVote(out, vote, resolved)
	return out, nil
}

// SubmitVerification casts an unsigned unit vote on a count-policy query.
// Only active oracles may vote.
func (s *Service) SubmitVerification(ctx context.Context, id domain.QueryID, vote bool) (*models.Query, error) {
	ctx, span := s.tracer.Start(ctx, "consensus.SubmitVerification", trace.WithAttributes(
		attribute.String("query_id", id.String()),
		attribute.Bool("vote", vote),
	))
	defer span.End()

	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		err := dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
		s.record(span, err)
		return nil, err
	}

	var (
		out      *models.Query
		resolved bool
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		active, err := s.registry.IsActive(ctx, caller)
		if err != nil {
			return err
		}
		if !active {
			return dErrors.New(dErrors.CodeForbidden, "caller is not an active oracle")
		}
		current, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		if current.Policy != models.PolicyCount {
			return dErrors.New(dErrors.CodeInvalidState, "query requires a signed vote")
		}
		out, resolved, err = s.applyVote(ctx, id, models.Vote{
			Caller: caller,
			Signer: caller,
			Yes:    vote,
			Weight: 1,
			CastAt: now,
		}, s.count, policy.Panel{})
		return err
	})
	s.record(span, err)
	if err != nil {
		s.metrics.IncRejected(string(dErrors.KindOf(err)))
		return nil, err
	}
	s.afterVote(out, vote, resolved)
	return out, nil
}

func (s *Service) applyVote(ctx context.Context, id domain.QueryID, v models.Vote, pol policy.ConsensusPolicy, panel policy.Panel) (*models.Query, bool, error) {
	var resolved, result bool
	q, err := s.store.Execute(ctx, id,
		func(q *models.Query) error { return q.CanVote(v.Caller, v.CastAt) },
		func(q *models.Query) {
			q.ApplyVote(v)
			resolved, result = pol.Evaluate(q, panel)
			if resolved {
				q.ApplyResolution(result, false, v.CastAt)
			}
		},
	)
	if err != nil {
		return nil, false, wrapStoreErr(err)
	}
	s.audit.Emit(ctx, audit.EventVoteCast, q.Subject.String(),
		"query_id", id.String(),
		"signer", v.Signer.String(),
		"vote", v.Yes,
		"weight", v.Weight,
	)
	if resolved {
		s.audit.Emit(ctx, audit.EventConsensusResolved, q.Subject.String(),
			"query_id", id.String(),
			"result", result,
			"yes_weight", q.YesWeight,
			"no_weight", q.NoWeight,
		)
	}
	return q, resolved, nil
}

func (s *Service) afterVote(q *models.Query, vote, resolved bool) {
	s.metrics.IncVote(string(q.Policy), vote)
	if resolved {
		s.metrics.ObserveResolved(string(q.Policy), "threshold", q.ResolvedAt.Sub(q.CreatedAt).Seconds())
	}
}

// ForceResolveExpired settles an expired, unresolved query by relative
// majority. Any caller may invoke it.
func (s *Service) ForceResolveExpired(ctx context.Context, id domain.QueryID) (*models.Query, error) {
	ctx, span := s.tracer.Start(ctx, "consensus.ForceResolveExpired", trace.WithAttributes(
		attribute.String("query_id", id.String()),
	))
	defer span.End()

	var out *models.Query
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		q, err := s.store.Execute(ctx, id,
			func(q *models.Query) error { return q.CanForceResolve(now) },
			func(q *models.Query) { q.ApplyResolution(policy.ForcedResult(q), true, now) },
		)
		if err != nil {
			return wrapStoreErr(err)
		}
		s.audit.Emit(ctx, audit.EventQueryForced, q.Subject.String(),
			"query_id", id.String(),
			"result", q.Result,
			"yes_weight", q.YesWeight,
			"no_weight", q.NoWeight,
		)
		out = q
		return nil
	})
	s.record(span, err)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveResolved(string(out.Policy), "forced", out.ResolvedAt.Sub(out.CreatedAt).Seconds())
	return out, nil
}

// MarkApplied records that the resolved result of id has been written to
// the lists. A second call fails with CodeInvalidState. It must run inside
// the same transaction as the list write.
func (s *Service) MarkApplied(ctx context.Context, id domain.QueryID) (*models.Query, error) {
	var out *models.Query
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		q, err := s.store.Execute(ctx, id,
			func(q *models.Query) error { return q.CanApply() },
			func(q *models.Query) { q.ApplyApplied(now) },
		)
		if err != nil {
			return wrapStoreErr(err)
		}
		s.audit.Emit(ctx, audit.EventResultApplied, q.Subject.String(),
			"query_id", id.String(),
			"result", q.Result,
		)
		out = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CheckConsensus reports whether id has resolved and to what.
func (s *Service) CheckConsensus(ctx context.Context, id domain.QueryID) (hasResult, result bool, err error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return false, false, err
	}
	hasResult, result = q.Outcome()
	return hasResult, result, nil
}

func (s *Service) Get(ctx context.Context, id domain.QueryID) (*models.Query, error) {
	var out *models.Query
	err := s.tx.View(ctx, func(ctx context.Context) error {
		q, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		out = q
		return nil
	})
	return out, err
}

// ListOpenExpired returns up to limit queries that can be force resolved.
func (s *Service) ListOpenExpired(ctx context.Context, limit int) ([]*models.Query, error) {
	var out []*models.Query
	err := s.tx.View(ctx, func(ctx context.Context) error {
		qs, err := s.store.ListOpenExpired(ctx, requestcontext.Now(ctx), limit)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list expired queries")
		}
		out = qs
		return nil
	})
	return out, err
}

func (s *Service) Threshold(kind models.PolicyKind) int {
	return s.policyFor(kind).Threshold()
}

// SetThreshold updates the threshold of one policy. Administrator only.
func (s *Service) SetThreshold(ctx context.Context, kind models.PolicyKind, value int) error {
	if err := s.admin.Require(ctx); err != nil {
		return err
	}
	pol := s.policyFor(kind)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		snap, err := s.registry.Snapshot(ctx)
		if err != nil {
			return err
		}
		previous := pol.Threshold()
		if err := pol.SetThreshold(ctx, value, policy.Panel{ActiveCount: snap.ActiveCount, TotalWeight: snap.TotalWeight}); err != nil {
			return err
		}
		s.audit.Emit(ctx, audit.EventThresholdChanged, string(kind),
			"previous", previous,
			"threshold", value,
		)
		return nil
	})
	if err != nil {
		return err
	}
	s.metrics.IncThresholdChange(string(kind))
	return nil
}

func (s *Service) find(ctx context.Context, id domain.QueryID) (*models.Query, error) {
	q, err := s.store.Find(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "query not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load query")
	}
	return q, nil
}

func (s *Service) record(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.GetCode(err)))
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
		return dErrors.New(dErrors.CodeNotFound, "query not found")
	case errors.As(err, &de):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "query store failure")
	}
}
