// Package service implements the oracle registry: lifecycle, reputation and
// derived voting weight of the oracle panel.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"veritas/internal/oracle/metrics"
	"veritas/internal/oracle/models"
	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
	audit "veritas/pkg/platform/audit"
	"veritas/pkg/platform/sentinel"
	"veritas/pkg/platform/tx"
	"veritas/pkg/requestcontext"
)

type Store interface {
	Save(ctx context.Context, o *models.Oracle) error
	FindByAddress(ctx context.Context, addr domain.Address) (*models.Oracle, error)
	List(ctx context.Context) ([]*models.Oracle, error)
	Execute(ctx context.Context, addr domain.Address, validate func(*models.Oracle) error, mutate func(*models.Oracle)) (*models.Oracle, error)
}

// AdminGuard authorizes administrator-only calls.
type AdminGuard interface {
	Require(ctx context.Context) error
}

// Snapshot summarizes the active panel at one instant.
type Snapshot struct {
	ActiveCount int
	TotalWeight uint64
}

type Service struct {
	store   Store
	admin   AdminGuard
	tx      tx.Runner
	limits  models.Limits
	audit   *audit.Emitter
	logger  *slog.Logger
	metrics *metrics.Metrics
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

func WithLimits(l models.Limits) Option {
	return func(s *Service) {
		s.limits = l
	}
}

func WithTx(r tx.Runner) Option {
	return func(s *Service) {
		s.tx = r
	}
}

func New(store Store, admin AdminGuard, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "oracle store is required")
	}
	if admin == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "admin guard is required")
	}
	s := &Service{
		store:  store,
		admin:  admin,
		limits: models.DefaultLimits(),
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

func (s *Service) Limits() models.Limits {
	return s.limits
}

// Register adds oracle to the panel as registered and active.
func (s *Service) Register(ctx context.Context, addr domain.Address, name, description string, reputation int) (*models.Oracle, error) {
	if err := s.admin.Require(ctx); err != nil {
		return nil, err
	}
	if addr.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "oracle address is required")
	}
	if !s.limits.InBounds(reputation) {
		return nil, dErrors.Newf(dErrors.CodeValidation,
			"initial reputation must be between %d and %d", s.limits.MinReputation, s.limits.MaxReputation)
	}

	var registered *models.Oracle
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		existing, err := s.store.FindByAddress(ctx, addr)
		switch {
		case err == nil && existing.Registered:
			return dErrors.New(dErrors.CodeValidation, "oracle is already registered")
		case err != nil && !errors.Is(err, sentinel.ErrNotFound):
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load oracle")
		}

		if err := s.requireCapacity(ctx); err != nil {
			return err
		}

		var o *models.Oracle
		if existing != nil {
			o = existing
			o.Reregister(name, description, reputation, now)
		} else {
			o, err = models.NewOracle(addr, name, description, reputation, s.limits, now)
			if err != nil {
				return toValidation(err)
			}
		}
		if err := s.store.Save(ctx, o); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save oracle")
		}
		s.audit.Emit(ctx, audit.EventOracleRegistered, addr.String(),
			"name", o.Name,
			"reputation", o.Reputation,
		)
		registered = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncRegistered()
	s.refreshActiveGauge(ctx)
	return registered, nil
}

// Deregister clears both flags. The record and its history are kept.
func (s *Service) Deregister(ctx context.Context, addr domain.Address, reason string) (*models.Oracle, error) {
	reason = strings.TrimSpace(reason)
	return s.transition(ctx, addr, audit.EventOracleDeregistered,
		(*models.Oracle).CanDeregister,
		func(o *models.Oracle, ctx context.Context) { o.ApplyDeregistration(reason, requestcontext.Now(ctx)) },
		"reason", reason,
	)
}

func (s *Service) Activate(ctx context.Context, addr domain.Address) (*models.Oracle, error) {
	return s.transition(ctx, addr, audit.EventOracleActivated,
		(*models.Oracle).CanActivate,
		func(o *models.Oracle, ctx context.Context) { o.ApplyActivation(requestcontext.Now(ctx)) },
	)
}

func (s *Service) Deactivate(ctx context.Context, addr domain.Address) (*models.Oracle, error) {
	return s.transition(ctx, addr, audit.EventOracleDeactivated,
		(*models.Oracle).CanDeactivate,
		func(o *models.Oracle, ctx context.Context) { o.ApplyDeactivation(requestcontext.Now(ctx)) },
	)
}

func (s *Service) transition(
	ctx context.Context,
	addr domain.Address,
	event audit.AuditEvent,
	validate func(*models.Oracle) error,
	mutate func(*models.Oracle, context.Context),
	attributes ...any,
) (*models.Oracle, error) {
	if err := s.admin.Require(ctx); err != nil {
		return nil, err
	}
	var out *models.Oracle
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if event == audit.EventOracleActivated {
			if err := s.requireCapacity(ctx); err != nil {
				return err
			}
		}
		o, err := s.store.Execute(ctx, addr,
			func(o *models.Oracle) error { return toValidation(validate(o)) },
			func(o *models.Oracle) { mutate(o, ctx) },
		)
		if err != nil {
			return wrapStoreErr(err)
		}
		s.audit.Emit(ctx, event, addr.String(), attributes...)
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.refreshActiveGauge(ctx)
	return out, nil
}

// UpdateReputation sets reputation to value clamped to the configured bounds.
func (s *Service) UpdateReputation(ctx context.Context, addr domain.Address, value int) (*models.Oracle, error) {
	return s.adjustReputation(ctx, addr, "set", func(int) int { return value }, false)
}

// Penalize lowers reputation by amount. Reaching the floor deactivates the oracle.
func (s *Service) Penalize(ctx context.Context, addr domain.Address, amount int) (*models.Oracle, error) {
	if amount < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "penalty amount must not be negative")
	}
	return s.adjustReputation(ctx, addr, "penalize", func(cur int) int { return cur - amount }, true)
}

func (s *Service) Reward(ctx context.Context, addr domain.Address, amount int) (*models.Oracle, error) {
	if amount < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "reward amount must not be negative")
	}
	return s.adjustReputation(ctx, addr, "reward", func(cur int) int { return cur + amount }, false)
}

func (s *Service) adjustReputation(ctx context.Context, addr domain.Address, op string, next func(int) int, deactivateAtFloor bool) (*models.Oracle, error) {
	if err := s.admin.Require(ctx); err != nil {
		return nil, err
	}
	var (
		out         *models.Oracle
		deactivated bool
		previous    int
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		o, err := s.store.Execute(ctx, addr,
			func(o *models.Oracle) error {
				if !o.Registered {
					return dErrors.New(dErrors.CodeValidation, "oracle is not registered")
				}
				return nil
			},
			func(o *models.Oracle) {
				previous = o.Reputation
				deactivated = o.ApplyReputation(next(o.Reputation), s.limits, deactivateAtFloor, now)
			},
		)
		if err != nil {
			return wrapStoreErr(err)
		}
		s.audit.Emit(ctx, audit.EventReputationChanged, addr.String(),
			"op", op,
			"previous", previous,
			"reputation", o.Reputation,
		)
		if deactivated {
			s.audit.Emit(ctx, audit.EventOracleDeactivated, addr.String(), "reason", "reputation at minimum")
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncReputationChange(op)
	if deactivated {
		s.metrics.IncAutoDeactivation()
		s.refreshActiveGauge(ctx)
	}
	return out, nil
}

// SetWeight assigns an explicit voting weight. Zero clears it.
func (s *Service) SetWeight(ctx context.Context, addr domain.Address, weight uint64) (*models.Oracle, error) {
	return s.transition(ctx, addr, audit.EventWeightChanged,
		func(o *models.Oracle) error {
			if !o.Registered {
				return dErrors.New(dErrors.CodeInvariantViolation, "oracle is not registered")
			}
			return nil
		},
		func(o *models.Oracle, ctx context.Context) {
			o.ExplicitWeight = weight
			o.UpdatedAt = requestcontext.Now(ctx)
		},
		"weight", weight,
	)
}

// RecordAttestation advances the attestation counters of a registered
// oracle. It is an internal hook of the attestation path and carries no
// authorization of its own.
func (s *Service) RecordAttestation(ctx context.Context, addr domain.Address, correct bool) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		_, err := s.store.Execute(ctx, addr,
			func(o *models.Oracle) error {
				if !o.Registered {
					return dErrors.New(dErrors.CodeValidation, "oracle is not registered")
				}
				return nil
			},
			func(o *models.Oracle) { o.RecordAttestation(correct, now) },
		)
		return wrapStoreErr(err)
	})
}

// CreditCorrect records that one of the oracle's counted submissions
// matched the final consensus outcome.
func (s *Service) CreditCorrect(ctx context.Context, addr domain.Address) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		_, err := s.store.Execute(ctx, addr,
			func(o *models.Oracle) error {
				if !o.Registered {
					return dErrors.New(dErrors.CodeValidation, "oracle is not registered")
				}
				return nil
			},
			func(o *models.Oracle) { o.CreditCorrect(now) },
		)
		return wrapStoreErr(err)
	})
}

// Weight returns the oracle's current voting weight; unknown oracles weigh 0.
func (s *Service) Weight(ctx context.Context, addr domain.Address) (uint64, error) {
	var w uint64
	err := s.tx.View(ctx, func(ctx context.Context) error {
		o, err := s.store.FindByAddress(ctx, addr)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load oracle")
		}
		w = o.Weight(s.limits)
		return nil
	})
	return w, err
}

func (s *Service) IsActive(ctx context.Context, addr domain.Address) (bool, error) {
	var active bool
	err := s.tx.View(ctx, func(ctx context.Context) error {
		o, err := s.store.FindByAddress(ctx, addr)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load oracle")
		}
		active = o.IsActive()
		return nil
	})
	return active, err
}

// ActiveOracles returns a snapshot of active oracle addresses. Callers must
// not rely on the order.
func (s *Service) ActiveOracles(ctx context.Context) ([]domain.Address, error) {
	var out []domain.Address
	err := s.tx.View(ctx, func(ctx context.Context) error {
		all, err := s.store.List(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list oracles")
		}
		for _, o := range all {
			if o.IsActive() {
				out = append(out, o.Address)
			}
		}
		return nil
	})
	return out, err
}

// Snapshot returns the active count and their summed weight.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.tx.View(ctx, func(ctx context.Context) error {
		all, err := s.store.List(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list oracles")
		}
		for _, o := range all {
			if o.IsActive() {
				snap.ActiveCount++
				snap.TotalWeight += o.Weight(s.limits)
			}
		}
		return nil
	})
	return snap, err
}

func (s *Service) Get(ctx context.Context, addr domain.Address) (*models.Oracle, error) {
	var out *models.Oracle
	err := s.tx.View(ctx, func(ctx context.Context) error {
		o, err := s.store.FindByAddress(ctx, addr)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "oracle not found")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load oracle")
		}
		out = o
		return nil
	})
	return out, err
}

func (s *Service) List(ctx context.Context) ([]*models.Oracle, error) {
	var out []*models.Oracle
	err := s.tx.View(ctx, func(ctx context.Context) error {
		all, err := s.store.List(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list oracles")
		}
		out = all
		return nil
	})
	return out, err
}

func (s *Service) requireCapacity(ctx context.Context) error {
	if s.limits.MaxOracles <= 0 {
		return nil
	}
	all, err := s.store.List(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count oracles")
	}
	active := 0
	for _, o := range all {
		if o.IsActive() {
			active++
		}
	}
	if active >= s.limits.MaxOracles {
		return dErrors.Newf(dErrors.CodeValidation, "active oracle limit of %d reached", s.limits.MaxOracles)
	}
	return nil
}

func (s *Service) refreshActiveGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	if snap, err := s.Snapshot(ctx); err == nil {
		s.metrics.SetActive(snap.ActiveCount)
	}
}

func toValidation(err error) error {
	if err != nil && dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return dErrors.New(dErrors.CodeValidation, de.Message)
		}
	}
	return err
}

func wrapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeValidation, "oracle is not registered")
	case dErrors.GetCode(err) != dErrors.CodeInternal:
		return toValidation(err)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "oracle store failure")
	}
}
