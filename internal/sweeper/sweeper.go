// Package sweeper drives the permissionless maintenance operations on a
// timer: expired weighted queries are force resolved and applied to the
// lists, then stale list entries are cleaned.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	complmodels "veritas/internal/compliance/models"
	"veritas/internal/consensus/models"
	"veritas/pkg/domain"
	"veritas/pkg/requestcontext"
)

type Queries interface {
	ListOpenExpired(ctx context.Context, limit int) ([]*models.Query, error)
	ForceResolveExpired(ctx context.Context, id domain.QueryID) (*models.Query, error)
}

type Lists interface {
	ApplyConsensusResult(ctx context.Context, subject domain.Address, queryID domain.QueryID) error
	SweepExpired(ctx context.Context, list complmodels.ListKind, limit int) (int, error)
}

// Result counts the work done by one pass.
type Result struct {
	Resolved int
	Applied  int
	Expired  int
}

type Sweeper struct {
	queries  Queries
	lists    Lists
	interval time.Duration
	batch    int
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Sweeper)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func New(queries Queries, lists Lists, interval time.Duration, batch int, opts ...Option) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	s := &Sweeper{
		queries:  queries,
		lists:    lists,
		interval: interval,
		batch:    batch,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			res, err := s.SweepOnce(ctx)
			if err != nil {
				s.warn(ctx, "sweep finished with errors", "error", err)
			}
			if s.logger != nil && (res.Resolved > 0 || res.Expired > 0) {
				s.logger.InfoContext(ctx, "sweep completed",
					"resolved", res.Resolved,
					"applied", res.Applied,
					"expired", res.Expired,
				)
			}
		}
	}
}

// SweepOnce runs one pass. A failure on one query or list does not stop
// the rest of the pass; the errors are joined.
func (s *Sweeper) SweepOnce(ctx context.Context) (Result, error) {
	ctx = requestcontext.WithTime(ctx, s.now())

	var (
		res  Result
		errs []error
	)
	expired, err := s.queries.ListOpenExpired(ctx, s.batch)
	if err != nil {
		errs = append(errs, err)
	}
	for _, q := range expired {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		resolved, err := s.queries.ForceResolveExpired(ctx, q.ID)
		if err != nil {
			s.warn(ctx, "force resolve failed", "query_id", q.ID.String(), "error", err)
			errs = append(errs, err)
			continue
		}
		res.Resolved++
		if err := s.lists.ApplyConsensusResult(ctx, resolved.Subject, resolved.ID); err != nil {
			s.warn(ctx, "apply consensus result failed", "query_id", q.ID.String(), "error", err)
			errs = append(errs, err)
			continue
		}
		res.Applied++
	}

	for _, list := range []complmodels.ListKind{complmodels.Whitelist, complmodels.Blacklist} {
		n, err := s.lists.SweepExpired(ctx, list, s.batch)
		if err != nil {
			s.warn(ctx, "list cleanup failed", "list", string(list), "error", err)
			errs = append(errs, err)
		}
		res.Expired += n
	}
	return res, errors.Join(errs...)
}

func (s *Sweeper) warn(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.WarnContext(ctx, msg, args...)
}
