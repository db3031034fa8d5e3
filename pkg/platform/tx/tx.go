// Package tx provides the single atomicity boundary shared by every module.
//
// All mutating operations run through Coordinator.RunInTx and are totally
// ordered by one lock. Stores participate in two ways: SQL stores pick the
// *sql.Tx out of the context with From, everything else registers an undo
// step with OnRollback. If the callback fails, undo steps run in reverse
// order and the SQL transaction is rolled back, so no partial write is ever
// observable by a reader that goes through View.
package tx

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	dErrors "veritas/pkg/domain-errors"
)

// Runner is the narrow port services depend on.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	View(ctx context.Context, fn func(ctx context.Context) error) error
}

// Undo reverts one in-memory or non-SQL write.
type Undo func(ctx context.Context)

type (
	sqlTxKey   struct{}
	journalKey struct{}
	viewKey    struct{}
)

const defaultTimeout = 5 * time.Second

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, sqlTxKey{}, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(sqlTxKey{}).(*sql.Tx)
	return tx, ok && tx != nil
}

// OnRollback registers undo to run if the enclosing transaction fails.
// Outside a transaction it is a no-op: the write is already committed.
func OnRollback(ctx context.Context, undo Undo) {
	if j := journalFrom(ctx); j != nil && undo != nil {
		j.push(undo)
	}
}

// OnCommit registers fn to run once the enclosing transaction commits.
// Outside a transaction fn runs immediately.
func OnCommit(ctx context.Context, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	if j := journalFrom(ctx); j != nil {
		j.mu.Lock()
		j.after = append(j.after, fn)
		j.mu.Unlock()
		return
	}
	fn(ctx)
}

// InTx reports whether ctx belongs to a running transaction.
func InTx(ctx context.Context) bool {
	return journalFrom(ctx) != nil
}

func journalFrom(ctx context.Context) *journal {
	j, _ := ctx.Value(journalKey{}).(*journal)
	return j
}

// detach strips transaction state so post-commit hooks run as ordinary,
// non-transactional callers.
func detach(ctx context.Context) context.Context {
	ctx = context.WithoutCancel(ctx)
	ctx = context.WithValue(ctx, journalKey{}, (*journal)(nil))
	return context.WithValue(ctx, sqlTxKey{}, (*sql.Tx)(nil))
}

type journal struct {
	mu    sync.Mutex
	steps []Undo
	after []func(ctx context.Context)
}

func (j *journal) push(u Undo) {
	j.mu.Lock()
	j.steps = append(j.steps, u)
	j.mu.Unlock()
}

func (j *journal) unwind(ctx context.Context) {
	j.mu.Lock()
	steps := j.steps
	j.steps = nil
	j.mu.Unlock()
	for i := len(steps) - 1; i >= 0; i-- {
		steps[i](ctx)
	}
}

func (j *journal) committed(ctx context.Context) {
	j.mu.Lock()
	after := j.after
	j.after = nil
	j.mu.Unlock()
	for _, fn := range after {
		fn(ctx)
	}
}

// Coordinator serializes transactions. With a database attached, each
// transaction also opens a *sql.Tx which SQL stores join via From.
type Coordinator struct {
	mu      sync.RWMutex
	db      *sql.DB
	timeout time.Duration
}

type Option func(*Coordinator)

// WithDB makes every transaction open a SQL transaction on db.
func WithDB(db *sql.DB) Option {
	return func(c *Coordinator) {
		c.db = db
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func New(opts ...Option) *Coordinator {
	c := &Coordinator{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunInTx runs fn as one atomic, serialized transition. Nested calls join
// the outer transaction. OnCommit hooks run after the lock is released.
func (c *Coordinator) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	j, err := c.run(ctx, fn)
	if err != nil {
		return err
	}
	j.committed(detach(ctx))
	return nil
}

func (c *Coordinator) run(ctx context.Context, fn func(ctx context.Context) error) (*journal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	j := &journal{}
	ctx = context.WithValue(ctx, journalKey{}, j)

	var sqlTx *sql.Tx
	if c.db != nil {
		var err error
		sqlTx, err = c.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to begin transaction")
		}
		ctx = WithTx(ctx, sqlTx)
	}

	abort := func() {
		j.unwind(context.WithoutCancel(ctx))
		if sqlTx != nil {
			_ = sqlTx.Rollback()
		}
	}

	defer func() {
		if r := recover(); r != nil {
			abort()
			panic(r)
		}
	}()

	if err := fn(ctx); err != nil {
		abort()
		return nil, err
	}
	if sqlTx != nil {
		if err := sqlTx.Commit(); err != nil {
			j.unwind(context.WithoutCancel(ctx))
			return nil, dErrors.Wrap(fmt.Errorf("commit: %w", err), dErrors.CodeInternal, "failed to commit transaction")
		}
	}
	return j, nil
}

// View runs fn against the latest committed state.
func (c *Coordinator) View(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTx(ctx) || ctx.Value(viewKey{}) != nil {
		return fn(ctx)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fn(context.WithValue(ctx, viewKey{}, struct{}{}))
}
