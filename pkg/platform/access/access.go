// Package access owns the administrator account.
package access

import (
	"context"
	"log/slog"
	"sync"

	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
	"veritas/pkg/platform/tx"
	"veritas/pkg/requestcontext"
)

// Controller guards administrator-only operations.
type Controller struct {
	mu     sync.RWMutex
	admin  domain.Address
	logger *slog.Logger
}

type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// New returns a controller administered by admin.
func New(admin domain.Address, opts ...Option) (*Controller, error) {
	if admin.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "administrator address is required")
	}
	c := &Controller{admin: admin}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Controller) Admin() domain.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.admin
}

func (c *Controller) IsAdmin(addr domain.Address) bool {
	return !addr.IsZero() && addr == c.Admin()
}

// Require fails unless the context caller is the administrator.
func (c *Controller) Require(ctx context.Context) error {
	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not authenticated")
	}
	if !c.IsAdmin(caller) {
		return dErrors.New(dErrors.CodeForbidden, "caller is not the administrator")
	}
	return nil
}

// Transfer hands administration to next. Only the current administrator may
// call it. Inside a transaction the change is undone on rollback.
func (c *Controller) Transfer(ctx context.Context, next domain.Address) error {
	if err := c.Require(ctx); err != nil {
		return err
	}
	if next.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "new administrator must not be the zero address")
	}

	c.mu.Lock()
	prev := c.admin
	c.admin = next
	c.mu.Unlock()

	tx.OnRollback(ctx, func(context.Context) {
		c.mu.Lock()
		c.admin = prev
		c.mu.Unlock()
	})

	if c.logger != nil {
		c.logger.InfoContext(ctx, "admin_transferred",
			"event", "admin_transferred",
			"log_type", "audit",
			"previous", prev.String(),
			"next", next.String(),
		)
	}
	return nil
}
