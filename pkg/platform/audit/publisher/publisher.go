// Package publisher emits audit events to a store.
//
// Emit inside a transaction is deferred until the transaction commits, so a
// rolled-back operation leaves no audit trail of a change that never
// happened. Sync mode blocks until the store accepts the event; async mode
// buffers and drains on Close.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	audit "veritas/pkg/platform/audit"
	"veritas/pkg/platform/tx"
	"veritas/pkg/requestcontext"
)

var (
	ErrBufferFull = errors.New("audit buffer full")
	ErrClosed     = errors.New("audit publisher closed")
)

// Lister is implemented by stores that can answer per-subject queries.
type Lister interface {
	ListBySubject(ctx context.Context, subject string) ([]audit.Event, error)
}

type Publisher struct {
	store  audit.Store
	logger *slog.Logger
	failed prometheus.Counter

	mu     sync.RWMutex
	closed bool
	buffer chan audit.Event
	wg     sync.WaitGroup
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithAsyncBuffer switches to async mode with a bounded buffer.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.buffer = make(chan audit.Event, size)
		}
	}
}

// WithFailureCounter counts events the store rejected.
func WithFailureCounter(c prometheus.Counter) Option {
	return func(p *Publisher) {
		p.failed = c
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records event. Request id and timestamp are filled from ctx.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	event.Normalize(requestcontext.Now(ctx))

	if tx.InTx(ctx) {
		tx.OnCommit(ctx, func(ctx context.Context) {
			if err := p.emit(ctx, event); err != nil {
				p.logFailure(ctx, event, err)
			}
		})
		return nil
	}
	return p.emit(ctx, event)
}

func (p *Publisher) emit(ctx context.Context, event audit.Event) error {
	if p.buffer == nil {
		if err := p.store.Append(ctx, event); err != nil {
			p.logFailure(ctx, event, err)
			return err
		}
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.buffer <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBufferFull
	}
}

// List returns the events recorded for subject when the store supports it.
func (p *Publisher) List(ctx context.Context, subject string) ([]audit.Event, error) {
	lister, ok := p.store.(Lister)
	if !ok {
		return nil, errors.New("audit store does not support listing")
	}
	return lister.ListBySubject(ctx, subject)
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.buffer {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.store.Append(ctx, event); err != nil {
			p.logFailure(ctx, event, err)
		}
		cancel()
	}
}

func (p *Publisher) logFailure(ctx context.Context, event audit.Event, err error) {
	if p.failed != nil {
		p.failed.Inc()
	}
	if p.logger != nil {
		p.logger.ErrorContext(ctx, "audit event not persisted",
			"action", event.Action,
			"subject", event.Subject,
			"error", err,
		)
	}
}

// Close stops accepting async events and waits for the buffer to drain.
func (p *Publisher) Close() error {
	if p.buffer == nil {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.buffer)
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}
