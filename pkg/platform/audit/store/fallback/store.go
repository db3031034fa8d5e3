// Package fallback keeps audit events flowing when the primary sink is
// unavailable by diverting them to a secondary store.
package fallback

import (
	"context"
	"log/slog"

	audit "veritas/pkg/platform/audit"
	"veritas/pkg/platform/circuit"
)

type Store struct {
	primary   audit.Store
	secondary audit.Store
	breaker   *circuit.Breaker
	logger    *slog.Logger
}

func New(primary, secondary audit.Store, breaker *circuit.Breaker, logger *slog.Logger) *Store {
	return &Store{primary: primary, secondary: secondary, breaker: breaker, logger: logger}
}

// Append tries the primary first. Failures below the breaker threshold are
// returned to the caller; once the circuit is open they go to the
// secondary instead. The primary keeps being tried so the circuit can close.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	err := s.primary.Append(ctx, event)
	if err == nil {
		if _, change := s.breaker.RecordSuccess(); change.Closed {
			s.log(ctx, slog.LevelInfo, "audit sink recovered")
		}
		return nil
	}
	useFallback, change := s.breaker.RecordFailure()
	if change.Opened {
		s.log(ctx, slog.LevelWarn, "audit sink circuit opened", "error", err)
	}
	if !useFallback {
		return err
	}
	return s.secondary.Append(ctx, event)
}

func (s *Store) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Log(ctx, level, msg, append([]any{"breaker", s.breaker.Name()}, args...)...)
}
