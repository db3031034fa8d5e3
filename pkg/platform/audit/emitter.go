package audit

import (
	"context"
	"log/slog"

	"veritas/pkg/attrs"
	"veritas/pkg/requestcontext"
)

// Publisher accepts audit events.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Emitter writes the audit log line and forwards the event to a publisher.
// Either side may be nil.
type Emitter struct {
	logger    *slog.Logger
	publisher Publisher
}

func NewEmitter(logger *slog.Logger, publisher Publisher) *Emitter {
	return &Emitter{logger: logger, publisher: publisher}
}

// Emit records event about subject. attributes are key-value pairs.
func (e *Emitter) Emit(ctx context.Context, event AuditEvent, subject string, attributes ...any) {
	if e == nil {
		return
	}
	caller := requestcontext.Caller(ctx)
	actor := ""
	if !caller.IsZero() {
		actor = caller.String()
	}

	if e.logger != nil {
		args := append([]any{"subject", subject, "actor", actor}, attributes...)
		if requestID := requestcontext.RequestID(ctx); requestID != "" {
			args = append(args, "request_id", requestID)
		}
		args = append(args, "event", string(event), "log_type", "audit")
		e.logger.InfoContext(ctx, string(event), args...)
	}
	if e.publisher == nil {
		return
	}
	_ = e.publisher.Emit(ctx, Event{
		Action:  string(event),
		Actor:   actor,
		Subject: subject,
		QueryID: attrs.ExtractString(attributes, "query_id"),
		Reason:  attrs.ExtractString(attributes, "reason"),
		Details: attrs.ToDetails(attributes),
	})
}
