// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services read them. Keeping this package free
// of net/http lets the CLI, the sweeper and tests inject the same values.
//
// Usage in services:
//
//	caller := requestcontext.Caller(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests:
//
//	ctx = requestcontext.WithCaller(ctx, oracleAddr)
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	"veritas/pkg/domain"
)

type (
	callerKey      struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

var (
	ContextKeyCaller      = callerKey{}
	ContextKeyClientIP    = clientIPKey{}
	ContextKeyUserAgent   = userAgentKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// Caller returns the account on whose behalf the operation runs.
// Returns the zero address if not set.
func Caller(ctx context.Context) domain.Address {
	if addr, ok := ctx.Value(ContextKeyCaller).(domain.Address); ok {
		return addr
	}
	return domain.ZeroAddress
}

// WithCaller injects the calling account into the context.
func WithCaller(ctx context.Context, caller domain.Address) context.Context {
	return context.WithValue(ctx, ContextKeyCaller, caller)
}

func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := TimeFrom(ctx); ok {
		return t
	}
	return time.Now()
}

// TimeFrom reports the pinned time, if any.
func TimeFrom(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(ContextKeyRequestTime).(time.Time)
	return t, ok
}

// WithTime pins the clock for everything downstream of ctx.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
