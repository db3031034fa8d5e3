package testutil

import (
	"context"
	"net/http"
	"time"

	"veritas/pkg/domain"
	"veritas/pkg/requestcontext"
)

// WithCaller injects the calling account the way the auth middleware does
// for a request carrying a valid bearer token.
func WithCaller(req *http.Request, caller domain.Address) *http.Request {
	return req.WithContext(requestcontext.WithCaller(req.Context(), caller))
}

// WithTime pins the request clock.
func WithTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}

// CallerAt returns a context for caller with the clock pinned to t.
func CallerAt(caller domain.Address, t time.Time) context.Context {
	ctx := requestcontext.WithCaller(context.Background(), caller)
	return requestcontext.WithTime(ctx, t)
}
