// Package requesttime pins one "now" per request so every timestamp and
// expiry check inside it agrees.
package requesttime

import (
	"net/http"
	"time"

	"veritas/pkg/requestcontext"
)

// Middleware stamps the request with the current UTC time at microsecond
// precision, which is what Postgres timestamptz stores. A clock already
// present in the context (tests, the sweeper) is left alone.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if _, ok := requestcontext.TimeFrom(ctx); !ok {
			ctx = requestcontext.WithTime(ctx, time.Now().UTC().Truncate(time.Microsecond))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
