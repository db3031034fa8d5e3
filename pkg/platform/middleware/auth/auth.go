package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
	"veritas/pkg/platform/httputil"
	"veritas/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims are the claims the middleware relies on.
type JWTClaims struct {
	Caller domain.Address
	JTI    string
}

const bearerPrefix = "Bearer "

// Authenticate resolves the caller from a bearer token. Requests without an
// Authorization header pass through anonymously so read endpoints stay
// open; a present but invalid token is rejected.
func Authenticate(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			token, ok := strings.CutPrefix(header, bearerPrefix)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - malformed authorization header",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(ctx, claims.Caller)))
		})
	}
}

// RequireCaller rejects requests that carry no authenticated caller.
func RequireCaller(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if requestcontext.Caller(ctx).IsZero() {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
