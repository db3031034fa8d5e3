// Package httptransport assembles the versioned HTTP API from the module
// handlers.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"veritas/internal/platform/metrics"
	"veritas/pkg/platform/httputil"
	"veritas/pkg/platform/middleware/auth"
	"veritas/pkg/platform/middleware/metadata"
	"veritas/pkg/platform/middleware/requesttime"
)

// Module is implemented by every handler package. Admin routes are mounted
// under /admin behind RequireCaller; the services decide whether the
// caller is the administrator.
type Module interface {
	Register(r chi.Router)
	RegisterAdmin(r chi.Router)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type Options struct {
	Modules   []Module
	Validator auth.JWTValidator
	Metrics   *metrics.Metrics
	Health    map[string]HealthCheck
	Logger    *slog.Logger
}

func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}

	r.Get("/healthz", healthHandler(opts.Health))

	r.Route("/v1", func(r chi.Router) {
		if opts.Validator != nil {
			r.Use(auth.Authenticate(opts.Validator, logger))
		}
		for _, m := range opts.Modules {
			m.Register(r)
		}
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireCaller(logger))
			for _, m := range opts.Modules {
				m.RegisterAdmin(r)
			}
		})
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		for name, check := range checks {
			if resp.Checks == nil {
				resp.Checks = make(map[string]string, len(checks))
			}
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
