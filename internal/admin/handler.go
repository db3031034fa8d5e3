// Package admin serves the administrator account over HTTP.
package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
	"veritas/pkg/platform/httputil"
	"veritas/pkg/requestcontext"
)

// Controller is the administrator access controller.
type Controller interface {
	Admin() domain.Address
	Transfer(ctx context.Context, next domain.Address) error
}

// Runner wraps the transfer so an audit event commits with it.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Handler struct {
	controller Controller
	tx         Runner
	logger     *slog.Logger
}

func New(controller Controller, tx Runner, logger *slog.Logger) *Handler {
	return &Handler{
		controller: controller,
		tx:         tx,
		logger:     logger,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/access", h.HandleGet)
}

func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/transfer", h.HandleTransfer)
}

func (h *Handler) HandleGet(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, &AdminResponse{Admin: h.controller.Admin().String()})
}

// TransferRequest is the body for POST /admin/transfer.
type TransferRequest struct {
	NewAdmin string `json:"new_admin"`

	parsed domain.Address
}

func (r *TransferRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	addr, err := domain.ParseAddress(r.NewAdmin)
	if err != nil {
		return err
	}
	r.parsed = addr
	return nil
}

// HandleTransfer hands administration to new_admin. Only the current
// administrator may call it.
func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[TransferRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	err := h.tx.RunInTx(ctx, func(ctx context.Context) error {
		return h.controller.Transfer(ctx, req.parsed)
	})
	if err != nil {
		if dErrors.KindOf(err) == dErrors.KindInternal {
			h.logger.ErrorContext(ctx, "admin transfer failed", "request_id", requestID, "error", err)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &AdminResponse{Admin: h.controller.Admin().String()})
}
