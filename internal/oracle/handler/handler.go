package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"veritas/internal/oracle/models"
	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
	"veritas/pkg/platform/httputil"
	"veritas/pkg/requestcontext"
)

// Service is the slice of the oracle registry the HTTP surface needs.
type Service interface {
	Register(ctx context.Context, addr domain.Address, name, description string, reputation int) (*models.Oracle, error)
	Deregister(ctx context.Context, addr domain.Address, reason string) (*models.Oracle, error)
	Activate(ctx context.Context, addr domain.Address) (*models.Oracle, error)
	Deactivate(ctx context.Context, addr domain.Address) (*models.Oracle, error)
	UpdateReputation(ctx context.Context, addr domain.Address, value int) (*models.Oracle, error)
	Reward(ctx context.Context, addr domain.Address, amount int) (*models.Oracle, error)
	Penalize(ctx context.Context, addr domain.Address, amount int) (*models.Oracle, error)
	SetWeight(ctx context.Context, addr domain.Address, weight uint64) (*models.Oracle, error)
	Get(ctx context.Context, addr domain.Address) (*models.Oracle, error)
	List(ctx context.Context) ([]*models.Oracle, error)
	Limits() models.Limits
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the public read endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Get("/oracles", h.HandleList)
	r.Get("/oracles/{address}", h.HandleGet)
}

// RegisterAdmin mounts the administrator endpoints. The service enforces
// the administrator check.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/oracles", h.HandleRegister)
	r.Post("/oracles/{address}/activate", h.HandleActivate)
	r.Post("/oracles/{address}/deactivate", h.HandleDeactivate)
	r.Post("/oracles/{address}/deregister", h.HandleDeregister)
	r.Post("/oracles/{address}/reputation", h.HandleReputation)
	r.Put("/oracles/{address}/weight", h.HandleSetWeight)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	oracles, err := h.service.List(ctx)
	if err != nil {
		h.fail(ctx, "failed to list oracles", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromOracles(oracles, h.service.Limits()))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	o, err := h.service.Get(ctx, addr)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromOracle(o, h.service.Limits()))
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	o, err := h.service.Register(ctx, req.ParsedAddress(), req.Name, req.Description, req.Reputation)
	if err != nil {
		h.fail(ctx, "failed to register oracle", err, "oracle", req.Address)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromOracle(o, h.service.Limits()))
}

func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "activate", h.service.Activate)
}

func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "deactivate", h.service.Deactivate)
}

func (h *Handler) HandleDeregister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[DeregisterRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	o, err := h.service.Deregister(ctx, addr, req.Reason)
	if err != nil {
		h.fail(ctx, "failed to deregister oracle", err, "oracle", addr.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromOracle(o, h.service.Limits()))
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, domain.Address) (*models.Oracle, error)) {
	ctx := r.Context()
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	o, err := fn(ctx, addr)
	if err != nil {
		h.fail(ctx, "failed to "+op+" oracle", err, "oracle", addr.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromOracle(o, h.service.Limits()))
}

func (h *Handler) HandleReputation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReputationRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	var o *models.Oracle
	switch req.Op {
	case opSet:
		o, err = h.service.UpdateReputation(ctx, addr, req.Value)
	case opReward:
		o, err = h.service.Reward(ctx, addr, req.Value)
	case opPenalize:
		o, err = h.service.Penalize(ctx, addr, req.Value)
	default:
		err = dErrors.Newf(dErrors.CodeValidation, "unknown reputation op %q", req.Op)
	}
	if err != nil {
		h.fail(ctx, "failed to change reputation", err, "oracle", addr.String(), "op", req.Op)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromOracle(o, h.service.Limits()))
}

func (h *Handler) HandleSetWeight(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[WeightRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	o, err := h.service.SetWeight(ctx, addr, req.Weight)
	if err != nil {
		h.fail(ctx, "failed to set oracle weight", err, "oracle", addr.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromOracle(o, h.service.Limits()))
}

// fail logs server-side failures; client errors are left to the response.
func (h *Handler) fail(ctx context.Context, msg string, err error, attrs ...any) {
	if dErrors.KindOf(err) != dErrors.KindInternal {
		return
	}
	args := append([]any{"request_id", requestcontext.RequestID(ctx), "error", err}, attrs...)
	h.logger.ErrorContext(ctx, msg, args...)
}
