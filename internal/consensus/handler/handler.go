package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"veritas/internal/consensus/models"
	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
	"veritas/pkg/platform/httputil"
	"veritas/pkg/requestcontext"
)

// Service defines the consensus operations exposed over HTTP.
type Service interface {
	CreateQuery(ctx context.Context, subject domain.Address, qt models.QueryType, payload []byte) (*models.Query, error)
	RequestVerification(ctx context.Context, subject domain.Address, qt models.QueryType, payload []byte) (*models.Query, error)
	SubmitVerification(ctx context.Context, id domain.QueryID, vote bool) (*models.Query, error)
	Get(ctx context.Context, id domain.QueryID) (*models.Query, error)
	Threshold(kind models.PolicyKind) int
	SetThreshold(ctx context.Context, kind models.PolicyKind, value int) error
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

// Register mounts the query endpoints. Signed attestations and forced
// resolution are served by the compliance handler, which applies outcomes
// to the lists.
func (h *Handler) Register(r chi.Router) {
	r.Get("/consensus/queries/{id}", h.HandleGetQuery)
	r.Post("/consensus/queries", h.HandleCreateQuery)
	r.Post("/consensus/verifications", h.HandleRequestVerification)
	r.Post("/consensus/verifications/{id}/votes", h.HandleSubmitVerification)
	r.Get("/consensus/thresholds", h.HandleThresholds)
}

func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Put("/consensus/threshold", h.HandleSetThreshold)
}

// HandleGetQuery handles GET /consensus/queries/{id}.
func (h *Handler) HandleGetQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseQueryID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	q, err := h.service.Get(ctx, id)
	if err != nil {
		h.fail(ctx, "failed to load query", err, "query_id", id.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromQuery(q))
}

// HandleCreateQuery opens a weighted query.
func (h *Handler) HandleCreateQuery(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.service.CreateQuery)
}

// HandleRequestVerification opens a count-policy query.
func (h *Handler) HandleRequestVerification(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.service.RequestVerification)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, fn func(context.Context, domain.Address, models.QueryType, []byte) (*models.Query, error)) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateQueryRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	q, err := fn(ctx, req.ParsedSubject(), req.ParsedType(), []byte(req.Payload))
	if err != nil {
		h.fail(ctx, "failed to create query", err, "subject", req.Subject)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "query created",
		"request_id", requestID,
		"query_id", q.ID.String(),
		"policy", string(q.Policy),
	)
	httputil.WriteJSON(w, http.StatusCreated, &CreateQueryResponse{QueryID: q.ID.String()})
}

// HandleSubmitVerification records an unsigned count-policy vote by the caller.
func (h *Handler) HandleSubmitVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseQueryID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[VoteRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	q, err := h.service.SubmitVerification(ctx, id, *req.Vote)
	if err != nil {
		h.fail(ctx, "failed to submit verification", err, "query_id", id.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromQuery(q))
}

func (h *Handler) HandleThresholds(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, &ThresholdsResponse{
		Count:    h.service.Threshold(models.PolicyCount),
		Weighted: h.service.Threshold(models.PolicyWeighted),
	})
}

// HandleSetThreshold handles PUT /admin/consensus/threshold.
func (h *Handler) HandleSetThreshold(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[ThresholdRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.SetThreshold(ctx, req.ParsedPolicy(), req.Value); err != nil {
		h.fail(ctx, "failed to set threshold", err, "policy", req.Policy)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &ThresholdsResponse{
		Count:    h.service.Threshold(models.PolicyCount),
		Weighted: h.service.Threshold(models.PolicyWeighted),
	})
}

func (h *Handler) fail(ctx context.Context, msg string, err error, attrs ...any) {
	if dErrors.KindOf(err) != dErrors.KindInternal {
		return
	}
	args := append([]any{"request_id", requestcontext.RequestID(ctx), "error", err}, attrs...)
	h.logger.ErrorContext(ctx, msg, args...)
}
