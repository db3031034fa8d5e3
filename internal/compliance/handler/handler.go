package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	attmodels "veritas/internal/attestation/models"
	"veritas/internal/compliance/models"
	consensusmodels "veritas/internal/consensus/models"
	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
	"veritas/pkg/platform/httputil"
	"veritas/pkg/requestcontext"
)

// Service defines the list operations exposed over HTTP.
type Service interface {
	AddWhitelist(ctx context.Context, subject domain.Address, tier models.Tier, lifetime time.Duration, reason string) (*models.Entry, error)
	AddBlacklist(ctx context.Context, subject domain.Address, severity models.Severity, lifetime time.Duration, reason string) (*models.Entry, error)
	BatchAddWhitelist(ctx context.Context, subjects []domain.Address, tiers []models.Tier, lifetimes []time.Duration, reasons []string) ([]*models.Entry, error)
	Remove(ctx context.Context, list models.ListKind, subject domain.Address, reason string) (*models.Entry, error)
	SetEmergencyOracle(ctx context.Context, addr domain.Address, enabled bool) error
	IsEmergencyOracle(ctx context.Context, addr domain.Address) (bool, error)
	EmergencyAdd(ctx context.Context, subject domain.Address, severity models.Severity, reason string) (*models.Entry, error)
	ProvideAttestation(ctx context.Context, subject domain.Address, queryID domain.QueryID, result bool, sig []byte, metadata string) (*attmodels.Attestation, *consensusmodels.Query, error)
	ApplyConsensusResult(ctx context.Context, subject domain.Address, queryID domain.QueryID) error
	CleanupExpired(ctx context.Context, list models.ListKind, subjects []domain.Address) (int, error)
	IsWhitelisted(ctx context.Context, subject domain.Address) (bool, error)
	IsBlacklisted(ctx context.Context, subject domain.Address) (bool, error)
	Info(ctx context.Context, list models.ListKind, subject domain.Address) (*models.Entry, error)
	AttestationsByQuery(ctx context.Context, queryID domain.QueryID) ([]*attmodels.Attestation, error)
	AttestationsBySubject(ctx context.Context, subject domain.Address) ([]*attmodels.Attestation, error)
}

// Resolver settles expired weighted queries.
type Resolver interface {
	ForceResolveExpired(ctx context.Context, id domain.QueryID) (*consensusmodels.Query, error)
}

type Handler struct {
	service  Service
	resolver Resolver
	logger   *slog.Logger
}

func New(service Service, resolver Resolver, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		resolver: resolver,
		logger:   logger,
	}
}

// Register mounts the public and caller-authenticated endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Get("/lists/{list}/{subject}", h.HandleLookup)
	r.Post("/lists/blacklist/emergency", h.HandleEmergencyAdd)
	r.Post("/lists/cleanup", h.HandleCleanup)
	r.Get("/emergency-oracles/{address}", h.HandleIsEmergencyOracle)

	r.Post("/attestations", h.HandleProvideAttestation)
	r.Get("/subjects/{subject}/attestations", h.HandleAttestationsBySubject)
	r.Get("/consensus/queries/{id}/attestations", h.HandleAttestationsByQuery)
	r.Post("/consensus/queries/{id}/force-resolve", h.HandleForceResolve)
	r.Post("/consensus/queries/{id}/apply", h.HandleApplyResult)
}

// RegisterAdmin mounts the administrator endpoints. The service enforces
// the administrator check.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/lists/whitelist/batch", h.HandleBatchWhitelist)
	r.Post("/lists/{list}", h.HandleAdd)
	r.Delete("/lists/{list}/{subject}", h.HandleRemove)
	r.Put("/emergency-oracles/{address}", h.HandleSetEmergencyOracle)
}

// =============================================================================
// Reads
// =============================================================================

// HandleLookup handles GET /lists/{list}/{subject}. The entry is included
// as stored, even when expired or removed.
func (h *Handler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := models.ParseListKind(chi.URLParam(r, "list"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown list"))
		return
	}
	subject, err := domain.ParseAddress(chi.URLParam(r, "subject"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var listed bool
	if list == models.Whitelist {
		listed, err = h.service.IsWhitelisted(ctx, subject)
	} else {
		listed, err = h.service.IsBlacklisted(ctx, subject)
	}
	if err != nil {
		h.fail(ctx, "list lookup failed", err, "list", string(list))
		httputil.WriteError(w, err)
		return
	}
	entry, err := h.service.Info(ctx, list, subject)
	if err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
		h.fail(ctx, "list lookup failed", err, "list", string(list))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromLookup(list, subject, listed, entry, requestcontext.Now(ctx)))
}

func (h *Handler) HandleIsEmergencyOracle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	flagged, err := h.service.IsEmergencyOracle(ctx, addr)
	if err != nil {
		h.fail(ctx, "emergency oracle lookup failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &EmergencyOracleResponse{Address: addr.String(), Enabled: flagged})
}

func (h *Handler) HandleAttestationsByQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseQueryID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out, err := h.service.AttestationsByQuery(ctx, id)
	if err != nil {
		h.fail(ctx, "failed to list attestations", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromAttestations(out))
}

func (h *Handler) HandleAttestationsBySubject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := domain.ParseAddress(chi.URLParam(r, "subject"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out, err := h.service.AttestationsBySubject(ctx, subject)
	if err != nil {
		h.fail(ctx, "failed to list attestations", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromAttestations(out))
}

// =============================================================================
// Consensus path
// =============================================================================

// HandleProvideAttestation handles POST /attestations.
func (h *Handler) HandleProvideAttestation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[AttestationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	a, q, err := h.service.ProvideAttestation(ctx, req.ParsedSubject(), req.ParsedQueryID(), *req.Result, req.ParsedSignature(), req.Metadata)
	if err != nil {
		h.fail(ctx, "attestation failed", err, "query_id", req.QueryID)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "attestation accepted",
		"request_id", requestID,
		"query_id", q.ID.String(),
		"signer", a.Signer.String(),
		"resolved", q.Resolved,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromAttestationResult(a, q))
}

// HandleForceResolve settles an expired query and applies its outcome to
// the lists. Any caller may invoke it.
func (h *Handler) HandleForceResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseQueryID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if requestcontext.Caller(ctx).IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required"))
		return
	}
	q, err := h.resolver.ForceResolveExpired(ctx, id)
	if err != nil {
		h.fail(ctx, "force resolve failed", err, "query_id", id.String())
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.ApplyConsensusResult(ctx, q.Subject, id); err != nil {
		h.fail(ctx, "failed to apply forced result", err, "query_id", id.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromResolution(q))
}

// HandleApplyResult applies a resolved query's outcome once, for queries
// resolved by a path that did not update the lists.
func (h *Handler) HandleApplyResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseQueryID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ApplyResultRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.ApplyConsensusResult(ctx, req.ParsedSubject(), id); err != nil {
		h.fail(ctx, "failed to apply result", err, "query_id", id.String())
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Emergency and hygiene
// =============================================================================

func (h *Handler) HandleEmergencyAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[EmergencyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	e, err := h.service.EmergencyAdd(ctx, req.ParsedSubject(), req.ParsedSeverity(), req.Reason)
	if err != nil {
		h.fail(ctx, "emergency listing failed", err)
		httputil.WriteError(w, err)
		return
	}
	h.logger.WarnContext(ctx, "emergency blacklisting",
		"request_id", requestID,
		"subject", e.Subject.String(),
		"caller", requestcontext.Caller(ctx).String(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromEntry(e, requestcontext.Now(ctx)))
}

// HandleCleanup handles POST /lists/cleanup. It is permissionless.
func (h *Handler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CleanupRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	n, err := h.service.CleanupExpired(ctx, req.ParsedList(), req.ParsedSubjects())
	if err != nil {
		h.fail(ctx, "cleanup failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &CleanupResponse{Cleaned: n})
}

// =============================================================================
// Administration
// =============================================================================

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := models.ParseListKind(chi.URLParam(r, "list"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown list"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[AddEntryRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	var e *models.Entry
	switch list {
	case models.Whitelist:
		tier, perr := models.ParseTier(req.Level)
		if perr != nil {
			httputil.WriteError(w, perr)
			return
		}
		e, err = h.service.AddWhitelist(ctx, req.ParsedSubject(), tier, req.Lifetime(), req.Reason)
	case models.Blacklist:
		severity, perr := models.ParseSeverity(req.Level)
		if perr != nil {
			httputil.WriteError(w, perr)
			return
		}
		e, err = h.service.AddBlacklist(ctx, req.ParsedSubject(), severity, req.Lifetime(), req.Reason)
	}
	if err != nil {
		h.fail(ctx, "failed to add list entry", err, "list", string(list))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromEntry(e, requestcontext.Now(ctx)))
}

func (h *Handler) HandleBatchWhitelist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[BatchWhitelistRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	entries, err := h.service.BatchAddWhitelist(ctx, req.ParsedSubjects(), req.ParsedTiers(), req.Lifetimes(), req.Reasons)
	if err != nil {
		h.fail(ctx, "batch whitelist failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromEntries(entries, requestcontext.Now(ctx)))
}

// HandleRemove handles DELETE /lists/{list}/{subject}. The body is optional.
func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := models.ParseListKind(chi.URLParam(r, "list"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown list"))
		return
	}
	subject, err := domain.ParseAddress(chi.URLParam(r, "subject"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var reason string
	if r.ContentLength != 0 {
		req, ok := httputil.DecodeAndPrepare[RemoveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
		if !ok {
			return
		}
		reason = req.Reason
	}
	e, err := h.service.Remove(ctx, list, subject, reason)
	if err != nil {
		h.fail(ctx, "failed to remove list entry", err, "list", string(list))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromEntry(e, requestcontext.Now(ctx)))
}

func (h *Handler) HandleSetEmergencyOracle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[EmergencyOracleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.SetEmergencyOracle(ctx, addr, *req.Enabled); err != nil {
		h.fail(ctx, "failed to set emergency oracle", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &EmergencyOracleResponse{Address: addr.String(), Enabled: *req.Enabled})
}

func (h *Handler) fail(ctx context.Context, msg string, err error, attrs ...any) {
	if dErrors.KindOf(err) != dErrors.KindInternal {
		return
	}
	args := append([]any{"request_id", requestcontext.RequestID(ctx), "error", err}, attrs...)
	h.logger.ErrorContext(ctx, msg, args...)
}
