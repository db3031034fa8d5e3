// Package httputil holds the JSON envelope shared by every handler.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "veritas/pkg/domain-errors"
)

// MaxBodyBytes caps request bodies read by DecodeAndPrepare.
const MaxBodyBytes = 1 << 20

// Validatable requests normalize and check themselves after decoding.
type Validatable interface {
	Validate() error
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteError maps err to a status and a coded body. Internal errors never
// leak their message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.GetCode(err)
	status := StatusFor(code)
	resp := errorResponse{Error: string(code)}
	if status != http.StatusInternalServerError {
		var de *dErrors.Error
		if errors.As(err, &de) {
			resp.ErrorDescription = de.Message
		}
	}
	WriteJSON(w, status, resp)
}

func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation, dErrors.CodeBadRequest, dErrors.CodeInvalidInput, dErrors.CodeInvariantViolation:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeInvalidState:
		return http.StatusConflict
	case dErrors.CodeInvalidSignature:
		return http.StatusUnprocessableEntity
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// DecodeAndPrepare decodes the JSON body into a T and validates it. On
// failure the error response is already written and ok is false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (PT, bool) {
	req := PT(new(T))
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "failed to decode request body",
				"request_id", requestID,
				"error", err,
			)
		}
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON request body"))
		return nil, false
	}
	if err := req.Validate(); err != nil {
		if logger != nil {
			logger.InfoContext(ctx, "request validation failed",
				"request_id", requestID,
				"error", err,
			)
		}
		WriteError(w, err)
		return nil, false
	}
	return req, true
}
