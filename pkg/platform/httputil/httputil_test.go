package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "veritas/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		require.Equal(t, http.StatusInternalServerError, w.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "internal_error", body["error"])
		_, ok := body["error_description"]
		assert.False(t, ok, "internal errors must not leak their message")
	})

	t.Run("uncoded error is internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, assert.AnError)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("taxonomy maps to status", func(t *testing.T) {
		cases := map[dErrors.Code]int{
			dErrors.CodeValidation:       http.StatusBadRequest,
			dErrors.CodeUnauthorized:     http.StatusUnauthorized,
			dErrors.CodeForbidden:        http.StatusForbidden,
			dErrors.CodeNotFound:         http.StatusNotFound,
			dErrors.CodeInvalidState:     http.StatusConflict,
			dErrors.CodeConflict:         http.StatusConflict,
			dErrors.CodeInvalidSignature: http.StatusUnprocessableEntity,
			dErrors.CodeTimeout:          http.StatusGatewayTimeout,
		}
		for code, status := range cases {
			w := httptest.NewRecorder()
			WriteError(w, dErrors.New(code, "why"))
			assert.Equal(t, status, w.Code, string(code))

			var body map[string]string
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, string(code), body["error"])
			assert.Equal(t, "why", body["error_description"])
		}
	})
}

type probe struct {
	Name string `json:"name"`
}

func (p *probe) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	decode := func(body string) (*probe, *httptest.ResponseRecorder, bool) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		w := httptest.NewRecorder()
		req, ok := DecodeAndPrepare[probe](w, r, nil, r.Context(), "")
		return req, w, ok
	}

	t.Run("valid body", func(t *testing.T) {
		req, _, ok := decode(`{"name":"x"}`)
		require.True(t, ok)
		assert.Equal(t, "x", req.Name)
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		_, w, ok := decode(`{"name":`)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		_, w, ok := decode(`{"name":"x","extra":1}`)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("validation failure is written", func(t *testing.T) {
		_, w, ok := decode(`{"name":" "}`)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "name is required")
	})
}
