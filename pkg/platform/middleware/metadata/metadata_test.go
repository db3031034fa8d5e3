package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"veritas/pkg/requestcontext"
)

func TestClientMetadata(t *testing.T) {
	var gotIP, gotID string
	h := ClientMetadata(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotIP = requestcontext.ClientIP(r.Context())
		gotID = requestcontext.RequestID(r.Context())
	}))

	t.Run("forwarded ip and supplied request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		req.Header.Set(RequestIDHeader, "req-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "203.0.113.7", gotIP)
		assert.Equal(t, "req-123", gotID)
		assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	})

	t.Run("generated request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.1:4321"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "192.0.2.1", gotIP)
		assert.Len(t, gotID, 36)
	})

	t.Run("ipv6 socket address", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "[::1]:8080"
		h.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, "::1", gotIP)
	})
}
