package requesttime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"veritas/pkg/requestcontext"
)

func TestMiddleware(t *testing.T) {
	var got time.Time
	h := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = requestcontext.Now(r.Context())
	}))

	t.Run("stamps utc now", func(t *testing.T) {
		before := time.Now().UTC().Add(-time.Second)
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, time.UTC, got.Location())
		assert.True(t, got.After(before))
		assert.Zero(t, got.Nanosecond()%int(time.Microsecond))
	})

	t.Run("keeps a pinned clock", func(t *testing.T) {
		pinned := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(requestcontext.WithTime(req.Context(), pinned))
		h.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, pinned, got)
	})
}
