package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/internal/oracle/service"
	"veritas/internal/oracle/store"
	"veritas/pkg/domain"
	"veritas/pkg/platform/access"
	"veritas/pkg/testutil"
)

var (
	adminAddr = domain.MustAddress("0x00000000000000000000000000000000000000aa")
	oracleA   = domain.MustAddress("0x0000000000000000000000000000000000000001")
	stranger  = domain.MustAddress("0x00000000000000000000000000000000000000ff")
	now       = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newRouter(t *testing.T) chi.Router {
	t.Helper()
	ctrl, err := access.New(adminAddr)
	require.NoError(t, err)
	svc, err := service.New(store.NewInMemory(), ctrl)
	require.NoError(t, err)

	h := New(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.Register(r)
	r.Route("/admin", h.RegisterAdmin)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, caller domain.Address, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	req = testutil.WithTime(req, now)
	if !caller.IsZero() {
		req = testutil.WithCaller(req, caller)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRegisterAndRead(t *testing.T) {
	r := newRouter(t)

	rec := do(t, r, http.MethodPost, "/admin/oracles", adminAddr, map[string]any{
		"address":    oracleA.String(),
		"name":       "alpha",
		"reputation": 500,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[OracleResponse](t, rec)
	assert.True(t, created.Active)
	assert.Equal(t, uint64(50), created.Weight)

	rec = do(t, r, http.MethodGet, "/oracles/"+oracleA.String(), domain.ZeroAddress, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alpha", decode[OracleResponse](t, rec).Name)

	rec = do(t, r, http.MethodGet, "/oracles", domain.ZeroAddress, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[OraclesResponse](t, rec).Total)
}

func TestAdminEndpointsRejectNonAdmin(t *testing.T) {
	r := newRouter(t)
	body := map[string]any{"address": oracleA.String(), "reputation": 500}

	rec := do(t, r, http.MethodPost, "/admin/oracles", domain.ZeroAddress, body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, r, http.MethodPost, "/admin/oracles", stranger, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLifecycleAndReputation(t *testing.T) {
	r := newRouter(t)
	rec := do(t, r, http.MethodPost, "/admin/oracles", adminAddr, map[string]any{
		"address": oracleA.String(), "reputation": 500,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	base := "/admin/oracles/" + oracleA.String()

	rec = do(t, r, http.MethodPost, base+"/deactivate", adminAddr, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[OracleResponse](t, rec).Active)

	rec = do(t, r, http.MethodPost, base+"/deactivate", adminAddr, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "deactivating twice is an invariant violation")

	rec = do(t, r, http.MethodPost, base+"/activate", adminAddr, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodPost, base+"/reputation", adminAddr, map[string]any{"op": "reward", "value": 2000})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1000, decode[OracleResponse](t, rec).Reputation, "reward clamps at the maximum")

	rec = do(t, r, http.MethodPost, base+"/reputation", adminAddr, map[string]any{"op": "boost", "value": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPut, base+"/weight", adminAddr, map[string]any{"weight": 7})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(7), decode[OracleResponse](t, rec).Weight)

	rec = do(t, r, http.MethodPost, base+"/deregister", adminAddr, map[string]any{"reason": "retired"})
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[OracleResponse](t, rec)
	assert.False(t, out.Registered)
	assert.Equal(t, uint64(0), out.Weight)
}

func TestGetValidatesAddress(t *testing.T) {
	r := newRouter(t)

	rec := do(t, r, http.MethodGet, "/oracles/not-an-address", domain.ZeroAddress, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodGet, "/oracles/"+stranger.String(), domain.ZeroAddress, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
