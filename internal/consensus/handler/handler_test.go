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

	"veritas/internal/attestation"
	"veritas/internal/consensus/service"
	"veritas/internal/consensus/store"
	oracleservice "veritas/internal/oracle/service"
	oraclestore "veritas/internal/oracle/store"
	"veritas/pkg/domain"
	"veritas/pkg/platform/access"
	"veritas/pkg/platform/tx"
	"veritas/pkg/testutil"
)

var (
	adminAddr = domain.MustAddress("0x00000000000000000000000000000000000000aa")
	subject   = domain.MustAddress("0x5000000000000000000000000000000000000001")
	oracleA   = domain.MustAddress("0x0000000000000000000000000000000000000001")
	oracleB   = domain.MustAddress("0x0000000000000000000000000000000000000002")
	stranger  = domain.MustAddress("0x00000000000000000000000000000000000000ff")
	now       = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
)

type fixture struct {
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	coord := tx.New()
	ctrl, err := access.New(adminAddr)
	require.NoError(t, err)
	registry, err := oracleservice.New(oraclestore.NewInMemory(), ctrl, oracleservice.WithTx(coord))
	require.NoError(t, err)
	for _, addr := range []domain.Address{oracleA, oracleB} {
		_, err := registry.Register(testutil.CallerAt(adminAddr, now), addr, "oracle", "", 500)
		require.NoError(t, err)
	}
	svc, err := service.New(store.NewInMemory(), registry, attestation.NewVerifier(31337, registry), ctrl, service.WithTx(coord))
	require.NoError(t, err)

	h := New(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.Register(r)
	r.Route("/admin", h.RegisterAdmin)
	return &fixture{router: r}
}

func (f *fixture) do(t *testing.T, method, path string, caller domain.Address, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req := testutil.WithTime(httptest.NewRequest(method, path, buf), now)
	if !caller.IsZero() {
		req = testutil.WithCaller(req, caller)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCreateAndGetWeightedQuery(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/consensus/queries", stranger, map[string]any{
		"subject":    subject.String(),
		"query_type": "blacklist_listing",
		"payload":    "sanctions hit",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[CreateQueryResponse](t, rec).QueryID
	require.Len(t, id, 66)

	rec = f.do(t, http.MethodGet, "/consensus/queries/"+id, domain.ZeroAddress, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	q := decode[QueryResponse](t, rec)
	assert.Equal(t, "weighted", q.Policy)
	assert.False(t, q.HasResult)
	assert.NotNil(t, q.ExpiresAt)
	assert.Empty(t, q.Votes)
}

func TestCreateQueryValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		caller domain.Address
		body   map[string]any
		status int
	}{
		{"anonymous caller", domain.ZeroAddress, map[string]any{"subject": subject.String(), "query_type": "whitelist_approval"}, http.StatusUnauthorized},
		{"zero subject", stranger, map[string]any{"subject": domain.ZeroAddress.String(), "query_type": "whitelist_approval"}, http.StatusBadRequest},
		{"unknown type", stranger, map[string]any{"subject": subject.String(), "query_type": "kyc"}, http.StatusBadRequest},
		{"unknown field", stranger, map[string]any{"subject": subject.String(), "query_type": "kyc", "extra": 1}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/consensus/queries", tt.caller, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestCountPathResolves(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/consensus/verifications", stranger, map[string]any{
		"subject":    subject.String(),
		"query_type": "whitelist_approval",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[CreateQueryResponse](t, rec).QueryID
	votes := "/consensus/verifications/" + id + "/votes"

	rec = f.do(t, http.MethodPost, votes, stranger, map[string]any{"vote": true})
	assert.Equal(t, http.StatusForbidden, rec.Code, "non-oracles cannot vote")

	rec = f.do(t, http.MethodPost, votes, oracleA, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "vote is required")

	rec = f.do(t, http.MethodPost, votes, oracleA, map[string]any{"vote": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[QueryResponse](t, rec).Resolved)

	rec = f.do(t, http.MethodPost, votes, oracleA, map[string]any{"vote": true})
	assert.Equal(t, http.StatusConflict, rec.Code, "second vote by the same caller")

	rec = f.do(t, http.MethodPost, votes, oracleB, map[string]any{"vote": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/consensus/queries/"+id, domain.ZeroAddress, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	q := decode[QueryResponse](t, rec)
	assert.True(t, q.HasResult)
	assert.True(t, q.Result)
	assert.Nil(t, q.ExpiresAt)
}

func TestSetThreshold(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/admin/consensus/threshold", stranger, map[string]any{"policy": "weighted", "value": 75})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPut, "/admin/consensus/threshold", adminAddr, map[string]any{"policy": "weighted", "value": 50})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/admin/consensus/threshold", adminAddr, map[string]any{"policy": "weighted", "value": 75})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 75, decode[ThresholdsResponse](t, rec).Weighted)

	rec = f.do(t, http.MethodGet, "/consensus/thresholds", domain.ZeroAddress, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ThresholdsResponse{Count: 2, Weighted: 75}, decode[ThresholdsResponse](t, rec))
}
