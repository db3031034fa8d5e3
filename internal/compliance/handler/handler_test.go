package handler

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/internal/attestation"
	attstore "veritas/internal/attestation/store"
	"veritas/internal/compliance/service"
	"veritas/internal/compliance/store"
	consensusmodels "veritas/internal/consensus/models"
	consensusservice "veritas/internal/consensus/service"
	consensusstore "veritas/internal/consensus/store"
	oracleservice "veritas/internal/oracle/service"
	oraclestore "veritas/internal/oracle/store"
	"veritas/pkg/domain"
	"veritas/pkg/platform/access"
	"veritas/pkg/platform/tx"
	"veritas/pkg/testutil"
)

const chainID = 31337

var (
	adminAddr = domain.MustAddress("0x00000000000000000000000000000000000000aa")
	subject   = domain.MustAddress("0x5000000000000000000000000000000000000001")
	relayer   = domain.MustAddress("0x00000000000000000000000000000000000000bb")
	emergency = domain.MustAddress("0x00000000000000000000000000000000000000ee")
	stranger  = domain.MustAddress("0x00000000000000000000000000000000000000cc")
	now       = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
)

type fixture struct {
	router    http.Handler
	consensus *consensusservice.Service
	keys      []*ecdsa.PrivateKey
	oracles   []domain.Address
}

func newFixture(t *testing.T, oracles int) *fixture {
	t.Helper()
	coord := tx.New()
	ctrl, err := access.New(adminAddr)
	require.NoError(t, err)

	registry, err := oracleservice.New(oraclestore.NewInMemory(), ctrl, oracleservice.WithTx(coord))
	require.NoError(t, err)
	consensus, err := consensusservice.New(consensusstore.NewInMemory(), registry,
		attestation.NewVerifier(chainID, registry), ctrl, consensusservice.WithTx(coord))
	require.NoError(t, err)
	lists, err := service.New(store.NewInMemory(), consensus, registry, attstore.NewInMemory(), ctrl, service.WithTx(coord))
	require.NoError(t, err)

	f := &fixture{consensus: consensus}
	admin := testutil.CallerAt(adminAddr, now)
	for i := 0; i < oracles; i++ {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		addr := attestation.AddressOf(key)
		_, err = registry.Register(admin, addr, "oracle", "", 500)
		require.NoError(t, err)
		_, err = registry.SetWeight(admin, addr, 100)
		require.NoError(t, err)
		f.keys = append(f.keys, key)
		f.oracles = append(f.oracles, addr)
	}

	h := New(lists, consensus, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.Register(r)
	r.Route("/admin", h.RegisterAdmin)
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, path string, caller domain.Address, at time.Time, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req := testutil.WithTime(httptest.NewRequest(method, path, buf), at)
	if !caller.IsZero() {
		req = testutil.WithCaller(req, caller)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) openQuery(t *testing.T, qt consensusmodels.QueryType) *consensusmodels.Query {
	t.Helper()
	q, err := f.consensus.CreateQuery(testutil.CallerAt(relayer, now), subject, qt, nil)
	require.NoError(t, err)
	return q
}

func (f *fixture) attestBody(t *testing.T, i int, q *consensusmodels.Query, result bool) map[string]any {
	t.Helper()
	sig, err := attestation.Sign(f.keys[i], q.Subject, q.ID, result, chainID)
	require.NoError(t, err)
	return map[string]any{
		"subject":   q.Subject.String(),
		"query_id":  q.ID.String(),
		"result":    result,
		"signature": hexutil.Encode(sig),
		"metadata":  "kyc-provider",
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAdminAddLookupRemove(t *testing.T) {
	f := newFixture(t, 0)
	path := "/lists/whitelist/" + subject.String()

	rec := f.do(t, http.MethodGet, path, domain.ZeroAddress, now, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lookup := decode[LookupResponse](t, rec)
	require.NotNil(t, lookup.Whitelisted)
	assert.False(t, *lookup.Whitelisted)
	assert.Nil(t, lookup.Blacklisted)
	assert.Nil(t, lookup.Entry)

	rec = f.do(t, http.MethodPost, "/admin/lists/whitelist", stranger, now, map[string]any{
		"subject": subject.String(), "level": "premium",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/admin/lists/whitelist", adminAddr, now, map[string]any{
		"subject": subject.String(), "level": "premium", "duration_seconds": 3600, "reason": "onboarded",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decode[EntryResponse](t, rec)
	assert.Equal(t, "premium", entry.Tier)
	assert.Equal(t, now.Add(time.Hour), entry.ExpiresAt)

	rec = f.do(t, http.MethodGet, path, domain.ZeroAddress, now.Add(time.Minute), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lookup = decode[LookupResponse](t, rec)
	assert.True(t, *lookup.Whitelisted)
	require.NotNil(t, lookup.Entry)
	assert.Equal(t, "onboarded", lookup.Entry.Reason)

	rec = f.do(t, http.MethodGet, path, domain.ZeroAddress, now.Add(2*time.Hour), nil)
	lookup = decode[LookupResponse](t, rec)
	assert.False(t, *lookup.Whitelisted, "expired entries read as not listed")
	assert.False(t, lookup.Entry.Active)

	rec = f.do(t, http.MethodDelete, "/admin/lists/whitelist/"+subject.String(), adminAddr, now.Add(time.Minute), map[string]any{"reason": "closed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "closed", decode[EntryResponse](t, rec).RemovedReason)

	rec = f.do(t, http.MethodDelete, "/admin/lists/whitelist/"+subject.String(), adminAddr, now.Add(time.Minute), nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "nothing left to remove")
}

func TestAddValidation(t *testing.T) {
	f := newFixture(t, 0)
	tests := []struct {
		name   string
		path   string
		body   map[string]any
		status int
	}{
		{"unknown list", "/admin/lists/greylist", map[string]any{"subject": subject.String(), "level": "low"}, http.StatusNotFound},
		{"tier on blacklist", "/admin/lists/blacklist", map[string]any{"subject": subject.String(), "level": "premium"}, http.StatusBadRequest},
		{"negative duration", "/admin/lists/blacklist", map[string]any{"subject": subject.String(), "level": "low", "duration_seconds": -1}, http.StatusBadRequest},
		{"bad subject", "/admin/lists/blacklist", map[string]any{"subject": "0x12", "level": "low"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, tt.path, adminAddr, now, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestBatchWhitelist(t *testing.T) {
	f := newFixture(t, 0)
	second := domain.MustAddress("0x5000000000000000000000000000000000000002")

	rec := f.do(t, http.MethodPost, "/admin/lists/whitelist/batch", adminAddr, now, map[string]any{
		"subjects":         []string{subject.String(), second.String()},
		"tiers":            []string{"basic"},
		"duration_seconds": []int64{0, 0},
		"reasons":          []string{"a", "b"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "length mismatch")

	rec = f.do(t, http.MethodPost, "/admin/lists/whitelist/batch", adminAddr, now, map[string]any{
		"subjects":         []string{subject.String(), second.String()},
		"tiers":            []string{"basic", "institutional"},
		"duration_seconds": []int64{0, 60},
		"reasons":          []string{"a", "b"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[EntriesResponse](t, rec).Total)
}

func TestEmergencyListing(t *testing.T) {
	f := newFixture(t, 0)
	body := map[string]any{"subject": subject.String(), "severity": "critical", "reason": "exploit"}

	rec := f.do(t, http.MethodPost, "/lists/blacklist/emergency", emergency, now, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPut, "/admin/emergency-oracles/"+emergency.String(), adminAddr, now, map[string]any{"enabled": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/emergency-oracles/"+emergency.String(), domain.ZeroAddress, now, nil)
	assert.True(t, decode[EmergencyOracleResponse](t, rec).Enabled)

	rec = f.do(t, http.MethodPost, "/lists/blacklist/emergency", emergency, now, map[string]any{
		"subject": subject.String(), "severity": "high", "reason": "exploit",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "only critical severity")

	rec = f.do(t, http.MethodPost, "/lists/blacklist/emergency", emergency, now, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decode[EntryResponse](t, rec)
	assert.True(t, entry.Emergency)
	assert.Equal(t, []string{emergency.String()}, entry.Attesters)
}

func TestCleanup(t *testing.T) {
	f := newFixture(t, 0)
	rec := f.do(t, http.MethodPost, "/admin/lists/blacklist", adminAddr, now, map[string]any{
		"subject": subject.String(), "level": "low", "duration_seconds": 60,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := map[string]any{"list": "blacklist", "subjects": []string{subject.String(), stranger.String()}}
	rec = f.do(t, http.MethodPost, "/lists/cleanup", domain.ZeroAddress, now, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[CleanupResponse](t, rec).Cleaned)

	rec = f.do(t, http.MethodPost, "/lists/cleanup", domain.ZeroAddress, now.Add(time.Hour), body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[CleanupResponse](t, rec).Cleaned)
}

func TestAttestationsResolveAndList(t *testing.T) {
	f := newFixture(t, 3)
	q := f.openQuery(t, consensusmodels.TypeBlacklistListing)
	at := now.Add(time.Minute)

	rec := f.do(t, http.MethodPost, "/attestations", f.oracles[0], at, f.attestBody(t, 0, q, true))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[AttestationResultResponse](t, rec)
	assert.False(t, first.Query.Resolved)
	assert.Equal(t, f.oracles[0].String(), first.Attestation.Signer)

	// relayed: the caller differs from the signer
	rec = f.do(t, http.MethodPost, "/attestations", relayer, at, f.attestBody(t, 1, q, true))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	second := decode[AttestationResultResponse](t, rec)
	assert.True(t, second.Query.Resolved)
	assert.True(t, second.Query.Result)

	rec = f.do(t, http.MethodGet, "/lists/blacklist/"+subject.String(), domain.ZeroAddress, at, nil)
	lookup := decode[LookupResponse](t, rec)
	require.NotNil(t, lookup.Blacklisted)
	assert.True(t, *lookup.Blacklisted)
	assert.Equal(t, q.ID.String(), lookup.Entry.QueryID)

	rec = f.do(t, http.MethodGet, "/consensus/queries/"+q.ID.String()+"/attestations", domain.ZeroAddress, at, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[AttestationsResponse](t, rec).Total)

	rec = f.do(t, http.MethodGet, "/subjects/"+subject.String()+"/attestations", domain.ZeroAddress, at, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[AttestationsResponse](t, rec).Total)
}

func TestAttestationRejections(t *testing.T) {
	f := newFixture(t, 3)
	q := f.openQuery(t, consensusmodels.TypeWhitelistApproval)
	at := now.Add(time.Minute)

	body := f.attestBody(t, 0, q, true)
	body["result"] = false
	rec := f.do(t, http.MethodPost, "/attestations", f.oracles[0], at, body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "signature over a different result")

	body = f.attestBody(t, 0, q, true)
	body["signature"] = "zz"
	rec = f.do(t, http.MethodPost, "/attestations", f.oracles[0], at, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = f.attestBody(t, 0, q, true)
	delete(body, "result")
	rec = f.do(t, http.MethodPost, "/attestations", f.oracles[0], at, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/attestations", domain.ZeroAddress, at, f.attestBody(t, 0, q, true))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/attestations", f.oracles[0], at, f.attestBody(t, 0, q, true))
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = f.do(t, http.MethodPost, "/attestations", f.oracles[0], at, f.attestBody(t, 0, q, true))
	assert.Equal(t, http.StatusConflict, rec.Code, "double vote")
}

func TestForceResolveAppliesResult(t *testing.T) {
	f := newFixture(t, 3)
	q := f.openQuery(t, consensusmodels.TypeWhitelistApproval)

	rec := f.do(t, http.MethodPost, "/attestations", f.oracles[0], now.Add(time.Minute), f.attestBody(t, 0, q, true))
	require.Equal(t, http.StatusCreated, rec.Code)

	path := "/consensus/queries/" + q.ID.String() + "/force-resolve"
	rec = f.do(t, http.MethodPost, path, stranger, now.Add(time.Minute), nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "not expired yet")

	rec = f.do(t, http.MethodPost, path, domain.ZeroAddress, q.ExpiresAt, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, path, stranger, q.ExpiresAt, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[ResolutionResponse](t, rec)
	assert.True(t, res.ForceResolved)
	assert.True(t, res.Result)

	rec = f.do(t, http.MethodGet, "/lists/whitelist/"+subject.String(), domain.ZeroAddress, q.ExpiresAt, nil)
	assert.True(t, *decode[LookupResponse](t, rec).Whitelisted)

	rec = f.do(t, http.MethodPost, "/consensus/queries/"+q.ID.String()+"/apply", stranger, q.ExpiresAt, map[string]any{"subject": subject.String()})
	assert.Equal(t, http.StatusConflict, rec.Code, "the forced result was already applied")
	assert.Equal(t, "invalid_state", decode[map[string]string](t, rec)["error"])
}
