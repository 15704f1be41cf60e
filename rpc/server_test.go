package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"otcdesk/audit"
	"otcdesk/core/pricing"
	"otcdesk/storage"
)

const testAdminToken = "test-admin-token"

func hexAddr(fill byte) string {
	return hex.EncodeToString(bytes.Repeat([]byte{fill}, 32))
}

type testServer struct {
	http *httptest.Server
}

func newTestServer(t *testing.T, limit RateLimit) *testServer {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "desk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	journal, err := audit.Open(filepath.Join(dir, "audit.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	if limit.RequestsPerMinute == 0 {
		limit.RequestsPerMinute = 6_000
		limit.Burst = 100
	}
	server := NewServer(ServerConfig{
		Store:      store,
		Feeds:      pricing.NewStaticFeeds(),
		Emitter:    journal,
		Journal:    journal,
		AdminToken: testAdminToken,
		RateLimit:  limit,
	})
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return &testServer{http: ts}
}

type callOption func(*http.Request)

func asAdmin(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
}

func withIdempotencyKey(key string) callOption {
	return func(req *http.Request) {
		req.Header.Set("Idempotency-Key", key)
	}
}

func (ts *testServer) call(t *testing.T, method string, params any, opts ...callOption) Response {
	t.Helper()
	resp, status := ts.rawCall(t, method, params, opts...)
	require.Equal(t, http.StatusOK, status)
	return resp
}

func (ts *testServer) rawCall(t *testing.T, method string, params any, opts ...callOption) (Response, int) {
	t.Helper()
	var rawParams json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		require.NoError(t, err)
		rawParams = encoded
	}
	body, err := json.Marshal(Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: method, Params: rawParams})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.http.URL+"/rpc", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	httpResp, err := ts.http.Client().Do(req)
	require.NoError(t, err)
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		return Response{}, httpResp.StatusCode
	}
	var resp Response
	require.NoError(t, json.NewDecoder(httpResp.Body).Decode(&resp))
	return resp, httpResp.StatusCode
}

func (ts *testServer) initDesk(t *testing.T, owner string) {
	t.Helper()
	resp := ts.call(t, "otc_initDesk", map[string]any{
		"caller":         owner,
		"stableAsset":    hexAddr(0xEE),
		"stableDecimals": 6,
	}, asAdmin)
	require.Nil(t, resp.Error)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	resp, err := ts.http.Client().Get(ts.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMethodNotFound(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	resp := ts.call(t, "otc_noSuchMethod", nil)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestAdminMethodsRequireBearerToken(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	resp := ts.call(t, "otc_initDesk", map[string]any{
		"caller":         hexAddr(0x01),
		"stableAsset":    hexAddr(0xEE),
		"stableDecimals": 6,
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeAuthorization, resp.Error.Code)

	wrongToken := func(req *http.Request) { req.Header.Set("Authorization", "Bearer nope") }
	resp = ts.call(t, "otc_pause", map[string]any{"caller": hexAddr(0x01)}, wrongToken)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeAuthorization, resp.Error.Code)

	ts.initDesk(t, hexAddr(0x01))
}

func TestEngineErrorMapping(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	ts.initDesk(t, hexAddr(0x01))

	// Unknown offer is a state error.
	resp := ts.call(t, "otc_getOffer", map[string]any{"id": 42})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeState, resp.Error.Code)

	// A malformed address is a params error before the engine runs.
	resp = ts.call(t, "otc_registerToken", map[string]any{
		"caller": "not-hex", "asset": hexAddr(0xAA), "decimals": 6,
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	// A non-owner pause is an authorization error from the engine.
	resp = ts.call(t, "otc_pause", map[string]any{"caller": hexAddr(0x09)}, asAdmin)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeAuthorization, resp.Error.Code)
}

func TestSettlementOverRPC(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	owner, beneficiary, token := hexAddr(0x01), hexAddr(0x04), hexAddr(0xAA)
	ts.initDesk(t, owner)

	resp := ts.call(t, "otc_registerToken", map[string]any{"caller": owner, "asset": token, "decimals": 6})
	require.Nil(t, resp.Error)
	resp = ts.call(t, "otc_setManualPrice", map[string]any{"caller": owner, "asset": token, "priceUsd": 200_000_000}, asAdmin)
	require.Nil(t, resp.Error)

	resp = ts.call(t, "otc_creditAccount", map[string]any{"account": owner, "asset": token, "amount": 1_000_000}, asAdmin)
	require.Nil(t, resp.Error)
	resp = ts.call(t, "otc_depositTokens", map[string]any{"caller": owner, "asset": token, "amount": 1_000_000}, asAdmin)
	require.Nil(t, resp.Error)
	resp = ts.call(t, "otc_creditAccount", map[string]any{"account": beneficiary, "asset": hexAddr(0xEE), "amount": 2_000_000}, asAdmin)
	require.Nil(t, resp.Error)

	resp = ts.call(t, "otc_createOffer", map[string]any{
		"caller":      owner,
		"asset":       token,
		"beneficiary": beneficiary,
		"tokenAmount": 1_000_000,
		"discountBps": 500,
		"currency":    "stable",
	}, asAdmin)
	require.Nil(t, resp.Error)

	resp = ts.call(t, "otc_fulfillOfferStable", map[string]any{"caller": beneficiary, "id": 1})
	require.Nil(t, resp.Error)
	resp = ts.call(t, "otc_claim", map[string]any{"caller": beneficiary, "id": 1})
	require.Nil(t, resp.Error)

	resp = ts.call(t, "otc_getOffer", map[string]any{"id": 1})
	require.Nil(t, resp.Error)
	var offer struct {
		Fulfilled  bool   `json:"fulfilled"`
		AmountPaid uint64 `json:"amountPaid"`
	}
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &offer))
	require.True(t, offer.Fulfilled)
	require.EqualValues(t, 1_900_000, offer.AmountPaid)

	resp = ts.call(t, "otc_getBalance", map[string]any{"account": beneficiary, "asset": token})
	require.Nil(t, resp.Error)

	// The audit journal saw the settlement.
	resp = ts.call(t, "otc_recentEvents", map[string]any{"limit": 50})
	require.Nil(t, resp.Error)
	events, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.Contains(t, string(events), "otc.offer.claimed")
}

func TestIdempotencyReplay(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	owner, token := hexAddr(0x01), hexAddr(0xAB)
	ts.initDesk(t, owner)

	key := uuid.NewString()
	params := map[string]any{"caller": owner, "asset": token, "decimals": 6}

	first := ts.call(t, "otc_registerToken", params, withIdempotencyKey(key))
	require.Nil(t, first.Error)

	// Without the key, the retry hits the engine and fails.
	dup := ts.call(t, "otc_registerToken", params)
	require.NotNil(t, dup.Error)
	require.Equal(t, codeState, dup.Error.Code)

	// With the key, the original response is replayed.
	replay := ts.call(t, "otc_registerToken", params, withIdempotencyKey(key))
	require.Nil(t, replay.Error)
}

func TestRateLimiting(t *testing.T) {
	ts := newTestServer(t, RateLimit{RequestsPerMinute: 60, Burst: 1})
	_, status := ts.rawCall(t, "otc_getDesk", nil)
	require.Equal(t, http.StatusOK, status)
	_, status = ts.rawCall(t, "otc_getDesk", nil)
	require.Equal(t, http.StatusTooManyRequests, status)
}

func TestListQueries(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	owner := hexAddr(0x01)
	ts.initDesk(t, owner)

	resp := ts.call(t, "otc_getDesk", nil)
	require.Nil(t, resp.Error)

	resp = ts.call(t, "otc_listOffers", map[string]any{"start": 0, "limit": 10})
	require.Nil(t, resp.Error)
	resp = ts.call(t, "otc_listConsignments", nil)
	require.Nil(t, resp.Error)
}
