package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonpad-xyz/go-tonpad/engine"
	"github.com/tonpad-xyz/go-tonpad/registry"
)

const (
	ownerAddr = "0:owner"
	aliceAddr = "0:alice"
)

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(nil, logger)
	reg, err := registry.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	ts := httptest.NewServer(New(eng, reg, logger))
	t.Cleanup(ts.Close)
	return ts, eng
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, callerAddr string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	if callerAddr != "" {
		req.Header.Set("X-Caller-Address", callerAddr)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var out map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func createToken(t *testing.T, ts *httptest.Server, id string) {
	t.Helper()
	resp, _ := doJSON(t, ts, http.MethodPost, "/api/tokens", ownerAddr, map[string]any{
		"id":           id,
		"name":         "Cafe Coin",
		"symbol":       "CAFE",
		"maxSupply":    "1000",
		"mintable":     true,
		"initialPrice": "1",
		"steepness":    "1",
		"baseAmount":   "100",
		"agent":        map[string]string{"displayName": "Barista"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func trade(t *testing.T, ts *httptest.Server, callerAddr string, body map[string]any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	return doJSON(t, ts, http.MethodPost, "/api/trade", callerAddr, body)
}

func errKind(t *testing.T, raw map[string]json.RawMessage) string {
	t.Helper()
	var e struct {
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(raw["error"], &e))
	return e.Kind
}

func TestCreateTokenRequiresCaller(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, _ := doJSON(t, ts, http.MethodPost, "/api/tokens", "", map[string]any{"id": "t"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateAndFetchToken(t *testing.T) {
	ts, _ := newTestServer(t)
	createToken(t, ts, "0:cafe")

	resp, body := doJSON(t, ts, http.MethodGet, "/api/tokens/0:cafe", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state stateBody
	require.NoError(t, json.Unmarshal(body["state"], &state))
	assert.Equal(t, "0", state.TotalSupply)
	assert.Equal(t, "1000", state.MaxSupply)
	assert.Equal(t, ownerAddr, state.Owner)

	var meta registry.TokenMeta
	require.NoError(t, json.Unmarshal(body["meta"], &meta))
	assert.Equal(t, "CAFE", meta.Symbol)

	var agent registry.AgentMeta
	require.NoError(t, json.Unmarshal(body["agent"], &agent))
	assert.Equal(t, "Barista", agent.DisplayName)

	resp, raw := doJSON(t, ts, http.MethodGet, "/api/tokens/0:ghost", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "TokenNotFound", errKind(t, raw))
}

func TestTradeFlow(t *testing.T) {
	ts, _ := newTestServer(t)
	createToken(t, ts, "0:cafe")

	// Buying before the pool exists is rejected.
	resp, raw := trade(t, ts, aliceAddr, map[string]any{"token": "0:cafe", "action": "buy", "amount": "100"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "PoolDoesNotExist", errKind(t, raw))

	// Only the owner administers the pool.
	resp, raw = trade(t, ts, aliceAddr, map[string]any{"token": "0:cafe", "action": "addPool"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Unauthorized", errKind(t, raw))

	resp, _ = trade(t, ts, ownerAddr, map[string]any{"token": "0:cafe", "action": "addPool"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := trade(t, ts, aliceAddr, map[string]any{"token": "0:cafe", "action": "buy", "amount": "100"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tokenAmount, tonAmount string
	require.NoError(t, json.Unmarshal(body["tokenAmount"], &tokenAmount))
	require.NoError(t, json.Unmarshal(body["tonAmount"], &tonAmount))
	assert.NotEqual(t, "0", tokenAmount)
	assert.NotEqual(t, "0", tonAmount)

	// The buyer's wallet reflects the settlement.
	resp, body = doJSON(t, ts, http.MethodGet, "/api/tokens/0:cafe/wallets/"+aliceAddr, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var balance string
	require.NoError(t, json.Unmarshal(body["balance"], &balance))
	assert.Equal(t, tokenAmount, balance)

	// History: create, addPool, buy.
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/tokens/0:cafe/events", nil)
	r2, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer r2.Body.Close()
	var events []json.RawMessage
	require.NoError(t, json.NewDecoder(r2.Body).Decode(&events))
	assert.Len(t, events, 3)
}

func TestQuote(t *testing.T) {
	ts, _ := newTestServer(t)
	createToken(t, ts, "0:cafe")

	resp, body := doJSON(t, ts, http.MethodGet, "/api/quote?token=0:cafe&side=buy&amount=100", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var units string
	require.NoError(t, json.Unmarshal(body["tokenAmount"], &units))
	assert.NotEqual(t, "0", units)

	resp, raw := doJSON(t, ts, http.MethodGet, "/api/quote?token=0:cafe&side=hold&amount=100", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BadRequest", errKind(t, raw))

	// Dust payments are rejected, not rounded to a free trade.
	resp, raw = doJSON(t, ts, http.MethodGet, "/api/quote?token=0:cafe&side=sell&amount=2000", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "AmountTooSmall", errKind(t, raw))
}

func TestListTokens(t *testing.T) {
	ts, _ := newTestServer(t)
	createToken(t, ts, "0:aaa")
	createToken(t, ts, "0:bbb")

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/tokens", nil)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out []tokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 2)
	assert.NotNil(t, out[0].Meta)
}

func TestDeleteToken(t *testing.T) {
	ts, _ := newTestServer(t)
	createToken(t, ts, "0:cafe")

	del := func(callerAddr string) *http.Response {
		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/tokens/0:cafe", nil)
		require.NoError(t, err)
		if callerAddr != "" {
			req.Header.Set("X-Caller-Address", callerAddr)
		}
		resp, err := ts.Client().Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	// Only the creator may delist.
	assert.Equal(t, http.StatusUnauthorized, del("").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, del(aliceAddr).StatusCode)

	require.Equal(t, http.StatusNoContent, del(ownerAddr).StatusCode)
	assert.Equal(t, http.StatusNotFound, del(ownerAddr).StatusCode)

	// The ledger is untouched: the token still trades without a listing.
	resp, body := doJSON(t, ts, http.MethodGet, "/api/tokens/0:cafe", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "meta")
	var state stateBody
	require.NoError(t, json.Unmarshal(body["state"], &state))
	assert.Equal(t, "1000", state.MaxSupply)
}

func TestReceiptFeed(t *testing.T) {
	ts, eng := newTestServer(t)
	createToken(t, ts, "0:cafe")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait until the handler has registered its feed subscription, so
	// the receipt cannot be published before anyone listens.
	require.Eventually(t, func() bool { return eng.Subscribers() > 0 },
		5*time.Second, 10*time.Millisecond)

	resp, _ := trade(t, ts, ownerAddr, map[string]any{"token": "0:cafe", "action": "addPool"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var rcpt receiptBody
	require.NoError(t, conn.ReadJSON(&rcpt))
	assert.Equal(t, "addPool", rcpt.Action)
	assert.Equal(t, "0:cafe", rcpt.Token)
}
