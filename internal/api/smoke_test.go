// Package api_test runs HTTP-level smoke tests using net/http/httptest.
// The ledger runs for real (no persistence, no websocket hub) — the tests
// verify:
//   - Gin router routing and middleware wiring
//   - Request validation error responses (400)
//   - Admission errors mapped to their status codes (400/402/409)
//   - Response format consistency (success/error envelope)
//   - CORS preflight handling
package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/velora/optionsim/internal/advisor"
	"github.com/velora/optionsim/internal/api"
	"github.com/velora/optionsim/internal/config"
	"github.com/velora/optionsim/internal/domain"
	"github.com/velora/optionsim/internal/ledger"
	"github.com/velora/optionsim/internal/market"
	"github.com/velora/optionsim/internal/store"
)

// ── Test helpers ──────────────────────────────────────────────────────────────

func testCfg() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Env:  "development",
			Port: "8080",
		},
		Feed: config.FeedConfig{
			BinanceURL:        "http://127.0.0.1:0", // never reached; klines served from cache
			BinanceFuturesURL: "http://127.0.0.1:0",
			FetchTimeout:      time.Second,
			KlineLimit:        100,
			DepthLimit:        20,
		},
		Trading: config.TradingConfig{
			Symbol:         "BTCUSDT",
			InitialBalance: 1000,
			PayoutRate:     0.85,
			MinStake:       5,
			MaxPositions:   5,
		},
		Advisor: config.AdvisorConfig{
			Provider:       "mock",
			Model:          "gpt-4o-mini",
			Threshold:      60,
			RequestTimeout: time.Second,
		},
	}
}

// buildTestRouter wires a real ledger (nil saver) with a quote already set,
// so order placement exercises the full admission path.
func buildTestRouter(t *testing.T) (http.Handler, *ledger.Ledger) {
	t.Helper()
	cfg := testCfg()

	st, err := store.Open(filepath.Join(t.TempDir(), "smoke.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	feed := market.NewClient(cfg)
	cache := market.NewCandleCache()
	cache.Set(testCandles(30))

	book := ledger.New(cfg, nil)
	book.SetQuote(decimal.NewFromInt(87000))

	r := api.SetupRouter(api.RouterDeps{
		Ledger:  book,
		Feed:    feed,
		Cache:   cache,
		Advisor: advisor.New(feed, cfg),
		Store:   st,
		Hub:     nil,
		Cfg:     cfg,
	})
	return r, book
}

func testCandles(n int) []domain.Candle {
	candles := make([]domain.Candle, n)
	for i := range candles {
		c := 87000 + float64(i)
		candles[i] = domain.Candle{
			OpenTime: time.Unix(int64(i*60), 0).UTC(),
			Open:     c - 1, High: c + 2, Low: c - 2, Close: c, Volume: 5,
		}
	}
	return candles
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Buffer
	if body != "" {
		buf = bytes.NewBufferString(body)
	} else {
		buf = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&m); err != nil {
		t.Fatalf("response is not valid JSON: %v — body: %s", err, rr.Body.String())
	}
	return m
}

// ── /health ───────────────────────────────────────────────────────────────────

func TestHealthEndpoint(t *testing.T) {
	h, _ := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", rr.Code)
	}
}

// ── Order placement — validation layer ────────────────────────────────────────

func TestPlaceOrder_MissingFields(t *testing.T) {
	h, _ := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/orders", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("POST /api/orders empty body = %d, want 400", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["success"] != false {
		t.Errorf("response.success should be false on error, got %v", body["success"])
	}
	if body["code"] == nil {
		t.Errorf("error envelope missing 'code', got: %v", body)
	}
}

func TestPlaceOrder_InvalidDirection(t *testing.T) {
	h, _ := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/orders",
		`{"direction":"SIDEWAYS","amount":"25","expiry":"5m"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("invalid direction = %d, want 400", rr.Code)
	}
	if code := decodeBody(t, rr)["code"]; code != "ERR_INVALID_DIRECTION" {
		t.Errorf("code = %v, want ERR_INVALID_DIRECTION", code)
	}
}

func TestPlaceOrder_InvalidExpiry(t *testing.T) {
	h, _ := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/orders",
		`{"direction":"UP","amount":"25","expiry":"42s"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("invalid expiry = %d, want 400", rr.Code)
	}
	if code := decodeBody(t, rr)["code"]; code != "ERR_INVALID_EXPIRY" {
		t.Errorf("code = %v, want ERR_INVALID_EXPIRY", code)
	}
}

// ── Order placement — admission layer ─────────────────────────────────────────

func TestPlaceOrder_Success(t *testing.T) {
	h, book := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/orders",
		`{"direction":"UP","amount":"25","expiry":"5m"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("valid order = %d, want 201 — body: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["success"] != true {
		t.Errorf("response.success should be true, got %v", body["success"])
	}
	data, ok := body["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("response.data missing, got: %v", body)
	}
	if data["direction"] != "UP" {
		t.Errorf("data.direction = %v, want UP", data["direction"])
	}
	if got := book.Balance(); !got.Equal(decimal.NewFromInt(975)) {
		t.Errorf("balance after 25 stake = %s, want 975", got)
	}
}

func TestPlaceOrder_StakeBelowMinimum(t *testing.T) {
	h, _ := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/orders",
		`{"direction":"DOWN","amount":"2","expiry":"1m"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("stake below minimum = %d, want 400", rr.Code)
	}
	if code := decodeBody(t, rr)["code"]; code != "ERR_INVALID_STAKE" {
		t.Errorf("code = %v, want ERR_INVALID_STAKE", code)
	}
}

func TestPlaceOrder_InsufficientBalance(t *testing.T) {
	h, _ := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/orders",
		`{"direction":"UP","amount":"5000","expiry":"1m"}`)
	if rr.Code != http.StatusPaymentRequired {
		t.Errorf("oversized stake = %d, want 402", rr.Code)
	}
	if code := decodeBody(t, rr)["code"]; code != "ERR_INSUFFICIENT_BALANCE" {
		t.Errorf("code = %v, want ERR_INSUFFICIENT_BALANCE", code)
	}
}

func TestPlaceOrder_NoQuoteYet(t *testing.T) {
	cfg := testCfg()
	st, err := store.Open(filepath.Join(t.TempDir(), "smoke.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	feed := market.NewClient(cfg)

	// Ledger without a quote set: the feed has not answered yet.
	h := api.SetupRouter(api.RouterDeps{
		Ledger:  ledger.New(cfg, nil),
		Feed:    feed,
		Cache:   market.NewCandleCache(),
		Advisor: advisor.New(feed, cfg),
		Store:   st,
		Cfg:     cfg,
	})

	rr := do(t, h, http.MethodPost, "/api/orders",
		`{"direction":"UP","amount":"25","expiry":"5m"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("order before first quote = %d, want 503", rr.Code)
	}
	if code := decodeBody(t, rr)["code"]; code != "ERR_PRICE_UNAVAILABLE" {
		t.Errorf("code = %v, want ERR_PRICE_UNAVAILABLE", code)
	}
}

func TestPlaceOrder_CapacityExceeded(t *testing.T) {
	h, _ := buildTestRouter(t)
	for i := 0; i < 5; i++ {
		rr := do(t, h, http.MethodPost, "/api/orders",
			`{"direction":"UP","amount":"10","expiry":"1h"}`)
		if rr.Code != http.StatusCreated {
			t.Fatalf("order %d = %d, want 201", i, rr.Code)
		}
	}
	rr := do(t, h, http.MethodPost, "/api/orders",
		`{"direction":"UP","amount":"10","expiry":"1h"}`)
	if rr.Code != http.StatusConflict {
		t.Errorf("sixth concurrent order = %d, want 409", rr.Code)
	}
	if code := decodeBody(t, rr)["code"]; code != "ERR_CAPACITY_EXCEEDED" {
		t.Errorf("code = %v, want ERR_CAPACITY_EXCEEDED", code)
	}
}

// ── Positions ─────────────────────────────────────────────────────────────────

func TestListPositions_StatusFilter(t *testing.T) {
	h, _ := buildTestRouter(t)
	do(t, h, http.MethodPost, "/api/orders", `{"direction":"UP","amount":"10","expiry":"1h"}`)

	rr := do(t, h, http.MethodGet, "/api/positions?status=open", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list open = %d, want 200", rr.Code)
	}
	data := decodeBody(t, rr)["data"].(map[string]interface{})
	open, ok := data["open"].([]interface{})
	if !ok || len(open) != 1 {
		t.Errorf("open list = %v, want exactly 1 position", data["open"])
	}
	if _, present := data["closed"]; present {
		t.Error("status=open must not include the closed list")
	}

	rr = do(t, h, http.MethodGet, "/api/positions", "")
	data = decodeBody(t, rr)["data"].(map[string]interface{})
	if _, present := data["open"]; !present {
		t.Error("default listing should include open positions")
	}
	if _, present := data["closed"]; !present {
		t.Error("default listing should include closed positions")
	}
}

func TestListPositions_InvalidStatus(t *testing.T) {
	h, _ := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/positions?status=pending", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("invalid status filter = %d, want 400", rr.Code)
	}
}

// ── Market data ───────────────────────────────────────────────────────────────

func TestGetPrice(t *testing.T) {
	h, _ := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/market/price", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET price = %d, want 200 — body: %s", rr.Code, rr.Body.String())
	}
	data := decodeBody(t, rr)["data"].(map[string]interface{})
	if data["symbol"] != "BTCUSDT" {
		t.Errorf("symbol = %v, want BTCUSDT", data["symbol"])
	}
	if data["connected"] != false {
		t.Errorf("connected = %v, want false before any upstream fetch", data["connected"])
	}
}

func TestGetKlines_ServedFromCache(t *testing.T) {
	h, _ := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/market/klines?limit=10", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET klines = %d, want 200 — body: %s", rr.Code, rr.Body.String())
	}
	data := decodeBody(t, rr)["data"].(map[string]interface{})
	candles, ok := data["candles"].([]interface{})
	if !ok || len(candles) != 10 {
		t.Errorf("got %d candles, want the 10 most recent", len(candles))
	}
}

func TestGetKlines_LimitBounds(t *testing.T) {
	h, _ := buildTestRouter(t)
	for _, limit := range []string{"0", "-3", "1001", "abc"} {
		rr := do(t, h, http.MethodGet, "/api/market/klines?limit="+limit, "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("limit=%s = %d, want 400", limit, rr.Code)
		}
	}
}

// ── Account ───────────────────────────────────────────────────────────────────

func TestAccountAndStats(t *testing.T) {
	h, _ := buildTestRouter(t)

	rr := do(t, h, http.MethodGet, "/api/account", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET account = %d, want 200", rr.Code)
	}
	data := decodeBody(t, rr)["data"].(map[string]interface{})
	if data["balance"] != "1000" {
		t.Errorf("balance = %v, want 1000", data["balance"])
	}
	if data["max_positions"] != float64(5) {
		t.Errorf("max_positions = %v, want 5", data["max_positions"])
	}

	rr = do(t, h, http.MethodGet, "/api/stats", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET stats = %d, want 200", rr.Code)
	}
	stats := decodeBody(t, rr)["data"].(map[string]interface{})
	if stats["total_trades"] != float64(0) {
		t.Errorf("total_trades = %v, want 0", stats["total_trades"])
	}
}

func TestAccountReset(t *testing.T) {
	h, book := buildTestRouter(t)
	do(t, h, http.MethodPost, "/api/orders", `{"direction":"UP","amount":"100","expiry":"1h"}`)

	rr := do(t, h, http.MethodPost, "/api/account/reset", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("POST reset = %d, want 200", rr.Code)
	}
	if got := book.Balance(); !got.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("balance after reset = %s, want 1000", got)
	}
	if n := len(book.OpenPositions()); n != 0 {
		t.Errorf("open positions after reset = %d, want 0", n)
	}
}

// ── Advisor config ────────────────────────────────────────────────────────────

func TestAdvisorConfig_NeverEchoesAPIKey(t *testing.T) {
	h, _ := buildTestRouter(t)

	rr := do(t, h, http.MethodPut, "/api/advisor/config",
		`{"provider":"openai","api_key":"sk-secret","model":"gpt-4o-mini","threshold":70}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT advisor config = %d, want 200 — body: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodGet, "/api/advisor/config", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET advisor config = %d, want 200", rr.Code)
	}
	data := decodeBody(t, rr)["data"].(map[string]interface{})
	if data["provider"] != "openai" {
		t.Errorf("provider = %v, want openai", data["provider"])
	}
	if data["threshold"] != float64(70) {
		t.Errorf("threshold = %v, want 70", data["threshold"])
	}
	if data["has_api_key"] != true {
		t.Errorf("has_api_key = %v, want true", data["has_api_key"])
	}
	if _, leaked := data["api_key"]; leaked {
		t.Error("advisor config response must never include the raw key")
	}
	if bytes.Contains(rr.Body.Bytes(), []byte("sk-secret")) {
		t.Error("raw API key leaked into the response body")
	}
}

func TestAdvisorConfig_RejectsUnknownProvider(t *testing.T) {
	h, _ := buildTestRouter(t)
	rr := do(t, h, http.MethodPut, "/api/advisor/config",
		`{"provider":"anthropic"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("unknown provider = %d, want 400", rr.Code)
	}
}

func TestAdvisorConfig_RejectsOutOfRangeThreshold(t *testing.T) {
	h, _ := buildTestRouter(t)
	for _, th := range []int{-1, 101} {
		rr := do(t, h, http.MethodPut, "/api/advisor/config",
			fmt.Sprintf(`{"provider":"mock","threshold":%d}`, th))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("threshold %d = %d, want 400", th, rr.Code)
		}
	}
}

// ── CORS ──────────────────────────────────────────────────────────────────────

func TestCORS_PreflightInDevelopment(t *testing.T) {
	h, _ := buildTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("OPTIONS preflight = %d, want 204", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want * in development", got)
	}
}
