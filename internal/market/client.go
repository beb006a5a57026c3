// Package market is the read-only adapter for the public Binance REST API:
// live ticker price, OHLC klines, order-book depth, and the futures funding
// rate.  All failures are wrapped in domain.ErrFeed; the scheduler recovers
// by simply retrying on its next tick.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/velora/optionsim/internal/config"
	"github.com/velora/optionsim/internal/domain"
)

// Client fetches market data over HTTP and tracks feed connectivity.
type Client struct {
	http *http.Client
	cfg  *config.FeedConfig

	// last-success timestamp for the connectivity indicator
	statusMu    sync.RWMutex
	lastSuccess time.Time
}

// NewClient constructs a market data client from the given config.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		http: &http.Client{Timeout: cfg.Feed.FetchTimeout},
		cfg:  &cfg.Feed,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Public API
// ──────────────────────────────────────────────────────────────────────────────

// TickerPrice fetches the current price for a symbol.
//
//	GET /api/v3/ticker/price?symbol=BTCUSDT
//	{"symbol":"BTCUSDT","price":"87350.00"}
func (c *Client) TickerPrice(ctx context.Context, symbol string) (domain.Quote, error) {
	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", c.cfg.BinanceURL, symbol)
	body, err := c.doGet(ctx, url)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("market.TickerPrice: %w", err)
	}

	var resp struct {
		Price string `json:"price"`
	}
	if err = json.Unmarshal(body, &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("market.TickerPrice: parse: %w: %v", domain.ErrFeed, err)
	}
	if resp.Price == "" {
		return domain.Quote{}, fmt.Errorf("market.TickerPrice: empty price field: %w", domain.ErrFeed)
	}
	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("market.TickerPrice: decimal: %w: %v", domain.ErrFeed, err)
	}

	c.markSuccess()
	return domain.Quote{Symbol: symbol, Price: price, FetchedAt: time.Now().UTC()}, nil
}

// Klines fetches up to limit OHLC candles for a symbol and interval.
//
//	GET /api/v3/klines?symbol=BTCUSDT&interval=1m&limit=100
//
// Binance encodes each kline as a mixed-type JSON array; numeric fields
// arrive as strings.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	if limit <= 0 {
		limit = c.cfg.KlineLimit
	}
	url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&limit=%d",
		c.cfg.BinanceURL, symbol, interval, limit)
	body, err := c.doGet(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("market.Klines: %w", err)
	}

	var raw [][]json.RawMessage
	if err = json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("market.Klines: parse: %w: %v", domain.ErrFeed, err)
	}

	candles := make([]domain.Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		var openMs int64
		if err = json.Unmarshal(k[0], &openMs); err != nil {
			continue
		}
		open, err1 := parseFloatField(k[1])
		high, err2 := parseFloatField(k[2])
		low, err3 := parseFloatField(k[3])
		closePrice, err4 := parseFloatField(k[4])
		volume, err5 := parseFloatField(k[5])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			continue
		}
		candles = append(candles, domain.Candle{
			OpenTime: time.UnixMilli(openMs).UTC(),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closePrice,
			Volume:   volume,
		})
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("market.Klines: no parseable candles: %w", domain.ErrFeed)
	}

	c.markSuccess()
	return candles, nil
}

// Depth fetches the top levels of the order book for a symbol.
//
//	GET /api/v3/depth?symbol=BTCUSDT&limit=20
//	{"bids":[["87350.00","1.2"],...],"asks":[["87351.00","0.8"],...]}
func (c *Client) Depth(ctx context.Context, symbol string) (*domain.OrderBook, error) {
	url := fmt.Sprintf("%s/api/v3/depth?symbol=%s&limit=%d",
		c.cfg.BinanceURL, symbol, c.cfg.DepthLimit)
	body, err := c.doGet(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("market.Depth: %w", err)
	}

	var resp struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err = json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("market.Depth: parse: %w: %v", domain.ErrFeed, err)
	}

	book := &domain.OrderBook{
		Bids: parseLevels(resp.Bids),
		Asks: parseLevels(resp.Asks),
	}
	c.markSuccess()
	return book, nil
}

// FundingRate fetches the perpetual funding rate for a symbol from the
// futures premium index endpoint.
//
//	GET /fapi/v1/premiumIndex?symbol=BTCUSDT
//	{"lastFundingRate":"0.00010000",...}
func (c *Client) FundingRate(ctx context.Context, symbol string) (float64, error) {
	url := fmt.Sprintf("%s/fapi/v1/premiumIndex?symbol=%s", c.cfg.BinanceFuturesURL, symbol)
	body, err := c.doGet(ctx, url)
	if err != nil {
		return 0, fmt.Errorf("market.FundingRate: %w", err)
	}

	var resp struct {
		LastFundingRate string `json:"lastFundingRate"`
	}
	if err = json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("market.FundingRate: parse: %w: %v", domain.ErrFeed, err)
	}
	rate, err := strconv.ParseFloat(resp.LastFundingRate, 64)
	if err != nil {
		return 0, fmt.Errorf("market.FundingRate: float: %w: %v", domain.ErrFeed, err)
	}

	c.markSuccess()
	return rate, nil
}

// Connected reports whether the feed answered successfully within the last
// 5 seconds.  Drives the connectivity indicator.
func (c *Client) Connected() bool {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return !c.lastSuccess.IsZero() && time.Since(c.lastSuccess) < 5*time.Second
}

// ──────────────────────────────────────────────────────────────────────────────
// HTTP helpers
// ──────────────────────────────────────────────────────────────────────────────

// doGet performs an HTTP GET and returns the body bytes, or an ErrFeed-wrapped
// error for any transport failure or non-200 status code.
func (c *Client) doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "optionsim/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFeed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", domain.ErrFeed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrFeed, err)
	}
	return body, nil
}

func (c *Client) markSuccess() {
	c.statusMu.Lock()
	c.lastSuccess = time.Now()
	c.statusMu.Unlock()
}

func parseFloatField(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		// Some fields are plain numbers, not strings.
		var f float64
		if err2 := json.Unmarshal(raw, &f); err2 != nil {
			return 0, err2
		}
		return f, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseLevels(raw [][]string) []domain.BookLevel {
	levels := make([]domain.BookLevel, 0, len(raw))
	for _, l := range raw {
		if len(l) < 2 {
			continue
		}
		price, err1 := strconv.ParseFloat(l[0], 64)
		qty, err2 := strconv.ParseFloat(l[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		levels = append(levels, domain.BookLevel{Price: price, Quantity: qty})
	}
	return levels
}
