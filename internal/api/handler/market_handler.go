package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/velora/optionsim/internal/config"
	"github.com/velora/optionsim/internal/ledger"
	"github.com/velora/optionsim/internal/market"
)

// MarketHandler serves live price and chart data endpoints.
type MarketHandler struct {
	ledger *ledger.Ledger
	feed   *market.Client
	cache  *market.CandleCache
	cfg    *config.Config
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(l *ledger.Ledger, feed *market.Client, cache *market.CandleCache, cfg *config.Config) *MarketHandler {
	return &MarketHandler{ledger: l, feed: feed, cache: cache, cfg: cfg}
}

// GetPrice godoc
// GET /api/market/price
// Returns the quote the ledger currently trades against, plus feed health.
func (h *MarketHandler) GetPrice(c *gin.Context) {
	price := h.ledger.CurrentPrice()
	if !price.IsPositive() {
		respondError(c, http.StatusServiceUnavailable, "ERR_PRICE_UNAVAILABLE", "no price received from the feed yet")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"symbol":    h.cfg.Trading.Symbol,
		"price":     price,
		"connected": h.feed.Connected(),
	})
}

// GetKlines godoc
// GET /api/market/klines?limit=100
// Serves the cached chart window; falls back to a direct feed fetch when the
// cache has not been populated yet.
func (h *MarketHandler) GetKlines(c *gin.Context) {
	limit := h.cfg.Feed.KlineLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			respondError(c, http.StatusBadRequest, "ERR_INVALID_LIMIT", "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	candles, ok := h.cache.Get()
	if !ok {
		var err error
		candles, err = h.feed.Klines(c.Request.Context(), h.cfg.Trading.Symbol, "1m", limit)
		if err != nil {
			respondError(c, http.StatusServiceUnavailable, "ERR_FEED", "chart data unavailable")
			return
		}
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"symbol":     h.cfg.Trading.Symbol,
		"interval":   "1m",
		"candles":    candles,
		"updated_at": h.cache.UpdatedAt(),
	})
}
