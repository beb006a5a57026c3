// Package scheduler manages the three background goroutines that drive the
// simulator:
//  1. pricePollLoop   – polls the live price and feeds it to the ledger.
//  2. chartRefreshLoop – refreshes the cached kline window for chart reads.
//  3. expirySweepLoop  – settles positions whose expiry time has passed.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/velora/optionsim/internal/config"
	"github.com/velora/optionsim/internal/domain"
	"github.com/velora/optionsim/internal/market"
	"github.com/velora/optionsim/internal/ws"
)

// ──────────────────────────────────────────────────────────────────────────────
// Dependency interfaces — declared here to avoid import cycles
// ──────────────────────────────────────────────────────────────────────────────

// PriceFeed defines the market data operations the scheduler needs.
type PriceFeed interface {
	TickerPrice(ctx context.Context, symbol string) (domain.Quote, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)
	Connected() bool
}

// Ledger defines the position book operations the scheduler drives.
type Ledger interface {
	SetQuote(price decimal.Decimal)
	CheckExpiries(ctx context.Context, now time.Time) []domain.SettlementOutcome
}

// WsHub defines the broadcast operations the Scheduler needs from the
// WebSocket hub.
type WsHub interface {
	BroadcastPriceUpdate(msg ws.PriceUpdateMessage)
}

// ──────────────────────────────────────────────────────────────────────────────
// Scheduler
// ──────────────────────────────────────────────────────────────────────────────

// Scheduler runs the background loops.  Call Start(ctx) once from main();
// cancel the context to shut it down gracefully.
type Scheduler struct {
	feed   PriceFeed
	ledger Ledger
	cache  *market.CandleCache
	hub    WsHub
	cfg    *config.Config
	logger *slog.Logger

	lastPrice decimal.Decimal // previous broadcast tick, poll loop only
}

// New creates a Scheduler.
func New(
	feed PriceFeed,
	ledger Ledger,
	cache *market.CandleCache,
	hub WsHub,
	cfg *config.Config,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		feed:   feed,
		ledger: ledger,
		cache:  cache,
		hub:    hub,
		cfg:    cfg,
		logger: logger,
	}
}

// Start launches the three background goroutines.  It returns immediately;
// all loops run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.pricePollLoop(ctx)
	go s.chartRefreshLoop(ctx)
	go s.expirySweepLoop(ctx)
	s.logger.Info("scheduler started",
		"poll", s.cfg.Scheduler.PricePollInterval,
		"chart", s.cfg.Scheduler.ChartRefreshInterval,
		"sweep", s.cfg.Scheduler.ExpirySweepInterval)
}

// ──────────────────────────────────────────────────────────────────────────────
// pricePollLoop
// ──────────────────────────────────────────────────────────────────────────────

// pricePollLoop fetches the ticker price on every tick, pushes it into the
// ledger so order admission and settlement see a fresh quote, and broadcasts
// a price update to all WS clients.  A failed poll keeps the previous quote;
// the next tick retries.
func (s *Scheduler) pricePollLoop(ctx context.Context) {
	defer s.recoverAndLog("pricePollLoop")

	ticker := time.NewTicker(s.cfg.Scheduler.PricePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("pricePollLoop: shutting down")
			return
		case <-ticker.C:
			s.pollPrice(ctx)
		}
	}
}

// pollPrice is the inner body of pricePollLoop, extracted so that the
// defer/recover in the loop catches panics correctly.
func (s *Scheduler) pollPrice(ctx context.Context) {
	quote, err := s.feed.TickerPrice(ctx, s.cfg.Trading.Symbol)
	if err != nil {
		s.logger.Warn("pricePollLoop: price fetch failed", "err", err)
		if s.hub != nil {
			s.hub.BroadcastPriceUpdate(ws.PriceUpdateMessage{
				Type:      ws.MsgTypePriceUpdate,
				Symbol:    s.cfg.Trading.Symbol,
				Price:     s.lastPrice,
				Connected: false,
				Timestamp: time.Now().UTC(),
			})
		}
		return
	}

	s.ledger.SetQuote(quote.Price)

	var diff, diffPct decimal.Decimal
	if !s.lastPrice.IsZero() {
		diff = quote.Price.Sub(s.lastPrice)
		diffPct = diff.Div(s.lastPrice).Mul(decimal.NewFromInt(100))
	}
	s.lastPrice = quote.Price

	if s.hub != nil {
		s.hub.BroadcastPriceUpdate(ws.PriceUpdateMessage{
			Type:      ws.MsgTypePriceUpdate,
			Symbol:    quote.Symbol,
			Price:     quote.Price,
			Diff:      diff,
			DiffPct:   diffPct,
			Connected: s.feed.Connected(),
			Timestamp: time.Now().UTC(),
		})
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// chartRefreshLoop
// ──────────────────────────────────────────────────────────────────────────────

// chartRefreshLoop refreshes the cached kline window.  It runs once
// immediately so charts have data as soon as the feed is reachable.
func (s *Scheduler) chartRefreshLoop(ctx context.Context) {
	defer s.recoverAndLog("chartRefreshLoop")

	s.refreshChart(ctx)

	ticker := time.NewTicker(s.cfg.Scheduler.ChartRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("chartRefreshLoop: shutting down")
			return
		case <-ticker.C:
			s.refreshChart(ctx)
		}
	}
}

func (s *Scheduler) refreshChart(ctx context.Context) {
	candles, err := s.feed.Klines(ctx, s.cfg.Trading.Symbol, "1m", s.cfg.Feed.KlineLimit)
	if err != nil {
		s.logger.Warn("chartRefreshLoop: kline fetch failed", "err", err)
		return
	}
	s.cache.Set(candles)
}

// ──────────────────────────────────────────────────────────────────────────────
// expirySweepLoop
// ──────────────────────────────────────────────────────────────────────────────

// expirySweepLoop settles expired positions on every tick.  Settlement and
// the WS notifications it triggers happen inside the ledger.
func (s *Scheduler) expirySweepLoop(ctx context.Context) {
	defer s.recoverAndLog("expirySweepLoop")

	ticker := time.NewTicker(s.cfg.Scheduler.ExpirySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expirySweepLoop: shutting down")
			return
		case <-ticker.C:
			outcomes := s.ledger.CheckExpiries(ctx, time.Now().UTC())
			for _, o := range outcomes {
				s.logger.Info("position settled",
					"id", o.Position.ID,
					"direction", o.Position.Direction,
					"result", o.Result,
					"close_price", o.ClosePrice)
			}
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Panic recovery
// ──────────────────────────────────────────────────────────────────────────────

// recoverAndLog is deferred inside each goroutine to catch unexpected panics,
// log them, and allow the scheduler to continue running.
func (s *Scheduler) recoverAndLog(loop string) {
	if r := recover(); r != nil {
		s.logger.Error("PANIC recovered in scheduler loop",
			"loop", loop, "panic", r)
	}
}
