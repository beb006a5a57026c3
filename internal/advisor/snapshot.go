// Package advisor assembles technical-indicator snapshots and turns them into
// directional predictions, either via a configured LLM provider or a local
// mock.  Predictions are purely advisory: nothing in the ledger acts on them.
package advisor

import (
	"context"
	"fmt"
	"time"

	"github.com/velora/optionsim/internal/domain"
	"github.com/velora/optionsim/internal/indicator"
)

// Standard indicator parameters.  These mirror the values the chart UI
// advertises; they are not user-configurable.
const (
	smaShortPeriod  = 5
	smaLongPeriod   = 20
	emaPeriod       = 12
	rsiPeriod       = 14
	macdFastPeriod  = 12
	macdSlowPeriod  = 26
	macdSignal      = 9
	bollingerPeriod = 20
	bollingerWidth  = 2.0
	kdjPeriod       = 9
	atrPeriod       = 14
)

// MarketData is the read-only collaborator the advisor needs from the market
// package.  Declared here so the advisor can be tested against a stub.
type MarketData interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)
	Depth(ctx context.Context, symbol string) (*domain.OrderBook, error)
	FundingRate(ctx context.Context, symbol string) (float64, error)
}

// BuildSnapshot fetches a recent candle series and computes every indicator
// into one immutable snapshot.  Candle data is mandatory; order-book pressure
// and funding rate are best-effort context and default to neutral values when
// their fetches fail.
func (a *Advisor) BuildSnapshot(ctx context.Context, symbol, timeframe string) (*domain.IndicatorSnapshot, error) {
	candles, err := a.market.Klines(ctx, symbol, timeframe, 0)
	if err != nil {
		return nil, fmt.Errorf("advisor.BuildSnapshot: %w", err)
	}

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	snap := &domain.IndicatorSnapshot{
		Symbol:       symbol,
		Timeframe:    timeframe,
		CurrentPrice: closes[len(closes)-1],
		TakenAt:      time.Now().UTC(),
		BidPressure:  0.5,
	}

	if v, ok := indicator.SMA(closes, smaShortPeriod); ok {
		snap.SMAShort = &v
	}
	if v, ok := indicator.SMA(closes, smaLongPeriod); ok {
		snap.SMALong = &v
	}
	if v, ok := indicator.EMA(closes, emaPeriod); ok {
		snap.EMA = &v
	}
	if v, ok := indicator.RSI(closes, rsiPeriod); ok {
		snap.RSI = &v
	}
	if macd, signal, hist, ok := indicator.MACD(closes, macdFastPeriod, macdSlowPeriod, macdSignal); ok {
		snap.MACD = &domain.MACDValue{MACD: macd, Signal: signal, Histogram: hist}
	}
	if upper, middle, lower, pctB, ok := indicator.Bollinger(closes, bollingerPeriod, bollingerWidth); ok {
		snap.Bollinger = &domain.BollingerValue{Upper: upper, Middle: middle, Lower: lower, PercentB: pctB}
	}
	if k, d, j, ok := indicator.KDJ(highs, lows, closes, kdjPeriod); ok {
		snap.KDJ = &domain.KDJValue{K: k, D: d, J: j}
	}
	if v, ok := indicator.ATR(highs, lows, closes, atrPeriod); ok {
		snap.ATR = &v
	}

	if book, err := a.market.Depth(ctx, symbol); err == nil {
		snap.BidPressure = book.BidPressure()
	}
	if rate, err := a.market.FundingRate(ctx, symbol); err == nil {
		snap.FundingRate = rate
	}

	return snap, nil
}
