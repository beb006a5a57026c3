package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Market data read models
// ──────────────────────────────────────────────────────────────────────────────

// Candle is a single OHLC bar from the exchange kline endpoint.
// Values are float64 because the indicator library operates on float series;
// money amounts elsewhere stay decimal.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Quote is one price reading for a symbol.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// OrderBook holds the top levels of the exchange order book.
type OrderBook struct {
	Bids []BookLevel `json:"bids"`
	Asks []BookLevel `json:"asks"`
}

// BookLevel is a single price level with its resting quantity.
type BookLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// BidPressure returns the fraction of visible volume resting on the bid side,
// in [0,1].  Returns 0.5 when the book is empty (no information either way).
func (ob *OrderBook) BidPressure() float64 {
	var bidVol, askVol float64
	for _, l := range ob.Bids {
		bidVol += l.Quantity
	}
	for _, l := range ob.Asks {
		askVol += l.Quantity
	}
	total := bidVol + askVol
	if total == 0 {
		return 0.5
	}
	return bidVol / total
}
