// Package ws holds WebSocket message types and the Hub implementation.
// messages.go defines all message structs broadcast to connected clients.
package ws

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/velora/optionsim/internal/domain"
)

// MsgType identifies the kind of WS message so clients can switch on it.
type MsgType string

const (
	MsgTypePriceUpdate       MsgType = "price_update"
	MsgTypeOrderPlaced       MsgType = "order_placed"
	MsgTypePositionCountdown MsgType = "position_countdown"
	MsgTypePositionSettled   MsgType = "position_settled"
	MsgTypeError             MsgType = "error"
)

// ──────────────────────────────────────────────────────────────────────────────
// PriceUpdateMessage — sent on every successful feed poll.
// ──────────────────────────────────────────────────────────────────────────────

// PriceUpdateMessage carries the live price and the change against the
// previous broadcast tick.
type PriceUpdateMessage struct {
	Type      MsgType         `json:"type"`
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Diff      decimal.Decimal `json:"diff"`     // price − previous price
	DiffPct   decimal.Decimal `json:"diff_pct"` // diff/previous × 100
	Connected bool            `json:"connected"`
	Timestamp time.Time       `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// OrderPlacedMessage — broadcast after an order is accepted.
// ──────────────────────────────────────────────────────────────────────────────

// OrderPlacedMessage notifies clients that a new position is open and
// carries the remaining balance after the stake was debited.
type OrderPlacedMessage struct {
	Type       MsgType          `json:"type"`
	PositionID uuid.UUID        `json:"position_id"`
	Direction  domain.Direction `json:"direction"`
	Amount     decimal.Decimal  `json:"amount"`
	EntryPrice decimal.Decimal  `json:"entry_price"`
	ExpiryTime time.Time        `json:"expiry_time"`
	Balance    decimal.Decimal  `json:"balance"`
	Timestamp  time.Time        `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// PositionCountdownMessage — per-position ticker, sent once per second.
// ──────────────────────────────────────────────────────────────────────────────

// PositionCountdownMessage carries the seconds left until one open
// position expires.
type PositionCountdownMessage struct {
	Type            MsgType   `json:"type"`
	PositionID      uuid.UUID `json:"position_id"`
	TimeLeftSeconds int64     `json:"time_left_seconds"`
	Timestamp       time.Time `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// PositionSettledMessage — broadcast when a position expires and settles.
// ──────────────────────────────────────────────────────────────────────────────

// PositionSettledMessage tells clients how a position resolved and what
// the account looks like afterwards.
type PositionSettledMessage struct {
	Type       MsgType           `json:"type"`
	PositionID uuid.UUID         `json:"position_id"`
	Direction  domain.Direction  `json:"direction"`
	Result     domain.Result     `json:"result"`
	EntryPrice decimal.Decimal   `json:"entry_price"`
	ClosePrice decimal.Decimal   `json:"close_price"`
	Payout     decimal.Decimal   `json:"payout"`
	Balance    decimal.Decimal   `json:"balance"`
	Stats      domain.Statistics `json:"stats"`
	Timestamp  time.Time         `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// ErrorMessage — sent to a single client on a non-fatal error.
// ──────────────────────────────────────────────────────────────────────────────

// ErrorMessage is sent directly to one client (not broadcast).
type ErrorMessage struct {
	Type    MsgType `json:"type"`
	Code    string  `json:"code"`
	Message string  `json:"message"`
}
