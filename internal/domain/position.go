// Package domain defines the core business entities and types for the
// binary-options trading simulator.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// Direction represents the side of a wager.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// IsValid returns true if the direction is a recognised side.
func (d Direction) IsValid() bool {
	return d == DirectionUp || d == DirectionDown
}

// PositionStatus represents the lifecycle state of a position.
// The transition is monotonic: OPEN → CLOSED, never reversed.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "OPEN"
	StatusClosed PositionStatus = "CLOSED"
)

// Result is the settlement outcome of a closed position.
type Result string

const (
	ResultWin  Result = "WIN"
	ResultLose Result = "LOSE"
)

// ──────────────────────────────────────────────────────────────────────────────
// Position
// ──────────────────────────────────────────────────────────────────────────────

// Position represents a single simulated up/down wager.  The stake is debited
// at admission; settlement at expiry either credits stake × (1 + payoutRate)
// on a WIN or forfeits the stake on a LOSE.
//
// A Position carries no timer handles and is safe to serialize as-is; the
// countdown broadcast concern lives in the ledger, keyed by ID.
type Position struct {
	ID         uuid.UUID       `json:"id"`
	Symbol     string          `json:"symbol"`
	Direction  Direction       `json:"direction"`
	Amount     decimal.Decimal `json:"amount"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExpiryTime time.Time       `json:"expiry_time"`
	Status     PositionStatus  `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`

	// Populated only once the position is CLOSED.
	Result     Result           `json:"result,omitempty"`
	ClosePrice *decimal.Decimal `json:"close_price,omitempty"`
	SettledAt  *time.Time       `json:"settled_at,omitempty"`
}

// IsOpen returns true while the position awaits settlement.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// Expired reports whether the position's expiry has passed at the given time.
func (p *Position) Expired(now time.Time) bool {
	return !p.ExpiryTime.After(now)
}

// TimeLeft returns the duration remaining until expiry, floored at zero.
func (p *Position) TimeLeft(now time.Time) time.Duration {
	remaining := p.ExpiryTime.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Settle resolves the position against the given close price.
//
// The rule is deterministic: WIN iff (UP and close > entry) or (DOWN and
// close < entry).  Exact equality is a LOSE for both directions — that is a
// fixed policy of the simulator, not an oversight.
func (p *Position) Settle(closePrice decimal.Decimal, now time.Time) Result {
	result := ResultLose
	switch p.Direction {
	case DirectionUp:
		if closePrice.GreaterThan(p.EntryPrice) {
			result = ResultWin
		}
	case DirectionDown:
		if closePrice.LessThan(p.EntryPrice) {
			result = ResultWin
		}
	}

	priceCopy := closePrice
	settledCopy := now
	p.Status = StatusClosed
	p.Result = result
	p.ClosePrice = &priceCopy
	p.SettledAt = &settledCopy
	return result
}

// Pnl returns the signed profit/loss of a closed position: +stake × payoutRate
// on a WIN, −stake on a LOSE.  Returns decimal.Zero for open positions.
func (p *Position) Pnl(payoutRate decimal.Decimal) decimal.Decimal {
	if p.Status != StatusClosed {
		return decimal.Zero
	}
	if p.Result == ResultWin {
		return p.Amount.Mul(payoutRate)
	}
	return p.Amount.Neg()
}

// ──────────────────────────────────────────────────────────────────────────────
// SettlementOutcome
// ──────────────────────────────────────────────────────────────────────────────

// SettlementOutcome is returned by the expiry sweep for each position settled
// on that tick, so callers can refresh statistics and notify clients.
type SettlementOutcome struct {
	Position   *Position       `json:"position"`
	Result     Result          `json:"result"`
	ClosePrice decimal.Decimal `json:"close_price"`
	Payout     decimal.Decimal `json:"payout"` // credited amount; zero on LOSE
}

// ──────────────────────────────────────────────────────────────────────────────
// Statistics
// ──────────────────────────────────────────────────────────────────────────────

// Statistics is a pure aggregate over the closed-position collection.
type Statistics struct {
	TotalTrades int             `json:"total_trades"`
	Wins        int             `json:"wins"`
	Losses      int             `json:"losses"`
	WinRate     float64         `json:"win_rate"` // percentage; 0 when no trades
	NetPnl      decimal.Decimal `json:"net_pnl"`
}

// ComputeStatistics derives trade statistics from the closed positions.
// winRate is 0 (not NaN) when the collection is empty.
func ComputeStatistics(closed []*Position, payoutRate decimal.Decimal) Statistics {
	stats := Statistics{NetPnl: decimal.Zero}
	for _, p := range closed {
		stats.TotalTrades++
		if p.Result == ResultWin {
			stats.Wins++
			stats.NetPnl = stats.NetPnl.Add(p.Amount.Mul(payoutRate))
		} else {
			stats.Losses++
			stats.NetPnl = stats.NetPnl.Sub(p.Amount)
		}
	}
	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.TotalTrades) * 100
	}
	return stats
}

// ──────────────────────────────────────────────────────────────────────────────
// PlaceOrderRequest — value object used by the ledger
// ──────────────────────────────────────────────────────────────────────────────

// PlaceOrderRequest carries the validated inputs for admitting an order.
type PlaceOrderRequest struct {
	Direction    Direction
	Amount       decimal.Decimal
	ExpiryOffset time.Duration
}
