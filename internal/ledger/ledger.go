// Package ledger owns the simulated account: balance, open and closed
// positions, order admission, expiry settlement, and statistics.  All state
// lives behind one mutex; the scheduler's loops and the HTTP handlers are the
// only callers.
package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/velora/optionsim/internal/config"
	"github.com/velora/optionsim/internal/domain"
	"github.com/velora/optionsim/internal/store"
)

// ──────────────────────────────────────────────────────────────────────────────
// Interfaces injected into the Ledger to avoid import cycles
// ──────────────────────────────────────────────────────────────────────────────

// Saver is the minimal persistence interface the ledger needs from the store.
type Saver interface {
	SaveLedger(ctx context.Context, rec *store.LedgerRecord) error
	DeleteLedger(ctx context.Context) error
}

// Broadcaster is the minimal interface the ledger needs from the WS hub.
// Implemented by ws.Hub; nil disables broadcasting (tests).
type Broadcaster interface {
	BroadcastCountdown(positionID uuid.UUID, remaining time.Duration)
	BroadcastSettlement(outcome domain.SettlementOutcome, balance decimal.Decimal, stats domain.Statistics)
}

// ──────────────────────────────────────────────────────────────────────────────
// Ledger
// ──────────────────────────────────────────────────────────────────────────────

// Ledger is the single process-wide account state, encapsulated rather than
// global so operations always act through an owning object.
type Ledger struct {
	mu     sync.Mutex
	symbol string

	balance decimal.Decimal
	open    []*domain.Position // admission order
	closed  []*domain.Position // most-recent settlement first

	currentPrice decimal.Decimal // zero until the feed produces a quote

	payoutRate     decimal.Decimal
	minStake       decimal.Decimal
	maxPositions   int
	initialBalance decimal.Decimal

	// Per-position countdown broadcasters, keyed by ID.  Kept out of the
	// Position entity so it stays serializable and handle-free.  Every entry
	// must be cancelled when its position leaves the open set.
	countdowns map[uuid.UUID]context.CancelFunc

	saver       Saver       // nil in tests: persistence disabled
	broadcaster Broadcaster // injected after the WS hub is built
}

// New creates a Ledger with the configured initial balance and trading rules.
func New(cfg *config.Config, saver Saver) *Ledger {
	return &Ledger{
		symbol:         cfg.Trading.Symbol,
		balance:        decimal.NewFromFloat(cfg.Trading.InitialBalance),
		payoutRate:     decimal.NewFromFloat(cfg.Trading.PayoutRate),
		minStake:       decimal.NewFromFloat(cfg.Trading.MinStake),
		maxPositions:   cfg.Trading.MaxPositions,
		initialBalance: decimal.NewFromFloat(cfg.Trading.InitialBalance),
		countdowns:     make(map[uuid.UUID]context.CancelFunc),
		saver:          saver,
	}
}

// SetBroadcaster injects the WS hub dependency post-construction.
func (l *Ledger) SetBroadcaster(b Broadcaster) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.broadcaster = b
}

// Restore loads a persisted snapshot into the ledger and restarts countdown
// broadcasts for every open position.  Expired-while-offline positions are
// left open; the first expiry sweep settles them at the next quote.
func (l *Ledger) Restore(rec *store.LedgerRecord) {
	if rec == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balance = rec.Balance
	l.open = rec.ActivePositions
	l.closed = rec.ClosedPositions
	for _, p := range l.open {
		l.startCountdownLocked(p)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Quote
// ──────────────────────────────────────────────────────────────────────────────

// SetQuote records the latest feed price.  Last write wins: the poll loop may
// overlap itself under network latency and a stale late arrival simply gets
// overwritten on the next tick.
func (l *Ledger) SetQuote(price decimal.Decimal) {
	l.mu.Lock()
	l.currentPrice = price
	l.mu.Unlock()
}

// CurrentPrice returns the last quote, zero before the feed's first answer.
func (l *Ledger) CurrentPrice() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentPrice
}

// ──────────────────────────────────────────────────────────────────────────────
// PlaceOrder — order admission
// ──────────────────────────────────────────────────────────────────────────────

// PlaceOrder admits a new wager.  Preconditions are checked in a fixed order
// and the first failure wins with no partial effects:
//
//  1. open-count < maxPositions        → ErrCapacityExceeded
//  2. stake ≥ minimum stake            → ErrInvalidStake
//  3. stake ≤ balance                  → ErrInsufficientBalance
//  4. feed has produced a quote        → ErrPriceUnavailable
//
// On success the stake is debited, the position enters the open set, its
// countdown broadcast starts, and the snapshot is persisted.
func (l *Ledger) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (*domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.open) >= l.maxPositions {
		return nil, domain.ErrCapacityExceeded
	}
	if req.Amount.LessThan(l.minStake) {
		return nil, domain.ErrInvalidStake
	}
	if req.Amount.GreaterThan(l.balance) {
		return nil, domain.ErrInsufficientBalance
	}
	if !l.currentPrice.IsPositive() {
		return nil, domain.ErrPriceUnavailable
	}

	now := time.Now().UTC()
	l.balance = l.balance.Sub(req.Amount)

	position := &domain.Position{
		ID:         uuid.New(),
		Symbol:     l.symbol,
		Direction:  req.Direction,
		Amount:     req.Amount,
		EntryPrice: l.currentPrice,
		ExpiryTime: now.Add(req.ExpiryOffset),
		Status:     domain.StatusOpen,
		CreatedAt:  now,
	}
	l.open = append(l.open, position)
	l.startCountdownLocked(position)
	l.persistLocked(ctx)

	return position, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// CheckExpiries — settlement sweep
// ──────────────────────────────────────────────────────────────────────────────

// CheckExpiries settles every open position whose expiry has passed, moves it
// to the closed collection, and cancels its countdown.  Each position is
// settled exactly once: settlement removes it from the open set, so a
// re-entrant sweep cannot touch it again.  Returns the outcomes of this tick.
func (l *Ledger) CheckExpiries(ctx context.Context, now time.Time) []domain.SettlementOutcome {
	l.mu.Lock()

	// No quote yet means nothing to settle against.  Positions restored
	// already-expired wait here until the feed's first answer; settling them
	// against a zero close would turn every DOWN wager into a win.
	if !l.currentPrice.IsPositive() {
		l.mu.Unlock()
		return nil
	}

	var outcomes []domain.SettlementOutcome
	remaining := l.open[:0]
	for _, p := range l.open {
		if !p.Expired(now) {
			remaining = append(remaining, p)
			continue
		}
		outcomes = append(outcomes, l.settleLocked(p, now))
	}
	l.open = remaining

	if len(outcomes) > 0 {
		l.persistLocked(ctx)
	}

	balance := l.balance
	stats := domain.ComputeStatistics(l.closed, l.payoutRate)
	broadcaster := l.broadcaster
	l.mu.Unlock()

	if broadcaster != nil {
		for _, o := range outcomes {
			broadcaster.BroadcastSettlement(o, balance, stats)
		}
	}
	return outcomes
}

// settleLocked resolves one expired position against the current quote and
// prepends it to the closed collection.  Ties lose; a WIN credits
// stake × (1 + payoutRate).
func (l *Ledger) settleLocked(p *domain.Position, now time.Time) domain.SettlementOutcome {
	closePrice := l.currentPrice
	result := p.Settle(closePrice, now)

	payout := decimal.Zero
	if result == domain.ResultWin {
		one := decimal.NewFromInt(1)
		payout = p.Amount.Mul(one.Add(l.payoutRate))
		l.balance = l.balance.Add(payout)
	}

	l.closed = append([]*domain.Position{p}, l.closed...)
	l.cancelCountdownLocked(p.ID)

	slog.Info("position settled",
		"id", p.ID, "direction", p.Direction, "result", result,
		"entry", p.EntryPrice, "close", closePrice, "payout", payout)

	return domain.SettlementOutcome{
		Position:   p,
		Result:     result,
		ClosePrice: closePrice,
		Payout:     payout,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────────────────────────

// Balance returns the current simulated balance.
func (l *Ledger) Balance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// OpenPositions returns a copy of the open set in admission order.
func (l *Ledger) OpenPositions() []*domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*domain.Position, len(l.open))
	copy(out, l.open)
	return out
}

// ClosedPositions returns a copy of the closed set, most recent first.
func (l *Ledger) ClosedPositions() []*domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*domain.Position, len(l.closed))
	copy(out, l.closed)
	return out
}

// Statistics aggregates the closed collection.
func (l *Ledger) Statistics() domain.Statistics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.ComputeStatistics(l.closed, l.payoutRate)
}

// PayoutRate returns the configured payout fraction.
func (l *Ledger) PayoutRate() decimal.Decimal {
	return l.payoutRate
}

// ──────────────────────────────────────────────────────────────────────────────
// Reset
// ──────────────────────────────────────────────────────────────────────────────

// Reset restores the initial balance, drops all positions, cancels every
// countdown broadcast, and deletes the persisted record.  Failing to cancel a
// countdown here would leak a recurring task for the process lifetime.
func (l *Ledger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, cancel := range l.countdowns {
		cancel()
		delete(l.countdowns, id)
	}
	l.balance = l.initialBalance
	l.open = nil
	l.closed = nil

	if l.saver == nil {
		return nil
	}
	return l.saver.DeleteLedger(ctx)
}

// ──────────────────────────────────────────────────────────────────────────────
// ImportClosed
// ──────────────────────────────────────────────────────────────────────────────

// ImportClosed appends imported closed positions whose IDs are not already
// present.  Existing positions are never modified; the return value is the
// number of rows actually added.
func (l *Ledger) ImportClosed(ctx context.Context, imported []*domain.Position) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing := make(map[uuid.UUID]struct{}, len(l.closed))
	for _, p := range l.closed {
		existing[p.ID] = struct{}{}
	}

	added := 0
	for _, p := range imported {
		if _, dup := existing[p.ID]; dup {
			continue
		}
		existing[p.ID] = struct{}{}
		l.closed = append(l.closed, p)
		added++
	}

	if added > 0 {
		l.persistLocked(ctx)
	}
	return added
}

// ──────────────────────────────────────────────────────────────────────────────
// Countdown broadcasts
// ──────────────────────────────────────────────────────────────────────────────

// startCountdownLocked launches a per-position 1-second ticker that pushes the
// remaining time to WS clients until the position leaves the open set.
func (l *Ledger) startCountdownLocked(p *domain.Position) {
	ctx, cancel := context.WithCancel(context.Background())
	l.countdowns[p.ID] = cancel

	id := p.ID
	expiry := p.ExpiryTime
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.mu.Lock()
				b := l.broadcaster
				l.mu.Unlock()
				if b == nil {
					continue
				}
				remaining := time.Until(expiry)
				if remaining < 0 {
					remaining = 0
				}
				b.BroadcastCountdown(id, remaining)
			}
		}
	}()
}

// cancelCountdownLocked stops the countdown broadcast for one position.
func (l *Ledger) cancelCountdownLocked(id uuid.UUID) {
	if cancel, ok := l.countdowns[id]; ok {
		cancel()
		delete(l.countdowns, id)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Persistence
// ──────────────────────────────────────────────────────────────────────────────

// persistLocked writes the current snapshot.  Persistence failures are logged
// and swallowed: losing a save never fails the trading operation itself, the
// next mutation retries with fresher state anyway.
func (l *Ledger) persistLocked(ctx context.Context) {
	if l.saver == nil {
		return
	}
	rec := &store.LedgerRecord{
		Balance:         l.balance,
		ActivePositions: append([]*domain.Position(nil), l.open...),
		ClosedPositions: append([]*domain.Position(nil), l.closed...),
	}
	if err := l.saver.SaveLedger(ctx, rec); err != nil {
		slog.Warn("ledger: persist failed", "err", err)
	}
}
