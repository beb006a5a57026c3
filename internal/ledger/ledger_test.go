package ledger_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/velora/optionsim/internal/config"
	"github.com/velora/optionsim/internal/domain"
	"github.com/velora/optionsim/internal/ledger"
	"github.com/velora/optionsim/internal/store"
)

// ── Test helpers ──────────────────────────────────────────────────────────────

func testCfg() *config.Config {
	return &config.Config{
		Trading: config.TradingConfig{
			Symbol:         "BTCUSDT",
			InitialBalance: 1000,
			PayoutRate:     0.85,
			MinStake:       5,
			MaxPositions:   5,
		},
	}
}

// newLedger builds an in-memory ledger with a live quote already set.
func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l := ledger.New(testCfg(), nil)
	l.SetQuote(decimal.NewFromFloat(87000))
	return l
}

func placeOrder(t *testing.T, l *ledger.Ledger, amount float64) *domain.Position {
	t.Helper()
	p, err := l.PlaceOrder(context.Background(), domain.PlaceOrderRequest{
		Direction:    domain.DirectionUp,
		Amount:       decimal.NewFromFloat(amount),
		ExpiryOffset: time.Minute,
	})
	if err != nil {
		t.Fatalf("PlaceOrder(%v): %v", amount, err)
	}
	return p
}

// ── Admission ─────────────────────────────────────────────────────────────────

// TestPlaceOrder_DebitsStake verifies the stake leaves the balance at
// admission, not at settlement.
func TestPlaceOrder_DebitsStake(t *testing.T) {
	l := newLedger(t)

	p := placeOrder(t, l, 100)

	want := decimal.NewFromFloat(900)
	if !l.Balance().Equal(want) {
		t.Errorf("balance after order = %s, want %s", l.Balance(), want)
	}
	if !p.EntryPrice.Equal(decimal.NewFromFloat(87000)) {
		t.Errorf("entry price = %s, want the current quote", p.EntryPrice)
	}
	if len(l.OpenPositions()) != 1 {
		t.Errorf("open count = %d, want 1", len(l.OpenPositions()))
	}
}

// TestPlaceOrder_GateOrder confirms the admission checks fire in a fixed
// order: capacity before stake size, stake size before balance, balance
// before quote availability.
func TestPlaceOrder_GateOrder(t *testing.T) {
	// Capacity check comes first even when the stake is also invalid.
	l := newLedger(t)
	for i := 0; i < 5; i++ {
		placeOrder(t, l, 10)
	}
	_, err := l.PlaceOrder(context.Background(), domain.PlaceOrderRequest{
		Direction:    domain.DirectionUp,
		Amount:       decimal.NewFromFloat(1), // below minimum too
		ExpiryOffset: time.Minute,
	})
	if !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Errorf("full book error = %v, want ErrCapacityExceeded", err)
	}

	// Stake-size check precedes the balance check.
	l2 := newLedger(t)
	_, err = l2.PlaceOrder(context.Background(), domain.PlaceOrderRequest{
		Direction:    domain.DirectionUp,
		Amount:       decimal.NewFromFloat(2),
		ExpiryOffset: time.Minute,
	})
	if !errors.Is(err, domain.ErrInvalidStake) {
		t.Errorf("tiny stake error = %v, want ErrInvalidStake", err)
	}

	_, err = l2.PlaceOrder(context.Background(), domain.PlaceOrderRequest{
		Direction:    domain.DirectionUp,
		Amount:       decimal.NewFromFloat(5000),
		ExpiryOffset: time.Minute,
	})
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("oversized stake error = %v, want ErrInsufficientBalance", err)
	}

	// No quote yet → price gate.
	l3 := ledger.New(testCfg(), nil)
	_, err = l3.PlaceOrder(context.Background(), domain.PlaceOrderRequest{
		Direction:    domain.DirectionUp,
		Amount:       decimal.NewFromFloat(10),
		ExpiryOffset: time.Minute,
	})
	if !errors.Is(err, domain.ErrPriceUnavailable) {
		t.Errorf("no-quote error = %v, want ErrPriceUnavailable", err)
	}
}

// TestPlaceOrder_RejectionLeavesBalanceUntouched: a failed admission must
// have no partial effects.
func TestPlaceOrder_RejectionLeavesBalanceUntouched(t *testing.T) {
	l := newLedger(t)
	before := l.Balance()

	if _, err := l.PlaceOrder(context.Background(), domain.PlaceOrderRequest{
		Direction:    domain.DirectionUp,
		Amount:       decimal.NewFromFloat(5000),
		ExpiryOffset: time.Minute,
	}); err == nil {
		t.Fatal("expected rejection of oversized stake")
	}

	if !l.Balance().Equal(before) {
		t.Errorf("balance changed on rejection: %s → %s", before, l.Balance())
	}
	if len(l.OpenPositions()) != 0 {
		t.Error("rejected order must not enter the open set")
	}
}

// ── Settlement ────────────────────────────────────────────────────────────────

// TestCheckExpiries_WinCreditsPayout: a 10-stake WIN at payoutRate 0.85 must
// credit 18.5, leaving the balance 8.5 above where it started.
func TestCheckExpiries_WinCreditsPayout(t *testing.T) {
	l := newLedger(t)
	placeOrder(t, l, 10)

	l.SetQuote(decimal.NewFromFloat(88000)) // above entry → UP wins
	outcomes := l.CheckExpiries(context.Background(), time.Now().UTC().Add(2*time.Minute))

	if len(outcomes) != 1 {
		t.Fatalf("settled %d positions, want 1", len(outcomes))
	}
	o := outcomes[0]
	if o.Result != domain.ResultWin {
		t.Errorf("result = %s, want WIN", o.Result)
	}
	if !o.Payout.Equal(decimal.NewFromFloat(18.5)) {
		t.Errorf("payout = %s, want 18.5", o.Payout)
	}
	want := decimal.NewFromFloat(1008.5) // 1000 − 10 + 18.5
	if !l.Balance().Equal(want) {
		t.Errorf("balance after win = %s, want %s", l.Balance(), want)
	}
}

// TestCheckExpiries_LoseForfeitsStake: no credit on a LOSE.
func TestCheckExpiries_LoseForfeitsStake(t *testing.T) {
	l := newLedger(t)
	placeOrder(t, l, 10)

	l.SetQuote(decimal.NewFromFloat(86000)) // below entry → UP loses
	outcomes := l.CheckExpiries(context.Background(), time.Now().UTC().Add(2*time.Minute))

	if len(outcomes) != 1 || outcomes[0].Result != domain.ResultLose {
		t.Fatalf("outcomes = %+v, want one LOSE", outcomes)
	}
	if !outcomes[0].Payout.IsZero() {
		t.Errorf("lose payout = %s, want 0", outcomes[0].Payout)
	}
	want := decimal.NewFromFloat(990)
	if !l.Balance().Equal(want) {
		t.Errorf("balance after loss = %s, want %s", l.Balance(), want)
	}
}

// TestCheckExpiries_MovesBetweenSets: a settled position leaves the open set
// and appears at the head of the closed set; a second sweep is a no-op.
func TestCheckExpiries_MovesBetweenSets(t *testing.T) {
	l := newLedger(t)
	first := placeOrder(t, l, 10)
	second, err := l.PlaceOrder(context.Background(), domain.PlaceOrderRequest{
		Direction:    domain.DirectionDown,
		Amount:       decimal.NewFromFloat(10),
		ExpiryOffset: time.Hour, // stays open
	})
	if err != nil {
		t.Fatalf("second order: %v", err)
	}

	sweepAt := time.Now().UTC().Add(2 * time.Minute)
	if n := len(l.CheckExpiries(context.Background(), sweepAt)); n != 1 {
		t.Fatalf("first sweep settled %d, want 1", n)
	}

	open := l.OpenPositions()
	if len(open) != 1 || open[0].ID != second.ID {
		t.Errorf("open set = %v, want only the 1-hour position", open)
	}
	closed := l.ClosedPositions()
	if len(closed) != 1 || closed[0].ID != first.ID {
		t.Errorf("closed set = %v, want only the settled position", closed)
	}

	// Idempotent: nothing left to settle at the same instant.
	if n := len(l.CheckExpiries(context.Background(), sweepAt)); n != 0 {
		t.Errorf("second sweep settled %d, want 0", n)
	}
}

// TestCheckExpiries_ClosedMostRecentFirst: later settlements prepend.
func TestCheckExpiries_ClosedMostRecentFirst(t *testing.T) {
	l := newLedger(t)
	a := placeOrder(t, l, 10)
	l.CheckExpiries(context.Background(), time.Now().UTC().Add(2*time.Minute))

	b := placeOrder(t, l, 10)
	l.CheckExpiries(context.Background(), time.Now().UTC().Add(2*time.Minute))

	closed := l.ClosedPositions()
	if len(closed) != 2 {
		t.Fatalf("closed count = %d, want 2", len(closed))
	}
	if closed[0].ID != b.ID || closed[1].ID != a.ID {
		t.Error("closed set should be ordered most recent settlement first")
	}
}

// TestCheckExpiries_WaitsForFirstQuote covers the restart path: a position
// that expired while the process was down stays open until the feed produces
// its first quote.  Settling against a zero close would credit every DOWN
// wager as a win at a price that never existed.
func TestCheckExpiries_WaitsForFirstQuote(t *testing.T) {
	l := ledger.New(testCfg(), nil) // no quote yet

	now := time.Now().UTC()
	expired := &domain.Position{
		ID:         uuid.New(),
		Symbol:     "BTCUSDT",
		Direction:  domain.DirectionDown,
		Amount:     decimal.NewFromInt(100),
		EntryPrice: decimal.NewFromInt(87000),
		Status:     domain.StatusOpen,
		ExpiryTime: now.Add(-time.Minute),
		CreatedAt:  now.Add(-2 * time.Minute),
	}
	l.Restore(&store.LedgerRecord{
		Balance:         decimal.NewFromInt(900),
		ActivePositions: []*domain.Position{expired},
	})

	if outcomes := l.CheckExpiries(context.Background(), now); len(outcomes) != 0 {
		t.Fatalf("sweep before the first quote settled %d positions, want 0", len(outcomes))
	}
	if n := len(l.OpenPositions()); n != 1 {
		t.Fatalf("open count = %d, want the expired position held open", n)
	}
	if !l.Balance().Equal(decimal.NewFromInt(900)) {
		t.Fatalf("balance = %s, want 900 untouched", l.Balance())
	}

	// First quote lands above the entry: the DOWN wager loses for real.
	l.SetQuote(decimal.NewFromInt(88000))
	outcomes := l.CheckExpiries(context.Background(), time.Now().UTC())
	if len(outcomes) != 1 {
		t.Fatalf("settled %d positions after the first quote, want 1", len(outcomes))
	}
	if outcomes[0].Result != domain.ResultLose {
		t.Errorf("result = %s, want LOSE with close above entry", outcomes[0].Result)
	}
	if !outcomes[0].ClosePrice.Equal(decimal.NewFromInt(88000)) {
		t.Errorf("close price = %s, want the first real quote", outcomes[0].ClosePrice)
	}
	if !l.Balance().Equal(decimal.NewFromInt(900)) {
		t.Errorf("balance = %s, want 900 (stake was debited at admission)", l.Balance())
	}
}

// ── Reset ─────────────────────────────────────────────────────────────────────

func TestReset_RestoresInitialState(t *testing.T) {
	l := newLedger(t)
	placeOrder(t, l, 100)
	l.CheckExpiries(context.Background(), time.Now().UTC().Add(2*time.Minute))
	placeOrder(t, l, 50)

	if err := l.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if !l.Balance().Equal(decimal.NewFromFloat(1000)) {
		t.Errorf("balance after reset = %s, want 1000", l.Balance())
	}
	if len(l.OpenPositions()) != 0 || len(l.ClosedPositions()) != 0 {
		t.Error("reset must drop all positions")
	}
	if l.Statistics().TotalTrades != 0 {
		t.Error("reset must clear statistics")
	}
}

// ── Import ────────────────────────────────────────────────────────────────────

func TestImportClosed_DeduplicatesByID(t *testing.T) {
	l := newLedger(t)
	placeOrder(t, l, 10)
	l.SetQuote(decimal.NewFromFloat(88000))
	l.CheckExpiries(context.Background(), time.Now().UTC().Add(2*time.Minute))

	existing := l.ClosedPositions()[0]
	duplicate := &domain.Position{
		ID:         existing.ID, // collides with the settled position
		Symbol:     "BTCUSDT",
		Direction:  domain.DirectionDown,
		Amount:     decimal.NewFromFloat(25),
		EntryPrice: decimal.NewFromFloat(87000),
		Status:     domain.StatusClosed,
		Result:     domain.ResultLose,
	}
	fresh := &domain.Position{
		ID:         uuid.New(),
		Symbol:     "BTCUSDT",
		Direction:  domain.DirectionUp,
		Amount:     decimal.NewFromFloat(10),
		EntryPrice: decimal.NewFromFloat(87000),
		Status:     domain.StatusClosed,
		Result:     domain.ResultWin,
	}

	added := l.ImportClosed(context.Background(), []*domain.Position{duplicate, fresh})
	if added != 1 {
		t.Errorf("imported %d rows, want 1 (duplicate skipped)", added)
	}
	if len(l.ClosedPositions()) != 2 {
		t.Errorf("closed count = %d, want 2", len(l.ClosedPositions()))
	}
	// The colliding row must not overwrite the settled position.
	for _, p := range l.ClosedPositions() {
		if p.ID == existing.ID && p.Direction != existing.Direction {
			t.Error("import overwrote an existing position")
		}
	}

	// Imported rows never touch the balance.
	if !l.Balance().Equal(decimal.NewFromFloat(1008.5)) {
		t.Errorf("balance after import = %s, want 1008.5", l.Balance())
	}
}

// ── Concurrency ───────────────────────────────────────────────────────────────

// TestConcurrentPlaceOrder fires 50 goroutines at a book with room for 5.
// Exactly 5 must be admitted and the balance must reflect exactly 5 stakes.
// Run with -race to exercise the mutex guard.
func TestConcurrentPlaceOrder(t *testing.T) {
	const workers = 50

	l := newLedger(t)

	var admitted, rejected int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.PlaceOrder(context.Background(), domain.PlaceOrderRequest{
				Direction:    domain.DirectionUp,
				Amount:       decimal.NewFromFloat(10),
				ExpiryOffset: time.Minute,
			})
			if err != nil {
				atomic.AddInt64(&rejected, 1)
				return
			}
			atomic.AddInt64(&admitted, 1)
		}()
	}
	wg.Wait()

	if admitted != 5 {
		t.Errorf("admitted = %d, want exactly maxPositions (5)", admitted)
	}
	if rejected != workers-5 {
		t.Errorf("rejected = %d, want %d", rejected, workers-5)
	}
	want := decimal.NewFromFloat(950) // 1000 − 5 × 10
	if !l.Balance().Equal(want) {
		t.Errorf("balance = %s, want %s", l.Balance(), want)
	}
}

// TestConcurrentQuoteAndSweep interleaves quote writes with expiry sweeps to
// confirm the last-write-wins quote policy holds under -race.
func TestConcurrentQuoteAndSweep(t *testing.T) {
	l := newLedger(t)
	placeOrder(t, l, 10)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			l.SetQuote(decimal.NewFromInt(int64(87000 + n)))
		}(i)
		go func() {
			defer wg.Done()
			l.CheckExpiries(context.Background(), time.Now().UTC().Add(2*time.Minute))
		}()
	}
	wg.Wait()

	if total := len(l.OpenPositions()) + len(l.ClosedPositions()); total != 1 {
		t.Errorf("position count after racing sweeps = %d, want 1", total)
	}
	if len(l.ClosedPositions()) != 1 {
		t.Error("expired position should have settled exactly once")
	}
}
