package domain

import (
	"errors"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors — compare with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

// Admission errors — an order rejected at one of these gates leaves the ledger
// completely untouched.
var (
	// ErrCapacityExceeded is returned when the open-position count has reached
	// the configured maximum.
	ErrCapacityExceeded = errors.New("maximum number of open positions reached")

	// ErrInvalidStake is returned when the stake is not a finite positive
	// number at or above the configured minimum.
	ErrInvalidStake = errors.New("stake is below the minimum or not a valid amount")

	// ErrInsufficientBalance is returned when the stake exceeds the current
	// simulated balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrPriceUnavailable is returned when the feed has not yet produced a
	// quote for the active symbol.
	ErrPriceUnavailable = errors.New("current price unavailable")
)

// Feed and advisor errors
var (
	// ErrFeed is returned on a network or parse failure against the market
	// data feed.  The scheduler recovers by retrying on the next tick.
	ErrFeed = errors.New("market feed request failed")

	// ErrProvider is returned when a prediction provider request fails or the
	// configured provider is not supported.  Never retried.
	ErrProvider = errors.New("prediction provider request failed")
)

// Import errors
var (
	// ErrImportFormat is returned when an uploaded file cannot be read as a
	// spreadsheet at all.  Individually malformed rows are skipped instead.
	ErrImportFormat = errors.New("import file is not a readable spreadsheet")
)

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

// admissionErrors collects the order-admission sentinels so IsAdmissionError
// can stay in sync automatically.
var admissionErrors = []error{
	ErrCapacityExceeded,
	ErrInvalidStake,
	ErrInsufficientBalance,
	ErrPriceUnavailable,
}

// IsAdmissionError returns true when err (or any error in its chain) is one of
// the order-admission rejections.  Admission errors map to HTTP 4xx and a
// user-facing notification; they never indicate server fault.
func IsAdmissionError(err error) bool {
	for _, target := range admissionErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
