package domain

import (
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Prediction
// ──────────────────────────────────────────────────────────────────────────────

// PredictionDirection is the advisory call, lower-case by convention to keep
// it visually distinct from the wager Direction enum.
type PredictionDirection string

const (
	PredictUp   PredictionDirection = "up"
	PredictDown PredictionDirection = "down"
)

// Prediction is the advisor's directional call.  Purely advisory and
// ephemeral — never persisted, never acted on automatically.
type Prediction struct {
	Direction   PredictionDirection `json:"direction"`
	Confidence  int                 `json:"confidence"` // integer percentage 0–100
	Rationale   string              `json:"rationale"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// IndicatorSnapshot
// ──────────────────────────────────────────────────────────────────────────────

// MACDValue bundles the MACD line, signal line, and histogram.
type MACDValue struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// BollingerValue bundles the band levels and the %B location of the last price.
type BollingerValue struct {
	Upper    float64 `json:"upper"`
	Middle   float64 `json:"middle"`
	Lower    float64 `json:"lower"`
	PercentB float64 `json:"percent_b"`
}

// KDJValue bundles the three stochastic lines.
type KDJValue struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
	J float64 `json:"j"`
}

// IndicatorSnapshot is an immutable bundle of computed indicators and market
// context at one point in time, fed to the prediction advisor.  Indicator
// fields are pointers: nil means the price series was too short to compute
// the value.
type IndicatorSnapshot struct {
	Symbol       string    `json:"symbol"`
	Timeframe    string    `json:"timeframe"`
	CurrentPrice float64   `json:"current_price"`
	TakenAt      time.Time `json:"taken_at"`

	SMAShort  *float64        `json:"sma_short,omitempty"` // 5-period
	SMALong   *float64        `json:"sma_long,omitempty"`  // 20-period
	EMA       *float64        `json:"ema,omitempty"`       // 12-period
	RSI       *float64        `json:"rsi,omitempty"`
	MACD      *MACDValue      `json:"macd,omitempty"`
	Bollinger *BollingerValue `json:"bollinger,omitempty"`
	KDJ       *KDJValue       `json:"kdj,omitempty"`
	ATR       *float64        `json:"atr,omitempty"`

	// External collaborator data, best-effort: zero values when unavailable.
	BidPressure float64 `json:"bid_pressure"` // fraction of book volume on bids
	FundingRate float64 `json:"funding_rate"`
}

// ──────────────────────────────────────────────────────────────────────────────
// AdvisorConfig
// ──────────────────────────────────────────────────────────────────────────────

// AdvisorConfig is the user-supplied prediction provider configuration.
// Persisted as its own record, independent of the ledger snapshot.
type AdvisorConfig struct {
	Provider  string `json:"provider"`  // "mock", "openai", "deepseek", "gemini"
	APIKey    string `json:"api_key"`
	Model     string `json:"model"`
	Threshold int    `json:"threshold"` // confidence % below which the UI greys the call
}
