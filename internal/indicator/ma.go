// Package indicator implements the technical-analysis calculators used by the
// prediction advisor.  All functions are pure and stateless: they take an
// ordered price series (oldest first) and report ok=false when the series is
// too short for the requested period — they never extrapolate and never panic.
package indicator

// SMA returns the arithmetic mean of the last period elements.
func SMA(series []float64, period int) (float64, bool) {
	if period <= 0 || len(series) < period {
		return 0, false
	}
	var sum float64
	for _, v := range series[len(series)-period:] {
		sum += v
	}
	return sum / float64(period), true
}

// EMA returns the exponential moving average of the whole series, seeded with
// the first element and smoothed with k = 2/(period+1).
func EMA(series []float64, period int) (float64, bool) {
	if period <= 0 || len(series) < period {
		return 0, false
	}
	k := 2.0 / float64(period+1)
	ema := series[0]
	for _, v := range series[1:] {
		ema = v*k + ema*(1-k)
	}
	return ema, true
}

// MACD returns the MACD line (fast EMA − slow EMA), the signal line, and the
// histogram (macd − signal).
//
// The signal line is deliberately computed as the EMA of the last
// signalPeriod elements of the price series itself, not of the MACD line's
// history.  That matches the behaviour this simulator has always had and is
// part of its contract; callers relying on the textbook definition should
// look elsewhere.
func MACD(series []float64, fastPeriod, slowPeriod, signalPeriod int) (macd, signal, histogram float64, ok bool) {
	if len(series) < slowPeriod || len(series) < signalPeriod {
		return 0, 0, 0, false
	}
	fast, okFast := EMA(series, fastPeriod)
	slow, okSlow := EMA(series, slowPeriod)
	if !okFast || !okSlow {
		return 0, 0, 0, false
	}
	macd = fast - slow
	signal, _ = EMA(series[len(series)-signalPeriod:], signalPeriod)
	return macd, signal, macd - signal, true
}
