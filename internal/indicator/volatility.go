package indicator

import "math"

// Bollinger returns the Bollinger Bands over the last period elements with
// width multiplier k, plus %B — where the last price sits inside the band
// (0 at the lower band, 1 at the upper).  The standard deviation is the
// population deviation of the window.  When the window is flat (zero
// deviation) %B is 0.5 because the price is exactly on the collapsed band.
func Bollinger(series []float64, period int, k float64) (upper, middle, lower, percentB float64, ok bool) {
	if period <= 0 || len(series) < period {
		return 0, 0, 0, 0, false
	}
	middle, _ = SMA(series, period)

	var variance float64
	window := series[len(series)-period:]
	for _, v := range window {
		diff := v - middle
		variance += diff * diff
	}
	stddev := math.Sqrt(variance / float64(period))

	upper = middle + k*stddev
	lower = middle - k*stddev

	percentB = 0.5
	if stddev != 0 {
		last := series[len(series)-1]
		percentB = (last - lower) / (2 * k * stddev)
	}
	return upper, middle, lower, percentB, true
}

// ATR returns the Average True Range: the arithmetic mean of the true range
// over the last period bars.  True range of bar i is the largest of
// high−low, |high−prevClose|, and |low−prevClose|, so period+1 bars are
// required.  highs, lows, and closes must be the same length.
func ATR(highs, lows, closes []float64, period int) (float64, bool) {
	n := len(closes)
	if period <= 0 || n < period+1 || len(highs) != n || len(lows) != n {
		return 0, false
	}
	var sum float64
	for i := n - period; i < n; i++ {
		tr := highs[i] - lows[i]
		if hc := math.Abs(highs[i] - closes[i-1]); hc > tr {
			tr = hc
		}
		if lc := math.Abs(lows[i] - closes[i-1]); lc > tr {
			tr = lc
		}
		sum += tr
	}
	return sum / float64(period), true
}
