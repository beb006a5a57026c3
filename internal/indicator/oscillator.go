package indicator

// RSI returns the Relative Strength Index over the last period deltas.
// Requires period+1 samples.  Reports ok=false when the average loss over the
// window is zero, since RS would divide by zero; callers treat that as
// "no value" rather than clamping to 100.
func RSI(series []float64, period int) (float64, bool) {
	if period <= 0 || len(series) < period+1 {
		return 0, false
	}
	var gains, losses float64
	for i := len(series) - period; i < len(series); i++ {
		change := series[i] - series[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 0, false
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// KDJ returns the stochastic K, D, and J lines over rolling windows of the
// given period.  K and D are seeded at 50 and smoothed iteratively:
//
//	K = 2/3·K_prev + 1/3·RSV
//	D = 2/3·D_prev + 1/3·K
//	J = 3·K − 2·D
//
// A window whose high equals its low yields a neutral RSV of 50.
// highs, lows, and closes must be the same length.
func KDJ(highs, lows, closes []float64, period int) (k, d, j float64, ok bool) {
	n := len(closes)
	if period <= 0 || n < period || len(highs) != n || len(lows) != n {
		return 0, 0, 0, false
	}

	k, d = 50, 50
	for i := period - 1; i < n; i++ {
		highest := highs[i-period+1]
		lowest := lows[i-period+1]
		for _, h := range highs[i-period+2 : i+1] {
			if h > highest {
				highest = h
			}
		}
		for _, l := range lows[i-period+2 : i+1] {
			if l < lowest {
				lowest = l
			}
		}

		rsv := 50.0
		if highest != lowest {
			rsv = (closes[i] - lowest) / (highest - lowest) * 100
		}
		k = k*2/3 + rsv/3
		d = d*2/3 + k/3
	}
	return k, d, 3*k - 2*d, true
}
