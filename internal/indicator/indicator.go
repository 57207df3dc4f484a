// Package indicator implements the technical indicators used by the regime
// detector and the strategy engines as pure functions over aligned columns.
//
// Every function returns a slice of the same length as its input. Indices
// before the indicator's warm-up length hold NaN, and callers are expected to
// treat NaN as "no signal" rather than an error. Feeding fewer bars than the
// warm-up length is legal and simply yields all-NaN output.
package indicator

import "math"

// Defined reports whether an indicator value is usable (not NaN).
func Defined(v float64) bool { return !math.IsNaN(v) }

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// Shift returns the values moved forward by n bars, NaN-filled at the front.
// Shift(x, 1)[i] == x[i-1].
func Shift(values []float64, n int) []float64 {
	out := nans(len(values))
	for i := n; i < len(values); i++ {
		out[i] = values[i-n]
	}
	return out
}

// SMA computes the simple moving average over the trailing period.
func SMA(values []float64, period int) []float64 {
	out := nans(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// StdDev computes the population standard deviation over the trailing period.
func StdDev(values []float64, period int) []float64 {
	out := nans(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		window := values[i-period+1 : i+1]
		mean := 0.0
		for _, v := range window {
			mean += v
		}
		mean /= float64(period)
		variance := 0.0
		for _, v := range window {
			d := v - mean
			variance += d * d
		}
		out[i] = math.Sqrt(variance / float64(period))
	}
	return out
}

// BollingerBands returns the lower, middle and upper volatility bands:
// SMA(period) ± stdDev × population standard deviation.
func BollingerBands(closes []float64, period int, stdDev float64) (lower, middle, upper []float64) {
	middle = SMA(closes, period)
	sd := StdDev(closes, period)
	lower = nans(len(closes))
	upper = nans(len(closes))
	for i := range closes {
		if Defined(middle[i]) && Defined(sd[i]) {
			lower[i] = middle[i] - stdDev*sd[i]
			upper[i] = middle[i] + stdDev*sd[i]
		}
	}
	return lower, middle, upper
}

// EMA computes the exponential moving average, seeded with the SMA of the
// first period values.
func EMA(values []float64, period int) []float64 {
	out := nans(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	seed /= float64(period)
	out[period-1] = seed
	alpha := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI computes Wilder's relative strength index in [0,100]. The first
// defined value sits at index period.
func RSI(closes []float64, period int) []float64 {
	out := nans(len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiFromAverages(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}
	return out
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// TrueRange returns the per-bar true range. Index 0 is NaN because it has no
// previous close.
func TrueRange(highs, lows, closes []float64) []float64 {
	out := nans(len(closes))
	for i := 1; i < len(closes); i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// ATR computes Wilder's average true range. The first defined value sits at
// index period (a simple average of the first period true ranges, then
// Wilder smoothing).
func ATR(highs, lows, closes []float64, period int) []float64 {
	out := nans(len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}
	tr := TrueRange(highs, lows, closes)
	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	out[period] = sum / float64(period)
	for i := period + 1; i < len(closes); i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out
}

// ADX computes Wilder's average directional index in [0,100], the
// trend-strength measure behind regime detection. Directional movement and
// true range are Wilder-smoothed into the directional indicators, their
// normalized spread (DX) is Wilder-smoothed again, so the first defined
// value sits at index 2*period-1.
func ADX(highs, lows, closes []float64, period int) []float64 {
	out := nans(len(closes))
	if period <= 0 || len(closes) < 2*period {
		return out
	}

	n := len(closes)
	tr := TrueRange(highs, lows, closes)
	plusDM := nans(n)
	minusDM := nans(n)
	for i := 1; i < n; i++ {
		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]
		plusDM[i], minusDM[i] = 0, 0
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	// Wilder running sums, defined from index period.
	var smTR, smPlus, smMinus float64
	for i := 1; i <= period; i++ {
		smTR += tr[i]
		smPlus += plusDM[i]
		smMinus += minusDM[i]
	}

	dx := nans(n)
	dx[period] = dxValue(smTR, smPlus, smMinus)
	for i := period + 1; i < n; i++ {
		smTR = smTR - smTR/float64(period) + tr[i]
		smPlus = smPlus - smPlus/float64(period) + plusDM[i]
		smMinus = smMinus - smMinus/float64(period) + minusDM[i]
		dx[i] = dxValue(smTR, smPlus, smMinus)
	}

	// ADX: Wilder smoothing of DX, seeded with the average of the first
	// period DX values.
	sum := 0.0
	for i := period; i < 2*period; i++ {
		sum += dx[i]
	}
	out[2*period-1] = sum / float64(period)
	for i := 2 * period; i < n; i++ {
		out[i] = (out[i-1]*float64(period-1) + dx[i]) / float64(period)
	}
	return out
}

func dxValue(smTR, smPlus, smMinus float64) float64 {
	if smTR == 0 {
		return 0
	}
	plusDI := 100 * smPlus / smTR
	minusDI := 100 * smMinus / smTR
	sum := plusDI + minusDI
	if sum == 0 {
		return 0
	}
	return 100 * math.Abs(plusDI-minusDI) / sum
}

// Donchian returns the rolling channel bounds over the trailing period:
// upper = max(high), lower = min(low), both defined from index period-1.
func Donchian(highs, lows []float64, period int) (upper, lower []float64) {
	upper = nans(len(highs))
	lower = nans(len(lows))
	if period <= 0 || len(highs) < period {
		return upper, lower
	}
	for i := period - 1; i < len(highs); i++ {
		hi := highs[i-period+1]
		lo := lows[i-period+1]
		for j := i - period + 2; j <= i; j++ {
			hi = math.Max(hi, highs[j])
			lo = math.Min(lo, lows[j])
		}
		upper[i] = hi
		lower[i] = lo
	}
	return upper, lower
}
