package strategy

import "math"

// Indicator series mirror their input length, with math.NaN() in every slot
// where the value is undefined (not enough leading data). Callers must treat
// NaN as "condition not met".

// sma returns the simple moving average series for the given period.
func sma(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	var sum float64
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

// rsi computes Wilder's relative strength index.
func rsi(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period < 1 || len(values) <= period {
		return out
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := values[i] - values[i-1]
		if d >= 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		var g, l float64
		if d >= 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// bollinger returns the upper, middle, and lower band series for the given
// period and standard-deviation multiple.
func bollinger(values []float64, period int, stdDev float64) (upper, middle, lower []float64) {
	n := len(values)
	upper, middle, lower = nanSeries(n), nanSeries(n), nanSeries(n)
	if period <= 1 || n < period {
		return upper, middle, lower
	}
	mid := sma(values, period)
	for i := period - 1; i < n; i++ {
		mean := mid[i]
		var variance float64
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - mean
			variance += d * d
		}
		sd := math.Sqrt(variance / float64(period))
		middle[i] = mean
		upper[i] = mean + stdDev*sd
		lower[i] = mean - stdDev*sd
	}
	return upper, middle, lower
}

// roc returns the percentage rate of change over period steps. NaN inputs
// propagate to NaN outputs.
func roc(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 {
		return out
	}
	for i := period; i < len(values); i++ {
		prev := values[i-period]
		if math.IsNaN(prev) || math.IsNaN(values[i]) || prev == 0 {
			continue
		}
		out[i] = (values[i] - prev) / prev * 100
	}
	return out
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
