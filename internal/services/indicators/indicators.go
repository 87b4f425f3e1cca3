package indicators

import (
	"fmt"
	"math"

	"FinansLab/internal/domain/models"
)

// Config holds indicator periods. Values come from pkg/config; zero values
// are rejected there, so callers can assume the config is sane.
type Config struct {
	EMAPeriods      []int // ascending, e.g. 45, 89, 144, 200, 276
	RSIPeriod       int
	MACDFast        int
	MACDSlow        int
	MACDSignal      int
	ATRPeriod       int
	BollingerPeriod int
}

// MaxLookback returns the minimum bar count required for a full snapshot.
// The longest EMA dominates every other lookback in practice.
func (c Config) MaxLookback() int {
	max := c.MACDSlow + c.MACDSignal
	for _, p := range c.EMAPeriods {
		if p > max {
			max = p
		}
	}
	for _, p := range []int{c.RSIPeriod + 1, c.ATRPeriod + 1, c.BollingerPeriod} {
		if p > max {
			max = p
		}
	}
	return max
}

// Compute derives a full IndicatorSnapshot from an ordered bar window.
// It fails with models.ErrInsufficientData when the window is shorter than
// the longest lookback; computing on a truncated window would silently bias
// the longest EMA, so callers must skip the instrument for the cycle instead.
func Compute(instrument string, bars []models.Bar, cfg Config) (*models.IndicatorSnapshot, error) {
	need := cfg.MaxLookback()
	if len(bars) < need {
		return nil, fmt.Errorf("%s: have %d bars, need %d: %w", instrument, len(bars), need, models.ErrInsufficientData)
	}

	closes := models.Closes(bars)

	snap := &models.IndicatorSnapshot{
		Instrument: instrument,
		Timestamp:  bars[len(bars)-1].Timestamp,
		EMA:        make(map[int]float64, len(cfg.EMAPeriods)),
	}

	for i, p := range cfg.EMAPeriods {
		series := EMASeries(closes, p)
		snap.EMA[p] = series[len(series)-1]
		if i == 0 {
			snap.EMAShortSeries = series
		}
	}

	snap.RSISeries = RSISeries(closes, cfg.RSIPeriod)
	snap.RSI = last(snap.RSISeries)

	macd, sig := MACDSeries(closes, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	snap.MACDSeries = macd
	snap.SigSeries = sig
	snap.MACDLine = last(macd)
	snap.MACDSignal = last(sig)
	snap.MACDHist = snap.MACDLine - snap.MACDSignal

	snap.ATR = ATR(bars, cfg.ATRPeriod)
	snap.Bollinger = Bollinger(closes, cfg.BollingerPeriod)

	return snap, nil
}

// EMASeries computes an exponential moving average series. The first period-1
// entries are zero; the value at index period-1 is seeded with the SMA of the
// first period values and smoothed forward from there.
func EMASeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) < period || period <= 0 {
		return out
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	ema := sum / float64(period)
	out[period-1] = ema

	k := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		ema = (values[i]-ema)*k + ema
		out[i] = ema
	}
	return out
}

// RSISeries computes the relative strength index with Wilder's smoothing.
// The returned slice holds one value per bar from index period onward.
func RSISeries(closes []float64, period int) []float64 {
	if len(closes) < period+1 || period <= 0 {
		return nil
	}

	avgGain := 0.0
	avgLoss := 0.0
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	out := make([]float64, 0, len(closes)-period)
	out = append(out, rsiFrom(avgGain, avgLoss))

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out = append(out, rsiFrom(avgGain, avgLoss))
	}
	return out
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACDSeries computes the MACD line and its signal line. Both slices are
// aligned: index i of each covers the same bar, starting at the first bar
// where the slow EMA is defined.
func MACDSeries(closes []float64, fast, slow, signal int) (macd, sig []float64) {
	if len(closes) < slow+signal || fast <= 0 || slow <= fast {
		return nil, nil
	}

	fastSeries := EMASeries(closes, fast)
	slowSeries := EMASeries(closes, slow)

	macd = make([]float64, 0, len(closes)-slow+1)
	for i := slow - 1; i < len(closes); i++ {
		macd = append(macd, fastSeries[i]-slowSeries[i])
	}

	sigFull := EMASeries(macd, signal)
	// entries before the signal seed are zero; drop them from both series
	// so the caller sees aligned, fully-defined values
	off := signal - 1
	return macd[off:], sigFull[off:]
}

// ATR computes the average true range over the trailing period (simple mean
// of true ranges, matching the rolling-window definition).
func ATR(bars []models.Bar, period int) float64 {
	if len(bars) < period+1 || period <= 0 {
		return 0
	}

	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		hl := bars[i].High - bars[i].Low
		hc := math.Abs(bars[i].High - bars[i-1].Close)
		lc := math.Abs(bars[i].Low - bars[i-1].Close)
		sum += math.Max(hl, math.Max(hc, lc))
	}
	return sum / float64(period)
}

// Bollinger computes the 2-sigma bands around the period SMA using the
// sample standard deviation.
func Bollinger(closes []float64, period int) models.BollingerBands {
	if len(closes) < period || period <= 1 {
		return models.BollingerBands{}
	}

	window := closes[len(closes)-period:]
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(period)

	var sq float64
	for _, v := range window {
		d := v - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(period-1))

	return models.BollingerBands{
		Upper:  mean + 2*std,
		Middle: mean,
		Lower:  mean - 2*std,
	}
}

func last(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return xs[len(xs)-1]
}
