package models

import "time"

// BollingerBands holds the 20-period band state.
type BollingerBands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// IndicatorSnapshot carries every derived value one scan cycle needs for an
// instrument. It is owned by the cycle that computed it and recomputed from
// scratch each cycle; nothing mutates it incrementally across cycles.
type IndicatorSnapshot struct {
	Instrument string
	Timestamp  time.Time

	// EMA keyed by period, one entry per configured period.
	EMA map[int]float64

	RSI        float64
	MACDLine   float64
	MACDSignal float64
	MACDHist   float64
	ATR        float64
	Bollinger  BollingerBands

	// Series retained for detectors that look back a few bars.
	RSISeries      []float64
	MACDSeries     []float64
	SigSeries      []float64
	EMAShortSeries []float64 // shortest-period EMA, aligned to the bar window
}

// Direction is the trade direction classification.
type Direction string

const (
	Long    Direction = "LONG"
	Short   Direction = "SHORT"
	Neutral Direction = "NEUTRAL"
)

// Sign returns +1 for LONG, -1 for SHORT, 0 for NEUTRAL.
func (d Direction) Sign() float64 {
	switch d {
	case Long:
		return 1
	case Short:
		return -1
	default:
		return 0
	}
}

// BiasResult is the EMA-stack trend classification. Stateless: derived solely
// from one IndicatorSnapshot plus the current close.
type BiasResult struct {
	Direction     Direction
	Strength      float64 // 0-100
	EMASequenceOK bool
	SequenceScore float64 // 0-1, fraction of adjacent EMA pairs correctly ordered
	Momentum      float64 // combined price/EMA rate of change, percent
}

// FVGStrength classifies a gap width against current ATR.
type FVGStrength string

const (
	FVGNormal FVGStrength = "NORMAL"
	FVGStrong FVGStrength = "STRONG"
)

// FVG is a fair value gap found in a 3-bar pattern. Only age and fill state
// mutate after creation; the price range never does.
type FVG struct {
	Direction Direction // LONG for upward gaps, SHORT for downward
	PriceHigh float64
	PriceLow  float64
	AgeBars   int
	Strength  FVGStrength
	Filled    bool
}

// Width returns the gap size in price units.
func (f FVG) Width() float64 { return f.PriceHigh - f.PriceLow }

// ScalpTrigger names the micro-signal that fired.
type ScalpTrigger string

const (
	TriggerRSIPullback ScalpTrigger = "RSI_PULLBACK"
	TriggerMACDCross   ScalpTrigger = "MACD_CROSS"
)

// ScalpSetup is the RSI-pullback / MACD-crossover micro-signal, recomputed
// per scan. QualityScore is 0-2 and only non-zero when the setup agrees with
// the concurrent bias direction.
type ScalpSetup struct {
	Direction    Direction
	QualityScore int
	Trigger      ScalpTrigger
}
