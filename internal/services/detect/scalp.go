package detect

import (
	"math"

	"FinansLab/internal/domain/models"
	domsvc "FinansLab/internal/domain/service"
)

// ScalpConfig tunes the micro-signal thresholds.
type ScalpConfig struct {
	Oversold       float64 // RSI pullback threshold for longs
	Overbought     float64 // RSI pullback threshold for shorts
	CrossWithin    int     // bars in which a threshold/signal cross counts
	NearEMAPct     float64 // "price near shortest EMA" tolerance, percent
	ShortestPeriod int     // shortest configured EMA period
}

// ScalpScanner detects the RSI-pullback / MACD-crossover setup. Stateless:
// everything derives from the current snapshot, so disagreement with bias
// simply yields a zero score, never a negative one.
type ScalpScanner struct {
	cfg ScalpConfig
}

func NewScalpScanner(cfg ScalpConfig) *ScalpScanner {
	return &ScalpScanner{cfg: cfg}
}

func (s *ScalpScanner) Detect(snap *models.IndicatorSnapshot, bars []models.Bar, bias models.BiasResult) models.ScalpSetup {
	setup := models.ScalpSetup{Direction: bias.Direction}
	if bias.Direction == models.Neutral || len(bars) == 0 {
		return setup
	}

	score := 0

	rsiFired := s.rsiPullback(snap.RSISeries, bias.Direction)
	if rsiFired {
		score++
		setup.Trigger = models.TriggerRSIPullback
	}

	// A crossover against bias cannot contribute points.
	if s.macdCross(snap.MACDSeries, snap.SigSeries, bias.Direction) {
		score++
		if !rsiFired {
			setup.Trigger = models.TriggerMACDCross
		}
	}

	// Pullbacks to the shortest EMA are the cleanest scalp entries.
	price := bars[len(bars)-1].Close
	if ema := snap.EMA[s.cfg.ShortestPeriod]; ema > 0 && price > 0 {
		if math.Abs(price-ema)/price*100 < s.cfg.NearEMAPct {
			score++
		}
	}

	if score > 2 {
		score = 2
	}
	setup.QualityScore = score
	return setup
}

// rsiPullback reports whether RSI crossed back through its threshold in the
// configured recent window: up through oversold for longs, down through
// overbought for shorts.
func (s *ScalpScanner) rsiPullback(rsi []float64, dir models.Direction) bool {
	n := s.cfg.CrossWithin
	for i := len(rsi) - 1; i >= 1 && i >= len(rsi)-n; i-- {
		if dir == models.Long && rsi[i-1] < s.cfg.Oversold && rsi[i] >= s.cfg.Oversold {
			return true
		}
		if dir == models.Short && rsi[i-1] > s.cfg.Overbought && rsi[i] <= s.cfg.Overbought {
			return true
		}
	}
	return false
}

// macdCross reports a recent signal-line crossover aligned with dir.
func (s *ScalpScanner) macdCross(macd, sig []float64, dir models.Direction) bool {
	if len(macd) != len(sig) {
		return false
	}
	n := s.cfg.CrossWithin
	for i := len(macd) - 1; i >= 1 && i >= len(macd)-n; i-- {
		if dir == models.Long && macd[i-1] <= sig[i-1] && macd[i] > sig[i] {
			return true
		}
		if dir == models.Short && macd[i-1] >= sig[i-1] && macd[i] < sig[i] {
			return true
		}
	}
	return false
}

var _ domsvc.ScalpDetector = (*ScalpScanner)(nil)
