package detect

import (
	"FinansLab/internal/domain/models"
	domsvc "FinansLab/internal/domain/service"
)

// Weighting of the two strength components. Ordering carries more weight
// because it is robust to single-bar noise; distance saturates at 5% away
// from the cluster mean.
const (
	orderingWeight   = 0.6
	distanceWeight   = 0.4
	distanceSatPct   = 5.0
	momentumLookback = 5
)

// EMABias classifies trend direction from the EMA stack. Stateless: every
// call derives the result from the snapshot alone, so it is cheap to
// recompute each cycle without retained state.
type EMABias struct {
	periods []int // ascending
}

func NewEMABias(periods []int) *EMABias {
	return &EMABias{periods: periods}
}

func (b *EMABias) Detect(snap *models.IndicatorSnapshot, bars []models.Bar) models.BiasResult {
	if len(bars) == 0 || len(b.periods) < 2 {
		return models.BiasResult{Direction: models.Neutral}
	}
	price := bars[len(bars)-1].Close

	emas := make([]float64, len(b.periods))
	for i, p := range b.periods {
		emas[i] = snap.EMA[p]
	}

	ascending := 0 // shorter EMA above longer
	descending := 0
	pairs := len(emas) - 1
	for i := 0; i < pairs; i++ {
		if emas[i] > emas[i+1] {
			ascending++
		} else if emas[i] < emas[i+1] {
			descending++
		}
	}

	aboveAll := true
	belowAll := true
	clusterSum := 0.0
	for _, e := range emas {
		clusterSum += e
		if price <= e {
			aboveAll = false
		}
		if price >= e {
			belowAll = false
		}
	}
	clusterMean := clusterSum / float64(len(emas))

	res := models.BiasResult{Direction: models.Neutral}
	switch {
	case aboveAll && ascending == pairs:
		res.Direction = models.Long
		res.EMASequenceOK = true
		res.SequenceScore = 1
	case belowAll && descending == pairs:
		res.Direction = models.Short
		res.EMASequenceOK = true
		res.SequenceScore = 1
	default:
		aligned := ascending
		if descending > ascending {
			aligned = descending
		}
		res.SequenceScore = float64(aligned) / float64(pairs)
	}

	res.Strength = b.strength(price, clusterMean, res.SequenceScore)
	res.Momentum = blendedMomentum(bars, snap.EMAShortSeries)
	return res
}

// strength blends percentage distance from the EMA cluster mean with the
// degree of correct ordering into a 0-100 figure.
func (b *EMABias) strength(price, clusterMean, sequenceScore float64) float64 {
	if clusterMean <= 0 {
		return 0
	}
	distPct := (price - clusterMean) / clusterMean * 100
	if distPct < 0 {
		distPct = -distPct
	}
	distScore := distPct / distanceSatPct * 100
	if distScore > 100 {
		distScore = 100
	}

	s := orderingWeight*sequenceScore*100 + distanceWeight*distScore
	if s > 100 {
		s = 100
	}
	return s
}

// blendedMomentum averages the percent rate of change of the close and of
// the shortest EMA over the momentum lookback. When one series is too
// short to cover the lookback the other stands alone.
func blendedMomentum(bars []models.Bar, emaSeries []float64) float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	price, pok := rateOfChange(closes)
	ema, eok := rateOfChange(emaSeries)
	switch {
	case pok && eok:
		return (price + ema) / 2
	case pok:
		return price
	case eok:
		return ema
	default:
		return 0
	}
}

func rateOfChange(series []float64) (float64, bool) {
	if len(series) < momentumLookback+1 {
		return 0, false
	}
	prev := series[len(series)-1-momentumLookback]
	if prev == 0 {
		return 0, false
	}
	cur := series[len(series)-1]
	return (cur - prev) / prev * 100, true
}

var _ domsvc.BiasDetector = (*EMABias)(nil)
