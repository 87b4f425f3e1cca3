package usecase

import (
	"math"

	"FinansLab/internal/domain/models"
)

// WeightTable maps detector readings onto confluence points. Two revisions
// exist: version 12 has no market alignment factor and a 12 point ceiling,
// version 13 adds the alignment point for a 13 point ceiling.
type WeightTable struct {
	Version int

	BiasStrong      int
	BiasMedium      int
	SequencePerfect int
	SequenceGood    int
	MomentumStrong  int
	MomentumMedium  int
	MarketAlignment int
	FVGStrongPair   int
	FVGPair         int
	ScalpExcellent  int
	ScalpGood       int
	RSICondition    int

	// Strength thresholds for the bias ladder, in percent.
	BiasStrongAt float64
	BiasMediumAt float64

	// Sequence score thresholds in [0,1].
	SequencePerfectAt float64
	SequenceGoodAt    float64

	// Absolute momentum thresholds, percent over the momentum lookback.
	MomentumStrongAt float64
	MomentumMediumAt float64

	// MinStrength gates emission: below it the bias is treated as noise
	// and the instrument scores zero regardless of other factors.
	MinStrength float64

	Max int
}

// DefaultWeights returns the weight table for the given scoring revision.
// Any version other than 12 selects the current 13 point table.
func DefaultWeights(version int) WeightTable {
	w := WeightTable{
		Version:           13,
		BiasStrong:        3,
		BiasMedium:        2,
		SequencePerfect:   2,
		SequenceGood:      1,
		MomentumStrong:    2,
		MomentumMedium:    1,
		MarketAlignment:   1,
		FVGStrongPair:     2,
		FVGPair:           1,
		ScalpExcellent:    2,
		ScalpGood:         1,
		RSICondition:      1,
		BiasStrongAt:      80,
		BiasMediumAt:      60,
		SequencePerfectAt: 0.8,
		SequenceGoodAt:    0.6,
		MomentumStrongAt:  2,
		MomentumMediumAt:  1,
		MinStrength:       40,
		Max:               13,
	}
	if version == 12 {
		w.Version = 12
		w.MarketAlignment = 0
		w.Max = 12
	}
	return w
}

// TierThresholds maps a total score onto a quality tier. Boundaries are
// inclusive lower bounds checked best tier first.
type TierThresholds struct {
	Mukemmel int
	CokIyi   int
	Iyi      int
	Orta     int
}

func DefaultTiers() TierThresholds {
	return TierThresholds{Mukemmel: 9, CokIyi: 7, Iyi: 5, Orta: 3}
}

func (t TierThresholds) Tier(score int) models.QualityTier {
	switch {
	case score >= t.Mukemmel:
		return models.TierMukemmel
	case score >= t.CokIyi:
		return models.TierCokIyi
	case score >= t.Iyi:
		return models.TierIyi
	case score >= t.Orta:
		return models.TierOrta
	default:
		return models.TierZayif
	}
}

// ScorerInput carries one instrument's detector readings into a scoring pass.
type ScorerInput struct {
	Snapshot *models.IndicatorSnapshot
	Bias     models.BiasResult
	FVGs     []models.FVG
	Scalp    models.ScalpSetup

	// MarketBias is the reference instrument's direction for the alignment
	// factor. Neutral disables the factor for this pass.
	MarketBias models.Direction
}

// ConfluenceScorer folds detector outputs into a scored signal candidate.
type ConfluenceScorer struct {
	weights WeightTable
	tiers   TierThresholds
}

func NewConfluenceScorer(weights WeightTable, tiers TierThresholds) *ConfluenceScorer {
	if tiers == (TierThresholds{}) {
		tiers = DefaultTiers()
	}
	return &ConfluenceScorer{weights: weights, tiers: tiers}
}

// Score evaluates one instrument. A nil result means the pass produced no
// candidate: neutral bias or strength below the emission floor.
func (s *ConfluenceScorer) Score(in ScorerInput) *models.ConfluenceSignal {
	if in.Bias.Direction == models.Neutral || in.Bias.Strength < s.weights.MinStrength {
		return nil
	}

	var factors []models.Factor
	add := func(name string, points int) {
		if points > 0 {
			factors = append(factors, models.Factor{Name: name, Points: points})
		}
	}

	switch {
	case in.Bias.Strength >= s.weights.BiasStrongAt:
		add("bias_strength", s.weights.BiasStrong)
	case in.Bias.Strength >= s.weights.BiasMediumAt:
		add("bias_strength", s.weights.BiasMedium)
	}

	switch {
	case in.Bias.EMASequenceOK && in.Bias.SequenceScore > s.weights.SequencePerfectAt:
		add("ema_sequence", s.weights.SequencePerfect)
	case in.Bias.SequenceScore > s.weights.SequenceGoodAt:
		add("ema_sequence", s.weights.SequenceGood)
	}

	absMom := math.Abs(in.Bias.Momentum)
	switch {
	case absMom > s.weights.MomentumStrongAt:
		add("momentum", s.weights.MomentumStrong)
	case absMom > s.weights.MomentumMediumAt:
		add("momentum", s.weights.MomentumMedium)
	}

	if s.weights.MarketAlignment > 0 && in.MarketBias != models.Neutral && in.MarketBias == in.Bias.Direction {
		add("market_alignment", s.weights.MarketAlignment)
	}

	add("fvg", s.fvgPoints(in.Bias.Direction, in.FVGs))

	if in.Scalp.Direction == in.Bias.Direction {
		switch {
		case in.Scalp.QualityScore >= 2:
			add("scalp_setup", s.weights.ScalpExcellent)
		case in.Scalp.QualityScore == 1:
			add("scalp_setup", s.weights.ScalpGood)
		}
	}

	if rsiFavors(in.Bias.Direction, in.Snapshot.RSI) {
		add("rsi_condition", s.weights.RSICondition)
	}

	total := 0
	for _, f := range factors {
		total += f.Points
	}
	if total > s.weights.Max {
		total = s.weights.Max
	}

	return &models.ConfluenceSignal{
		Instrument: in.Snapshot.Instrument,
		Timestamp:  in.Snapshot.Timestamp,
		Direction:  in.Bias.Direction,
		Score:      total,
		Quality:    s.tiers.Tier(total),
		Factors:    factors,
	}
}

// fvgPoints counts unfilled gaps aligned with the bias. Two or more strong
// gaps earn the full weight, two of any strength the reduced one.
func (s *ConfluenceScorer) fvgPoints(dir models.Direction, gaps []models.FVG) int {
	aligned, strong := 0, 0
	for _, g := range gaps {
		if g.Filled || g.Direction != dir {
			continue
		}
		aligned++
		if g.Strength == models.FVGStrong {
			strong++
		}
	}
	switch {
	case strong >= 2:
		return s.weights.FVGStrongPair
	case aligned >= 2:
		return s.weights.FVGPair
	default:
		return 0
	}
}

// rsiFavors reports whether RSI sits in the pullback band for the bias:
// a long wants RSI recovering from the lower half, a short the mirror.
func rsiFavors(dir models.Direction, rsi float64) bool {
	switch dir {
	case models.Long:
		return rsi >= 30 && rsi <= 50
	case models.Short:
		return rsi >= 50 && rsi <= 70
	default:
		return false
	}
}
