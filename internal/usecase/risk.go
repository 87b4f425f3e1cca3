package usecase

import (
	"fmt"

	"FinansLab/internal/domain/models"
)

// RiskConfig fixes the ATR based risk geometry. Reproducibility matters
// here: the same entry, ATR and direction must always produce the same plan
// so that outcome reconciliation stays deterministic.
type RiskConfig struct {
	StopATRMult         float64
	RewardMultiples     []float64
	AccountRiskFraction float64
}

func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		StopATRMult:         1.5,
		RewardMultiples:     []float64{1.5, 4.0},
		AccountRiskFraction: 0.01,
	}
}

// RiskPlanner derives stop, targets and position sizing from ATR at
// emission time. It holds no state and is safe for concurrent use.
type RiskPlanner struct {
	cfg RiskConfig
}

func NewRiskPlanner(cfg RiskConfig) *RiskPlanner {
	if cfg.StopATRMult <= 0 {
		cfg.StopATRMult = 1.5
	}
	if len(cfg.RewardMultiples) == 0 {
		cfg.RewardMultiples = []float64{1.5, 4.0}
	}
	if cfg.AccountRiskFraction <= 0 {
		cfg.AccountRiskFraction = 0.01
	}
	return &RiskPlanner{cfg: cfg}
}

// Plan builds the risk plan for a signal at the given entry price.
// ATR must be positive and the direction non-neutral, otherwise the plan
// is rejected with ErrInvalidRiskPlan and nothing is emitted upstream.
func (p *RiskPlanner) Plan(entry, atr float64, dir models.Direction) (*models.RiskPlan, error) {
	if entry <= 0 {
		return nil, fmt.Errorf("entry %.8f: %w", entry, models.ErrInvalidRiskPlan)
	}
	if atr <= 0 {
		return nil, fmt.Errorf("atr %.8f: %w", atr, models.ErrInvalidRiskPlan)
	}
	sign := dir.Sign()
	if sign == 0 {
		return nil, fmt.Errorf("neutral direction: %w", models.ErrInvalidRiskPlan)
	}

	stopDist := atr * p.cfg.StopATRMult
	stop := entry - sign*stopDist
	if stop <= 0 || stopDist >= entry {
		return nil, fmt.Errorf("stop distance %.8f vs entry %.8f: %w", stopDist, entry, models.ErrInvalidRiskPlan)
	}

	tp1 := entry + sign*stopDist*p.cfg.RewardMultiples[0]
	tp2 := tp1
	if len(p.cfg.RewardMultiples) > 1 {
		tp2 = entry + sign*stopDist*p.cfg.RewardMultiples[1]
	}

	return &models.RiskPlan{
		Entry:        entry,
		StopLoss:     stop,
		TakeProfit1:  tp1,
		TakeProfit2:  tp2,
		PositionSize: p.cfg.AccountRiskFraction / (stopDist / entry),
		RiskReward:   p.cfg.RewardMultiples[0],
		ATR:          atr,
	}, nil
}
