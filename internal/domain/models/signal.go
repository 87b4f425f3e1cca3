package models

import "time"

// QualityTier is the confluence quality ladder.
type QualityTier string

const (
	TierMukemmel QualityTier = "MUKEMMEL"
	TierCokIyi   QualityTier = "COK_IYI"
	TierIyi      QualityTier = "IYI"
	TierOrta     QualityTier = "ORTA"
	TierZayif    QualityTier = "ZAYIF"
)

// tierRank orders tiers from weakest to strongest for threshold comparisons.
var tierRank = map[QualityTier]int{
	TierZayif:    0,
	TierOrta:     1,
	TierIyi:      2,
	TierCokIyi:   3,
	TierMukemmel: 4,
}

// AtLeast reports whether t is the same tier as min or stronger.
func (t QualityTier) AtLeast(min QualityTier) bool {
	return tierRank[t] >= tierRank[min]
}

// Factor is one contributing confluence factor with its awarded points.
type Factor struct {
	Name   string
	Points int
}

// ConfluenceSignal is the scored signal candidate for one instrument at one
// scan. Immutable once emitted; Score always equals the sum of Factors'
// points and is bounded by the configured table maximum.
type ConfluenceSignal struct {
	Instrument string
	Timeframe  string
	Timestamp  time.Time
	Direction  Direction
	Score      int
	Quality    QualityTier
	Factors    []Factor
}

// FactorSum returns the sum of contributing factor points.
func (s ConfluenceSignal) FactorSum() int {
	sum := 0
	for _, f := range s.Factors {
		sum += f.Points
	}
	return sum
}

// RiskPlan is the concrete trade plan attached 1:1 to a ConfluenceSignal at
// creation time. All figures derive from the same volatility snapshot and the
// plan is immutable; re-plans require a new signal.
type RiskPlan struct {
	Entry        float64
	StopLoss     float64
	TakeProfit1  float64
	TakeProfit2  float64
	PositionSize float64 // fraction of account, e.g. 0.066 = 6.6%
	RiskReward   float64 // reward multiple to TP1
	ATR          float64 // volatility snapshot the plan derives from
}

// InitialRisk returns the per-unit risk distance of the plan.
func (p RiskPlan) InitialRisk() float64 {
	d := p.Entry - p.StopLoss
	if d < 0 {
		d = -d
	}
	return d
}

// SignalStatus is the lifecycle state of a persisted signal.
type SignalStatus string

const (
	StatusOpen    SignalStatus = "OPEN"
	StatusHitTP   SignalStatus = "HIT_TP"
	StatusHitSL   SignalStatus = "HIT_SL"
	StatusExpired SignalStatus = "EXPIRED"
)

// PersistedSignal is the append-only store row: signal + plan + outcome.
// Status, PnL and RMultiple are mutated only by the performance tracker as
// new bars arrive; rows are never deleted, only superseded by status
// transitions.
type PersistedSignal struct {
	ConfluenceSignal
	Plan RiskPlan

	Status     SignalStatus
	PnLPercent float64
	RMultiple  float64
	ExitPrice  float64
	ResolvedAt *time.Time
}

// Key identifies a persisted signal row: (instrument, timestamp, direction).
func (s PersistedSignal) Key() string {
	return s.Instrument + "|" + s.Timestamp.UTC().Format(time.RFC3339) + "|" + string(s.Direction)
}

// DailyPerformance aggregates one trading day of resolved signals. It is
// recomputed idempotently from the full signal history for the date.
type DailyPerformance struct {
	Date        time.Time
	Total       int
	Successful  int
	SuccessRate float64 // percent
	TotalR      float64
	TotalPnL    float64 // percent, summed
	BestTradeR  float64
	WorstTradeR float64
	DailyBias   Direction // majority direction of the day's signals
}
