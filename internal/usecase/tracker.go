package usecase

import (
	"context"
	"fmt"
	"time"

	"FinansLab/internal/domain/models"
	domrepo "FinansLab/internal/domain/repository"
	"FinansLab/pkg/logger"
)

// TrackerConfig controls outcome reconciliation for open signals.
type TrackerConfig struct {
	// MaxAge is how long a signal may stay open before it is expired at
	// the current price.
	MaxAge time.Duration
}

func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{MaxAge: 48 * time.Hour}
}

// OutcomeTracker resolves open signals against new bars and live ticks and
// maintains the daily aggregates. Bars are authoritative: when a bar spans
// both the stop and a target, the stop wins. Tick resolution is best effort
// between scans and uses the same store transitions.
type OutcomeTracker struct {
	cfg     TrackerConfig
	store   domrepo.SignalStore
	pub     domrepo.SignalPublisher
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewOutcomeTracker(cfg TrackerConfig, store domrepo.SignalStore, pub domrepo.SignalPublisher, m domrepo.Metrics, log *logger.Logger) *OutcomeTracker {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 48 * time.Hour
	}
	return &OutcomeTracker{cfg: cfg, store: store, pub: pub, metrics: m, log: log}
}

// ReconcileInstrument walks bars newer than each open signal and applies the
// first terminal transition found. Bars must be ascending by time. Returns
// the number of signals resolved.
func (t *OutcomeTracker) ReconcileInstrument(ctx context.Context, instrument string, bars []models.Bar, now time.Time) (int, error) {
	open, err := t.store.Open(ctx, instrument)
	if err != nil {
		return 0, fmt.Errorf("load open signals: %w", err)
	}
	if len(open) == 0 {
		return 0, nil
	}

	resolved := 0
	days := map[time.Time]struct{}{}
	for i := range open {
		sig := &open[i]
		outcome := t.resolveAgainstBars(sig, bars)
		if outcome == models.StatusOpen && now.Sub(sig.Timestamp) > t.cfg.MaxAge {
			price := sig.Plan.Entry
			if len(bars) > 0 {
				price = bars[len(bars)-1].Close
			}
			t.settle(sig, models.StatusExpired, price, now)
			outcome = models.StatusExpired
		}
		if outcome == models.StatusOpen {
			continue
		}
		if err := t.persistOutcome(ctx, sig); err != nil {
			return resolved, err
		}
		resolved++
		days[dateOf(*sig.ResolvedAt)] = struct{}{}
	}

	for day := range days {
		if err := t.RecomputeDaily(ctx, day); err != nil {
			t.log.Warn("daily recompute failed",
				logger.String("date", day.Format("2006-01-02")), logger.Error(err))
		}
	}
	return resolved, nil
}

// resolveAgainstBars mutates sig in place when a bar after emission touches
// the stop or a target. Same-bar ambiguity resolves to the stop.
func (t *OutcomeTracker) resolveAgainstBars(sig *models.PersistedSignal, bars []models.Bar) models.SignalStatus {
	sign := sig.Direction.Sign()
	for _, b := range bars {
		if !b.Timestamp.After(sig.Timestamp) {
			continue
		}
		if touchedStop(sig, b, sign) {
			t.settle(sig, models.StatusHitSL, sig.Plan.StopLoss, b.Timestamp)
			return models.StatusHitSL
		}
		if touchedTarget(sig, b, sign) {
			t.settle(sig, models.StatusHitTP, sig.Plan.TakeProfit1, b.Timestamp)
			return models.StatusHitTP
		}
	}
	return models.StatusOpen
}

// OnTick resolves open signals for the tick's instrument against a single
// traded price. A price can only be on one side of the entry, so the
// stop-first rule never applies here.
func (t *OutcomeTracker) OnTick(ctx context.Context, tick *models.Tick) error {
	t.metrics.RecordLastPrice(tick.Instrument, tick.Price)

	open, err := t.store.Open(ctx, tick.Instrument)
	if err != nil {
		return fmt.Errorf("load open signals: %w", err)
	}

	days := map[time.Time]struct{}{}
	for i := range open {
		sig := &open[i]
		sign := sig.Direction.Sign()
		switch {
		case sign*(tick.Price-sig.Plan.StopLoss) <= 0:
			t.settle(sig, models.StatusHitSL, sig.Plan.StopLoss, tick.Timestamp)
		case sign*(tick.Price-sig.Plan.TakeProfit1) >= 0:
			t.settle(sig, models.StatusHitTP, sig.Plan.TakeProfit1, tick.Timestamp)
		default:
			continue
		}
		if err := t.persistOutcome(ctx, sig); err != nil {
			return err
		}
		days[dateOf(*sig.ResolvedAt)] = struct{}{}
	}

	for day := range days {
		if err := t.RecomputeDaily(ctx, day); err != nil {
			return err
		}
	}
	return nil
}

func touchedStop(sig *models.PersistedSignal, b models.Bar, sign float64) bool {
	if sign > 0 {
		return b.Low <= sig.Plan.StopLoss
	}
	return b.High >= sig.Plan.StopLoss
}

func touchedTarget(sig *models.PersistedSignal, b models.Bar, sign float64) bool {
	if sign > 0 {
		return b.High >= sig.Plan.TakeProfit1
	}
	return b.Low <= sig.Plan.TakeProfit1
}

// settle fills the outcome fields on sig. Exit PnL and R are computed from
// the plan's entry and initial risk, not from the raw bar extremes.
func (t *OutcomeTracker) settle(sig *models.PersistedSignal, status models.SignalStatus, exit float64, at time.Time) {
	sign := sig.Direction.Sign()
	risk := sig.Plan.InitialRisk()

	sig.Status = status
	sig.ExitPrice = exit
	sig.PnLPercent = sign * (exit - sig.Plan.Entry) / sig.Plan.Entry * 100
	if risk > 0 {
		sig.RMultiple = sign * (exit - sig.Plan.Entry) / risk
	}
	resolvedAt := at.UTC()
	sig.ResolvedAt = &resolvedAt
}

func (t *OutcomeTracker) persistOutcome(ctx context.Context, sig *models.PersistedSignal) error {
	if err := t.store.UpdateOutcome(ctx, sig); err != nil {
		t.metrics.RecordError("outcome_update")
		return fmt.Errorf("update outcome %s: %w", sig.Key(), err)
	}
	t.log.Info("signal resolved",
		logger.String("instrument", sig.Instrument),
		logger.String("status", string(sig.Status)),
		logger.Float64("r", sig.RMultiple))
	if t.pub != nil {
		if err := t.pub.PublishResolved(ctx, sig); err != nil {
			t.metrics.RecordError("publish_resolved")
			t.log.Warn("publish resolved failed", logger.Error(err))
		}
	}
	return nil
}

// RecomputeDaily rebuilds the aggregate row for one calendar day. Outcome
// stats come from the signals resolved on it; the daily bias comes from
// every signal emitted that day, so open positions still count toward the
// day's direction. Safe to replay: the same inputs always produce the same
// row and the store upserts by date.
func (t *OutcomeTracker) RecomputeDaily(ctx context.Context, day time.Time) error {
	day = dateOf(day)
	signals, err := t.store.ResolvedOn(ctx, day)
	if err != nil {
		return fmt.Errorf("load resolved signals: %w", err)
	}
	emitted, err := t.store.EmittedOn(ctx, day)
	if err != nil {
		return fmt.Errorf("load emitted signals: %w", err)
	}

	perf := &models.DailyPerformance{Date: day, DailyBias: models.Neutral}
	for i, s := range signals {
		perf.Total++
		perf.TotalR += s.RMultiple
		perf.TotalPnL += s.PnLPercent
		if s.Status == models.StatusHitTP {
			perf.Successful++
		}
		if i == 0 || s.RMultiple > perf.BestTradeR {
			perf.BestTradeR = s.RMultiple
		}
		if i == 0 || s.RMultiple < perf.WorstTradeR {
			perf.WorstTradeR = s.RMultiple
		}
	}
	if perf.Total > 0 {
		perf.SuccessRate = float64(perf.Successful) / float64(perf.Total) * 100
	}

	longs, shorts := 0, 0
	for _, s := range emitted {
		switch s.Direction {
		case models.Long:
			longs++
		case models.Short:
			shorts++
		}
	}
	if longs > shorts {
		perf.DailyBias = models.Long
	} else if shorts > longs {
		perf.DailyBias = models.Short
	}

	if err := t.store.UpsertDaily(ctx, perf); err != nil {
		return fmt.Errorf("upsert daily %s: %w", day.Format("2006-01-02"), err)
	}
	return nil
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
