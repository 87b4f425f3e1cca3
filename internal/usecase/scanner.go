package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"FinansLab/internal/domain/models"
	domrepo "FinansLab/internal/domain/repository"
	domservice "FinansLab/internal/domain/service"
	"FinansLab/internal/services/indicators"
	"FinansLab/pkg/logger"
)

// ScannerConfig fixes the cycle geometry: which instruments to analyze,
// per-instrument timeouts and the overall cycle deadline.
type ScannerConfig struct {
	Instruments []string
	Timeframe   domrepo.Timeframe
	Lookback    int

	// ReferenceInstrument supplies the market bias for the alignment
	// factor. Empty disables it even on the 13 point table.
	ReferenceInstrument string

	InstrumentTimeout time.Duration
	CycleTimeout      time.Duration

	// NotifyTier is the minimum quality tier forwarded to the notifier.
	NotifyTier models.QualityTier
}

func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		Timeframe:         domrepo.TF1h,
		Lookback:          400,
		InstrumentTimeout: 20 * time.Second,
		CycleTimeout:      2 * time.Minute,
		NotifyTier:        models.TierMukemmel,
	}
}

// instrumentResult is one instrument's analysis outcome flowing from the
// fan-out workers back to the serial emission loop.
type instrumentResult struct {
	instrument string
	signal     *models.ConfluenceSignal
	atr        float64
	err        error
}

// Scanner runs one full confluence pass over the configured instruments.
// Analysis fans out per instrument; emission (dedup, persist, publish,
// notify) stays serial so the store sees one writer.
type Scanner struct {
	cfg    ScannerConfig
	indCfg indicators.Config

	market  domrepo.MarketData
	bias    domservice.BiasDetector
	fvg     domservice.FVGDetector
	scalp   domservice.ScalpDetector
	scorer  *ConfluenceScorer
	risk    *RiskPlanner
	sched   *Scheduler
	tracker *OutcomeTracker

	store    domrepo.SignalStore
	pub      domrepo.SignalPublisher
	notifier domrepo.Notifier
	metrics  domrepo.Metrics
	log      *logger.Logger

	inFlight atomic.Bool
}

func NewScanner(
	cfg ScannerConfig,
	indCfg indicators.Config,
	market domrepo.MarketData,
	bias domservice.BiasDetector,
	fvg domservice.FVGDetector,
	scalp domservice.ScalpDetector,
	scorer *ConfluenceScorer,
	risk *RiskPlanner,
	sched *Scheduler,
	tracker *OutcomeTracker,
	store domrepo.SignalStore,
	pub domrepo.SignalPublisher,
	notifier domrepo.Notifier,
	metrics domrepo.Metrics,
	log *logger.Logger,
) *Scanner {
	return &Scanner{
		cfg: cfg, indCfg: indCfg,
		market: market, bias: bias, fvg: fvg, scalp: scalp,
		scorer: scorer, risk: risk, sched: sched, tracker: tracker,
		store: store, pub: pub, notifier: notifier,
		metrics: metrics, log: log,
	}
}

// RunCycle executes one scan pass. A cycle already in flight makes this a
// no-op: scan spacing is the scheduler's job, overlap is never useful.
func (s *Scanner) RunCycle(ctx context.Context, now time.Time) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.log.Warn("scan cycle skipped, previous still running")
		return nil
	}
	defer s.inFlight.Store(false)

	release, ok := s.sched.AcquireCycle(ctx, s.cfg.CycleTimeout)
	if !ok {
		s.log.Debug("scan cycle held by another instance")
		return nil
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.CycleTimeout)
	defer cancel()

	session := s.sched.SessionAt(now)
	start := time.Now()
	s.sched.BeginCycle()

	marketBias := s.referenceBias(ctx)

	results := make(chan instrumentResult, len(s.cfg.Instruments))
	var wg sync.WaitGroup
	for _, inst := range s.cfg.Instruments {
		wg.Add(1)
		go func(inst string) {
			defer wg.Done()
			results <- s.analyze(ctx, inst, marketBias, now)
		}(inst)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	for r := range results {
		if r.err != nil {
			s.metrics.RecordError("analyze")
			if errors.Is(r.err, models.ErrDataUnavailable) || errors.Is(r.err, models.ErrInsufficientData) {
				s.log.Warn("instrument skipped",
					logger.String("instrument", r.instrument), logger.Error(r.err))
				continue
			}
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		if r.signal == nil {
			continue
		}
		if err := s.emit(ctx, r); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.metrics.RecordScan(string(session), time.Since(start).Seconds())
	s.reportOpen(ctx)
	return firstErr
}

// analyze runs the full detector chain for one instrument and reconciles
// its open signals against the fresh bars.
func (s *Scanner) analyze(ctx context.Context, instrument string, marketBias models.Direction, now time.Time) instrumentResult {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.InstrumentTimeout)
	defer cancel()

	res := instrumentResult{instrument: instrument}

	bars, err := s.market.GetBars(ctx, instrument, s.cfg.Timeframe, s.cfg.Lookback)
	if err != nil {
		res.err = fmt.Errorf("%s bars: %w", instrument, err)
		return res
	}
	if !models.SortedByTime(bars) {
		res.err = fmt.Errorf("%s: bars out of order", instrument)
		return res
	}

	if _, err := s.tracker.ReconcileInstrument(ctx, instrument, bars, now); err != nil {
		s.log.Warn("reconcile failed",
			logger.String("instrument", instrument), logger.Error(err))
	}

	snap, err := indicators.Compute(instrument, bars, s.indCfg)
	if err != nil {
		res.err = err
		return res
	}

	bias := s.bias.Detect(snap, bars)
	gaps := s.fvg.Detect(instrument, bars, snap.ATR)
	scalp := s.scalp.Detect(snap, bars, bias)

	res.atr = snap.ATR
	res.signal = s.scorer.Score(ScorerInput{
		Snapshot:   snap,
		Bias:       bias,
		FVGs:       gaps,
		Scalp:      scalp,
		MarketBias: marketBias,
	})
	if res.signal != nil {
		res.signal.Timeframe = string(s.cfg.Timeframe)
	}
	return res
}

// emit runs the serial tail of the pipeline for one scored candidate.
func (s *Scanner) emit(ctx context.Context, r instrumentResult) error {
	sig := r.signal
	if !s.sched.ShouldEmit(ctx, sig) {
		s.log.Debug("duplicate suppressed",
			logger.String("instrument", sig.Instrument),
			logger.Int("score", sig.Score))
		return nil
	}

	bars, err := s.market.GetBars(ctx, sig.Instrument, s.cfg.Timeframe, 1)
	if err != nil || len(bars) == 0 {
		return fmt.Errorf("%s entry price: %w", sig.Instrument, models.ErrDataUnavailable)
	}
	plan, err := s.risk.Plan(bars[len(bars)-1].Close, r.atr, sig.Direction)
	if err != nil {
		s.metrics.RecordError("risk_plan")
		s.log.Warn("risk plan rejected",
			logger.String("instrument", sig.Instrument), logger.Error(err))
		return nil
	}

	persisted := &models.PersistedSignal{
		ConfluenceSignal: *sig,
		Plan:             *plan,
		Status:           models.StatusOpen,
	}
	if err := s.store.Insert(ctx, persisted); err != nil {
		s.metrics.RecordError("signal_insert")
		return fmt.Errorf("insert signal %s: %w", persisted.Key(), err)
	}
	s.sched.MarkEmitted(ctx, sig)
	s.metrics.RecordSignal(sig.Instrument, string(sig.Quality))
	s.log.Info("signal emitted",
		logger.String("instrument", sig.Instrument),
		logger.String("direction", string(sig.Direction)),
		logger.Int("score", sig.Score),
		logger.String("quality", string(sig.Quality)))

	if s.pub != nil {
		if err := s.pub.PublishEmitted(ctx, persisted); err != nil {
			s.metrics.RecordError("publish_emitted")
			s.log.Warn("publish emitted failed", logger.Error(err))
		}
	}
	if s.notifier != nil && sig.Quality.AtLeast(s.cfg.NotifyTier) {
		if err := s.notifier.Notify(ctx, persisted); err != nil {
			s.metrics.RecordError("notify")
			s.log.Warn("notify failed", logger.Error(err))
		}
	}
	return nil
}

// referenceBias computes the market-wide direction from the reference
// instrument. Failures degrade to neutral so one feed problem does not
// stall the whole cycle.
func (s *Scanner) referenceBias(ctx context.Context) models.Direction {
	if s.cfg.ReferenceInstrument == "" {
		return models.Neutral
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.InstrumentTimeout)
	defer cancel()

	bars, err := s.market.GetBars(ctx, s.cfg.ReferenceInstrument, s.cfg.Timeframe, s.cfg.Lookback)
	if err != nil {
		s.log.Warn("reference bias unavailable", logger.Error(err))
		return models.Neutral
	}
	snap, err := indicators.Compute(s.cfg.ReferenceInstrument, bars, s.indCfg)
	if err != nil {
		return models.Neutral
	}
	return s.bias.Detect(snap, bars).Direction
}

func (s *Scanner) reportOpen(ctx context.Context) {
	open, err := s.store.AllOpen(ctx)
	if err != nil {
		return
	}
	s.metrics.RecordOpenSignals(len(open))
}
