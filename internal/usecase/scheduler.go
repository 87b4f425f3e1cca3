package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FinansLab/internal/domain/models"
	"FinansLab/pkg/cache"
	"FinansLab/pkg/logger"
)

// SessionState classifies the current UTC hour into a market activity band.
type SessionState string

const (
	SessionOverlap SessionState = "LONDON_NY_OVERLAP"
	SessionSingle  SessionState = "SINGLE_SESSION"
	SessionQuiet   SessionState = "QUIET"
)

// SessionWindows holds the UTC hour boundaries of the activity bands.
// Each window is half-open [start, end).
type SessionWindows struct {
	OverlapStart int
	OverlapEnd   int
	MorningStart int
	MorningEnd   int
	EveningStart int
	EveningEnd   int
}

// DefaultSessionWindows covers the London/New York overlap 12:00-16:00,
// the London morning 07:00-12:00 and the New York afternoon 16:00-21:00.
func DefaultSessionWindows() SessionWindows {
	return SessionWindows{
		OverlapStart: 12, OverlapEnd: 16,
		MorningStart: 7, MorningEnd: 12,
		EveningStart: 16, EveningEnd: 21,
	}
}

// At maps a wall clock instant to its activity band.
func (w SessionWindows) At(t time.Time) SessionState {
	h := t.UTC().Hour()
	switch {
	case h >= w.OverlapStart && h < w.OverlapEnd:
		return SessionOverlap
	case (h >= w.MorningStart && h < w.MorningEnd) ||
		(h >= w.EveningStart && h < w.EveningEnd):
		return SessionSingle
	default:
		return SessionQuiet
	}
}

// SchedulerConfig tunes scan cadence and duplicate suppression.
type SchedulerConfig struct {
	OverlapInterval time.Duration
	SingleInterval  time.Duration
	QuietInterval   time.Duration
	Sessions        SessionWindows

	// DedupCycles is how many consecutive scan cycles a signal key stays
	// suppressed after emission. ScoreDelta lets a materially stronger
	// repeat through early.
	DedupCycles int
	ScoreDelta  int
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		OverlapInterval: 5 * time.Minute,
		SingleInterval:  10 * time.Minute,
		QuietInterval:   15 * time.Minute,
		Sessions:        DefaultSessionWindows(),
		DedupCycles:     3,
		ScoreDelta:      2,
	}
}

type dedupEntry struct {
	Score      int   `json:"score"`
	CycleIndex int64 `json:"cycle"`
}

// Scheduler decides when the next scan cycle runs and which candidate
// signals are duplicates of recently emitted ones. The suppression ledger
// is mirrored into the cache so restarts do not re-emit live signals.
type Scheduler struct {
	cfg   SchedulerConfig
	cache cache.Service
	log   *logger.Logger

	mu       sync.Mutex
	seen     map[string]dedupEntry
	cycle    int64
	lastScan time.Time
}

func NewScheduler(cfg SchedulerConfig, c cache.Service, log *logger.Logger) *Scheduler {
	if cfg.DedupCycles <= 0 {
		cfg.DedupCycles = 3
	}
	if cfg.Sessions == (SessionWindows{}) {
		cfg.Sessions = DefaultSessionWindows()
	}
	return &Scheduler{
		cfg:   cfg,
		cache: c,
		log:   log,
		seen:  make(map[string]dedupEntry),
	}
}

// SessionAt maps a wall clock instant to the configured activity band.
func (s *Scheduler) SessionAt(t time.Time) SessionState {
	return s.cfg.Sessions.At(t)
}

// Interval returns the scan spacing for the session active at t.
func (s *Scheduler) Interval(t time.Time) time.Duration {
	switch s.SessionAt(t) {
	case SessionOverlap:
		return s.cfg.OverlapInterval
	case SessionSingle:
		return s.cfg.SingleInterval
	default:
		return s.cfg.QuietInterval
	}
}

// BeginCycle advances the cycle counter and evicts expired ledger entries.
// Call once at the start of every scan pass.
func (s *Scheduler) BeginCycle() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycle++
	s.lastScan = time.Now()
	for k, e := range s.seen {
		if s.cycle-e.CycleIndex > int64(s.cfg.DedupCycles) {
			delete(s.seen, k)
		}
	}
	return s.cycle
}

// LastScan reports when the most recent cycle began, zero before the first.
func (s *Scheduler) LastScan() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastScan
}

// NextDue reports when the next cycle is expected to start.
func (s *Scheduler) NextDue() time.Time {
	last := s.LastScan()
	if last.IsZero() {
		return time.Time{}
	}
	return last.Add(s.Interval(last))
}

// AcquireCycle takes the cross-instance scan lock when a shared cache backs
// the ledger. Without one (single-instance deployment) it always acquires.
// The returned release drops the lock early; the TTL bounds a crashed
// holder.
func (s *Scheduler) AcquireCycle(ctx context.Context, ttl time.Duration) (release func(), ok bool) {
	if s.cache == nil {
		return func() {}, true
	}
	const key = "finanslab:scan_cycle"
	got, err := s.cache.TryLock(ctx, key, ttl)
	if err != nil {
		s.log.Warn("cycle lock unavailable, proceeding", logger.Error(err))
		return func() {}, true
	}
	if !got {
		return nil, false
	}
	return func() { _ = s.cache.Unlock(ctx, key) }, true
}

// ShouldEmit reports whether the candidate passes duplicate suppression.
// A repeat within the window only passes when its score improved by at
// least ScoreDelta over the suppressed emission.
func (s *Scheduler) ShouldEmit(ctx context.Context, sig *models.ConfluenceSignal) bool {
	key := dedupKey(sig)

	s.mu.Lock()
	e, ok := s.seen[key]
	cycle := s.cycle
	s.mu.Unlock()

	if !ok && s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey(key), &e); err == nil {
			ok = true
		}
	}
	if !ok {
		return true
	}
	if cycle-e.CycleIndex > int64(s.cfg.DedupCycles) {
		return true
	}
	return sig.Score-e.Score >= s.cfg.ScoreDelta
}

// MarkEmitted records an emission in the suppression ledger.
func (s *Scheduler) MarkEmitted(ctx context.Context, sig *models.ConfluenceSignal) {
	key := dedupKey(sig)

	s.mu.Lock()
	e := dedupEntry{Score: sig.Score, CycleIndex: s.cycle}
	s.seen[key] = e
	s.mu.Unlock()

	if s.cache == nil {
		return
	}
	ttl := time.Duration(s.cfg.DedupCycles+1) * s.cfg.QuietInterval
	if err := s.cache.Set(ctx, cacheKey(key), e, ttl); err != nil {
		s.log.Warn("dedup ledger write failed",
			logger.String("key", key), logger.Error(err))
	}
}

// dedupKey groups repeats of the same setup: instrument, timeframe,
// direction and quality tier. A tier change is a different signal and
// always emits regardless of score delta. Timestamp is excluded on
// purpose: the same setup within the window is the duplicate to suppress.
func dedupKey(sig *models.ConfluenceSignal) string {
	return fmt.Sprintf("%s|%s|%s|%s", sig.Instrument, sig.Timeframe, sig.Direction, sig.Quality)
}

func cacheKey(key string) string {
	return "finanslab:dedup:" + key
}
