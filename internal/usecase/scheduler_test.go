package usecase

import (
	"context"
	"testing"
	"time"

	"FinansLab/internal/domain/models"
	"FinansLab/pkg/cache"
)

func TestSessionAt(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig(), nil, nil)
	cases := []struct {
		hour int
		want SessionState
	}{
		{13, SessionOverlap},
		{12, SessionOverlap},
		{15, SessionOverlap},
		{8, SessionSingle},
		{11, SessionSingle},
		{16, SessionSingle},
		{20, SessionSingle},
		{3, SessionQuiet},
		{21, SessionQuiet},
		{6, SessionQuiet},
	}
	for _, c := range cases {
		at := time.Date(2025, 6, 2, c.hour, 30, 0, 0, time.UTC)
		if got := s.SessionAt(at); got != c.want {
			t.Fatalf("hour %d: got %s want %s", c.hour, got, c.want)
		}
	}
}

func TestSessionAtConvertsToUTC(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig(), nil, nil)
	// 14:00 in UTC+3 is 11:00 UTC, a single session hour
	loc := time.FixedZone("UTC+3", 3*3600)
	at := time.Date(2025, 6, 2, 14, 0, 0, 0, loc)
	if got := s.SessionAt(at); got != SessionSingle {
		t.Fatalf("got %s want %s", got, SessionSingle)
	}
}

func TestSessionWindowsFromConfig(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	cfg.Sessions = SessionWindows{
		OverlapStart: 1, OverlapEnd: 3,
		MorningStart: 4, MorningEnd: 6,
		EveningStart: 20, EveningEnd: 22,
	}
	s := NewScheduler(cfg, nil, nil)

	cases := []struct {
		hour int
		want SessionState
	}{
		{2, SessionOverlap},
		{5, SessionSingle},
		{21, SessionSingle},
		{13, SessionQuiet},
	}
	for _, c := range cases {
		at := time.Date(2025, 6, 2, c.hour, 0, 0, 0, time.UTC)
		if got := s.SessionAt(at); got != c.want {
			t.Fatalf("hour %d: got %s want %s", c.hour, got, c.want)
		}
	}
}

func TestIntervalPerSession(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig(), nil, nil)

	overlap := time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC)
	single := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	quiet := time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC)

	if got := s.Interval(overlap); got != 5*time.Minute {
		t.Fatalf("overlap: got %v", got)
	}
	if got := s.Interval(single); got != 10*time.Minute {
		t.Fatalf("single: got %v", got)
	}
	if got := s.Interval(quiet); got != 15*time.Minute {
		t.Fatalf("quiet: got %v", got)
	}
}

func testSignal(score int) *models.ConfluenceSignal {
	return &models.ConfluenceSignal{
		Instrument: "BTCUSDT",
		Timeframe:  "1h",
		Direction:  models.Long,
		Score:      score,
		Quality:    DefaultTiers().Tier(score),
	}
}

func TestDedupSuppressesRepeat(t *testing.T) {
	ctx := context.Background()
	s := NewScheduler(DefaultSchedulerConfig(), nil, nil)

	s.BeginCycle()
	if !s.ShouldEmit(ctx, testSignal(9)) {
		t.Fatal("first emission must pass")
	}
	s.MarkEmitted(ctx, testSignal(9))

	s.BeginCycle()
	if s.ShouldEmit(ctx, testSignal(9)) {
		t.Fatal("repeat in window must be suppressed")
	}
	if s.ShouldEmit(ctx, testSignal(10)) {
		t.Fatal("same-tier improvement below delta must be suppressed")
	}
	if !s.ShouldEmit(ctx, testSignal(11)) {
		t.Fatal("same-tier improvement at delta must pass")
	}
}

func TestDedupTierUpgradeEmits(t *testing.T) {
	ctx := context.Background()
	s := NewScheduler(DefaultSchedulerConfig(), nil, nil)

	s.BeginCycle()
	s.MarkEmitted(ctx, testSignal(8)) // COK_IYI

	s.BeginCycle()
	// score delta 1 is below ScoreDelta, but the tier changed to
	// MUKEMMEL so it is not the same signal
	upgraded := testSignal(9)
	if upgraded.Quality != models.TierMukemmel {
		t.Fatalf("fixture: got tier %s want MUKEMMEL", upgraded.Quality)
	}
	if !s.ShouldEmit(ctx, upgraded) {
		t.Fatal("tier upgrade must emit regardless of score delta")
	}
}

func TestDedupKeyScopesInstrumentAndDirection(t *testing.T) {
	ctx := context.Background()
	s := NewScheduler(DefaultSchedulerConfig(), nil, nil)

	s.BeginCycle()
	s.MarkEmitted(ctx, testSignal(8))

	other := testSignal(8)
	other.Instrument = "ETHUSDT"
	if !s.ShouldEmit(ctx, other) {
		t.Fatal("different instrument must not be suppressed")
	}

	short := testSignal(8)
	short.Direction = models.Short
	if !s.ShouldEmit(ctx, short) {
		t.Fatal("opposite direction must not be suppressed")
	}
}

func TestDedupExpiresAfterConfiguredCycles(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultSchedulerConfig()
	cfg.DedupCycles = 2
	s := NewScheduler(cfg, nil, nil)

	s.BeginCycle()
	s.MarkEmitted(ctx, testSignal(8))

	s.BeginCycle()
	if s.ShouldEmit(ctx, testSignal(8)) {
		t.Fatal("cycle 1 after emission: still suppressed")
	}
	s.BeginCycle()
	if s.ShouldEmit(ctx, testSignal(8)) {
		t.Fatal("cycle 2 after emission: still suppressed")
	}
	s.BeginCycle()
	if !s.ShouldEmit(ctx, testSignal(8)) {
		t.Fatal("window elapsed: emission must pass again")
	}
}

func TestAcquireCycleExcludesSecondHolder(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryCache()
	s := NewScheduler(DefaultSchedulerConfig(), mem, nil)

	release, ok := s.AcquireCycle(ctx, time.Minute)
	if !ok {
		t.Fatal("first acquire must succeed")
	}
	if _, ok := s.AcquireCycle(ctx, time.Minute); ok {
		t.Fatal("second acquire must fail while held")
	}
	release()
	if _, ok := s.AcquireCycle(ctx, time.Minute); !ok {
		t.Fatal("acquire must succeed after release")
	}
}

func TestAcquireCycleWithoutCacheAlwaysAcquires(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig(), nil, nil)
	if _, ok := s.AcquireCycle(context.Background(), time.Minute); !ok {
		t.Fatal("nil cache must always acquire")
	}
}

func TestDedupLedgerSurvivesInCache(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryCache()
	cfg := DefaultSchedulerConfig()

	first := NewScheduler(cfg, mem, nil)
	first.BeginCycle()
	first.MarkEmitted(ctx, testSignal(8))

	// a fresh scheduler with an empty in-memory ledger still sees the
	// cached entry and suppresses the repeat
	second := NewScheduler(cfg, mem, nil)
	second.BeginCycle()
	if second.ShouldEmit(ctx, testSignal(8)) {
		t.Fatal("cached ledger entry must suppress after restart")
	}
}
