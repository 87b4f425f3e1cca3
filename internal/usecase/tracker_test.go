package usecase

import (
	"context"
	"testing"
	"time"

	"FinansLab/internal/domain/models"
	"FinansLab/pkg/logger"
)

type fakeSignalStore struct {
	signals map[string]*models.PersistedSignal
	daily   map[time.Time]models.DailyPerformance
	upserts int
}

func newFakeSignalStore() *fakeSignalStore {
	return &fakeSignalStore{
		signals: make(map[string]*models.PersistedSignal),
		daily:   make(map[time.Time]models.DailyPerformance),
	}
}

func (f *fakeSignalStore) Insert(_ context.Context, s *models.PersistedSignal) error {
	cp := *s
	f.signals[s.Key()] = &cp
	return nil
}

func (f *fakeSignalStore) Open(_ context.Context, instrument string) ([]models.PersistedSignal, error) {
	var out []models.PersistedSignal
	for _, s := range f.signals {
		if s.Instrument == instrument && s.Status == models.StatusOpen {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSignalStore) AllOpen(_ context.Context) ([]models.PersistedSignal, error) {
	var out []models.PersistedSignal
	for _, s := range f.signals {
		if s.Status == models.StatusOpen {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSignalStore) UpdateOutcome(_ context.Context, s *models.PersistedSignal) error {
	cur, ok := f.signals[s.Key()]
	if !ok || cur.Status != models.StatusOpen {
		return models.ErrStoreWriteConflict
	}
	cp := *s
	f.signals[s.Key()] = &cp
	return nil
}

func (f *fakeSignalStore) ResolvedOn(_ context.Context, date time.Time) ([]models.PersistedSignal, error) {
	var out []models.PersistedSignal
	for _, s := range f.signals {
		if s.ResolvedAt != nil && dateOf(*s.ResolvedAt).Equal(dateOf(date)) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSignalStore) EmittedOn(_ context.Context, date time.Time) ([]models.PersistedSignal, error) {
	var out []models.PersistedSignal
	for _, s := range f.signals {
		if dateOf(s.Timestamp).Equal(dateOf(date)) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSignalStore) Recent(_ context.Context, _ string, _ int) ([]models.PersistedSignal, error) {
	return nil, nil
}

func (f *fakeSignalStore) UpsertDaily(_ context.Context, perf *models.DailyPerformance) error {
	f.upserts++
	f.daily[dateOf(perf.Date)] = *perf
	return nil
}

func (f *fakeSignalStore) Daily(_ context.Context, _, _ time.Time) ([]models.DailyPerformance, error) {
	return nil, nil
}

func (f *fakeSignalStore) Health(_ context.Context) error { return nil }
func (f *fakeSignalStore) Close() error                   { return nil }

type fakePublisher struct {
	resolved int
}

func (f *fakePublisher) PublishEmitted(_ context.Context, _ *models.PersistedSignal) error {
	return nil
}

func (f *fakePublisher) PublishResolved(_ context.Context, _ *models.PersistedSignal) error {
	f.resolved++
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeMetrics struct{}

func (fakeMetrics) RecordScan(string, float64)      {}
func (fakeMetrics) RecordSignal(string, string)     {}
func (fakeMetrics) RecordError(string)              {}
func (fakeMetrics) RecordLastPrice(string, float64) {}
func (fakeMetrics) RecordOpenSignals(int)           {}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

var sigT0 = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

func openLongSignal() *models.PersistedSignal {
	return &models.PersistedSignal{
		ConfluenceSignal: models.ConfluenceSignal{
			Instrument: "BTCUSDT",
			Timeframe:  "1h",
			Timestamp:  sigT0,
			Direction:  models.Long,
			Score:      9,
			Quality:    models.TierMukemmel,
		},
		Plan: models.RiskPlan{
			Entry:       100,
			StopLoss:    99,
			TakeProfit1: 103,
			TakeProfit2: 108,
			ATR:         0.67,
		},
		Status: models.StatusOpen,
	}
}

func trackerFixture(t *testing.T) (*OutcomeTracker, *fakeSignalStore, *fakePublisher) {
	t.Helper()
	store := newFakeSignalStore()
	pub := &fakePublisher{}
	tr := NewOutcomeTracker(DefaultTrackerConfig(), store, pub, fakeMetrics{}, testLogger(t))
	return tr, store, pub
}

func trackBar(offset time.Duration, o, h, l, c float64) models.Bar {
	return models.Bar{Timestamp: sigT0.Add(offset), Open: o, High: h, Low: l, Close: c}
}

func TestReconcileStopWinsOnSameBar(t *testing.T) {
	ctx := context.Background()
	tr, store, pub := trackerFixture(t)
	sig := openLongSignal()
	_ = store.Insert(ctx, sig)

	// one bar touches both the stop (99) and the target (103)
	bars := []models.Bar{trackBar(time.Hour, 100, 104, 98, 101)}
	n, err := tr.ReconcileInstrument(ctx, "BTCUSDT", bars, sigT0.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d resolved want 1", n)
	}

	got := store.signals[sig.Key()]
	if got.Status != models.StatusHitSL {
		t.Fatalf("got status %s want %s", got.Status, models.StatusHitSL)
	}
	if got.ExitPrice != 99 {
		t.Fatalf("exit: got %v want 99", got.ExitPrice)
	}
	if !approx(got.RMultiple, -1) {
		t.Fatalf("r multiple: got %v want -1", got.RMultiple)
	}
	if !approx(got.PnLPercent, -1) {
		t.Fatalf("pnl: got %v want -1", got.PnLPercent)
	}
	if pub.resolved != 1 {
		t.Fatalf("resolved events: got %d want 1", pub.resolved)
	}
}

func TestReconcileTargetHit(t *testing.T) {
	ctx := context.Background()
	tr, store, _ := trackerFixture(t)
	sig := openLongSignal()
	_ = store.Insert(ctx, sig)

	bars := []models.Bar{trackBar(time.Hour, 101, 103.5, 100.5, 103)}
	if _, err := tr.ReconcileInstrument(ctx, "BTCUSDT", bars, sigT0.Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := store.signals[sig.Key()]
	if got.Status != models.StatusHitTP {
		t.Fatalf("got status %s want %s", got.Status, models.StatusHitTP)
	}
	if !approx(got.RMultiple, 3) {
		t.Fatalf("r multiple: got %v want 3", got.RMultiple)
	}
}

func TestReconcileIgnoresBarsBeforeEmission(t *testing.T) {
	ctx := context.Background()
	tr, store, _ := trackerFixture(t)
	sig := openLongSignal()
	_ = store.Insert(ctx, sig)

	// stop was traded through before the signal existed
	bars := []models.Bar{trackBar(-time.Hour, 100, 101, 95, 100)}
	n, err := tr.ReconcileInstrument(ctx, "BTCUSDT", bars, sigT0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("got %d resolved want 0", n)
	}
	if store.signals[sig.Key()].Status != models.StatusOpen {
		t.Fatal("signal must stay open")
	}
}

func TestReconcileExpiresStaleSignal(t *testing.T) {
	ctx := context.Background()
	tr, store, _ := trackerFixture(t)
	sig := openLongSignal()
	_ = store.Insert(ctx, sig)

	// never touches stop or target, well past the 48h window
	bars := []models.Bar{trackBar(49*time.Hour, 100, 101.5, 99.5, 101)}
	n, err := tr.ReconcileInstrument(ctx, "BTCUSDT", bars, sigT0.Add(49*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d resolved want 1", n)
	}

	got := store.signals[sig.Key()]
	if got.Status != models.StatusExpired {
		t.Fatalf("got status %s want %s", got.Status, models.StatusExpired)
	}
	if got.ExitPrice != 101 {
		t.Fatalf("expiry exits at last close: got %v want 101", got.ExitPrice)
	}
	if !approx(got.RMultiple, 1) {
		t.Fatalf("r multiple: got %v want 1", got.RMultiple)
	}
}

func TestOnTickResolvesStop(t *testing.T) {
	ctx := context.Background()
	tr, store, _ := trackerFixture(t)
	sig := openLongSignal()
	_ = store.Insert(ctx, sig)

	tick := &models.Tick{Instrument: "BTCUSDT", Price: 98.5, Timestamp: sigT0.Add(time.Minute)}
	if err := tr.OnTick(ctx, tick); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := store.signals[sig.Key()]
	if got.Status != models.StatusHitSL {
		t.Fatalf("got status %s want %s", got.Status, models.StatusHitSL)
	}
	if got.ExitPrice != 99 {
		t.Fatalf("exit fills at the stop: got %v want 99", got.ExitPrice)
	}
}

func TestOnTickShortTargetHit(t *testing.T) {
	ctx := context.Background()
	tr, store, _ := trackerFixture(t)
	sig := openLongSignal()
	sig.Direction = models.Short
	sig.Plan.StopLoss = 101.5
	sig.Plan.TakeProfit1 = 97
	_ = store.Insert(ctx, sig)

	tick := &models.Tick{Instrument: "BTCUSDT", Price: 96.5, Timestamp: sigT0.Add(time.Minute)}
	if err := tr.OnTick(ctx, tick); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := store.signals[sig.Key()]
	if got.Status != models.StatusHitTP {
		t.Fatalf("got status %s want %s", got.Status, models.StatusHitTP)
	}
	if !approx(got.RMultiple, 2) {
		t.Fatalf("short r multiple: got %v want 2", got.RMultiple)
	}
}

func TestOnTickBetweenStopAndTargetKeepsOpen(t *testing.T) {
	ctx := context.Background()
	tr, store, _ := trackerFixture(t)
	sig := openLongSignal()
	_ = store.Insert(ctx, sig)

	tick := &models.Tick{Instrument: "BTCUSDT", Price: 100.5, Timestamp: sigT0.Add(time.Minute)}
	if err := tr.OnTick(ctx, tick); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.signals[sig.Key()].Status != models.StatusOpen {
		t.Fatal("signal must stay open")
	}
}

func TestRecomputeDailyAggregates(t *testing.T) {
	ctx := context.Background()
	tr, store, _ := trackerFixture(t)

	win := openLongSignal()
	_ = store.Insert(ctx, win)
	loss := openLongSignal()
	loss.Timestamp = sigT0.Add(90 * time.Minute)
	_ = store.Insert(ctx, loss)

	// the first bar predates the second signal, so it only resolves the
	// winner; the later bar stops out the second signal
	bars := []models.Bar{
		trackBar(time.Hour, 101, 103.5, 100.5, 103),
	}
	if _, err := tr.ReconcileInstrument(ctx, "BTCUSDT", bars, sigT0.Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lossBars := []models.Bar{
		trackBar(2*time.Hour, 100, 100.5, 98.5, 99),
	}
	if _, err := tr.ReconcileInstrument(ctx, "BTCUSDT", lossBars, sigT0.Add(2*time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	day := store.daily[dateOf(sigT0)]
	if day.Total != 2 || day.Successful != 1 {
		t.Fatalf("got total %d successful %d want 2/1", day.Total, day.Successful)
	}
	if !approx(day.SuccessRate, 50) {
		t.Fatalf("success rate: got %v want 50", day.SuccessRate)
	}
	if !approx(day.TotalR, 2) {
		t.Fatalf("total r: got %v want 2", day.TotalR)
	}
	if !approx(day.BestTradeR, 3) || !approx(day.WorstTradeR, -1) {
		t.Fatalf("best/worst: got %v/%v want 3/-1", day.BestTradeR, day.WorstTradeR)
	}
	if day.DailyBias != models.Long {
		t.Fatalf("daily bias: got %s want LONG", day.DailyBias)
	}
}

func TestRecomputeDailyBiasCountsOpenSignals(t *testing.T) {
	ctx := context.Background()
	tr, store, _ := trackerFixture(t)

	win := openLongSignal()
	_ = store.Insert(ctx, win)
	// two shorts emitted later the same day stay open past the bar window
	for i := 1; i <= 2; i++ {
		short := openLongSignal()
		short.Direction = models.Short
		short.Timestamp = sigT0.Add(2*time.Hour + time.Duration(i)*time.Minute)
		_ = store.Insert(ctx, short)
	}

	bars := []models.Bar{trackBar(time.Hour, 101, 103.5, 100.5, 103)}
	if _, err := tr.ReconcileInstrument(ctx, "BTCUSDT", bars, sigT0.Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	day := store.daily[dateOf(sigT0)]
	if day.Total != 1 || day.Successful != 1 {
		t.Fatalf("got total %d successful %d want 1/1", day.Total, day.Successful)
	}
	if day.DailyBias != models.Short {
		t.Fatalf("daily bias: got %s want SHORT", day.DailyBias)
	}
}

func TestRecomputeDailyIdempotent(t *testing.T) {
	ctx := context.Background()
	tr, store, _ := trackerFixture(t)
	sig := openLongSignal()
	_ = store.Insert(ctx, sig)

	bars := []models.Bar{trackBar(time.Hour, 101, 103.5, 100.5, 103)}
	if _, err := tr.ReconcileInstrument(ctx, "BTCUSDT", bars, sigT0.Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := store.daily[dateOf(sigT0)]

	if err := tr.RecomputeDaily(ctx, sigT0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := store.daily[dateOf(sigT0)]
	if before != after {
		t.Fatalf("replay changed the row: %+v vs %+v", before, after)
	}
}
