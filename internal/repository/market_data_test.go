package repository

import (
	"context"
	"testing"
	"time"

	"FinansLab/internal/domain/models"
	domrepo "FinansLab/internal/domain/repository"
	"FinansLab/pkg/cache"
	"FinansLab/pkg/logger"
)

type fakeFeed struct {
	bars  []models.Bar
	err   error
	calls int
}

func (f *fakeFeed) GetBars(_ context.Context, _ string, _ domrepo.Timeframe, _ int) ([]models.Bar, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.bars, nil
}

type fakeSink struct {
	stored int
}

func (s *fakeSink) StoreBars(_ context.Context, _ string, _ domrepo.Timeframe, bars []models.Bar) error {
	s.stored += len(bars)
	return nil
}

func mdLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func window(n int) []models.Bar {
	bars := make([]models.Bar, n)
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = models.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      100, High: 101, Low: 99, Close: 100.5, Volume: 10,
		}
	}
	return bars
}

func TestFallbackMirrorsFreshBarsIntoSink(t *testing.T) {
	primary := &fakeFeed{bars: window(3)}
	sink := &fakeSink{}
	md := NewFallbackMarketData(primary, nil, sink, mdLogger(t))

	bars, err := md.GetBars(context.Background(), "BTCUSDT", domrepo.TF1h, 3)
	if err != nil {
		t.Fatalf("GetBars: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("got %d bars, want 3", len(bars))
	}
	if sink.stored != 3 {
		t.Fatalf("sink stored %d bars, want 3", sink.stored)
	}
}

func TestFallbackUsesHistoryWhenFeedDown(t *testing.T) {
	primary := &fakeFeed{err: models.ErrDataUnavailable}
	history := &fakeFeed{bars: window(2)}
	md := NewFallbackMarketData(primary, history, nil, mdLogger(t))

	bars, err := md.GetBars(context.Background(), "BTCUSDT", domrepo.TF1h, 2)
	if err != nil {
		t.Fatalf("GetBars: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	if history.calls != 1 {
		t.Fatalf("history calls = %d, want 1", history.calls)
	}
}

func TestFallbackEmptyHistoryReportsOriginalError(t *testing.T) {
	primary := &fakeFeed{err: models.ErrDataUnavailable}
	history := &fakeFeed{bars: nil}
	md := NewFallbackMarketData(primary, history, nil, mdLogger(t))

	if _, err := md.GetBars(context.Background(), "BTCUSDT", domrepo.TF1h, 2); err != models.ErrDataUnavailable {
		t.Fatalf("err = %v, want ErrDataUnavailable", err)
	}
}

func TestCachedWindowServedWithoutRefetch(t *testing.T) {
	feed := &fakeFeed{bars: window(4)}
	md := NewCachedMarketData(feed, cache.NewMemoryCache(), time.Minute)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		bars, err := md.GetBars(ctx, "BTCUSDT", domrepo.TF1h, 4)
		if err != nil {
			t.Fatalf("GetBars #%d: %v", i, err)
		}
		if len(bars) != 4 {
			t.Fatalf("GetBars #%d: got %d bars, want 4", i, len(bars))
		}
	}
	if feed.calls != 1 {
		t.Fatalf("feed calls = %d, want 1", feed.calls)
	}
}

func TestCachedWindowsKeyedPerInstrument(t *testing.T) {
	feed := &fakeFeed{bars: window(4)}
	md := NewCachedMarketData(feed, cache.NewMemoryCache(), time.Minute)

	ctx := context.Background()
	if _, err := md.GetBars(ctx, "BTCUSDT", domrepo.TF1h, 4); err != nil {
		t.Fatalf("GetBars: %v", err)
	}
	if _, err := md.GetBars(ctx, "ETHUSDT", domrepo.TF1h, 4); err != nil {
		t.Fatalf("GetBars: %v", err)
	}
	if feed.calls != 2 {
		t.Fatalf("feed calls = %d, want 2", feed.calls)
	}
}

func TestCachedFeedErrorPassesThrough(t *testing.T) {
	feed := &fakeFeed{err: models.ErrDataUnavailable}
	md := NewCachedMarketData(feed, cache.NewMemoryCache(), time.Minute)

	if _, err := md.GetBars(context.Background(), "BTCUSDT", domrepo.TF1h, 4); err != models.ErrDataUnavailable {
		t.Fatalf("err = %v, want ErrDataUnavailable", err)
	}
}
