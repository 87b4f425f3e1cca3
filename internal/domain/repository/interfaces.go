package repository

import (
	"context"
	"time"

	"FinansLab/internal/domain/models"
)

// MarketData supplies ordered bar windows for analysis. Implementations must
// tolerate provider fallback (primary/secondary feed) transparently; callers
// only see models.ErrDataUnavailable when every feed failed.
type MarketData interface {
	GetBars(ctx context.Context, instrument string, tf Timeframe, lookback int) ([]models.Bar, error)
}

// BarSink persists incoming bars into history (the fallback feed source).
type BarSink interface {
	StoreBars(ctx context.Context, instrument string, tf Timeframe, bars []models.Bar) error
}

// MarketStream delivers live price ticks between scans for near-real-time
// reconciliation of open signals.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// SignalStore is the append-only persistence surface for signals and the
// derived daily aggregates. Status transitions go through UpdateOutcome and
// never delete rows.
type SignalStore interface {
	Insert(ctx context.Context, s *models.PersistedSignal) error
	Open(ctx context.Context, instrument string) ([]models.PersistedSignal, error)
	AllOpen(ctx context.Context) ([]models.PersistedSignal, error)
	UpdateOutcome(ctx context.Context, s *models.PersistedSignal) error
	ResolvedOn(ctx context.Context, date time.Time) ([]models.PersistedSignal, error)
	EmittedOn(ctx context.Context, date time.Time) ([]models.PersistedSignal, error)
	Recent(ctx context.Context, instrument string, limit int) ([]models.PersistedSignal, error)
	UpsertDaily(ctx context.Context, perf *models.DailyPerformance) error
	Daily(ctx context.Context, from, to time.Time) ([]models.DailyPerformance, error)
	Health(ctx context.Context) error
	Close() error
}

// SignalPublisher emits signal lifecycle events to downstream consumers.
type SignalPublisher interface {
	PublishEmitted(ctx context.Context, s *models.PersistedSignal) error
	PublishResolved(ctx context.Context, s *models.PersistedSignal) error
	Close() error
}

// Notifier delivers top-tier signals to an external channel. Delivery failure
// must never roll back persistence.
type Notifier interface {
	Notify(ctx context.Context, s *models.PersistedSignal) error
}

// Metrics records operational metrics for the engine.
type Metrics interface {
	RecordScan(session string, seconds float64)
	RecordSignal(instrument, tier string)
	RecordError(kind string)
	RecordLastPrice(instrument string, price float64)
	RecordOpenSignals(n int)
}
