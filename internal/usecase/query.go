package usecase

import (
	"context"
	"fmt"
	"time"

	"FinansLab/internal/domain/models"
	domrepo "FinansLab/internal/domain/repository"
)

// SignalQuery provides the read paths behind the HTTP API.
type SignalQuery struct {
	store domrepo.SignalStore
}

func NewSignalQuery(store domrepo.SignalStore) *SignalQuery {
	return &SignalQuery{store: store}
}

type RecentSignalsParams struct {
	Instrument string
	Limit      int
}

func (q *SignalQuery) Recent(ctx context.Context, p RecentSignalsParams) ([]models.PersistedSignal, error) {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 500 {
		p.Limit = 500
	}
	signals, err := q.store.Recent(ctx, p.Instrument, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("recent signals: %w", err)
	}
	return signals, nil
}

func (q *SignalQuery) Open(ctx context.Context) ([]models.PersistedSignal, error) {
	signals, err := q.store.AllOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("open signals: %w", err)
	}
	return signals, nil
}

type PerformanceParams struct {
	From time.Time
	To   time.Time
}

func (q *SignalQuery) Performance(ctx context.Context, p PerformanceParams) ([]models.DailyPerformance, error) {
	if p.To.IsZero() {
		p.To = time.Now().UTC()
	}
	if p.From.IsZero() {
		p.From = p.To.AddDate(0, 0, -30)
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	days, err := q.store.Daily(ctx, p.From, p.To)
	if err != nil {
		return nil, fmt.Errorf("daily performance: %w", err)
	}
	return days, nil
}

// StoreHealthy reports storage reachability for the status endpoint.
func (q *SignalQuery) StoreHealthy(ctx context.Context) bool {
	return q.store.Health(ctx) == nil
}
