package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinansLab/internal/domain/models"
	domrepo "FinansLab/internal/domain/repository"
	"FinansLab/pkg/cache"
	"FinansLab/pkg/logger"
)

// FallbackMarketData reads bars from the live provider and falls back to
// stored history when it is unreachable. Fresh windows are mirrored into
// the sink so the fallback keeps up with the market.
type FallbackMarketData struct {
	primary  domrepo.MarketData
	fallback domrepo.MarketData
	sink     domrepo.BarSink
	log      *logger.Logger
}

func NewFallbackMarketData(primary, fallback domrepo.MarketData, sink domrepo.BarSink, log *logger.Logger) *FallbackMarketData {
	return &FallbackMarketData{primary: primary, fallback: fallback, sink: sink, log: log}
}

var _ domrepo.MarketData = (*FallbackMarketData)(nil)

func (m *FallbackMarketData) GetBars(ctx context.Context, instrument string, tf domrepo.Timeframe, lookback int) ([]models.Bar, error) {
	bars, err := m.primary.GetBars(ctx, instrument, tf, lookback)
	if err == nil {
		if m.sink != nil {
			if serr := m.sink.StoreBars(ctx, instrument, tf, bars); serr != nil {
				m.log.Warn("bar history mirror failed",
					logger.String("instrument", instrument), logger.Error(serr))
			}
		}
		return bars, nil
	}
	if !errors.Is(err, models.ErrDataUnavailable) || m.fallback == nil {
		return nil, err
	}

	m.log.Warn("live feed unavailable, using stored history",
		logger.String("instrument", instrument), logger.Error(err))
	bars, ferr := m.fallback.GetBars(ctx, instrument, tf, lookback)
	if ferr != nil || len(bars) == 0 {
		return nil, err
	}
	return bars, nil
}

// CachedMarketData keeps recently fetched windows in the cache so
// back-to-back cycles do not refetch identical klines. The TTL is short
// relative to every bar interval, so a window is never served after a
// new bar could have closed behind it.
type CachedMarketData struct {
	inner domrepo.MarketData
	cache cache.Service
	ttl   time.Duration
}

func NewCachedMarketData(inner domrepo.MarketData, c cache.Service, ttl time.Duration) *CachedMarketData {
	return &CachedMarketData{inner: inner, cache: c, ttl: ttl}
}

var _ domrepo.MarketData = (*CachedMarketData)(nil)

func (m *CachedMarketData) GetBars(ctx context.Context, instrument string, tf domrepo.Timeframe, lookback int) ([]models.Bar, error) {
	key := fmt.Sprintf("finanslab:bars:%s:%s:%d", instrument, tf, lookback)

	var bars []models.Bar
	if err := m.cache.Get(ctx, key, &bars); err == nil && len(bars) > 0 {
		return bars, nil
	}

	bars, err := m.inner.GetBars(ctx, instrument, tf, lookback)
	if err != nil {
		return nil, err
	}
	// A write failure only costs the next fetch.
	_ = m.cache.Set(ctx, key, bars, m.ttl)
	return bars, nil
}
