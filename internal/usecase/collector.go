package usecase

import (
	"context"

	"FinansLab/internal/domain/models"
	domrepo "FinansLab/internal/domain/repository"
	"FinansLab/pkg/logger"
)

// TickCollector consumes the live price stream between scans and feeds the
// outcome tracker so stops and targets resolve without waiting for the next
// cycle's bars.
type TickCollector struct {
	stream  domrepo.MarketStream
	tracker *OutcomeTracker
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewTickCollector(stream domrepo.MarketStream, tracker *OutcomeTracker, metrics domrepo.Metrics, log *logger.Logger) *TickCollector {
	return &TickCollector{stream: stream, tracker: tracker, metrics: metrics, log: log}
}

// IsConnected reports the stream connection state for the status endpoint.
func (c *TickCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *TickCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	go c.run(ctx)
	return nil
}

// run consumes stream reads for the life of the collector. Each Read call
// covers one connection; when it fails the loop reconnects and reads the
// fresh connection, so a single stream error never kills reconciliation.
func (c *TickCollector) run(ctx context.Context) {
	for {
		tickCh, errCh := c.stream.Read(ctx)
		if !c.consume(ctx, tickCh, errCh) {
			return
		}

		c.metrics.RecordError("stream")
		for {
			if ctx.Err() != nil {
				return
			}
			if err := c.stream.Reconnect(ctx); err == nil {
				break
			} else {
				c.log.Warn("stream reconnect failed", logger.Error(err))
			}
		}
		c.log.Info("stream reconnected")
	}
}

// consume drains one connection's channels. It returns true when the
// stream failed and a reconnect should follow, false when ctx is done.
func (c *TickCollector) consume(ctx context.Context, tickCh <-chan *models.Tick, errCh <-chan error) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case err, ok := <-errCh:
			if !ok {
				return true
			}
			if err != nil {
				c.log.Warn("stream read error", logger.Error(err))
				return true
			}
		case t, ok := <-tickCh:
			if !ok {
				return true
			}
			if t == nil {
				continue
			}
			if err := c.tracker.OnTick(ctx, t); err != nil {
				c.metrics.RecordError("tick_reconcile")
				c.log.Warn("tick reconcile failed",
					logger.String("instrument", t.Instrument), logger.Error(err))
			}
		}
	}
}

func (c *TickCollector) Stop() error { return c.stream.Close() }
