package repository

import (
	"context"
	"fmt"
	"time"

	"FinansLab/internal/domain/models"
	domrepo "FinansLab/internal/domain/repository"
	pkgkafka "FinansLab/pkg/kafka"
)

// signalEvent is the wire shape published on signal lifecycle transitions.
type signalEvent struct {
	Event      string     `json:"event"` // "emitted" or "resolved"
	Instrument string     `json:"instrument"`
	Timeframe  string     `json:"tf"`
	Timestamp  time.Time  `json:"ts"`
	Direction  string     `json:"direction"`
	Score      int        `json:"score"`
	Quality    string     `json:"quality"`
	Entry      float64    `json:"entry"`
	StopLoss   float64    `json:"stop_loss"`
	TP1        float64    `json:"tp1"`
	TP2        float64    `json:"tp2"`
	Status     string     `json:"status"`
	RMultiple  float64    `json:"r_multiple,omitempty"`
	PnLPercent float64    `json:"pnl_pct,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// KafkaSignalPublisher pushes signal lifecycle events to the events topic.
// Keyed by instrument so each instrument's events stay ordered.
type KafkaSignalPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaSignalPublisher(producer *pkgkafka.Producer, topic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

var _ domrepo.SignalPublisher = (*KafkaSignalPublisher)(nil)

func (p *KafkaSignalPublisher) PublishEmitted(ctx context.Context, s *models.PersistedSignal) error {
	return p.publish(ctx, "emitted", s)
}

func (p *KafkaSignalPublisher) PublishResolved(ctx context.Context, s *models.PersistedSignal) error {
	return p.publish(ctx, "resolved", s)
}

func (p *KafkaSignalPublisher) publish(ctx context.Context, event string, s *models.PersistedSignal) error {
	ev := signalEvent{
		Event:      event,
		Instrument: s.Instrument,
		Timeframe:  s.Timeframe,
		Timestamp:  s.Timestamp.UTC(),
		Direction:  string(s.Direction),
		Score:      s.Score,
		Quality:    string(s.Quality),
		Entry:      s.Plan.Entry,
		StopLoss:   s.Plan.StopLoss,
		TP1:        s.Plan.TakeProfit1,
		TP2:        s.Plan.TakeProfit2,
		Status:     string(s.Status),
		RMultiple:  s.RMultiple,
		PnLPercent: s.PnLPercent,
		ResolvedAt: s.ResolvedAt,
	}
	if err := p.producer.Publish(ctx, p.topic, []byte(s.Instrument), ev); err != nil {
		return fmt.Errorf("publish %s event: %w", event, err)
	}
	return nil
}

func (p *KafkaSignalPublisher) Close() error {
	return p.producer.Close()
}
