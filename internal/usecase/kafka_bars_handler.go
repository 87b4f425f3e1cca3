package usecase

import (
	"context"
	"encoding/json"
	"time"

	"FinansLab/internal/domain/models"
	domrepo "FinansLab/internal/domain/repository"
	pkgkafka "FinansLab/pkg/kafka"
	"FinansLab/pkg/util"
)

// KafkaBarsHandler consumes closed bars from the intake topic and writes
// them into bar history. This is the fallback feed: when the REST provider
// is down, analysis still runs on bars that arrived here.
type KafkaBarsHandler struct {
	topic   string
	sink    domrepo.BarSink
	metrics domrepo.Metrics
}

func NewKafkaBarsHandler(topic string, sink domrepo.BarSink, metrics domrepo.Metrics) *KafkaBarsHandler {
	return &KafkaBarsHandler{topic: topic, sink: sink, metrics: metrics}
}

func (h *KafkaBarsHandler) Topic() string { return h.topic }

// incoming message schema: {instrument, tf, t, o, h, l, c, v}
func (h *KafkaBarsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Instrument string  `json:"instrument"`
		Timeframe  string  `json:"tf"`
		T          int64   `json:"t"`
		O          float64 `json:"o"`
		H          float64 `json:"h"`
		L          float64 `json:"l"`
		C          float64 `json:"c"`
		V          float64 `json:"v"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.T > 1e11 { // ms
		m.T = m.T / 1000
	}
	tf := domrepo.NormalizeTimeframe(m.Timeframe)

	err := h.sink.StoreBars(ctx, m.Instrument, tf, []models.Bar{{
		Timestamp: util.AlignBar(time.Unix(m.T, 0).UTC(), string(tf)),
		Open:      m.O,
		High:      m.H,
		Low:       m.L,
		Close:     m.C,
		Volume:    m.V,
	}})
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)
