package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook wraps message handling with lifecycle callbacks. Hooks may
// mutate context, message and payload; a BeforeHandle error skips the
// handler and routes straight to error processing.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error)
	AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
	OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
}

// NoopHook does nothing. It is the consumer's default.
type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	return ctx, km, data, nil
}

func (NoopHook) AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
}

func (NoopHook) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {}

type ctxKey string

const ctxStartTime ctxKey = "kafka_hook_start_time"

// ObserverHook times each message and reports the outcome through OnDone.
// Callbacks run on the consumer worker goroutine and must not block.
type ObserverHook struct {
	OnDone func(topic string, elapsed time.Duration, err error)
}

func (h ObserverHook) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	return context.WithValue(ctx, ctxStartTime, time.Now()), km, data, nil
}

func (h ObserverHook) AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	if h.OnDone == nil {
		return
	}
	var elapsed time.Duration
	if start, ok := ctx.Value(ctxStartTime).(time.Time); ok {
		elapsed = time.Since(start)
	}
	h.OnDone(topic, elapsed, err)
}

func (h ObserverHook) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
}
