package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"FinansLab/internal/domain/models"
)

type noopMetrics struct{}

func (noopMetrics) RecordScan(string, float64)      {}
func (noopMetrics) RecordSignal(string, string)     {}
func (noopMetrics) RecordError(string)              {}
func (noopMetrics) RecordLastPrice(string, float64) {}
func (noopMetrics) RecordOpenSignals(int)           {}

// flakySink fails its first failFirst deliveries and succeeds afterwards.
type flakySink struct {
	mu        sync.Mutex
	calls     int
	failFirst int
	delivered []string
}

func (s *flakySink) Notify(_ context.Context, sig *models.PersistedSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failFirst {
		return errors.New("send failed")
	}
	s.delivered = append(s.delivered, sig.Instrument)
	return nil
}

func (s *flakySink) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *flakySink) deliveredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

func notifySignal(instrument string) *models.PersistedSignal {
	return &models.PersistedSignal{
		ConfluenceSignal: models.ConfluenceSignal{Instrument: instrument},
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	sink := &flakySink{failFirst: 100}
	p := NewNotifyPipeline(sink, noopMetrics{}, WithBreaker(3, time.Hour))

	for i := 0; i < 3; i++ {
		_ = p.Notify(ctx, notifySignal("BTCUSDT"))
	}
	if got := p.State(); got != CircuitOpen {
		t.Fatalf("state after threshold: got %s want %s", got, CircuitOpen)
	}

	// with the circuit open the sink must not be called again
	before := sink.callCount()
	if err := p.Notify(ctx, notifySignal("BTCUSDT")); err == nil {
		t.Fatal("open circuit must reject")
	}
	if sink.callCount() != before {
		t.Fatalf("sink called while circuit open: %d -> %d", before, sink.callCount())
	}
}

func TestBreakerClosesAfterCooldown(t *testing.T) {
	ctx := context.Background()
	sink := &flakySink{failFirst: 1}
	p := NewNotifyPipeline(sink, noopMetrics{}, WithBreaker(1, 20*time.Millisecond))

	_ = p.Notify(ctx, notifySignal("BTCUSDT"))
	if got := p.State(); got != CircuitOpen {
		t.Fatalf("state after failure: got %s want %s", got, CircuitOpen)
	}

	time.Sleep(40 * time.Millisecond)
	if err := p.Notify(ctx, notifySignal("BTCUSDT")); err != nil {
		t.Fatalf("delivery after cooldown: %v", err)
	}
	if got := p.State(); got != CircuitClosed {
		t.Fatalf("state after success: got %s want %s", got, CircuitClosed)
	}
}

func TestRetryRedeliversBufferedSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &flakySink{failFirst: 1}
	p := NewNotifyPipeline(sink, noopMetrics{},
		WithBackoff(time.Millisecond, 5*time.Millisecond),
		WithBreaker(10, time.Minute))
	p.Start(ctx)
	defer p.Stop()

	if err := p.Notify(ctx, notifySignal("BTCUSDT")); err == nil {
		t.Fatal("first delivery must report the failure")
	}

	deadline := time.Now().Add(2 * time.Second)
	for sink.deliveredCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("buffered signal never redelivered")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestRetryBackoffDoesNotStallOtherDeliveries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the first two sends fail, so both signals end up in the retry
	// buffer; both must still get through
	sink := &flakySink{failFirst: 2}
	p := NewNotifyPipeline(sink, noopMetrics{},
		WithBackoff(time.Millisecond, 5*time.Millisecond),
		WithBreaker(10, time.Minute))
	p.Start(ctx)
	defer p.Stop()

	_ = p.Notify(ctx, notifySignal("BTCUSDT"))
	_ = p.Notify(ctx, notifySignal("ETHUSDT"))

	deadline := time.Now().Add(2 * time.Second)
	for sink.deliveredCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d of 2 buffered signals redelivered", sink.deliveredCount())
		}
		time.Sleep(2 * time.Millisecond)
	}
}
