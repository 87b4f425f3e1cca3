package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FinansLab/internal/domain/models"
	domrepo "FinansLab/internal/domain/repository"
)

// Circuit breaker states as reported by State.
const (
	CircuitClosed = "closed"
	CircuitOpen   = "open"
)

// NotifyPipeline sits between the scanner and the external notifier.
// Failed deliveries are buffered and redelivered with bounded exponential
// backoff, and a consecutive-failure circuit breaker stops hammering a
// dead channel. A flaky channel never blocks or fails a scan cycle.
type NotifyPipeline struct {
	sink    domrepo.Notifier
	metrics domrepo.Metrics

	bufSize        int
	backoffMin     time.Duration
	backoffMax     time.Duration
	breakThreshold int
	cooldown       time.Duration

	bufCh   chan *pendingNotify
	stopCh  chan struct{}
	started bool

	mu          sync.Mutex
	consecFails int
	openUntil   time.Time
}

type pendingNotify struct {
	sig      *models.PersistedSignal
	attempts int
}

type PipelineOption func(*NotifyPipeline)

// WithBufferSize sets the retry buffer capacity.
func WithBufferSize(n int) PipelineOption {
	return func(p *NotifyPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithBackoff bounds the per-delivery retry delay.
func WithBackoff(min, max time.Duration) PipelineOption {
	return func(p *NotifyPipeline) {
		if min > 0 {
			p.backoffMin = min
		}
		if max >= p.backoffMin {
			p.backoffMax = max
		}
	}
}

// WithBreaker opens the circuit after threshold consecutive failures and
// keeps it open for the cooldown.
func WithBreaker(threshold int, cooldown time.Duration) PipelineOption {
	return func(p *NotifyPipeline) {
		if threshold > 0 {
			p.breakThreshold = threshold
		}
		if cooldown > 0 {
			p.cooldown = cooldown
		}
	}
}

func NewNotifyPipeline(sink domrepo.Notifier, metrics domrepo.Metrics, opts ...PipelineOption) *NotifyPipeline {
	p := &NotifyPipeline{
		sink:           sink,
		metrics:        metrics,
		bufSize:        100,
		backoffMin:     500 * time.Millisecond,
		backoffMax:     30 * time.Second,
		breakThreshold: 5,
		cooldown:       time.Minute,
		stopCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *pendingNotify, p.bufSize)
	return p
}

var _ domrepo.Notifier = (*NotifyPipeline)(nil)

// State reports the circuit breaker state for the status endpoint.
func (p *NotifyPipeline) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if time.Now().Before(p.openUntil) {
		return CircuitOpen
	}
	return CircuitClosed
}

// circuitOpen reports the breaker state and how long it stays open.
func (p *NotifyPipeline) circuitOpen() (bool, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	remaining := time.Until(p.openUntil)
	return remaining > 0, remaining
}

// recordResult updates the consecutive-failure count and trips the
// breaker at the threshold.
func (p *NotifyPipeline) recordResult(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		p.consecFails = 0
		return
	}
	p.consecFails++
	if p.consecFails >= p.breakThreshold && !time.Now().Before(p.openUntil) {
		p.openUntil = time.Now().Add(p.cooldown)
		p.metrics.RecordError("notify_breaker_open")
	}
}

// Start launches background redelivery of buffered notifications.
func (p *NotifyPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case pn := <-p.bufCh:
				if pn == nil || pn.sig == nil {
					continue
				}
				if open, remaining := p.circuitOpen(); open {
					// park it until the circuit can close again;
					// the worker moves on to the next item
					p.requeueAfter(pn, remaining)
					continue
				}
				err := p.sink.Notify(ctx, pn.sig)
				p.recordResult(err)
				if err != nil {
					p.metrics.RecordError("notify_retry")
					pn.attempts++
					p.requeueAfter(pn, p.backoffFor(pn.attempts))
				}
			}
		}
	}()
}

// backoffFor doubles the minimum delay per attempt up to the cap.
func (p *NotifyPipeline) backoffFor(attempts int) time.Duration {
	d := p.backoffMin
	for i := 1; i < attempts && d < p.backoffMax; i++ {
		d *= 2
	}
	if d > p.backoffMax {
		d = p.backoffMax
	}
	return d
}

// requeueAfter schedules one delivery attempt without stalling the worker
// on the other buffered items.
func (p *NotifyPipeline) requeueAfter(pn *pendingNotify, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	time.AfterFunc(delay, func() {
		select {
		case <-p.stopCh:
		case p.bufCh <- pn:
		default:
			p.metrics.RecordError("notify_buffer_drop")
		}
	})
}

// Stop stops background redelivery.
func (p *NotifyPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Notify forwards to the sink, buffering on failure. The returned error is
// informational: the signal is already queued for retry. While the breaker
// is open the sink is not called at all; the signal goes straight to the
// buffer for redelivery after the cooldown.
func (p *NotifyPipeline) Notify(ctx context.Context, s *models.PersistedSignal) error {
	if s == nil {
		return fmt.Errorf("signal nil")
	}
	if open, remaining := p.circuitOpen(); open {
		p.metrics.RecordError("notify_breaker_reject")
		p.requeueAfter(&pendingNotify{sig: s}, remaining)
		return fmt.Errorf("notifier circuit open")
	}
	err := p.sink.Notify(ctx, s)
	p.recordResult(err)
	if err != nil {
		select {
		case p.bufCh <- &pendingNotify{sig: s, attempts: 1}:
			p.metrics.RecordError("notify_buffered")
		default:
			p.metrics.RecordError("notify_buffer_full")
		}
		return fmt.Errorf("notify downstream: %w", err)
	}
	return nil
}
