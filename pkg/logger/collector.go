package logger

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// Publisher ships a flushed digest batch somewhere durable. The kafka
// producer satisfies it directly.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

type DigestConfig struct {
	FlushInterval time.Duration // periodic flush cadence
	MaxEntries    int           // flush early once this many distinct errors accumulate
	Topic         string
	Publisher     Publisher
}

// DigestEntry is one distinct error site with its occurrence window.
// Repeated errors from the same site only bump Count, so a flapping
// dependency produces one entry per flush instead of a log flood.
type DigestEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// ErrorDigest batches error-level logs by call site and publishes the
// aggregated batch on a timer or when MaxEntries is reached.
type ErrorDigest struct {
	cfg     *DigestConfig
	entries map[string]*DigestEntry
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewErrorDigest(cfg *DigestConfig) *ErrorDigest {
	ctx, cancel := context.WithCancel(context.Background())
	d := &ErrorDigest{
		cfg:     cfg,
		entries: make(map[string]*DigestEntry),
		ctx:     ctx,
		cancel:  cancel,
	}
	d.wg.Add(1)
	go d.flushLoop()
	return d
}

func (d *ErrorDigest) Observe(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := entryKey(level, message, caller)

	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.entries[key]; ok {
		e.Count++
		e.LastSeen = now
		return
	}
	// The first occurrence's fields stand in for the whole group.
	d.entries[key] = &DigestEntry{
		Level:     level,
		Message:   message,
		Fields:    fields,
		Caller:    caller,
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
	}
	if len(d.entries) >= d.cfg.MaxEntries {
		d.flushLocked()
	}
}

// entryKey groups by level, message and call site. Fields are excluded
// on purpose: they carry per-occurrence values (prices, instruments)
// that would defeat the aggregation.
func entryKey(level, message, caller string) string {
	h := sha256.Sum256([]byte(level + "\x00" + message + "\x00" + caller))
	return fmt.Sprintf("%x", h[:8])
}

func (d *ErrorDigest) flushLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.mu.Lock()
			d.flushLocked()
			d.mu.Unlock()
		case <-d.ctx.Done():
			d.mu.Lock()
			d.flushLocked()
			d.mu.Unlock()
			return
		}
	}
}

func (d *ErrorDigest) flushLocked() {
	if len(d.entries) == 0 {
		return
	}

	batch := make([]DigestEntry, 0, len(d.entries))
	for _, e := range d.entries {
		batch = append(batch, *e)
	}
	d.entries = make(map[string]*DigestEntry)

	// Publish off the lock. A failed flush is reported on stderr rather
	// than through the logger, which would feed the digest again.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := d.cfg.Publisher.Publish(ctx, d.cfg.Topic, nil, batch); err != nil {
			fmt.Printf("error digest: publish failed: %v\n", err)
		}
	}()
}

func (d *ErrorDigest) Close() {
	d.cancel()
	d.wg.Wait()
}
