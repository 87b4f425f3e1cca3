package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"FinansLab/internal/domain/models"
	domrepo "FinansLab/internal/domain/repository"

	"github.com/gorilla/websocket"
)

// Stream implements MarketStream on the Binance combined trade stream.
// conn and connected are written by Connect/Reconnect/Close and read by
// the reader and ping goroutines, so every access goes through mu.
type Stream struct {
	baseURL        string
	instruments    []string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

func NewStream(baseURL string, instruments []string, reconnectDelay, pingInterval time.Duration) domrepo.MarketStream {
	if baseURL == "" {
		baseURL = "wss://stream.binance.com:9443/stream"
	}
	return &Stream{
		baseURL:        baseURL,
		instruments:    instruments,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
	}
}

// Connect dials the combined stream with all instruments in the URL, so
// Subscribe has nothing left to negotiate.
func (s *Stream) Connect(ctx context.Context) error {
	streams := make([]string, 0, len(s.instruments))
	for _, inst := range s.instruments {
		streams = append(streams, strings.ToLower(inst)+"@trade")
	}
	u := fmt.Sprintf("%s?streams=%s", s.baseURL, strings.Join(streams, "/"))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("binance stream connect: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	return nil
}

// Subscribe is a no-op: subscriptions ride on the connect URL.
func (s *Stream) Subscribe(ctx context.Context) error {
	if s.current() == nil {
		return fmt.Errorf("binance stream not connected")
	}
	return nil
}

func (s *Stream) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	return s.conn
}

type tradeFrame struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType string `json:"e"`
		Symbol    string `json:"s"`
		Price     string `json:"p"`
		TradeTime int64  `json:"T"` // ms
	} `json:"data"`
}

// Read consumes the connection current at call time and streams ticks and
// errors until it fails; both channels close when the reader exits, and the
// caller re-invokes Read after a successful Reconnect. Ticks are dropped on
// backpressure rather than stalling the read loop; the next trade
// supersedes them anyway.
func (s *Stream) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, 1024)
	errs := make(chan error, 1)
	done := make(chan struct{})
	conn := s.current()

	// keepalive pings stop with this connection's reader
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				if conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	go func() {
		defer close(done)
		defer close(ticks)
		defer close(errs)

		if conn == nil {
			errs <- fmt.Errorf("binance stream not connected")
			return
		}
		for {
			if ctx.Err() != nil {
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("binance stream read: %w", err)
				return
			}
			var f tradeFrame
			if err := json.Unmarshal(b, &f); err != nil {
				continue
			}
			if f.Data.EventType != "trade" {
				continue
			}
			price, err := strconv.ParseFloat(f.Data.Price, 64)
			if err != nil {
				continue
			}
			tick := &models.Tick{
				Instrument: f.Data.Symbol,
				Price:      price,
				Timestamp:  time.UnixMilli(f.Data.TradeTime).UTC(),
			}
			select {
			case ticks <- tick:
			default:
				// drop on backpressure
			}
		}
	}()

	return ticks, errs
}

// Reconnect tears down the current connection and dials a fresh one after
// the configured delay. The delay wait respects ctx cancellation.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.reconnectDelay):
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

func (s *Stream) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
