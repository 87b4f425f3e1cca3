package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"FinansLab/internal/domain/models"
	domrepo "FinansLab/internal/domain/repository"
	pkghttp "FinansLab/pkg/http"
)

// Client fetches OHLCV klines over the Binance REST API. The secondary
// host is tried when the primary errors, covering host-level outages and
// regional blocks.
type Client struct {
	primary   string
	secondary string
	http      *pkghttp.Client
}

type Option func(*Client)

func WithHosts(primary, secondary string) Option {
	return func(c *Client) {
		c.primary = primary
		c.secondary = secondary
	}
}

func WithHTTPClient(hc *pkghttp.Client) Option {
	return func(c *Client) { c.http = hc }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		primary:   "https://api.binance.com",
		secondary: "https://api1.binance.com",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = pkghttp.NewClient(pkghttp.WithTimeout(15 * time.Second))
	}
	return c
}

var _ domrepo.MarketData = (*Client)(nil)

// GetBars returns the newest lookback closed bars ascending by time.
func (c *Client) GetBars(ctx context.Context, instrument string, tf domrepo.Timeframe, lookback int) ([]models.Bar, error) {
	if lookback <= 0 || lookback > 1000 {
		lookback = 1000
	}
	bars, err := c.klines(ctx, c.primary, instrument, tf, lookback)
	if err == nil {
		return bars, nil
	}
	bars, err2 := c.klines(ctx, c.secondary, instrument, tf, lookback)
	if err2 == nil {
		return bars, nil
	}
	return nil, fmt.Errorf("klines %s: primary %v, secondary %v: %w",
		instrument, err, err2, models.ErrDataUnavailable)
}

// kline rows arrive as mixed-type JSON arrays: open time as a number,
// prices and volume as strings.
func (c *Client) klines(ctx context.Context, host, instrument string, tf domrepo.Timeframe, limit int) ([]models.Bar, error) {
	var rows [][]json.RawMessage
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    host + "/api/v3/klines",
		QueryParams: map[string][]string{
			"symbol":   {instrument},
			"interval": {string(tf)},
			"limit":    {strconv.Itoa(limit)},
		},
	}, &rows)
	if err != nil {
		return nil, err
	}

	bars := make([]models.Bar, 0, len(rows))
	for _, row := range rows {
		b, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("parse kline: %w", err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func parseKline(row []json.RawMessage) (models.Bar, error) {
	var b models.Bar
	if len(row) < 6 {
		return b, fmt.Errorf("short row: %d fields", len(row))
	}
	var openMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return b, fmt.Errorf("open time: %w", err)
	}
	b.Timestamp = time.UnixMilli(openMs).UTC()

	fields := []*float64{&b.Open, &b.High, &b.Low, &b.Close, &b.Volume}
	for i, dst := range fields {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return b, fmt.Errorf("field %d: %w", i+1, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return b, fmt.Errorf("field %d: %w", i+1, err)
		}
		*dst = v
	}
	return b, nil
}
