package models

import "time"

// Bar represents one OHLCV record for an instrument at one timeframe.
// Bars are immutable once emitted by the market data feed and are always
// handled as ordered sequences with strictly increasing timestamps.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Tick is a live price update from the market stream, used between scans to
// reconcile open signals early.
type Tick struct {
	Instrument string
	Price      float64
	Timestamp  time.Time
}

// SortedByTime reports whether bars are strictly ascending in time.
func SortedByTime(bars []Bar) bool {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return false
		}
	}
	return true
}

// Closes extracts the close series from a bar window.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
