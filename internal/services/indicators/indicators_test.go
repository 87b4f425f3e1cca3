package indicators

import (
	"errors"
	"math"
	"testing"
	"time"

	"FinansLab/internal/domain/models"
)

func testConfig() Config {
	return Config{
		EMAPeriods:      []int{3, 5},
		RSIPeriod:       3,
		MACDFast:        3,
		MACDSlow:        6,
		MACDSignal:      3,
		ATRPeriod:       3,
		BollingerPeriod: 5,
	}
}

func flatBars(n int, price float64) []models.Bar {
	bars := make([]models.Bar, n)
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = models.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    10,
		}
	}
	return bars
}

func TestEMASeriesKnownValues(t *testing.T) {
	series := EMASeries([]float64{1, 2, 3, 4, 5}, 3)
	// seed at index 2 is the SMA of the first three values
	if series[2] != 2 {
		t.Fatalf("seed: got %v want 2", series[2])
	}
	// k = 0.5 for period 3
	if series[3] != 3 {
		t.Fatalf("idx3: got %v want 3", series[3])
	}
	if series[4] != 4 {
		t.Fatalf("idx4: got %v want 4", series[4])
	}
}

func TestRSISeriesMonotonic(t *testing.T) {
	up := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	series := RSISeries(up, 3)
	if len(series) == 0 {
		t.Fatalf("expected values")
	}
	if got := series[len(series)-1]; got != 100 {
		t.Fatalf("all gains: got %v want 100", got)
	}

	down := []float64{8, 7, 6, 5, 4, 3, 2, 1}
	series = RSISeries(down, 3)
	if got := series[len(series)-1]; got != 0 {
		t.Fatalf("all losses: got %v want 0", got)
	}
}

func TestATRFlatRange(t *testing.T) {
	bars := flatBars(10, 100)
	if got := ATR(bars, 3); got != 2 {
		t.Fatalf("got %v want 2", got)
	}
}

func TestComputeInsufficientData(t *testing.T) {
	_, err := Compute("BTCUSDT", flatBars(4, 100), testConfig())
	if !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestComputeFlatSeries(t *testing.T) {
	snap, err := Compute("BTCUSDT", flatBars(30, 100), testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for p, v := range snap.EMA {
		if v != 100 {
			t.Fatalf("ema %d: got %v want 100", p, v)
		}
	}
	if snap.RSI != 50 {
		t.Fatalf("flat rsi: got %v want 50", snap.RSI)
	}
	if math.Abs(snap.MACDLine) > 1e-9 {
		t.Fatalf("flat macd: got %v want 0", snap.MACDLine)
	}
	if snap.ATR != 2 {
		t.Fatalf("atr: got %v want 2", snap.ATR)
	}
	if snap.Bollinger.Middle != 100 || snap.Bollinger.Upper != 100 || snap.Bollinger.Lower != 100 {
		t.Fatalf("flat bollinger: got %+v", snap.Bollinger)
	}
	if !snap.Timestamp.Equal(flatBars(30, 100)[29].Timestamp) {
		t.Fatalf("snapshot timestamp should be the last bar")
	}
}

func TestMACDSeriesAligned(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	macd, sig := MACDSeries(closes, 3, 6, 3)
	if len(macd) == 0 || len(macd) != len(sig) {
		t.Fatalf("series misaligned: macd %d sig %d", len(macd), len(sig))
	}
	// steady uptrend keeps the fast EMA above the slow one
	if macd[len(macd)-1] <= 0 {
		t.Fatalf("uptrend macd: got %v want > 0", macd[len(macd)-1])
	}
}
