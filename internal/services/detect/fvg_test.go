package detect

import (
	"testing"
	"time"

	"FinansLab/internal/domain/models"
)

func gapConfig() FVGConfig {
	return FVGConfig{MinWidthPct: 0.1, StrongATRMult: 1.0, MaxAgeBars: 10}
}

func mkBar(i int, o, h, l, c float64) models.Bar {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return models.Bar{
		Timestamp: start.Add(time.Duration(i) * time.Hour),
		Open:      o, High: h, Low: l, Close: c,
	}
}

func TestGapDetectionUpward(t *testing.T) {
	tr := NewGapTracker(gapConfig())
	bars := []models.Bar{
		mkBar(0, 99, 100, 98, 100),   // A: high 100
		mkBar(1, 100, 104, 100, 103), // B
		mkBar(2, 105, 108, 105, 107), // C: low 105
	}
	gaps := tr.Detect("BTCUSDT", bars, 1)

	if len(gaps) != 1 {
		t.Fatalf("got %d gaps want 1", len(gaps))
	}
	g := gaps[0]
	if g.Direction != models.Long {
		t.Fatalf("direction: got %s want LONG", g.Direction)
	}
	if g.PriceLow != 100 || g.PriceHigh != 105 {
		t.Fatalf("range: got [%v, %v] want [100, 105]", g.PriceLow, g.PriceHigh)
	}
	// width 5 exceeds 1x ATR of 1
	if g.Strength != models.FVGStrong {
		t.Fatalf("strength: got %s want STRONG", g.Strength)
	}
	if g.AgeBars != 0 {
		t.Fatalf("age: got %d want 0", g.AgeBars)
	}
}

func TestGapDetectionDownward(t *testing.T) {
	tr := NewGapTracker(gapConfig())
	bars := []models.Bar{
		mkBar(0, 107, 108, 105, 106), // A: low 105
		mkBar(1, 104, 104, 101, 102), // B
		mkBar(2, 100, 100, 97, 98),   // C: high 100
	}
	gaps := tr.Detect("BTCUSDT", bars, 10)

	if len(gaps) != 1 {
		t.Fatalf("got %d gaps want 1", len(gaps))
	}
	g := gaps[0]
	if g.Direction != models.Short {
		t.Fatalf("direction: got %s want SHORT", g.Direction)
	}
	if g.PriceLow != 100 || g.PriceHigh != 105 {
		t.Fatalf("range: got [%v, %v] want [100, 105]", g.PriceLow, g.PriceHigh)
	}
	// width 5 below 1x ATR of 10
	if g.Strength != models.FVGNormal {
		t.Fatalf("strength: got %s want NORMAL", g.Strength)
	}
}

func TestGapAgesAcrossCycles(t *testing.T) {
	tr := NewGapTracker(gapConfig())
	// bar 1's high reaches 106 so the later bars never open a second gap
	// above this one
	bars := []models.Bar{
		mkBar(0, 99, 100, 98, 100),
		mkBar(1, 100, 106, 100, 103),
		mkBar(2, 105, 108, 105, 107),
	}
	tr.Detect("BTCUSDT", bars, 1)

	// two more bars that stay above the gap
	bars = append(bars,
		mkBar(3, 107, 110, 106, 109),
		mkBar(4, 109, 112, 108, 111),
	)
	gaps := tr.Detect("BTCUSDT", bars, 1)
	if len(gaps) != 1 {
		t.Fatalf("got %d gaps want 1", len(gaps))
	}
	if gaps[0].AgeBars != 2 {
		t.Fatalf("age: got %d want 2", gaps[0].AgeBars)
	}
}

func TestGapFilledWhenPriceReenters(t *testing.T) {
	tr := NewGapTracker(gapConfig())
	bars := []models.Bar{
		mkBar(0, 99, 100, 98, 100),
		mkBar(1, 100, 104, 100, 103),
		mkBar(2, 105, 108, 105, 107),
	}
	tr.Detect("BTCUSDT", bars, 1)

	// price trades back into the gap range
	bars = append(bars, mkBar(3, 107, 107, 104, 105))
	gaps := tr.Detect("BTCUSDT", bars, 1)
	if len(gaps) != 0 {
		t.Fatalf("filled gap must leave active set, got %d", len(gaps))
	}
}

func TestGapExpiresPastMaxAge(t *testing.T) {
	cfg := gapConfig()
	cfg.MaxAgeBars = 2
	tr := NewGapTracker(cfg)
	bars := []models.Bar{
		mkBar(0, 99, 100, 98, 100),
		mkBar(1, 100, 104, 100, 103),
		mkBar(2, 105, 108, 105, 107),
	}
	tr.Detect("BTCUSDT", bars, 1)

	for i := 3; i < 7; i++ {
		bars = append(bars, mkBar(i, 108, 112, 107, 110))
	}
	gaps := tr.Detect("BTCUSDT", bars, 1)
	if len(gaps) != 0 {
		t.Fatalf("aged out gap must leave active set, got %d", len(gaps))
	}
}

func TestOverlappingGapsCollapseToNewest(t *testing.T) {
	tr := NewGapTracker(gapConfig())
	// triples (0,2) and (1,3) both gap upward with overlapping ranges
	bars := []models.Bar{
		mkBar(0, 99, 100, 98, 100),   // A1: high 100
		mkBar(1, 100, 102, 100, 101), // A2: high 102
		mkBar(2, 105, 106, 105, 106), // C1: low 105 -> gap [100, 105]
		mkBar(3, 107, 109, 107, 108), // C2: low 107 -> gap [102, 107]
	}
	gaps := tr.Detect("BTCUSDT", bars, 100)

	if len(gaps) != 1 {
		t.Fatalf("overlapping gaps must collapse, got %d", len(gaps))
	}
	if gaps[0].PriceHigh != 107 {
		t.Fatalf("newest gap must win: got high %v want 107", gaps[0].PriceHigh)
	}
}

func TestDistinctGapsBothSurvive(t *testing.T) {
	tr := NewGapTracker(gapConfig())
	bars := []models.Bar{
		mkBar(0, 99, 100, 98, 100),   // A1: high 100
		mkBar(1, 103, 106, 103, 104), // B
		mkBar(2, 105, 108, 105, 107), // C1: low 105 -> gap [100, 105]
		mkBar(3, 108, 110, 106, 109), // B, low 106 keeps gap 1 unfilled
		mkBar(4, 112, 115, 111, 114), // C2: low 111 -> gap [108, 111]
	}
	gaps := tr.Detect("BTCUSDT", bars, 100)

	if len(gaps) != 2 {
		t.Fatalf("distinct gaps must both survive, got %d", len(gaps))
	}
	if gaps[0].PriceLow != 108 {
		t.Fatalf("newest first: got low %v want 108", gaps[0].PriceLow)
	}
}
