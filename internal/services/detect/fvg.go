package detect

import (
	"sort"
	"sync"
	"time"

	"FinansLab/internal/domain/models"
	domsvc "FinansLab/internal/domain/service"
)

// FVGConfig tunes gap detection.
type FVGConfig struct {
	MinWidthPct   float64 // minimum gap width as percent of price
	StrongATRMult float64 // width above this multiple of ATR is STRONG
	MaxAgeBars    int     // gaps older than this leave active consideration
}

// trackedFVG is an open gap carried across cycles. The price range is fixed
// at formation; only age and fill state change afterwards.
type trackedFVG struct {
	gap      models.FVG
	formedAt time.Time // timestamp of the completing (third) bar
}

// GapTracker finds 3-bar fair value gaps and carries their age/fill state
// across scan cycles. Filled or aged-out gaps are dropped from active
// consideration but remain in the store's bar history by construction.
type GapTracker struct {
	cfg FVGConfig

	mu   sync.Mutex
	open map[string][]*trackedFVG // per instrument
}

func NewGapTracker(cfg FVGConfig) *GapTracker {
	return &GapTracker{cfg: cfg, open: make(map[string][]*trackedFVG)}
}

// Detect updates tracked gaps for the instrument from the newest bar window
// and returns the active unfilled set, newest first. Overlapping gaps are
// collapsed to the most recent one per direction so a persistent zone never
// earns duplicate confluence credit.
func (t *GapTracker) Detect(instrument string, bars []models.Bar, atr float64) []models.FVG {
	if len(bars) < 3 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tracked := t.open[instrument]
	tracked = t.insertNew(tracked, bars, atr)
	tracked = t.refresh(tracked, bars)
	t.open[instrument] = tracked

	return t.active(tracked)
}

// insertNew scans bar triples (A, B, C) for gaps not yet tracked.
// An upward gap exists when A.high < C.low, a downward one when
// A.low > C.high.
func (t *GapTracker) insertNew(tracked []*trackedFVG, bars []models.Bar, atr float64) []*trackedFVG {
	known := make(map[time.Time]bool, len(tracked))
	for _, tr := range tracked {
		known[tr.formedAt] = true
	}

	for i := 2; i < len(bars); i++ {
		a, c := bars[i-2], bars[i]
		if known[c.Timestamp] {
			continue
		}

		var gap *models.FVG
		if a.High < c.Low {
			gap = &models.FVG{Direction: models.Long, PriceHigh: c.Low, PriceLow: a.High}
		} else if a.Low > c.High {
			gap = &models.FVG{Direction: models.Short, PriceHigh: a.Low, PriceLow: c.High}
		}
		if gap == nil {
			continue
		}

		ref := gap.PriceLow
		if ref <= 0 {
			continue
		}
		if gap.Width()/ref*100 < t.cfg.MinWidthPct {
			continue
		}

		gap.Strength = models.FVGNormal
		if atr > 0 && gap.Width() > t.cfg.StrongATRMult*atr {
			gap.Strength = models.FVGStrong
		}

		tracked = append(tracked, &trackedFVG{gap: *gap, formedAt: c.Timestamp})
	}
	return tracked
}

// refresh recomputes age and fill state against the window and drops gaps
// that filled or aged out. A gap is filled once price trades back into its
// range in any bar after formation.
func (t *GapTracker) refresh(tracked []*trackedFVG, bars []models.Bar) []*trackedFVG {
	kept := tracked[:0]
	for _, tr := range tracked {
		age := 0
		for j := len(bars) - 1; j >= 0 && bars[j].Timestamp.After(tr.formedAt); j-- {
			age++
			b := bars[j]
			if tr.gap.Direction == models.Long && b.Low <= tr.gap.PriceHigh {
				tr.gap.Filled = true
			}
			if tr.gap.Direction == models.Short && b.High >= tr.gap.PriceLow {
				tr.gap.Filled = true
			}
		}
		tr.gap.AgeBars = age

		if tr.gap.Filled || tr.gap.AgeBars > t.cfg.MaxAgeBars {
			continue
		}
		kept = append(kept, tr)
	}
	return kept
}

// active returns unfilled gaps newest first, overlapping ones collapsed to
// the most recent per direction.
func (t *GapTracker) active(tracked []*trackedFVG) []models.FVG {
	sorted := make([]*trackedFVG, len(tracked))
	copy(sorted, tracked)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].formedAt.After(sorted[j].formedAt)
	})

	var out []models.FVG
	for _, tr := range sorted {
		shadowed := false
		for _, seen := range out {
			if seen.Direction == tr.gap.Direction && overlaps(seen, tr.gap) {
				shadowed = true
				break
			}
		}
		if !shadowed {
			out = append(out, tr.gap)
		}
	}
	return out
}

func overlaps(a, b models.FVG) bool {
	return a.PriceLow < b.PriceHigh && b.PriceLow < a.PriceHigh
}

var _ domsvc.FVGDetector = (*GapTracker)(nil)
