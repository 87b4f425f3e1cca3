package models

import "errors"

// Domain error taxonomy. All are recoverable at cycle scope: a detector or
// feed failure degrades to "no signal for this instrument this cycle" and
// never crashes a scan. Configuration errors are handled separately and are
// fatal at startup.
var (
	// ErrInsufficientData: the bar window is shorter than the longest
	// required lookback. Callers skip the instrument for the cycle instead
	// of computing on a truncated window.
	ErrInsufficientData = errors.New("insufficient bar data for lookback")

	// ErrDataUnavailable: the market data feed could not supply bars.
	// Retried next cycle, optionally via the fallback feed.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrInvalidRiskPlan: ATR is zero/undefined or the stop distance
	// degenerates. The signal is suppressed, not emitted.
	ErrInvalidRiskPlan = errors.New("invalid risk plan")

	// ErrStoreWriteConflict: two writers raced on the same signal row.
	// Retried through the serialized write path.
	ErrStoreWriteConflict = errors.New("signal store write conflict")
)
