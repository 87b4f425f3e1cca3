package util

import "time"

// AlignBar truncates a bar open time to its timeframe boundary. Producers
// occasionally stamp bars a few seconds into the interval; storage keys on
// the aligned open time so duplicates collapse.
func AlignBar(t time.Time, tf string) time.Time {
	switch tf {
	case "15m":
		return t.Truncate(15 * time.Minute)
	case "1h":
		return t.Truncate(time.Hour)
	case "4h":
		return t.Truncate(4 * time.Hour)
	default:
		return t.Truncate(time.Minute)
	}
}
