package models

// RecentSignalsRequest filters the signal history listing.
type RecentSignalsRequest struct {
	Instrument string `query:"instrument"`
	Limit      int    `query:"limit" default:"50" validate:"gte=0,lte=500"`
}

// PerformanceRequest bounds the daily aggregate range. Dates are
// YYYY-MM-DD; empty means the last 30 days.
type PerformanceRequest struct {
	From string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To   string `query:"to" validate:"omitempty,datetime=2006-01-02"`
}

// StatusResponse is the heartbeat payload. LastScan and NextScanDue are
// empty before the first cycle completes.
type StatusResponse struct {
	Session         string `json:"session"`
	ScanInterval    string `json:"scan_interval"`
	LastScan        string `json:"last_scan,omitempty"`
	NextScanDue     string `json:"next_scan_due,omitempty"`
	StreamUp        bool   `json:"stream_up"`
	StoreUp         bool   `json:"store_up"`
	NotifierCircuit string `json:"notifier_circuit"`
	OpenSignals     int    `json:"open_signals"`
	ScoringVersion  int    `json:"scoring_version"`
}
