package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"FinansLab/internal/domain/models"
	"FinansLab/internal/usecase"
	xlogger "FinansLab/pkg/logger"

	"github.com/labstack/echo/v4"
)

type stubStore struct{}

func (stubStore) Insert(context.Context, *models.PersistedSignal) error { return nil }
func (stubStore) Open(context.Context, string) ([]models.PersistedSignal, error) {
	return nil, nil
}
func (stubStore) AllOpen(context.Context) ([]models.PersistedSignal, error) {
	return []models.PersistedSignal{{}}, nil
}
func (stubStore) UpdateOutcome(context.Context, *models.PersistedSignal) error { return nil }
func (stubStore) ResolvedOn(context.Context, time.Time) ([]models.PersistedSignal, error) {
	return nil, nil
}
func (stubStore) EmittedOn(context.Context, time.Time) ([]models.PersistedSignal, error) {
	return nil, nil
}
func (stubStore) Recent(context.Context, string, int) ([]models.PersistedSignal, error) {
	return nil, nil
}
func (stubStore) UpsertDaily(context.Context, *models.DailyPerformance) error { return nil }
func (stubStore) Daily(context.Context, time.Time, time.Time) ([]models.DailyPerformance, error) {
	return nil, nil
}
func (stubStore) Health(context.Context) error { return nil }
func (stubStore) Close() error                 { return nil }

type stubStream struct{ up bool }

func (s stubStream) IsConnected() bool { return s.up }

type stubCircuit struct{ state string }

func (s stubCircuit) State() string { return s.state }

func apiLogger(t *testing.T) *xlogger.Logger {
	t.Helper()
	l, err := xlogger.New(&xlogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func statusPayload(t *testing.T, h *SignalsEchoHandler) models.StatusResponse {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	if err := h.Status(e.NewContext(req, rec)); err != nil {
		t.Fatalf("status handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status code: got %d want 200", rec.Code)
	}

	var body struct {
		Data models.StatusResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body.Data
}

func TestStatusReportsScanTimesAndCircuit(t *testing.T) {
	sched := usecase.NewScheduler(usecase.DefaultSchedulerConfig(), nil, nil)
	sched.BeginCycle()

	query := usecase.NewSignalQuery(stubStore{})
	h := NewSignalsEchoHandler(apiLogger(t), query, sched, stubStream{up: true}, stubCircuit{state: "open"}, 13)

	got := statusPayload(t, h)
	if got.LastScan == "" || got.NextScanDue == "" {
		t.Fatalf("scan times missing: last=%q next=%q", got.LastScan, got.NextScanDue)
	}
	last, err := time.Parse(time.RFC3339, got.LastScan)
	if err != nil {
		t.Fatalf("last_scan not RFC3339: %v", err)
	}
	next, err := time.Parse(time.RFC3339, got.NextScanDue)
	if err != nil {
		t.Fatalf("next_scan_due not RFC3339: %v", err)
	}
	if !next.After(last) {
		t.Fatalf("next due %v not after last scan %v", next, last)
	}
	if got.NotifierCircuit != "open" {
		t.Fatalf("circuit: got %q want open", got.NotifierCircuit)
	}
	if !got.StreamUp || !got.StoreUp {
		t.Fatalf("health flags: stream=%v store=%v", got.StreamUp, got.StoreUp)
	}
	if got.OpenSignals != 1 {
		t.Fatalf("open signals: got %d want 1", got.OpenSignals)
	}
}

func TestStatusBeforeFirstScanAndWithoutNotifier(t *testing.T) {
	sched := usecase.NewScheduler(usecase.DefaultSchedulerConfig(), nil, nil)
	query := usecase.NewSignalQuery(stubStore{})
	h := NewSignalsEchoHandler(apiLogger(t), query, sched, stubStream{}, nil, 13)

	got := statusPayload(t, h)
	if got.LastScan != "" || got.NextScanDue != "" {
		t.Fatalf("scan times must be empty before the first cycle: last=%q next=%q", got.LastScan, got.NextScanDue)
	}
	if got.NotifierCircuit != "disabled" {
		t.Fatalf("circuit: got %q want disabled", got.NotifierCircuit)
	}
}
