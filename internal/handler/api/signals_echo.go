package api

import (
	"time"

	models "FinansLab/internal/domain/models"
	"FinansLab/internal/usecase"
	xhttp "FinansLab/pkg/http"
	xlogger "FinansLab/pkg/logger"

	"github.com/labstack/echo/v4"
)

// StreamStatus reports live stream connectivity for the status endpoint.
type StreamStatus interface {
	IsConnected() bool
}

// CircuitStatus reports the notifier circuit breaker state.
type CircuitStatus interface {
	State() string
}

// SignalsEchoHandler exposes the read API over the signal store.
type SignalsEchoHandler struct {
	logger  *xlogger.Logger
	query   *usecase.SignalQuery
	sched   *usecase.Scheduler
	stream  StreamStatus
	circuit CircuitStatus
	version int
}

func NewSignalsEchoHandler(logger *xlogger.Logger, query *usecase.SignalQuery, sched *usecase.Scheduler, stream StreamStatus, circuit CircuitStatus, scoringVersion int) *SignalsEchoHandler {
	return &SignalsEchoHandler{
		logger:  logger,
		query:   query,
		sched:   sched,
		stream:  stream,
		circuit: circuit,
		version: scoringVersion,
	}
}

func (h *SignalsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/signals", h.Signals)
	g.GET("/signals/open", h.OpenSignals)
	g.GET("/performance", h.Performance)
	g.GET("/status", h.Status)
}

func (h *SignalsEchoHandler) Signals(c echo.Context) error {
	req := &models.RecentSignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.query.Recent(c.Request().Context(), usecase.RecentSignalsParams{
		Instrument: req.Instrument,
		Limit:      req.Limit,
	})
	if err != nil {
		h.logger.Error("recent signals query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("signal store unavailable").WithError(err))
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *SignalsEchoHandler) OpenSignals(c echo.Context) error {
	res, err := h.query.Open(c.Request().Context())
	if err != nil {
		h.logger.Error("open signals query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("signal store unavailable").WithError(err))
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *SignalsEchoHandler) Performance(c echo.Context) error {
	req := &models.PerformanceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	var params usecase.PerformanceParams
	if req.From != "" {
		params.From, _ = time.Parse("2006-01-02", req.From)
	}
	if req.To != "" {
		params.To, _ = time.Parse("2006-01-02", req.To)
	}

	res, err := h.query.Performance(c.Request().Context(), params)
	if err != nil {
		h.logger.Error("performance query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("signal store unavailable").WithError(err))
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *SignalsEchoHandler) Status(c echo.Context) error {
	ctx := c.Request().Context()
	now := time.Now()

	open, err := h.query.Open(ctx)
	openCount := 0
	if err == nil {
		openCount = len(open)
	}

	streamUp := false
	if h.stream != nil {
		streamUp = h.stream.IsConnected()
	}
	circuit := "disabled"
	if h.circuit != nil {
		circuit = h.circuit.State()
	}

	var lastScan, nextDue string
	if t := h.sched.LastScan(); !t.IsZero() {
		lastScan = t.UTC().Format(time.RFC3339)
		nextDue = h.sched.NextDue().UTC().Format(time.RFC3339)
	}

	return xhttp.SuccessResponse(c, models.StatusResponse{
		Session:         string(h.sched.SessionAt(now)),
		ScanInterval:    h.sched.Interval(now).String(),
		LastScan:        lastScan,
		NextScanDue:     nextDue,
		StreamUp:        streamUp,
		StoreUp:         h.query.StoreHealthy(ctx),
		NotifierCircuit: circuit,
		OpenSignals:     openCount,
		ScoringVersion:  h.version,
	})
}
