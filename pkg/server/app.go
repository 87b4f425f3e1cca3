package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FinansLab/internal/handler/api"
	mid "FinansLab/internal/middleware"
	"FinansLab/internal/domain/repository"
	"FinansLab/internal/usecase"
	pkgch "FinansLab/pkg/clickhouse"
	"FinansLab/pkg/config"
	xhttp "FinansLab/pkg/http"
	pkgkafka "FinansLab/pkg/kafka"
	applogger "FinansLab/pkg/logger"
)

// App encapsulates the engine lifecycle: the adaptive scan loop, the live
// tick collector, the optional bar intake consumer and the HTTP API.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	scanner     *usecase.Scanner
	sched       *usecase.Scheduler
	collector   *usecase.TickCollector
	consumer    *pkgkafka.Consumer
	barsHandler pkgkafka.MessageHandler
	chClient    *pkgch.Client
	pub         repository.SignalPublisher
	notifier    *mid.NotifyPipeline
	handler     *api.SignalsEchoHandler
	httpServer  *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	scanner *usecase.Scanner,
	sched *usecase.Scheduler,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	barsHandler pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	pub repository.SignalPublisher,
	notifier *mid.NotifyPipeline,
	handler *api.SignalsEchoHandler,
) *App {
	return &App{
		cfg:         cfg,
		log:         log,
		scanner:     scanner,
		sched:       sched,
		collector:   collector,
		consumer:    consumer,
		barsHandler: barsHandler,
		chClient:    chClient,
		pub:         pub,
		notifier:    notifier,
		handler:     handler,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	if a.notifier != nil {
		a.notifier.Start(ctx)
	}

	go func() {
		if err := a.collector.Start(ctx); err != nil {
			a.log.Error("tick collector error", applogger.Error(err))
		}
	}()
	a.log.Info("tick collector started", applogger.Strings("instruments", a.cfg.Engine.Instruments))

	if a.consumer != nil && a.barsHandler != nil {
		a.consumer.RegisterHandler(a.barsHandler)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("bar intake consumer started", applogger.String("topic", a.barsHandler.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	go a.scanLoop(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// scanLoop drives scan cycles at the session-appropriate spacing. The
// interval is re-read after every cycle so session transitions take effect
// on the next tick, not after a fixed timer drains.
func (a *App) scanLoop(ctx context.Context) {
	for {
		now := time.Now()
		if err := a.scanner.RunCycle(ctx, now); err != nil {
			a.log.Error("scan cycle error", applogger.Error(err))
		}

		interval := a.sched.Interval(time.Now())
		a.log.Info("scan cycle complete",
			applogger.String("session", string(a.sched.SessionAt(now))),
			applogger.Duration("next_in", interval))

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	if err := a.collector.Stop(); err != nil {
		a.log.Warn("tick collector stop error", applogger.Error(err))
	}

	if a.notifier != nil {
		a.notifier.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	// Flush the error digest before its producer goes away.
	a.log.CloseDigest()

	if a.pub != nil {
		if err := a.pub.Close(); err != nil {
			a.log.Warn("publisher close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
