package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"FinansLab/internal/domain/models"
	"FinansLab/internal/domain/repository"
	domservice "FinansLab/internal/domain/service"
	"FinansLab/internal/handler/api"
	mid "FinansLab/internal/middleware"
	internalrepo "FinansLab/internal/repository"
	"FinansLab/internal/service/binance"
	"FinansLab/internal/service/notify"
	"FinansLab/internal/service/ratelimit"
	"FinansLab/internal/services/detect"
	"FinansLab/internal/services/indicators"
	"FinansLab/internal/usecase"
	"FinansLab/pkg/cache"
	pkgch "FinansLab/pkg/clickhouse"
	"FinansLab/pkg/config"
	pkghttp "FinansLab/pkg/http"
	pkgkafka "FinansLab/pkg/kafka"
	"FinansLab/pkg/logger"
	"FinansLab/pkg/metrics"
	"FinansLab/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	format := "json"
	if cfg.Environment == "development" {
		format = "console"
	}
	l, err := logger.New(&logger.Config{Level: "info", Format: format, Output: "stdout"})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and ensures schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithAuth(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.SchemaStatements(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideSignalStore creates the ClickHouse-backed signal store.
func ProvideSignalStore(chClient *pkgch.Client, cfg *config.Config) *internalrepo.ClickHouseSignalStore {
	return internalrepo.NewClickHouseSignalStore(chClient.DB(), cfg.ClickHouse.Database)
}

// ProvideKafkaProducer creates a Kafka producer, nil when kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSignalPublisher creates the Kafka signal event publisher.
func ProvideSignalPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.SignalPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.EventsTopic)
}

// ProvideKafkaConsumer creates the bar intake consumer, nil when disabled.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaBarsHandler registers the handler for the bar intake topic.
func ProvideKafkaBarsHandler(store *internalrepo.ClickHouseSignalStore, m repository.Metrics, cfg *config.Config) *usecase.KafkaBarsHandler {
	return usecase.NewKafkaBarsHandler(cfg.Kafka.BarsTopic, store, m)
}

// ProvideMarketData creates the REST provider with stored-history fallback
// and a short-lived window cache in front.
func ProvideMarketData(store *internalrepo.ClickHouseSignalStore, cfg *config.Config, c cache.Service, l *logger.Logger) repository.MarketData {
	client := binance.NewClient(
		binance.WithHosts(cfg.Binance.RESTHost, cfg.Binance.RESTHostBackup),
		binance.WithHTTPClient(pkghttp.NewClient(pkghttp.WithTimeout(cfg.Binance.RequestTimeout))),
	)
	md := internalrepo.NewFallbackMarketData(client, store, store, l)
	if c == nil {
		return md
	}
	return internalrepo.NewCachedMarketData(md, c, time.Minute)
}

// ProvideMarketStream creates the Binance trade stream.
func ProvideMarketStream(cfg *config.Config) repository.MarketStream {
	return binance.NewStream(
		cfg.Binance.WebSocketURL,
		cfg.Engine.Instruments,
		cfg.Binance.ReconnectDelay,
		cfg.Binance.PingInterval,
	)
}

// ProvideCache creates the dedup ledger cache: layered Redis when enabled,
// in-process memory otherwise.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}
	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port: %w", err)
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(host),
		cache.WithRedisPort(port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix("finanslab"),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(rc), nil
}

// ProvideScheduler creates the session scheduler with its dedup ledger.
func ProvideScheduler(cfg *config.Config, c cache.Service, l *logger.Logger) *usecase.Scheduler {
	return usecase.NewScheduler(usecase.SchedulerConfig{
		OverlapInterval: cfg.Engine.Scheduler.OverlapInterval,
		SingleInterval:  cfg.Engine.Scheduler.SingleInterval,
		QuietInterval:   cfg.Engine.Scheduler.QuietInterval,
		Sessions: usecase.SessionWindows{
			OverlapStart: cfg.Engine.Scheduler.Sessions.OverlapStart,
			OverlapEnd:   cfg.Engine.Scheduler.Sessions.OverlapEnd,
			MorningStart: cfg.Engine.Scheduler.Sessions.MorningStart,
			MorningEnd:   cfg.Engine.Scheduler.Sessions.MorningEnd,
			EveningStart: cfg.Engine.Scheduler.Sessions.EveningStart,
			EveningEnd:   cfg.Engine.Scheduler.Sessions.EveningEnd,
		},
		DedupCycles: cfg.Engine.Scheduler.DedupCycles,
		ScoreDelta:  cfg.Engine.Scheduler.ScoreDelta,
	}, c, l)
}

// ProvideIndicatorConfig maps the indicator section.
func ProvideIndicatorConfig(cfg *config.Config) indicators.Config {
	return indicators.Config{
		EMAPeriods:      cfg.Engine.Indicators.EMAPeriods,
		RSIPeriod:       cfg.Engine.Indicators.RSIPeriod,
		MACDFast:        cfg.Engine.Indicators.MACDFast,
		MACDSlow:        cfg.Engine.Indicators.MACDSlow,
		MACDSignal:      cfg.Engine.Indicators.MACDSignal,
		ATRPeriod:       cfg.Engine.Indicators.ATRPeriod,
		BollingerPeriod: cfg.Engine.Indicators.BollingerPeriod,
	}
}

// ProvideBiasDetector creates the EMA stack bias detector.
func ProvideBiasDetector(cfg *config.Config) domservice.BiasDetector {
	return detect.NewEMABias(cfg.Engine.Indicators.EMAPeriods)
}

// ProvideFVGDetector creates the gap tracker.
func ProvideFVGDetector(cfg *config.Config) domservice.FVGDetector {
	return detect.NewGapTracker(detect.FVGConfig{
		MinWidthPct:   cfg.Engine.FVG.MinWidthPct,
		StrongATRMult: cfg.Engine.FVG.StrongATRMult,
		MaxAgeBars:    cfg.Engine.FVG.MaxAgeBars,
	})
}

// ProvideScalpDetector creates the scalp setup scanner.
func ProvideScalpDetector(cfg *config.Config) domservice.ScalpDetector {
	shortest := 0
	for _, p := range cfg.Engine.Indicators.EMAPeriods {
		if shortest == 0 || p < shortest {
			shortest = p
		}
	}
	return detect.NewScalpScanner(detect.ScalpConfig{
		Oversold:       cfg.Engine.Scalp.Oversold,
		Overbought:     cfg.Engine.Scalp.Overbought,
		CrossWithin:    cfg.Engine.Scalp.CrossWithin,
		NearEMAPct:     cfg.Engine.Scalp.NearEMAPct,
		ShortestPeriod: shortest,
	})
}

// ProvideScorer creates the confluence scorer for the configured revision.
func ProvideScorer(cfg *config.Config) *usecase.ConfluenceScorer {
	weights := usecase.DefaultWeights(cfg.Engine.Confluence.Version)
	weights.MinStrength = cfg.Engine.Confluence.MinStrength
	return usecase.NewConfluenceScorer(weights, usecase.TierThresholds{
		Mukemmel: cfg.Engine.Confluence.Tiers.Mukemmel,
		CokIyi:   cfg.Engine.Confluence.Tiers.CokIyi,
		Iyi:      cfg.Engine.Confluence.Tiers.Iyi,
		Orta:     cfg.Engine.Confluence.Tiers.Orta,
	})
}

// ProvideRiskPlanner creates the ATR risk planner.
func ProvideRiskPlanner(cfg *config.Config) *usecase.RiskPlanner {
	return usecase.NewRiskPlanner(usecase.RiskConfig{
		StopATRMult:         cfg.Engine.Risk.StopATRMult,
		RewardMultiples:     cfg.Engine.Risk.RewardMultiples,
		AccountRiskFraction: cfg.Engine.Risk.AccountRiskFraction,
	})
}

// ProvideTracker creates the outcome tracker.
func ProvideTracker(cfg *config.Config, store *internalrepo.ClickHouseSignalStore, pub repository.SignalPublisher, m repository.Metrics, l *logger.Logger) *usecase.OutcomeTracker {
	return usecase.NewOutcomeTracker(usecase.TrackerConfig{
		MaxAge: cfg.Engine.Tracker.MaxAge,
	}, store, pub, m, l)
}

// ProvideNotifier wraps the Telegram sink in the retry pipeline. Nil when
// Telegram is disabled; the scanner then skips notification entirely.
func ProvideNotifier(cfg *config.Config, m repository.Metrics) *mid.NotifyPipeline {
	if !cfg.Telegram.Enabled {
		return nil
	}
	tg := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, ratelimit.New())
	return mid.NewNotifyPipeline(tg, m,
		mid.WithBufferSize(100),
		mid.WithBreaker(cfg.Telegram.BreakerThreshold, cfg.Telegram.BreakerCooldown))
}

// ProvideScanner assembles the scan cycle orchestrator.
func ProvideScanner(
	cfg *config.Config,
	indCfg indicators.Config,
	market repository.MarketData,
	bias domservice.BiasDetector,
	fvg domservice.FVGDetector,
	scalp domservice.ScalpDetector,
	scorer *usecase.ConfluenceScorer,
	risk *usecase.RiskPlanner,
	sched *usecase.Scheduler,
	tracker *usecase.OutcomeTracker,
	store *internalrepo.ClickHouseSignalStore,
	pub repository.SignalPublisher,
	notifier *mid.NotifyPipeline,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.Scanner {
	scannerCfg := usecase.ScannerConfig{
		Instruments:         cfg.Engine.Instruments,
		Timeframe:           repository.NormalizeTimeframe(cfg.Engine.Timeframe),
		Lookback:            cfg.Engine.Lookback,
		ReferenceInstrument: cfg.Engine.ReferenceInstrument,
		InstrumentTimeout:   cfg.Engine.Scanner.InstrumentTimeout,
		CycleTimeout:        cfg.Engine.Scanner.CycleTimeout,
		NotifyTier:          models.QualityTier(cfg.Engine.Scanner.NotifyTier),
	}
	var sink repository.Notifier
	if notifier != nil {
		sink = notifier
	}
	return usecase.NewScanner(scannerCfg, indCfg, market, bias, fvg, scalp,
		scorer, risk, sched, tracker, store, pub, sink, m, l)
}

// ProvideTickCollector creates the live stream consumer.
func ProvideTickCollector(stream repository.MarketStream, tracker *usecase.OutcomeTracker, m repository.Metrics, l *logger.Logger) *usecase.TickCollector {
	return usecase.NewTickCollector(stream, tracker, m, l)
}

// ProvideSignalQuery creates the read-path usecase.
func ProvideSignalQuery(store *internalrepo.ClickHouseSignalStore) *usecase.SignalQuery {
	return usecase.NewSignalQuery(store)
}

// ProvideAPIHandler creates the HTTP API handler.
func ProvideAPIHandler(l *logger.Logger, query *usecase.SignalQuery, sched *usecase.Scheduler, collector *usecase.TickCollector, notifier *mid.NotifyPipeline, cfg *config.Config) *api.SignalsEchoHandler {
	// a nil pipeline must stay a nil interface so the handler reports
	// the notifier as disabled
	var circuit api.CircuitStatus
	if notifier != nil {
		circuit = notifier
	}
	return api.NewSignalsEchoHandler(l, query, sched, collector, circuit, cfg.Engine.Confluence.Version)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	scanner *usecase.Scanner,
	sched *usecase.Scheduler,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	barsHandler *usecase.KafkaBarsHandler,
	chClient *pkgch.Client,
	pub repository.SignalPublisher,
	notifier *mid.NotifyPipeline,
	handler *api.SignalsEchoHandler,
) *server.App {
	if producer != nil {
		l.WithErrorDigest(&logger.DigestConfig{
			FlushInterval: 30 * time.Second,
			MaxEntries:    100,
			Topic:         cfg.Kafka.LogTopic,
			Publisher:     producer,
		})
	}
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.ObserverHook{
			OnDone: func(topic string, elapsed time.Duration, err error) {
				if err != nil {
					l.Warn("bar intake failed",
						logger.String("topic", topic),
						logger.Duration("elapsed", elapsed),
						logger.Error(err))
				}
			},
		})
	}
	return server.New(cfg, l, scanner, sched, collector, consumer, barsHandler, chClient, pub, notifier, handler)
}
