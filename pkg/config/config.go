package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"finanslab"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		EventsTopic  string   `yaml:"events_topic" default:"finanslab.signal-events"`
		BarsTopic    string   `yaml:"bars_topic" default:"finanslab.bars"`
		LogTopic     string   `yaml:"log_topic" default:"finanslab.error-digest"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"1s"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"finanslab-bars"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"1048576"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Binance struct {
		RESTHost       string        `yaml:"rest_host" default:"https://api.binance.com"`
		RESTHostBackup string        `yaml:"rest_host_backup" default:"https://api1.binance.com"`
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://stream.binance.com:9443/stream"`
		RequestTimeout time.Duration `yaml:"request_timeout" default:"15s"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"binance"`
	Telegram struct {
		Enabled bool   `yaml:"enabled"`
		Token   string `yaml:"token"`
		ChatID  string `yaml:"chat_id"`
		// Breaker opens after this many consecutive delivery failures
		// and stays open for the cooldown.
		BreakerThreshold int           `yaml:"breaker_threshold" default:"5"`
		BreakerCooldown  time.Duration `yaml:"breaker_cooldown" default:"1m"`
	} `yaml:"telegram"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Engine struct {
		Instruments         []string `yaml:"instruments"`
		ReferenceInstrument string   `yaml:"reference_instrument" default:"BTCUSDT"`
		Timeframe           string   `yaml:"timeframe" default:"1h"`
		Lookback            int      `yaml:"lookback" default:"400"`

		Confluence struct {
			Version     int     `yaml:"version" default:"13"`
			MinStrength float64 `yaml:"min_strength" default:"40"`
			Tiers       struct {
				Mukemmel int `yaml:"mukemmel" default:"9"`
				CokIyi   int `yaml:"cok_iyi" default:"7"`
				Iyi      int `yaml:"iyi" default:"5"`
				Orta     int `yaml:"orta" default:"3"`
			} `yaml:"tiers"`
		} `yaml:"confluence"`

		Indicators struct {
			EMAPeriods      []int `yaml:"ema_periods" default:"[45,89,144,200,276]"`
			RSIPeriod       int   `yaml:"rsi_period" default:"14"`
			MACDFast        int   `yaml:"macd_fast" default:"12"`
			MACDSlow        int   `yaml:"macd_slow" default:"26"`
			MACDSignal      int   `yaml:"macd_signal" default:"9"`
			ATRPeriod       int   `yaml:"atr_period" default:"14"`
			BollingerPeriod int   `yaml:"bollinger_period" default:"20"`
		} `yaml:"indicators"`

		FVG struct {
			MinWidthPct   float64 `yaml:"min_width_pct" default:"0.1"`
			StrongATRMult float64 `yaml:"strong_atr_mult" default:"1.0"`
			MaxAgeBars    int     `yaml:"max_age_bars" default:"50"`
		} `yaml:"fvg"`

		Scalp struct {
			Oversold    float64 `yaml:"oversold" default:"30"`
			Overbought  float64 `yaml:"overbought" default:"70"`
			CrossWithin int     `yaml:"cross_within" default:"3"`
			NearEMAPct  float64 `yaml:"near_ema_pct" default:"0.5"`
		} `yaml:"scalp"`

		Risk struct {
			StopATRMult         float64   `yaml:"stop_atr_mult" default:"1.5"`
			RewardMultiples     []float64 `yaml:"reward_multiples" default:"[1.5,4.0]"`
			AccountRiskFraction float64   `yaml:"account_risk_fraction" default:"0.01"`
		} `yaml:"risk"`

		Scheduler struct {
			OverlapInterval time.Duration `yaml:"overlap_interval" default:"5m"`
			SingleInterval  time.Duration `yaml:"single_interval" default:"10m"`
			QuietInterval   time.Duration `yaml:"quiet_interval" default:"15m"`
			DedupCycles     int           `yaml:"dedup_cycles" default:"3"`
			ScoreDelta      int           `yaml:"score_delta" default:"2"`
			Sessions        struct {
				OverlapStart int `yaml:"overlap_start" default:"12"`
				OverlapEnd   int `yaml:"overlap_end" default:"16"`
				MorningStart int `yaml:"morning_start" default:"7"`
				MorningEnd   int `yaml:"morning_end" default:"12"`
				EveningStart int `yaml:"evening_start" default:"16"`
				EveningEnd   int `yaml:"evening_end" default:"21"`
			} `yaml:"sessions"`
		} `yaml:"scheduler"`

		Scanner struct {
			InstrumentTimeout time.Duration `yaml:"instrument_timeout" default:"20s"`
			CycleTimeout      time.Duration `yaml:"cycle_timeout" default:"2m"`
			NotifyTier        string        `yaml:"notify_tier" default:"MUKEMMEL"`
		} `yaml:"scanner"`

		Tracker struct {
			MaxAge time.Duration `yaml:"max_age" default:"48h"`
		} `yaml:"tracker"`
	} `yaml:"engine"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("INSTRUMENTS"); v != "" {
		c.Engine.Instruments = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	if len(c.Engine.Instruments) == 0 {
		return fmt.Errorf("engine.instruments cannot be empty")
	}
	if v := c.Engine.Confluence.Version; v != 12 && v != 13 {
		return fmt.Errorf("engine.confluence.version must be 12 or 13, got %d", v)
	}
	switch c.Engine.Timeframe {
	case "15m", "1h", "4h":
	default:
		return fmt.Errorf("engine.timeframe must be one of 15m, 1h, 4h, got '%s'", c.Engine.Timeframe)
	}
	if len(c.Engine.Risk.RewardMultiples) == 0 {
		return fmt.Errorf("engine.risk.reward_multiples cannot be empty")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when kafka is enabled")
	}
	if c.Telegram.Enabled {
		if c.Telegram.Token == "" {
			return fmt.Errorf("telegram.token required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id required when telegram is enabled")
		}
	}
	return nil
}
