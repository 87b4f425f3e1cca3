package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `environment: test
clickhouse:
  host: localhost
engine:
  instruments:
    - BTCUSDT
    - ETHUSDT
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("server port: got %d want 8080", cfg.Server.Port)
	}
	if cfg.Engine.Timeframe != "1h" {
		t.Fatalf("timeframe: got %s want 1h", cfg.Engine.Timeframe)
	}
	if cfg.Engine.Confluence.Version != 13 {
		t.Fatalf("version: got %d want 13", cfg.Engine.Confluence.Version)
	}
	if cfg.Engine.Lookback != 400 {
		t.Fatalf("lookback: got %d want 400", cfg.Engine.Lookback)
	}
	if got := cfg.Engine.Indicators.EMAPeriods; len(got) != 5 || got[0] != 45 || got[4] != 276 {
		t.Fatalf("ema periods: got %v", got)
	}
	if got := cfg.Engine.Risk.RewardMultiples; len(got) != 2 || got[0] != 1.5 || got[1] != 4.0 {
		t.Fatalf("reward multiples: got %v", got)
	}
	if cfg.Engine.Scheduler.OverlapInterval != 5*time.Minute {
		t.Fatalf("overlap interval: got %v", cfg.Engine.Scheduler.OverlapInterval)
	}
	s := cfg.Engine.Scheduler.Sessions
	if s.OverlapStart != 12 || s.OverlapEnd != 16 || s.MorningStart != 7 || s.MorningEnd != 12 || s.EveningStart != 16 || s.EveningEnd != 21 {
		t.Fatalf("session windows: got %+v", s)
	}
	tiers := cfg.Engine.Confluence.Tiers
	if tiers.Mukemmel != 9 || tiers.CokIyi != 7 || tiers.Iyi != 5 || tiers.Orta != 3 {
		t.Fatalf("tier thresholds: got %+v", tiers)
	}
	if cfg.Engine.Scanner.NotifyTier != "MUKEMMEL" {
		t.Fatalf("notify tier: got %s", cfg.Engine.Scanner.NotifyTier)
	}
	if cfg.Engine.Tracker.MaxAge != 48*time.Hour {
		t.Fatalf("tracker max age: got %v", cfg.Engine.Tracker.MaxAge)
	}
	if cfg.Telegram.BreakerThreshold != 5 || cfg.Telegram.BreakerCooldown != time.Minute {
		t.Fatalf("breaker defaults: got %d/%v", cfg.Telegram.BreakerThreshold, cfg.Telegram.BreakerCooldown)
	}
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	body := minimalYAML + `  timeframe: 4h
  confluence:
    version: 12
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.Timeframe != "4h" {
		t.Fatalf("timeframe: got %s want 4h", cfg.Engine.Timeframe)
	}
	if cfg.Engine.Confluence.Version != 12 {
		t.Fatalf("version: got %d want 12", cfg.Engine.Confluence.Version)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			"missing environment",
			"clickhouse:\n  host: localhost\nengine:\n  instruments: [BTCUSDT]\n",
			"environment",
		},
		{
			"missing clickhouse host",
			"environment: test\nengine:\n  instruments: [BTCUSDT]\n",
			"clickhouse.host",
		},
		{
			"no instruments",
			"environment: test\nclickhouse:\n  host: localhost\n",
			"instruments",
		},
		{
			"bad scoring version",
			minimalYAML + "  confluence:\n    version: 11\n",
			"version",
		},
		{
			"bad timeframe",
			minimalYAML + "  timeframe: 5m\n",
			"timeframe",
		},
		{
			"kafka enabled without brokers",
			minimalYAML + "kafka:\n  enabled: true\n",
			"kafka.brokers",
		},
		{
			"telegram enabled without token",
			minimalYAML + "telegram:\n  enabled: true\n  chat_id: \"123\"\n",
			"telegram.token",
		},
	}
	for _, c := range cases {
		_, err := Load(writeConfig(t, c.body))
		if err == nil {
			t.Fatalf("%s: expected error", c.name)
		}
		if !strings.Contains(err.Error(), c.want) {
			t.Fatalf("%s: error %q does not mention %q", c.name, err, c.want)
		}
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("INSTRUMENTS", "SOLUSDT,AVAXUSDT")
	t.Setenv("CLICKHOUSE_HOST", "ch.internal")

	cfg, err := LoadWithEnv(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Engine.Instruments) != 2 || cfg.Engine.Instruments[0] != "SOLUSDT" {
		t.Fatalf("instruments: got %v", cfg.Engine.Instruments)
	}
	if cfg.ClickHouse.Host != "ch.internal" {
		t.Fatalf("clickhouse host: got %s", cfg.ClickHouse.Host)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
