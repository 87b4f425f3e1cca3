package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"FinansLab/internal/domain/models"
	domrepo "FinansLab/internal/domain/repository"
)

// SchemaStatements returns the idempotent DDL for the engine's tables.
// Signals and daily aggregates live in ReplacingMergeTree keyed by their
// natural identity with updated_at as version, so outcome transitions are
// appended rows that collapse on merge. Rows are never deleted.
func SchemaStatements(database string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.signals (
			instrument  String,
			tf          String,
			ts          DateTime('UTC'),
			direction   String,
			score       Int32,
			quality     String,
			factors     String,
			entry       Float64,
			stop_loss   Float64,
			tp1         Float64,
			tp2         Float64,
			pos_size    Float64,
			rr          Float64,
			atr         Float64,
			status      String,
			pnl_pct     Float64,
			r_multiple  Float64,
			exit_price  Float64,
			resolved_at Nullable(DateTime('UTC')),
			updated_at  DateTime64(3, 'UTC')
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY (instrument, ts, direction)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.daily_performance (
			date         Date,
			total        Int32,
			successful   Int32,
			success_rate Float64,
			total_r      Float64,
			total_pnl    Float64,
			best_r       Float64,
			worst_r      Float64,
			daily_bias   String,
			updated_at   DateTime64(3, 'UTC')
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY (date)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.bars (
			instrument String,
			tf         String,
			ts         DateTime('UTC'),
			open       Float64,
			high       Float64,
			low        Float64,
			close      Float64,
			volume     Float64
		) ENGINE = ReplacingMergeTree()
		ORDER BY (instrument, tf, ts)`, database),
	}
}

// ClickHouseSignalStore implements SignalStore and BarSink on ClickHouse.
type ClickHouseSignalStore struct {
	db       *sql.DB
	database string
}

func NewClickHouseSignalStore(db *sql.DB, database string) *ClickHouseSignalStore {
	return &ClickHouseSignalStore{db: db, database: database}
}

var (
	_ domrepo.SignalStore = (*ClickHouseSignalStore)(nil)
	_ domrepo.BarSink     = (*ClickHouseSignalStore)(nil)
)

func (s *ClickHouseSignalStore) Insert(ctx context.Context, sig *models.PersistedSignal) error {
	return s.writeRow(ctx, sig)
}

// UpdateOutcome appends the resolved version of the row. A row that is no
// longer open (the tick path and the bar path can race on the same signal)
// is reported as a write conflict so the caller drops its transition.
func (s *ClickHouseSignalStore) UpdateOutcome(ctx context.Context, sig *models.PersistedSignal) error {
	var status string
	q := fmt.Sprintf(`SELECT status FROM %s.signals FINAL
		WHERE instrument = ? AND ts = ? AND direction = ?`, s.database)
	err := s.db.QueryRowContext(ctx, q, sig.Instrument, sig.Timestamp.UTC(), string(sig.Direction)).Scan(&status)
	if err != nil {
		return fmt.Errorf("load current status: %w", err)
	}
	if models.SignalStatus(status) != models.StatusOpen {
		return fmt.Errorf("signal %s already %s: %w", sig.Key(), status, models.ErrStoreWriteConflict)
	}
	return s.writeRow(ctx, sig)
}

func (s *ClickHouseSignalStore) writeRow(ctx context.Context, sig *models.PersistedSignal) error {
	factors, err := json.Marshal(sig.Factors)
	if err != nil {
		return fmt.Errorf("marshal factors: %w", err)
	}
	var resolvedAt interface{}
	if sig.ResolvedAt != nil {
		resolvedAt = sig.ResolvedAt.UTC()
	}
	q := fmt.Sprintf(`INSERT INTO %s.signals
		(instrument, tf, ts, direction, score, quality, factors,
		 entry, stop_loss, tp1, tp2, pos_size, rr, atr,
		 status, pnl_pct, r_multiple, exit_price, resolved_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.database)
	_, err = s.db.ExecContext(ctx, q,
		sig.Instrument, sig.Timeframe, sig.Timestamp.UTC(), string(sig.Direction),
		int32(sig.Score), string(sig.Quality), string(factors),
		sig.Plan.Entry, sig.Plan.StopLoss, sig.Plan.TakeProfit1, sig.Plan.TakeProfit2,
		sig.Plan.PositionSize, sig.Plan.RiskReward, sig.Plan.ATR,
		string(sig.Status), sig.PnLPercent, sig.RMultiple, sig.ExitPrice,
		resolvedAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

const signalColumns = `instrument, tf, ts, direction, score, quality, factors,
	entry, stop_loss, tp1, tp2, pos_size, rr, atr,
	status, pnl_pct, r_multiple, exit_price, resolved_at`

func (s *ClickHouseSignalStore) Open(ctx context.Context, instrument string) ([]models.PersistedSignal, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s.signals FINAL
		WHERE instrument = ? AND status = ? ORDER BY ts`, signalColumns, s.database)
	return s.querySignals(ctx, q, instrument, string(models.StatusOpen))
}

func (s *ClickHouseSignalStore) AllOpen(ctx context.Context) ([]models.PersistedSignal, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s.signals FINAL
		WHERE status = ? ORDER BY ts`, signalColumns, s.database)
	return s.querySignals(ctx, q, string(models.StatusOpen))
}

func (s *ClickHouseSignalStore) ResolvedOn(ctx context.Context, date time.Time) ([]models.PersistedSignal, error) {
	from, to := dayBounds(date)
	q := fmt.Sprintf(`SELECT %s FROM %s.signals FINAL
		WHERE resolved_at >= ? AND resolved_at < ? AND status != ?
		ORDER BY resolved_at`, signalColumns, s.database)
	return s.querySignals(ctx, q, from, to, string(models.StatusOpen))
}

func (s *ClickHouseSignalStore) EmittedOn(ctx context.Context, date time.Time) ([]models.PersistedSignal, error) {
	from, to := dayBounds(date)
	q := fmt.Sprintf(`SELECT %s FROM %s.signals FINAL
		WHERE ts >= ? AND ts < ? ORDER BY ts`, signalColumns, s.database)
	return s.querySignals(ctx, q, from, to)
}

func (s *ClickHouseSignalStore) Recent(ctx context.Context, instrument string, limit int) ([]models.PersistedSignal, error) {
	if instrument != "" {
		q := fmt.Sprintf(`SELECT %s FROM %s.signals FINAL
			WHERE instrument = ? ORDER BY ts DESC LIMIT %d`, signalColumns, s.database, limit)
		return s.querySignals(ctx, q, instrument)
	}
	q := fmt.Sprintf(`SELECT %s FROM %s.signals FINAL
		ORDER BY ts DESC LIMIT %d`, signalColumns, s.database, limit)
	return s.querySignals(ctx, q)
}

func (s *ClickHouseSignalStore) querySignals(ctx context.Context, q string, args ...interface{}) ([]models.PersistedSignal, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []models.PersistedSignal
	for rows.Next() {
		var (
			sig        models.PersistedSignal
			direction  string
			quality    string
			status     string
			factors    string
			resolvedAt sql.NullTime
		)
		err := rows.Scan(
			&sig.Instrument, &sig.Timeframe, &sig.Timestamp, &direction,
			&sig.Score, &quality, &factors,
			&sig.Plan.Entry, &sig.Plan.StopLoss, &sig.Plan.TakeProfit1, &sig.Plan.TakeProfit2,
			&sig.Plan.PositionSize, &sig.Plan.RiskReward, &sig.Plan.ATR,
			&status, &sig.PnLPercent, &sig.RMultiple, &sig.ExitPrice, &resolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		sig.Direction = models.Direction(direction)
		sig.Quality = models.QualityTier(quality)
		sig.Status = models.SignalStatus(status)
		if factors != "" {
			if err := json.Unmarshal([]byte(factors), &sig.Factors); err != nil {
				return nil, fmt.Errorf("unmarshal factors: %w", err)
			}
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time.UTC()
			sig.ResolvedAt = &t
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

func (s *ClickHouseSignalStore) UpsertDaily(ctx context.Context, perf *models.DailyPerformance) error {
	q := fmt.Sprintf(`INSERT INTO %s.daily_performance
		(date, total, successful, success_rate, total_r, total_pnl, best_r, worst_r, daily_bias, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.database)
	_, err := s.db.ExecContext(ctx, q,
		perf.Date.UTC(), int32(perf.Total), int32(perf.Successful), perf.SuccessRate,
		perf.TotalR, perf.TotalPnL, perf.BestTradeR, perf.WorstTradeR,
		string(perf.DailyBias), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert daily: %w", err)
	}
	return nil
}

func (s *ClickHouseSignalStore) Daily(ctx context.Context, from, to time.Time) ([]models.DailyPerformance, error) {
	q := fmt.Sprintf(`SELECT date, total, successful, success_rate, total_r, total_pnl, best_r, worst_r, daily_bias
		FROM %s.daily_performance FINAL
		WHERE date >= ? AND date <= ? ORDER BY date`, s.database)
	rows, err := s.db.QueryContext(ctx, q, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query daily: %w", err)
	}
	defer rows.Close()

	var out []models.DailyPerformance
	for rows.Next() {
		var (
			p    models.DailyPerformance
			bias string
		)
		err := rows.Scan(&p.Date, &p.Total, &p.Successful, &p.SuccessRate,
			&p.TotalR, &p.TotalPnL, &p.BestTradeR, &p.WorstTradeR, &bias)
		if err != nil {
			return nil, fmt.Errorf("scan daily: %w", err)
		}
		p.DailyBias = models.Direction(bias)
		out = append(out, p)
	}
	return out, rows.Err()
}

// StoreBars persists closed bars into history. ReplacingMergeTree on
// (instrument, tf, ts) makes redelivery from the intake topic harmless.
func (s *ClickHouseSignalStore) StoreBars(ctx context.Context, instrument string, tf domrepo.Timeframe, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	q := fmt.Sprintf(`INSERT INTO %s.bars
		(instrument, tf, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.database)
	for _, b := range bars {
		_, err := s.db.ExecContext(ctx, q,
			instrument, string(tf), b.Timestamp.UTC(),
			b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return fmt.Errorf("insert bar: %w", err)
		}
	}
	return nil
}

// GetBars reads back stored history, newest lookback bars in ascending
// order. Used as the fallback feed when the live provider is unreachable.
func (s *ClickHouseSignalStore) GetBars(ctx context.Context, instrument string, tf domrepo.Timeframe, lookback int) ([]models.Bar, error) {
	q := fmt.Sprintf(`SELECT ts, open, high, low, close, volume FROM (
			SELECT ts, open, high, low, close, volume FROM %s.bars FINAL
			WHERE instrument = ? AND tf = ? ORDER BY ts DESC LIMIT %d
		) ORDER BY ts`, s.database, lookback)
	rows, err := s.db.QueryContext(ctx, q, instrument, string(tf))
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var out []models.Bar
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *ClickHouseSignalStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseSignalStore) Close() error { return nil }

func dayBounds(date time.Time) (time.Time, time.Time) {
	y, m, d := date.UTC().Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, 1)
}
