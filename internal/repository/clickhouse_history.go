package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	pkgch "MarketPulse/pkg/clickhouse"
	applogger "MarketPulse/pkg/logger"
)

// CHTickStore persists normalized ticks in ClickHouse and serves daily
// history aggregated from them. It implements both TickSink (write side)
// and HistoryProvider (read side).
type CHTickStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHTickStore(ch *pkgch.Client, table string) *CHTickStore {
	if table == "" {
		table = "marketpulse.ticks"
	}
	return &CHTickStore{db: ch.DB(), table: table}
}

// SetLogger injects a structured logger.
func (s *CHTickStore) SetLogger(l *applogger.Logger) { s.l = l }

// Schema returns idempotent DDL for InitSchema.
func (s *CHTickStore) Schema() []string {
	return []string{
		`CREATE DATABASE IF NOT EXISTS marketpulse`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            ts DateTime64(3),
            source LowCardinality(String),
            symbol LowCardinality(String),
            price Float64,
            volume Float64,
            simulated UInt8
        ) ENGINE = MergeTree
        PARTITION BY toYYYYMM(ts)
        ORDER BY (symbol, ts)
        TTL toDateTime(ts) + INTERVAL 90 DAY`, s.table),
	}
}

// Publish writes one tick. The stream manager calls this on the hot path, so
// failures are logged and surfaced but must never block the feed for long.
func (s *CHTickStore) Publish(ctx context.Context, t *models.Tick) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, source, symbol, price, volume, simulated) VALUES (?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q,
		t.Timestamp,
		string(t.Source),
		t.Symbol,
		t.Price,
		t.Volume,
		boolToUInt8(t.Simulated),
	)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse tick insert error",
				applogger.String("symbol", t.Symbol),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("insert tick: %w", err)
	}
	return nil
}

// PublishBatch inserts ticks in chunked multi-row statements. The pipeline's
// flush loop prefers this over per-tick Publish when draining its buffer.
func (s *CHTickStore) PublishBatch(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	const chunkSize = 2000
	for start := 0; start < len(ticks); start += chunkSize {
		end := start + chunkSize
		if end > len(ticks) {
			end = len(ticks)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*6)
		for _, t := range ticks[start:end] {
			if t == nil || t.Symbol == "" || t.Timestamp.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args,
				t.Timestamp,
				string(t.Source),
				t.Symbol,
				t.Price,
				t.Volume,
				boolToUInt8(t.Simulated),
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, source, symbol, price, volume, simulated) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert tick batch: %w", err)
		}
	}
	return nil
}

// History aggregates stored ticks into a daily close/volume series.
// The close of a day is the last observed price in it.
func (s *CHTickStore) History(ctx context.Context, symbol string, days int) ([]models.HistoryPoint, error) {
	if days <= 0 {
		days = 365
	}
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT toDate(ts) AS day, argMax(price, ts) AS close, sum(volume) AS vol
        FROM %s
        WHERE symbol = ? AND ts >= ?
        GROUP BY day
        ORDER BY day ASC
    `, s.table)
	from := time.Now().AddDate(0, 0, -days)

	rows, err := s.db.QueryContext(ctx, q, symbol, from)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse history query error",
				applogger.String("symbol", symbol),
				applogger.Int("days", days),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("history query: %w", err)
	}
	defer rows.Close()

	out := make([]models.HistoryPoint, 0, days)
	for rows.Next() {
		var p models.HistoryPoint
		if err := rows.Scan(&p.Date, &p.Value, &p.Volume); err != nil {
			return nil, fmt.Errorf("scan history point: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse history ok",
			applogger.String("symbol", symbol),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHTickStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the connection pool belongs to pkg/clickhouse.
func (s *CHTickStore) Close() error { return nil }

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
