package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"PortfolioPulse/internal/domain/models"
	domrepo "PortfolioPulse/internal/domain/repository"
	pkgch "PortfolioPulse/pkg/clickhouse"
	applogger "PortfolioPulse/pkg/logger"
)

const (
	defaultHistoryTable = "price_history"
	insertChunkSize     = 2000
	historyColumns      = "ticker, interval, ts, close, volume, currency, fetched_at"
)

// CHHistoryArchive keeps fetched series in ClickHouse. Re-fetched bars
// replace older copies through ReplacingMergeTree on fetched_at.
type CHHistoryArchive struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
	now   func() time.Time
}

// NewCHHistoryArchive binds the archive to a client. An empty table uses
// the default name.
func NewCHHistoryArchive(ch *pkgch.Client, table string, l *applogger.Logger) *CHHistoryArchive {
	if table == "" {
		table = defaultHistoryTable
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &CHHistoryArchive{db: ch.DB(), table: table, l: l, now: time.Now}
}

var _ domrepo.HistoryArchive = (*CHHistoryArchive)(nil)

// Init creates the table if missing.
func (s *CHHistoryArchive) Init(ctx context.Context) error {
	for _, stmt := range historySchema(s.table) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init history archive: %w", err)
		}
	}
	return nil
}

func historySchema(table string) []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            ticker     LowCardinality(String),
            interval   LowCardinality(String),
            ts         DateTime64(3, 'UTC'),
            close      Float64,
            volume     Float64,
            currency   LowCardinality(String),
            fetched_at DateTime64(3, 'UTC')
        )
        ENGINE = ReplacingMergeTree(fetched_at)
        PARTITION BY toYYYYMM(ts)
        ORDER BY (ticker, interval, ts)
    `, table)}
}

// insertStatement builds a multi-row insert for n rows.
func insertStatement(table string, n int) string {
	rows := make([]string, n)
	for i := range rows {
		rows[i] = "(?, ?, ?, ?, ?, ?, ?)"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, historyColumns, strings.Join(rows, ","))
}

// StoreSeries writes every point of s, chunked to bound statement size.
func (s *CHHistoryArchive) StoreSeries(ctx context.Context, series *models.HistoricalSeries) error {
	if series.Len() == 0 {
		return nil
	}
	start := time.Now()
	fetchedAt := s.now().UTC()
	pts := series.Points
	for lo := 0; lo < len(pts); lo += insertChunkSize {
		hi := lo + insertChunkSize
		if hi > len(pts) {
			hi = len(pts)
		}
		args := make([]interface{}, 0, (hi-lo)*7)
		for _, p := range pts[lo:hi] {
			args = append(args,
				series.Ticker.String(),
				series.Interval,
				p.Time.UTC(),
				p.Close,
				p.Volume,
				series.Currency,
				fetchedAt,
			)
		}
		if _, err := s.db.ExecContext(ctx, insertStatement(s.table, hi-lo), args...); err != nil {
			s.l.Error("clickhouse store_series error",
				applogger.String("table", s.table),
				applogger.String("ticker", series.Ticker.String()),
				applogger.String("interval", series.Interval),
				applogger.Error(err),
			)
			return fmt.Errorf("store series: %w", err)
		}
	}
	s.l.Debug("clickhouse store_series ok",
		applogger.String("ticker", series.Ticker.String()),
		applogger.String("interval", series.Interval),
		applogger.Int("rows", len(pts)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

// LoadSeries reads archived points in [from, to], oldest first.
func (s *CHHistoryArchive) LoadSeries(ctx context.Context, t models.Ticker, interval string, from, to time.Time) (*models.HistoricalSeries, error) {
	const qtpl = `
        SELECT ts, close, volume, currency
        FROM %s FINAL
        WHERE ticker = ? AND interval = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, s.table), t.String(), interval, from.UTC(), to.UTC())
	if err != nil {
		s.l.Error("clickhouse load_series query error",
			applogger.String("table", s.table),
			applogger.String("ticker", t.String()),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("load series: %w", err)
	}
	defer rows.Close()

	out := &models.HistoricalSeries{Ticker: t, Interval: interval}
	for rows.Next() {
		var p models.Point
		if err := rows.Scan(&p.Time, &p.Close, &p.Volume, &out.Currency); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		out.Points = append(out.Points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHHistoryArchive) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (s *CHHistoryArchive) Close() error { return nil }
