package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"PortfolioPulse/internal/domain/models"
	domrepo "PortfolioPulse/internal/domain/repository"
	applogger "PortfolioPulse/pkg/logger"
)

// SQLiteRunRecorder keeps one row per analysis run plus its fired tags.
type SQLiteRunRecorder struct {
	db *sql.DB
	mu sync.Mutex
	l  *applogger.Logger
}

var _ domrepo.RunRecorder = (*SQLiteRunRecorder)(nil)

// NewSQLiteRunRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRunRecorder(path string, l *applogger.Logger) (*SQLiteRunRecorder, error) {
	if l == nil {
		l = applogger.Nop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	r := &SQLiteRunRecorder{db: db, l: l}
	if err := r.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	l.Info("sqlite run recorder opened", applogger.String("path", path))
	return r, nil
}

func (r *SQLiteRunRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS analysis_runs (
			run_id          TEXT PRIMARY KEY,
			started_at      INTEGER NOT NULL,
			duration_ms     INTEGER,
			benchmark       TEXT,
			positions       INTEGER,
			total_value     REAL,
			total_pl        REAL,
			portfolio_beta  REAL,
			excluded        INTEGER,
			recommendations INTEGER,
			tags            TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON analysis_runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS run_warnings (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id  TEXT NOT NULL,
			ticker  TEXT,
			status  TEXT,
			reason  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_warnings_run ON run_warnings(run_id)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// Record stores run and its fetch warnings in one transaction.
func (r *SQLiteRunRecorder) Record(ctx context.Context, run *models.AnalysisRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := run.Metrics.Portfolio
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO analysis_runs
		(run_id, started_at, duration_ms, benchmark, positions, total_value,
		 total_pl, portfolio_beta, excluded, recommendations, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixMilli(), run.Duration.Milliseconds(), run.Benchmark.String(),
		p.Positions, p.TotalValue, nullable(p.TotalPL), nullable(p.Beta),
		len(run.Metrics.Exclusions), len(run.Recommendations), strings.Join(runTags(run), ","),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for _, w := range run.Warnings() {
		_, err = tx.ExecContext(ctx, `INSERT INTO run_warnings (run_id, ticker, status, reason) VALUES (?, ?, ?, ?)`,
			run.ID, w.Ticker.String(), string(w.Status), string(w.Reason))
		if err != nil {
			return fmt.Errorf("insert warning: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (r *SQLiteRunRecorder) Recent(ctx context.Context, limit int) ([]domrepo.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT run_id, started_at, positions, total_value, excluded, recommendations, tags
		FROM analysis_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []domrepo.RunSummary
	for rows.Next() {
		var (
			s    domrepo.RunSummary
			ms   int64
			tags string
		)
		if err := rows.Scan(&s.ID, &ms, &s.Positions, &s.TotalValue, &s.Excluded, &s.Recommendations, &tags); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		s.StartedAt = time.UnixMilli(ms).UTC()
		s.Tags = []string{}
		if tags != "" {
			s.Tags = strings.Split(tags, ",")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRunRecorder) Close() error {
	return r.db.Close()
}

// runTags lists distinct fired tags, sorted.
func runTags(run *models.AnalysisRun) []string {
	seen := make(map[models.Tag]bool)
	var out []string
	for _, rec := range run.Recommendations {
		if !seen[rec.Tag] {
			seen[rec.Tag] = true
			out = append(out, string(rec.Tag))
		}
	}
	sort.Strings(out)
	return out
}

func nullable(o models.Optional) interface{} {
	if v, ok := o.Get(); ok {
		return v
	}
	return nil
}

// NoopRunRecorder is used when no database path is configured.
type NoopRunRecorder struct{}

func (NoopRunRecorder) Record(context.Context, *models.AnalysisRun) error { return nil }
func (NoopRunRecorder) Recent(context.Context, int) ([]domrepo.RunSummary, error) {
	return []domrepo.RunSummary{}, nil
}
func (NoopRunRecorder) Close() error { return nil }
