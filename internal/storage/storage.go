// Package storage provides SQLite-backed persistence for volatility runs.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/contactkeval/option-volsurface/internal/data"
	"github.com/contactkeval/option-volsurface/internal/volatility"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Run is one refresh of an underlying's volatility table together with the
// market context it was solved against.
type Run struct {
	ID              string              `json:"id"`
	Underlying      string              `json:"underlying"`
	Source          string              `json:"source"`
	UnderlyingPrice float64             `json:"underlying_price"`
	RiskFreeRate    float64             `json:"risk_free_rate"`
	ValuationTime   time.Time           `json:"valuation_time"`
	CreatedAt       time.Time           `json:"created_at"`
	Quotes          int                 `json:"quotes"`
	Available       int                 `json:"available"`
	Unavailable     map[string]int      `json:"unavailable"`
	Records         []volatility.Record `json:"records,omitempty"`
	Futures         []data.FuturePrice  `json:"futures,omitempty"`
}

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/volsurface/volsurface.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "volsurface", "volsurface.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id               TEXT PRIMARY KEY,
			underlying       TEXT NOT NULL,
			source           TEXT,
			underlying_price REAL NOT NULL,
			risk_free_rate   REAL NOT NULL,
			valuation_time   INTEGER NOT NULL,
			created_at       INTEGER NOT NULL,
			quotes           INTEGER NOT NULL DEFAULT 0,
			available        INTEGER NOT NULL DEFAULT 0,
			unavailable      TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS volatility (
			id               TEXT PRIMARY KEY,
			run_id           TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			underlying       TEXT NOT NULL,
			expiry           TEXT NOT NULL,
			strike           REAL NOT NULL,
			implied_vol_call REAL,
			implied_vol_put  REAL,
			timestamp        INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS futures (
			id     TEXT PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			expiry TEXT NOT NULL,
			price  REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_volatility_run ON volatility(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_futures_run ON futures(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_underlying_created ON runs(underlying, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun stores the run, its records and its futures curve in one
// transaction. A missing ID or
// creation time is filled in.
func (s *Storage) SaveRun(ctx context.Context, run *Run) error {
	if run.Underlying == "" {
		return fmt.Errorf("invalid run: underlying is empty")
	}
	run.Underlying = strings.ToUpper(run.Underlying)
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	unavailable, err := json.Marshal(run.Unavailable)
	if err != nil {
		return fmt.Errorf("failed to encode unavailable counts: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
			(id, underlying, source, underlying_price, risk_free_rate,
			 valuation_time, created_at, quotes, available, unavailable)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.Underlying, run.Source, run.UnderlyingPrice, run.RiskFreeRate,
		run.ValuationTime.UnixNano(), run.CreatedAt.UnixNano(),
		run.Quotes, run.Available, string(unavailable),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO volatility
			(id, run_id, underlying, expiry, strike, implied_vol_call, implied_vol_put, timestamp)
		VALUES (?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range run.Records {
		if _, err := stmt.ExecContext(ctx,
			uuid.NewString(), run.ID, run.Underlying, r.Expiry, r.Strike,
			nullFloat(r.VolCall), nullFloat(r.VolPut), run.CreatedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("failed to insert record %s/%g: %w", r.Expiry, r.Strike, err)
		}
	}

	for _, f := range run.Futures {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO futures (id, run_id, expiry, price) VALUES (?,?,?,?)`,
			uuid.NewString(), run.ID, f.Expiry.Format(volatility.ExpiryLayout), nullFloat(f.Price),
		); err != nil {
			return fmt.Errorf("failed to insert future %s: %w", f.Expiry.Format(volatility.ExpiryLayout), err)
		}
	}

	return tx.Commit()
}

const runCols = `id, underlying, source, underlying_price, risk_free_rate,
	valuation_time, created_at, quotes, available, unavailable`

// GetRun returns the run with its records and futures curve.
func (s *Storage) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runCols+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if err := s.loadDetail(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// LatestRun returns the most recent run of the underlying, with records and
// futures curve.
// An empty underlying matches any.
func (s *Storage) LatestRun(ctx context.Context, underlying string) (*Run, error) {
	query := `SELECT ` + runCols + ` FROM runs`
	var args []any
	if underlying != "" {
		query += ` WHERE underlying = ?`
		args = append(args, strings.ToUpper(underlying))
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, args...).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no runs for %q", ErrNotFound, underlying)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	if err := s.loadDetail(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns run headers, newest first, without records. A limit of
// zero or less returns every run.
func (s *Storage) ListRuns(ctx context.Context, underlying string, limit int) ([]*Run, error) {
	query := `SELECT ` + runCols + ` FROM runs`
	var args []any
	if underlying != "" {
		query += ` WHERE underlying = ?`
		args = append(args, strings.ToUpper(underlying))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()
	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and, by cascade, its records and futures.
func (s *Storage) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *Storage) loadDetail(ctx context.Context, run *Run) error {
	if err := s.loadRecords(ctx, run); err != nil {
		return err
	}
	return s.loadFutures(ctx, run)
}

func (s *Storage) loadFutures(ctx context.Context, run *Run) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT expiry, price FROM futures WHERE run_id = ? ORDER BY expiry`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to query futures: %w", err)
	}
	defer rows.Close()

	run.Futures = []data.FuturePrice{}
	for rows.Next() {
		var expiry string
		var price sql.NullFloat64
		if err := rows.Scan(&expiry, &price); err != nil {
			return fmt.Errorf("failed to scan future: %w", err)
		}
		t, err := time.Parse(volatility.ExpiryLayout, expiry)
		if err != nil {
			return fmt.Errorf("failed to parse future expiry %q: %w", expiry, err)
		}
		run.Futures = append(run.Futures, data.FuturePrice{Expiry: t, Price: floatOrNil(price)})
	}
	return rows.Err()
}

func (s *Storage) loadRecords(ctx context.Context, run *Run) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT expiry, strike, implied_vol_call, implied_vol_put
		FROM volatility WHERE run_id = ?
		ORDER BY expiry, strike`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	run.Records = []volatility.Record{}
	for rows.Next() {
		var r volatility.Record
		var call, put sql.NullFloat64
		if err := rows.Scan(&r.Expiry, &r.Strike, &call, &put); err != nil {
			return fmt.Errorf("failed to scan record: %w", err)
		}
		r.VolCall = floatOrNil(call)
		r.VolPut = floatOrNil(put)
		run.Records = append(run.Records, r)
	}
	return rows.Err()
}

func scanRun(scan func(dest ...any) error) (*Run, error) {
	var run Run
	var source sql.NullString
	var valuation, created int64
	var unavailable string
	if err := scan(
		&run.ID, &run.Underlying, &source, &run.UnderlyingPrice, &run.RiskFreeRate,
		&valuation, &created, &run.Quotes, &run.Available, &unavailable,
	); err != nil {
		return nil, err
	}
	run.Source = source.String
	run.ValuationTime = time.Unix(0, valuation).UTC()
	run.CreatedAt = time.Unix(0, created).UTC()
	if err := json.Unmarshal([]byte(unavailable), &run.Unavailable); err != nil {
		return nil, fmt.Errorf("failed to decode unavailable counts: %w", err)
	}
	return &run, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatOrNil(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
