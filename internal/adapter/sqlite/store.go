// Package sqlite persists sonde snapshots and their flight history to a
// local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/couchcryptid/sonde-etl/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS sondes (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	last_seen  TEXT NOT NULL,
	snapshot   TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS history_points (
	sonde_id TEXT NOT NULL REFERENCES sondes(id) ON DELETE CASCADE,
	ts       TEXT NOT NULL,
	lat      REAL NOT NULL,
	lon      REAL NOT NULL,
	alt      REAL,
	temp     REAL,
	pressure REAL,
	humidity REAL,
	PRIMARY KEY (sonde_id, ts)
);
`

const upsertSonde = `
INSERT INTO sondes (id, type, status, last_seen, snapshot, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	type = excluded.type,
	status = excluded.status,
	last_seen = excluded.last_seen,
	snapshot = excluded.snapshot,
	updated_at = excluded.updated_at`

const insertPoint = `
INSERT OR IGNORE INTO history_points (sonde_id, ts, lat, lon, alt, temp, pressure, humidity)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// Store writes snapshots to SQLite. It implements pipeline.Publisher.
// History rows are append-only; a point already stored for a sonde and
// timestamp is never rewritten.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open creates the database file if needed, applies the schema and
// validates connectivity.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Info("sqlite store opened", "path", path)
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Name identifies the sink in logs and metrics.
func (s *Store) Name() string { return "sqlite" }

// Publish upserts every snapshot and appends unseen history points in one
// transaction.
func (s *Store) Publish(ctx context.Context, snapshots []domain.SondeState) (err error) {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	sondeStmt, err := tx.PrepareContext(ctx, upsertSonde)
	if err != nil {
		return fmt.Errorf("prepare sonde upsert: %w", err)
	}
	defer sondeStmt.Close()

	pointStmt, err := tx.PrepareContext(ctx, insertPoint)
	if err != nil {
		return fmt.Errorf("prepare history insert: %w", err)
	}
	defer pointStmt.Close()

	updatedAt := formatTime(s.now())
	var appended int64
	for i := range snapshots {
		sonde := &snapshots[i]
		data, err := json.Marshal(sonde.Clone(false))
		if err != nil {
			return fmt.Errorf("marshal sonde %s: %w", sonde.ID, err)
		}
		if _, err := sondeStmt.ExecContext(ctx,
			sonde.ID, sonde.Type, string(sonde.Status), formatTime(sonde.Time), string(data), updatedAt,
		); err != nil {
			return fmt.Errorf("upsert sonde %s: %w", sonde.ID, err)
		}

		for _, p := range sonde.History {
			res, err := pointStmt.ExecContext(ctx,
				sonde.ID, formatTime(p.Time), p.Lat, p.Lon,
				nullable(p.Alt), nullable(p.Temp), nullable(p.Pressure), nullable(p.Humidity),
			)
			if err != nil {
				return fmt.Errorf("append history for %s: %w", sonde.ID, err)
			}
			n, _ := res.RowsAffected()
			appended += n
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("stored snapshots in sqlite", "count", len(snapshots), "history_appended", appended)
	return nil
}

// Snapshot loads the last stored snapshot for id. The history buffer is not
// part of the stored snapshot; use History for that.
func (s *Store) Snapshot(ctx context.Context, id string) (domain.SondeState, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM sondes WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SondeState{}, false, nil
	}
	if err != nil {
		return domain.SondeState{}, false, fmt.Errorf("load sonde %s: %w", id, err)
	}
	var out domain.SondeState
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return domain.SondeState{}, false, fmt.Errorf("decode sonde %s: %w", id, err)
	}
	return out, true, nil
}

// History returns every stored point for id in ascending time order.
func (s *Store) History(ctx context.Context, id string) ([]domain.HistoryPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, lat, lon, alt, temp, pressure, humidity
		FROM history_points WHERE sonde_id = ? ORDER BY ts`, id)
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", id, err)
	}
	defer rows.Close()

	var out []domain.HistoryPoint
	for rows.Next() {
		var (
			ts                      string
			p                       domain.HistoryPoint
			alt, temp, press, humid sql.NullFloat64
		)
		if err := rows.Scan(&ts, &p.Lat, &p.Lon, &alt, &temp, &press, &humid); err != nil {
			return nil, fmt.Errorf("scan history for %s: %w", id, err)
		}
		if p.Time, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse history time %q: %w", ts, err)
		}
		p.Alt, p.Temp, p.Pressure, p.Humidity = fromNull(alt), fromNull(temp), fromNull(press), fromNull(humid)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func buildDSN(path string) (string, error) {
	params := []string{
		"_foreign_keys=on",
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}
	if path == ":memory:" {
		return "file::memory:?" + strings.Join(params[:2], "&"), nil
	}

	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}

// formatTime uses a fixed-width UTC layout so text ordering matches time ordering.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return domain.Float(v.Float64)
}
