// Package db is the SQLite run ledger: one row of outcome metadata per chat
// request. Conversation content is never stored.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// TimeLayout keeps ledger timestamps fixed-width so they sort as strings.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp formats t for the ledger.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// DB wraps a sql.DB connection to the SQLite database.
type DB struct {
	conn *sql.DB
}

// Run is the ledger record of one chat request.
type Run struct {
	ID          string
	Stage       string
	Model       string
	Status      string // running, completed, failed, cancelled
	StartedAt   string
	EndedAt     *string
	ToolCalls   int
	ToolErrors  int
	TextEmitted bool
	Summarized  bool
	Summary     *string // narrative synthesized from tool output, if any
	Error       *string
}

// Outcome is what a finished run reports back to the ledger.
type Outcome struct {
	Status      string
	EndedAt     string
	ToolCalls   int
	ToolErrors  int
	TextEmitted bool
	Summary     string
	Error       string
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Stage  string
	Status string
	Limit  int
	Offset int
}

// Open creates a new DB connection and runs all pending migrations.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	d := &DB{conn: conn}
	if err := d.migrate(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying *sql.DB.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

func (d *DB) migrate(ctx context.Context) error {
	migrations, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, d.conn, migrations)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// --- Run Methods ---

const runColumns = `id, stage, model, status, started_at, ended_at, tool_calls, tool_errors, text_emitted, summarized, summary, error`

func scanRun(scanner interface{ Scan(...any) error }, r *Run) error {
	var textEmitted, summarized int
	if err := scanner.Scan(&r.ID, &r.Stage, &r.Model, &r.Status, &r.StartedAt, &r.EndedAt, &r.ToolCalls, &r.ToolErrors, &textEmitted, &summarized, &r.Summary, &r.Error); err != nil {
		return err
	}
	r.TextEmitted = textEmitted != 0
	r.Summarized = summarized != 0
	return nil
}

// InsertRun records the start of a run.
func (d *DB) InsertRun(ctx context.Context, r *Run) error {
	status := r.Status
	if status == "" {
		status = StatusRunning
	}
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO runs (id, stage, model, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Stage, r.Model, status, r.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	return nil
}

// FinishRun stores the outcome of a run.
func (d *DB) FinishRun(ctx context.Context, id string, o Outcome) error {
	res, err := d.conn.ExecContext(ctx,
		`UPDATE runs SET status = ?, ended_at = ?, tool_calls = ?, tool_errors = ?, text_emitted = ?, summarized = ?, summary = ?, error = ?
		 WHERE id = ?`,
		o.Status, o.EndedAt, o.ToolCalls, o.ToolErrors, boolToInt(o.TextEmitted), boolToInt(o.Summary != ""),
		nullString(o.Summary), nullString(o.Error), id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// GetRun retrieves a single run by ID. It returns nil, nil when the run
// does not exist.
func (d *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	r := &Run{}
	row := d.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	if err := scanRun(row, r); errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns runs ordered by started_at descending.
func (d *DB) ListRuns(ctx context.Context, f RunFilter) ([]Run, error) {
	var (
		where []string
		args  []any
	)
	if f.Stage != "" {
		where = append(where, "stage = ?")
		args = append(args, f.Stage)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}

	q := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY started_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	rows, err := d.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		var r Run
		if err := scanRun(rows, &r); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// PruneRuns deletes finished runs that started before the given ledger
// timestamp and returns how many were removed.
func (d *DB) PruneRuns(ctx context.Context, before string) (int64, error) {
	res, err := d.conn.ExecContext(ctx,
		`DELETE FROM runs WHERE started_at < ? AND status != ?`, before, StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
