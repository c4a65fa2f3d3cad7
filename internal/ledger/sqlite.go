package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added claimed_at column to created_tasks
const currentSchemaVersion = 1

func init() {
	RegisterFactory("sqlite", func(dsn string) (Ledger, error) {
		path := strings.TrimPrefix(dsn, "sqlite://")
		return OpenSQLite(path)
	})
}

// SQLiteLedger is the default ledger backend: a single SQLite file in WAL
// mode. Suitable for one adapter process; the busy timeout covers the
// concurrent jobs sharing the connection pool.
type SQLiteLedger struct {
	db *sql.DB
}

// OpenSQLite creates or opens the ledger database at the given path.
// Applies required pragmas and migrations; idempotent.
func OpenSQLite(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect ledger: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY between the concurrently scheduled jobs.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteLedger{db: db}, nil
}

// migrate applies incremental schema migrations based on user_version.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		// Databases created before claimed_at existed get the column added;
		// fresh databases already have it from schema.sql.
		if _, err := db.Exec("ALTER TABLE created_tasks ADD COLUMN claimed_at TIMESTAMP"); err != nil {
			if !isDuplicateColumn(err) {
				return fmt.Errorf("migrate to v1: %w", err)
			}
		}
		version = 1
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func isDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}

func (l *SQLiteLedger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *SQLiteLedger) RegisterCreated(ctx context.Context, systemURL, externalID, centralID string, createdAt time.Time) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO created_tasks (system_url, external_task_id, central_task_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(system_url, external_task_id) DO NOTHING
	`, systemURL, externalID, centralID, createdAt.UTC())
	if err != nil {
		return fmt.Errorf("register created task: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) ExistingIDs(ctx context.Context, systemURL string, ids []string) (map[string]bool, error) {
	if len(ids) == 0 {
		return map[string]bool{}, nil
	}
	query := fmt.Sprintf(`
		SELECT external_task_id FROM created_tasks
		WHERE system_url = ? AND external_task_id IN (%s)
	`, placeholders(len(ids)))
	args := make([]any, 0, len(ids)+1)
	args = append(args, systemURL)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query existing ids: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan existing id: %w", err)
		}
		existing[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate existing ids: %w", err)
	}
	return existing, nil
}

func (l *SQLiteLedger) RecordPoll(ctx context.Context, systemURL string, polledAt time.Time) error {
	// UUIDv7 row ids keep the series time-sortable for inspection.
	id := uuid.Must(uuid.NewV7()).String()
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO poll_log (id, system_url, polled_at) VALUES (?, ?, ?)
	`, id, systemURL, polledAt.UTC())
	if err != nil {
		return fmt.Errorf("record poll: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) LatestPoll(ctx context.Context, systemURL string) (time.Time, bool, error) {
	var t time.Time
	err := l.db.QueryRowContext(ctx, `
		SELECT polled_at FROM poll_log
		WHERE system_url = ?
		ORDER BY polled_at DESC
		LIMIT 1
	`, systemURL).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest poll: %w", err)
	}
	return t, true, nil
}

func (l *SQLiteLedger) MarkCompleted(ctx context.Context, externalID string, completedAt time.Time) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO completed_tasks (external_task_id, completed_at)
		VALUES (?, ?)
		ON CONFLICT(external_task_id) DO NOTHING
	`, externalID, completedAt.UTC())
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) CompletedIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	if len(ids) == 0 {
		return map[string]bool{}, nil
	}
	query := fmt.Sprintf(`
		SELECT external_task_id FROM completed_tasks
		WHERE external_task_id IN (%s)
	`, placeholders(len(ids)))
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query completed ids: %w", err)
	}
	defer rows.Close()

	completed := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan completed id: %w", err)
		}
		completed[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completed ids: %w", err)
	}
	return completed, nil
}

func (l *SQLiteLedger) LatestCompletion(ctx context.Context) (time.Time, bool, error) {
	var t time.Time
	err := l.db.QueryRowContext(ctx, `
		SELECT completed_at FROM completed_tasks
		ORDER BY completed_at DESC
		LIMIT 1
	`).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest completion: %w", err)
	}
	return t, true, nil
}

func (l *SQLiteLedger) MarkClaimed(ctx context.Context, systemURL, externalID string, claimedAt time.Time) error {
	_, err := l.db.ExecContext(ctx, `
		UPDATE created_tasks SET claimed_at = ?
		WHERE system_url = ? AND external_task_id = ?
	`, claimedAt.UTC(), systemURL, externalID)
	if err != nil {
		return fmt.Errorf("mark claimed: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	statements := []string{
		"DELETE FROM created_tasks WHERE created_at < ?",
		"DELETE FROM completed_tasks WHERE completed_at < ?",
		"DELETE FROM poll_log WHERE polled_at < ?",
	}
	for _, stmt := range statements {
		res, err := l.db.ExecContext(ctx, stmt, cutoff.UTC())
		if err != nil {
			return removed, fmt.Errorf("purge ledger: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("purge ledger: rows affected: %w", err)
		}
		removed += n
	}
	return removed, nil
}

func (l *SQLiteLedger) Entry(ctx context.Context, systemURL, externalID string) (Entry, bool, error) {
	var (
		e         Entry
		claimedAt sql.NullTime
	)
	err := l.db.QueryRowContext(ctx, `
		SELECT system_url, external_task_id, central_task_id, created_at, claimed_at
		FROM created_tasks
		WHERE system_url = ? AND external_task_id = ?
	`, systemURL, externalID).Scan(&e.SystemURL, &e.ExternalID, &e.CentralID, &e.CreatedAt, &claimedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("read ledger entry: %w", err)
	}
	if claimedAt.Valid {
		t := claimedAt.Time
		e.ClaimedAt = &t
	}

	var completedAt time.Time
	err = l.db.QueryRowContext(ctx, `
		SELECT completed_at FROM completed_tasks WHERE external_task_id = ?
	`, externalID).Scan(&completedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return Entry{}, false, fmt.Errorf("read ledger entry: %w", err)
	default:
		e.CompletedAt = &completedAt
	}
	return e, true, nil
}

func (l *SQLiteLedger) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM created_tasks").Scan(&s.CreatedTasks); err != nil {
		return Stats{}, fmt.Errorf("count created tasks: %w", err)
	}
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM created_tasks WHERE claimed_at IS NOT NULL").Scan(&s.ClaimedTasks); err != nil {
		return Stats{}, fmt.Errorf("count claimed tasks: %w", err)
	}
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM completed_tasks").Scan(&s.CompletedTasks); err != nil {
		return Stats{}, fmt.Errorf("count completed tasks: %w", err)
	}
	return s, nil
}

func (l *SQLiteLedger) Watermarks(ctx context.Context) ([]Watermark, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT system_url, MAX(polled_at)
		FROM poll_log
		GROUP BY system_url
		ORDER BY system_url
	`)
	if err != nil {
		return nil, fmt.Errorf("query watermarks: %w", err)
	}
	defer rows.Close()

	var marks []Watermark
	for rows.Next() {
		var (
			w  Watermark
			at string
		)
		// MAX() loses the column's declared type, so the driver hands the
		// timestamp back as its stored text form.
		if err := rows.Scan(&w.SystemURL, &at); err != nil {
			return nil, fmt.Errorf("scan watermark: %w", err)
		}
		w.PolledAt, err = parseSQLiteTime(at)
		if err != nil {
			return nil, fmt.Errorf("parse watermark time: %w", err)
		}
		marks = append(marks, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watermarks: %w", err)
	}
	return marks, nil
}

// parseSQLiteTime accepts the text forms the sqlite3 driver writes for
// time.Time parameters.
func parseSQLiteTime(s string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999+00:00",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// placeholders returns "?, ?, ..." with n markers for IN clauses.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
