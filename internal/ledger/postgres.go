package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

const postgresOperationTimeout = 5 * time.Second

func init() {
	RegisterFactory("postgres", func(dsn string) (Ledger, error) {
		return NewPostgresLedger(dsn)
	})
	RegisterFactory("postgresql", func(dsn string) (Ledger, error) {
		return NewPostgresLedger(dsn)
	})
}

// PostgresLedger stores the ledger in PostgreSQL, for deployments where the
// adapter shares a database server with the central store. Tables are
// bootstrapped on first use.
type PostgresLedger struct {
	dsn    string
	openDB func(driverName, dsn string) (*sql.DB, error)

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// NewPostgresLedger prepares a Postgres-backed ledger. The connection is
// opened lazily on first use so that construction cannot fail on a
// temporarily unreachable server.
func NewPostgresLedger(dsn string) (*PostgresLedger, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("ledger: empty postgres DSN")
	}
	return &PostgresLedger{dsn: dsn, openDB: sql.Open}, nil
}

func (l *PostgresLedger) ensureReady() error {
	l.initOnce.Do(func() {
		db, err := l.openDB("postgres", l.dsn)
		if err != nil {
			l.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		statements := []string{
			`CREATE TABLE IF NOT EXISTS created_tasks (
				system_url       TEXT NOT NULL,
				external_task_id TEXT NOT NULL,
				central_task_id  TEXT NOT NULL,
				created_at       TIMESTAMPTZ NOT NULL,
				claimed_at       TIMESTAMPTZ,
				PRIMARY KEY (system_url, external_task_id)
			)`,
			`CREATE TABLE IF NOT EXISTS completed_tasks (
				external_task_id TEXT PRIMARY KEY,
				completed_at     TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS poll_log (
				id         TEXT PRIMARY KEY,
				system_url TEXT NOT NULL,
				polled_at  TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_poll_log_system_polled
				ON poll_log (system_url, polled_at)`,
		}
		for _, stmt := range statements {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				_ = db.Close()
				l.initErr = fmt.Errorf("bootstrap ledger tables: %w", err)
				return
			}
		}
		l.db = db
	})
	return l.initErr
}

func (l *PostgresLedger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *PostgresLedger) RegisterCreated(ctx context.Context, systemURL, externalID, centralID string, createdAt time.Time) error {
	if err := l.ensureReady(); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO created_tasks (system_url, external_task_id, central_task_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (system_url, external_task_id) DO NOTHING
	`, systemURL, externalID, centralID, createdAt.UTC())
	if err != nil {
		return fmt.Errorf("register created task: %w", err)
	}
	return nil
}

func (l *PostgresLedger) ExistingIDs(ctx context.Context, systemURL string, ids []string) (map[string]bool, error) {
	if len(ids) == 0 {
		return map[string]bool{}, nil
	}
	if err := l.ensureReady(); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT external_task_id FROM created_tasks
		WHERE system_url = $1 AND external_task_id IN (%s)
	`, dollarPlaceholders(2, len(ids)))
	args := make([]any, 0, len(ids)+1)
	args = append(args, systemURL)
	for _, id := range ids {
		args = append(args, id)
	}
	return l.queryIDSet(ctx, query, args...)
}

func (l *PostgresLedger) RecordPoll(ctx context.Context, systemURL string, polledAt time.Time) error {
	if err := l.ensureReady(); err != nil {
		return err
	}
	id := uuid.Must(uuid.NewV7()).String()
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO poll_log (id, system_url, polled_at) VALUES ($1, $2, $3)
	`, id, systemURL, polledAt.UTC())
	if err != nil {
		return fmt.Errorf("record poll: %w", err)
	}
	return nil
}

func (l *PostgresLedger) LatestPoll(ctx context.Context, systemURL string) (time.Time, bool, error) {
	if err := l.ensureReady(); err != nil {
		return time.Time{}, false, err
	}
	var t time.Time
	err := l.db.QueryRowContext(ctx, `
		SELECT polled_at FROM poll_log
		WHERE system_url = $1
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

func (l *PostgresLedger) MarkCompleted(ctx context.Context, externalID string, completedAt time.Time) error {
	if err := l.ensureReady(); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO completed_tasks (external_task_id, completed_at)
		VALUES ($1, $2)
		ON CONFLICT (external_task_id) DO NOTHING
	`, externalID, completedAt.UTC())
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

func (l *PostgresLedger) CompletedIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	if len(ids) == 0 {
		return map[string]bool{}, nil
	}
	if err := l.ensureReady(); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT external_task_id FROM completed_tasks
		WHERE external_task_id IN (%s)
	`, dollarPlaceholders(1, len(ids)))
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return l.queryIDSet(ctx, query, args...)
}

func (l *PostgresLedger) LatestCompletion(ctx context.Context) (time.Time, bool, error) {
	if err := l.ensureReady(); err != nil {
		return time.Time{}, false, err
	}
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

func (l *PostgresLedger) MarkClaimed(ctx context.Context, systemURL, externalID string, claimedAt time.Time) error {
	if err := l.ensureReady(); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx, `
		UPDATE created_tasks SET claimed_at = $1
		WHERE system_url = $2 AND external_task_id = $3
	`, claimedAt.UTC(), systemURL, externalID)
	if err != nil {
		return fmt.Errorf("mark claimed: %w", err)
	}
	return nil
}

func (l *PostgresLedger) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := l.ensureReady(); err != nil {
		return 0, err
	}
	var removed int64
	statements := []string{
		"DELETE FROM created_tasks WHERE created_at < $1",
		"DELETE FROM completed_tasks WHERE completed_at < $1",
		"DELETE FROM poll_log WHERE polled_at < $1",
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

func (l *PostgresLedger) Entry(ctx context.Context, systemURL, externalID string) (Entry, bool, error) {
	if err := l.ensureReady(); err != nil {
		return Entry{}, false, err
	}
	var (
		e           Entry
		claimedAt   sql.NullTime
		completedAt sql.NullTime
	)
	err := l.db.QueryRowContext(ctx, `
		SELECT c.system_url, c.external_task_id, c.central_task_id, c.created_at, c.claimed_at,
		       d.completed_at
		FROM created_tasks c
		LEFT JOIN completed_tasks d ON d.external_task_id = c.external_task_id
		WHERE c.system_url = $1 AND c.external_task_id = $2
	`, systemURL, externalID).Scan(
		&e.SystemURL, &e.ExternalID, &e.CentralID, &e.CreatedAt, &claimedAt, &completedAt,
	)
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
	if completedAt.Valid {
		t := completedAt.Time
		e.CompletedAt = &t
	}
	return e, true, nil
}

func (l *PostgresLedger) Stats(ctx context.Context) (Stats, error) {
	if err := l.ensureReady(); err != nil {
		return Stats{}, err
	}
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

func (l *PostgresLedger) Watermarks(ctx context.Context) ([]Watermark, error) {
	if err := l.ensureReady(); err != nil {
		return nil, err
	}
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
		var w Watermark
		if err := rows.Scan(&w.SystemURL, &w.PolledAt); err != nil {
			return nil, fmt.Errorf("scan watermark: %w", err)
		}
		marks = append(marks, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watermarks: %w", err)
	}
	return marks, nil
}

func (l *PostgresLedger) queryIDSet(ctx context.Context, query string, args ...any) (map[string]bool, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query id set: %w", err)
	}
	defer rows.Close()

	set := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		set[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate id set: %w", err)
	}
	return set, nil
}

// dollarPlaceholders returns "$start, $start+1, ..." with n markers.
func dollarPlaceholders(start, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", start+i)
	}
	return b.String()
}
