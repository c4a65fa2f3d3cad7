package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Entry is one created_tasks row: the durable claim that a central task
// exists for the (SystemURL, ExternalID) key.
type Entry struct {
	SystemURL   string
	ExternalID  string
	CentralID   string
	CreatedAt   time.Time
	ClaimedAt   *time.Time
	CompletedAt *time.Time
}

// Watermark records how far polling has progressed for one external system.
type Watermark struct {
	SystemURL string
	PolledAt  time.Time
}

// Stats summarizes ledger contents for operational inspection.
type Stats struct {
	CreatedTasks   int64 `json:"created_tasks"`
	ClaimedTasks   int64 `json:"claimed_tasks"`
	CompletedTasks int64 `json:"completed_tasks"`
}

// Ledger is the persistence contract the sync engine runs against.
//
// Implementations must make every write atomic at the row level; the engine
// issues writes from concurrently running jobs and relies on per-row upsert
// semantics rather than transactions spanning multiple statements.
type Ledger interface {
	// RegisterCreated records that a central task was created for the given
	// external task. Inserting the same key twice is a silent no-op so that
	// a re-offered candidate racing a slow first write cannot fail the batch.
	RegisterCreated(ctx context.Context, systemURL, externalID, centralID string, createdAt time.Time) error

	// ExistingIDs reports which of the candidate ids already have a
	// created_tasks row for the system. Pure query.
	ExistingIDs(ctx context.Context, systemURL string, ids []string) (map[string]bool, error)

	// RecordPoll appends a watermark row for the system at polledAt.
	RecordPoll(ctx context.Context, systemURL string, polledAt time.Time) error

	// LatestPoll returns the most recent watermark for the system.
	// ok is false when the system has never been polled.
	LatestPoll(ctx context.Context, systemURL string) (t time.Time, ok bool, err error)

	// MarkCompleted records that completion of the external task has been
	// (or is about to be) propagated. Idempotent per task id.
	MarkCompleted(ctx context.Context, externalID string, completedAt time.Time) error

	// CompletedIDs reports which of the candidate ids are already marked
	// completed. Pure query.
	CompletedIDs(ctx context.Context, ids []string) (map[string]bool, error)

	// LatestCompletion returns the newest completion timestamp on record.
	// ok is false when no completion has ever been propagated.
	LatestCompletion(ctx context.Context) (t time.Time, ok bool, err error)

	// MarkClaimed stamps the claim propagation time onto the created_tasks
	// row. A no-op when no row exists for the key.
	MarkClaimed(ctx context.Context, systemURL, externalID string, claimedAt time.Time) error

	// PurgeBefore deletes created, completed and watermark rows older than
	// cutoff. Returns the number of rows removed.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Entry returns the created_tasks row for the key, or ok=false.
	Entry(ctx context.Context, systemURL, externalID string) (e Entry, ok bool, err error)

	// Stats counts ledger rows for the status surface.
	Stats(ctx context.Context) (Stats, error)

	// Watermarks returns the latest watermark per known system.
	Watermarks(ctx context.Context) ([]Watermark, error)

	Close() error
}

// Factory opens a ledger backend from a DSN (scheme already stripped for
// file-based backends, passed whole for server backends).
type Factory func(dsn string) (Ledger, error)

var factoryRegistry = struct {
	mu        sync.RWMutex
	factories map[string]Factory
}{factories: map[string]Factory{}}

// RegisterFactory makes a backend available under a DSN scheme.
// Called from backend init functions.
func RegisterFactory(scheme string, factory Factory) {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if scheme == "" || factory == nil {
		return
	}
	factoryRegistry.mu.Lock()
	defer factoryRegistry.mu.Unlock()
	factoryRegistry.factories[scheme] = factory
}

// Open selects a backend by the DSN's scheme and opens it.
//
//	sqlite:///var/lib/taskbridge/ledger.db
//	postgres://user:pw@host/db?sslmode=disable
//
// A DSN without a scheme is treated as a SQLite file path.
func Open(dsn string) (Ledger, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("ledger: empty DSN")
	}
	scheme := "sqlite"
	if i := strings.Index(dsn, "://"); i >= 0 {
		scheme = strings.ToLower(dsn[:i])
	}

	factoryRegistry.mu.RLock()
	factory, ok := factoryRegistry.factories[scheme]
	factoryRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ledger: unsupported DSN scheme %q", scheme)
	}
	return factory(dsn)
}
