package engine

import (
	"sort"
	"time"

	"github.com/roach88/taskbridge/internal/connector"
	"github.com/roach88/taskbridge/internal/ledger"
)

const (
	// DefaultTransactionSlack is subtracted from the watermark to form the
	// next poll window's lower bound. It must exceed the longest time a
	// single synchronization transaction may stay open, so that work that
	// was in flight when the watermark was recorded is re-offered.
	DefaultTransactionSlack = 2 * time.Minute

	// DefaultCompletionLookback bounds the first completion poll when no
	// completion has ever been recorded.
	DefaultCompletionLookback = 24 * time.Hour

	// DefaultRetentionAge is how long ledger rows are kept before the purge
	// job removes them.
	DefaultRetentionAge = 30 * 24 * time.Hour
)

// Engine binds the connector registry and the ledger into the four sync
// job bodies. One instance serves all jobs; it holds no per-cycle state.
type Engine struct {
	registry *connector.Registry
	ledger   ledger.Ledger

	slack              time.Duration
	completionLookback time.Duration
	retentionAge       time.Duration

	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithTransactionSlack overrides the poll window overlap.
func WithTransactionSlack(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.slack = d
		}
	}
}

// WithCompletionLookback overrides the first-poll window for completions.
func WithCompletionLookback(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.completionLookback = d
		}
	}
}

// WithRetentionAge overrides how long ledger rows are kept.
func WithRetentionAge(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.retentionAge = d
		}
	}
}

// WithNow overrides the clock. Tests use this to pin poll-issue times.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an engine over a discovered registry and an open ledger.
func New(reg *connector.Registry, led ledger.Ledger, opts ...Option) *Engine {
	e := &Engine{
		registry:           reg,
		ledger:             led,
		slack:              DefaultTransactionSlack,
		completionLookback: DefaultCompletionLookback,
		retentionAge:       DefaultRetentionAge,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// systemURLs returns the registry's system identities in stable order, so
// cycles visit connectors deterministically.
func (e *Engine) systemURLs() []string {
	systems := e.registry.Systems()
	urls := make([]string, 0, len(systems))
	for url := range systems {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}
