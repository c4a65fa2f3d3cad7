// Package config loads daemon configuration from CUE files. The user's
// file is unified against the embedded #Config schema, which supplies
// defaults and rejects malformed or unknown fields before anything is
// wired up.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaSource []byte

// Endpoint describes one HTTP peer: the central task service or an
// external BPM system.
type Endpoint struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Central carries the central task service endpoint plus the routing
// attributes stamped onto every created task.
type Central struct {
	Endpoint
	Workbasket string
	Classifier string
}

// Jobs holds the firing interval of each periodic job.
type Jobs struct {
	Create   time.Duration
	Complete time.Duration
	Claim    time.Duration
	Purge    time.Duration
}

// Config is the fully resolved daemon configuration.
type Config struct {
	LedgerDSN string

	TransactionSlack   time.Duration
	CompletionLookback time.Duration
	RetentionAge       time.Duration

	Jobs    Jobs
	Central Central
	Systems []Endpoint
}

// rawConfig mirrors the CUE shape with durations as strings; Load
// converts them after decoding.
type rawConfig struct {
	Ledger struct {
		DSN string `json:"dsn"`
	} `json:"ledger"`
	Sync struct {
		TransactionSlack   string `json:"transactionSlack"`
		CompletionLookback string `json:"completionLookback"`
	} `json:"sync"`
	Jobs struct {
		Create   struct{ Interval string } `json:"create"`
		Complete struct{ Interval string } `json:"complete"`
		Claim    struct{ Interval string } `json:"claim"`
		Purge    struct{ Interval string } `json:"purge"`
	} `json:"jobs"`
	Retention struct {
		Age string `json:"age"`
	} `json:"retention"`
	Central struct {
		rawEndpoint
		Workbasket string `json:"workbasket"`
		Classifier string `json:"classifier"`
	} `json:"central"`
	Systems []rawEndpoint `json:"systems"`
}

type rawEndpoint struct {
	URL     string `json:"url"`
	Token   string `json:"token"`
	Timeout string `json:"timeout"`
}

// Load reads a CUE config file, unifies it with the embedded schema and
// resolves it into a Config. Defaults apply for every omitted optional
// field; a missing central.url or empty systems list is an error.
func Load(path string) (*Config, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(source, path)
}

// Parse resolves config source against the schema. filename is used in
// error positions only.
func Parse(source []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compiling config schema: %w", err)
	}

	user := ctx.CompileBytes(source, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return nil, fmt.Errorf("compiling config: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(user)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	var raw rawConfig
	if err := unified.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return resolve(&raw)
}

func resolve(raw *rawConfig) (*Config, error) {
	cfg := &Config{LedgerDSN: raw.Ledger.DSN}

	var err error
	if cfg.TransactionSlack, err = duration("sync.transactionSlack", raw.Sync.TransactionSlack); err != nil {
		return nil, err
	}
	if cfg.CompletionLookback, err = duration("sync.completionLookback", raw.Sync.CompletionLookback); err != nil {
		return nil, err
	}
	if cfg.RetentionAge, err = duration("retention.age", raw.Retention.Age); err != nil {
		return nil, err
	}
	if cfg.Jobs.Create, err = duration("jobs.create.interval", raw.Jobs.Create.Interval); err != nil {
		return nil, err
	}
	if cfg.Jobs.Complete, err = duration("jobs.complete.interval", raw.Jobs.Complete.Interval); err != nil {
		return nil, err
	}
	if cfg.Jobs.Claim, err = duration("jobs.claim.interval", raw.Jobs.Claim.Interval); err != nil {
		return nil, err
	}
	if cfg.Jobs.Purge, err = duration("jobs.purge.interval", raw.Jobs.Purge.Interval); err != nil {
		return nil, err
	}

	central, err := endpoint("central", raw.Central.rawEndpoint)
	if err != nil {
		return nil, err
	}
	cfg.Central = Central{
		Endpoint:   central,
		Workbasket: raw.Central.Workbasket,
		Classifier: raw.Central.Classifier,
	}

	if len(raw.Systems) == 0 {
		return nil, fmt.Errorf("config: at least one system endpoint is required")
	}
	seen := make(map[string]bool, len(raw.Systems))
	for i, rs := range raw.Systems {
		ep, err := endpoint(fmt.Sprintf("systems[%d]", i), rs)
		if err != nil {
			return nil, err
		}
		if seen[ep.URL] {
			return nil, fmt.Errorf("config: duplicate system url %q", ep.URL)
		}
		seen[ep.URL] = true
		cfg.Systems = append(cfg.Systems, ep)
	}
	return cfg, nil
}

func endpoint(field string, raw rawEndpoint) (Endpoint, error) {
	timeout, err := duration(field+".timeout", raw.Timeout)
	if err != nil {
		return Endpoint{}, err
	}
	return Endpoint{URL: raw.URL, Token: raw.Token, Timeout: timeout}, nil
}

func duration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s: must be positive, got %s", field, value)
	}
	return d, nil
}
