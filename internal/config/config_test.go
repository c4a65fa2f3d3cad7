package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
central: url: "https://central.example.com/api/v1"
systems: [{url: "http://bpm-a:8080/engine-rest"}]
`

func TestParse_MinimalConfigGetsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalConfig), "test.cue")
	require.NoError(t, err)

	assert.Equal(t, "taskbridge.db", cfg.LedgerDSN)
	assert.Equal(t, 2*time.Minute, cfg.TransactionSlack)
	assert.Equal(t, 24*time.Hour, cfg.CompletionLookback)
	assert.Equal(t, 720*time.Hour, cfg.RetentionAge)
	assert.Equal(t, 30*time.Second, cfg.Jobs.Create)
	assert.Equal(t, 30*time.Second, cfg.Jobs.Complete)
	assert.Equal(t, 30*time.Second, cfg.Jobs.Claim)
	assert.Equal(t, 24*time.Hour, cfg.Jobs.Purge)
	assert.Equal(t, "https://central.example.com/api/v1", cfg.Central.URL)
	assert.Equal(t, "GPK_KSC", cfg.Central.Workbasket)
	assert.Equal(t, "T6310", cfg.Central.Classifier)
	assert.Equal(t, 10*time.Second, cfg.Central.Timeout)
	require.Len(t, cfg.Systems, 1)
	assert.Equal(t, "http://bpm-a:8080/engine-rest", cfg.Systems[0].URL)
	assert.Equal(t, 10*time.Second, cfg.Systems[0].Timeout)
}

func TestParse_OverridesApply(t *testing.T) {
	cfg, err := Parse([]byte(`
ledger: dsn: "postgres://bridge:secret@db:5432/bridge?sslmode=disable"
sync: {
	transactionSlack:   "5m"
	completionLookback: "48h"
}
jobs: {
	create: interval: "10s"
	purge: interval:  "6h"
}
retention: age: "168h"
central: {
	url:        "https://central.example.com"
	token:      "abc123"
	workbasket: "OPS"
	classifier: "T9000"
	timeout:    "30s"
}
systems: [
	{url: "http://bpm-a:8080", token: "t-a"},
	{url: "http://bpm-b:8080", timeout: "3s"},
]
`), "test.cue")
	require.NoError(t, err)

	assert.Equal(t, "postgres://bridge:secret@db:5432/bridge?sslmode=disable", cfg.LedgerDSN)
	assert.Equal(t, 5*time.Minute, cfg.TransactionSlack)
	assert.Equal(t, 48*time.Hour, cfg.CompletionLookback)
	assert.Equal(t, 168*time.Hour, cfg.RetentionAge)
	assert.Equal(t, 10*time.Second, cfg.Jobs.Create)
	assert.Equal(t, 30*time.Second, cfg.Jobs.Complete, "untouched job keeps its default")
	assert.Equal(t, 6*time.Hour, cfg.Jobs.Purge)
	assert.Equal(t, "abc123", cfg.Central.Token)
	assert.Equal(t, "OPS", cfg.Central.Workbasket)
	assert.Equal(t, 30*time.Second, cfg.Central.Timeout)
	require.Len(t, cfg.Systems, 2)
	assert.Equal(t, "t-a", cfg.Systems[0].Token)
	assert.Equal(t, 3*time.Second, cfg.Systems[1].Timeout)
}

func TestParse_MissingCentralURL(t *testing.T) {
	_, err := Parse([]byte(`systems: [{url: "http://bpm:8080"}]`), "test.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validating config")
}

func TestParse_NoSystems(t *testing.T) {
	_, err := Parse([]byte(`central: url: "https://central.example.com"`), "test.cue")
	require.Error(t, err)
}

func TestParse_DuplicateSystemURL(t *testing.T) {
	_, err := Parse([]byte(`
central: url: "https://central.example.com"
systems: [
	{url: "http://bpm:8080"},
	{url: "http://bpm:8080"},
]
`), "test.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate system url")
}

func TestParse_UnknownFieldRejected(t *testing.T) {
	_, err := Parse([]byte(minimalConfig+`
polling: interval: "10s"
`), "test.cue")
	require.Error(t, err, "fields outside the schema are a config error")
}

func TestParse_CentralAcceptsRoutingFields(t *testing.T) {
	cfg, err := Parse([]byte(`
central: {
	url:        "https://central.example.com"
	workbasket: "OPS"
}
systems: [{url: "http://bpm:8080"}]
`), "test.cue")
	require.NoError(t, err)
	assert.Equal(t, "OPS", cfg.Central.Workbasket)
	assert.Equal(t, "T6310", cfg.Central.Classifier, "unset routing field keeps its default")
}

func TestParse_UnknownCentralFieldRejected(t *testing.T) {
	_, err := Parse([]byte(minimalConfig+`
central: retries: 3
`), "test.cue")
	require.Error(t, err, "central stays closed despite the embedding")
}

func TestParse_BadDuration(t *testing.T) {
	_, err := Parse([]byte(minimalConfig+`
sync: transactionSlack: "fast"
`), "test.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transactionSlack")
}

func TestParse_NegativeDuration(t *testing.T) {
	_, err := Parse([]byte(minimalConfig+`
jobs: create: interval: "-10s"
`), "test.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be positive")
}

func TestParse_InvalidCUESyntax(t *testing.T) {
	_, err := Parse([]byte(`central: {url:`), "test.cue")
	require.Error(t, err)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.cue")
	require.NoError(t, os.WriteFile(path, []byte(minimalConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://central.example.com/api/v1", cfg.Central.URL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.cue"))
	require.Error(t, err)
}
