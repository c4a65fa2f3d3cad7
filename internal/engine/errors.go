package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/taskbridge/internal/connector"
)

// ErrCode categorizes a sync failure. Per-item codes are folded into the
// batch Report; ErrCodeLedgerWrite and ErrCodeConfiguration abort a batch.
type ErrCode string

const (
	// ErrCodeConnectorUnavailable covers transport failures talking to an
	// external system or the central store. Per-item or per-connector; the
	// affected item/connector is skipped and retried next cycle.
	ErrCodeConnectorUnavailable ErrCode = "CONNECTOR_UNAVAILABLE"

	// ErrCodeConversionFailed marks an external task that cannot be mapped
	// to a central task request. Per-item.
	ErrCodeConversionFailed ErrCode = "CONVERSION_FAILED"

	// ErrCodeCreationFailed marks a creation request the central store
	// rejected. Per-item; no ledger row is written, so the task is
	// re-offered next cycle.
	ErrCodeCreationFailed ErrCode = "CREATION_FAILED"

	// ErrCodeLedgerWrite marks a persistence failure. The batch cannot
	// safely continue without a working ledger and ends early.
	ErrCodeLedgerWrite ErrCode = "LEDGER_WRITE_FAILED"

	// ErrCodeConfiguration marks an invariant violation such as a task
	// whose system URL no registered connector serves.
	ErrCodeConfiguration ErrCode = "CONFIGURATION"
)

// SyncError is a classified sync failure carrying the identifying keys of
// the item it concerns.
type SyncError struct {
	Code      ErrCode
	SystemURL string
	TaskID    string
	Err       error
}

func (e *SyncError) Error() string {
	switch {
	case e.TaskID != "" && e.SystemURL != "":
		return fmt.Sprintf("%s: task %s (system %s): %v", e.Code, e.TaskID, e.SystemURL, e.Err)
	case e.SystemURL != "":
		return fmt.Sprintf("%s: system %s: %v", e.Code, e.SystemURL, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// classify wraps an error from a pipeline step into a SyncError, mapping
// known connector error types onto the taxonomy. Unknown errors are treated
// as transport failures: skipped and retried, never fatal.
func classify(err error, systemURL, taskID string) *SyncError {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr
	}

	code := ErrCodeConnectorUnavailable
	var (
		conversionErr    *connector.ConversionError
		creationErr      *connector.CreationError
		notRegisteredErr *connector.NotRegisteredError
	)
	switch {
	case errors.As(err, &conversionErr):
		code = ErrCodeConversionFailed
	case errors.As(err, &creationErr):
		code = ErrCodeCreationFailed
	case errors.As(err, &notRegisteredErr):
		code = ErrCodeConfiguration
	}
	return &SyncError{Code: code, SystemURL: systemURL, TaskID: taskID, Err: err}
}

// ledgerErr tags a persistence failure so the job loop knows to abort.
func ledgerErr(err error, systemURL, taskID string) *SyncError {
	return &SyncError{Code: ErrCodeLedgerWrite, SystemURL: systemURL, TaskID: taskID, Err: err}
}

// abortsBatch reports whether the error must end the current batch.
func abortsBatch(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Code == ErrCodeLedgerWrite
	}
	return false
}
