package engine

import "log/slog"

// Failure identifies one item that could not be processed, with its
// classification. No failure is swallowed without the keys needed to find
// the item again.
type Failure struct {
	Code      ErrCode `json:"code"`
	SystemURL string  `json:"system_url,omitempty"`
	TaskID    string  `json:"task_id,omitempty"`
	Message   string  `json:"message"`
}

// Report summarizes one batch: how many items were acted on, skipped as
// already ledgered, or failed. Per-item errors live here instead of escaping
// to the scheduler.
type Report struct {
	Job       string    `json:"job"`
	Processed int       `json:"processed"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures,omitempty"`
}

// fail records a classified per-item failure and logs it with the item's
// identifying keys.
func (r *Report) fail(err *SyncError) {
	r.Failed++
	r.Failures = append(r.Failures, Failure{
		Code:      err.Code,
		SystemURL: err.SystemURL,
		TaskID:    err.TaskID,
		Message:   err.Error(),
	})
	slog.Error("sync item failed",
		"job", r.Job,
		"code", string(err.Code),
		"system_url", err.SystemURL,
		"task_id", err.TaskID,
		"error", err.Err,
	)
}

func (r *Report) log() {
	slog.Info("batch finished",
		"job", r.Job,
		"processed", r.Processed,
		"skipped", r.Skipped,
		"failed", r.Failed,
	)
}
