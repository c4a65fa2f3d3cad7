package connector

import "fmt"

// ConversionError reports that an external task could not be mapped to a
// central task request, usually because required fields are absent.
type ConversionError struct {
	SystemURL string
	TaskID    string
	Reason    string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert task %s from %s: %s", e.TaskID, e.SystemURL, e.Reason)
}

// CreationError reports that the central store rejected a creation request.
type CreationError struct {
	SystemURL string
	TaskID    string
	Err       error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("create central task for %s from %s: %v", e.TaskID, e.SystemURL, e.Err)
}

func (e *CreationError) Unwrap() error {
	return e.Err
}

// NotRegisteredError reports a lookup for a system URL that no registered
// connector serves. This is a configuration problem, not a transient one:
// connectors are discovered once at startup and never hot-reloaded.
type NotRegisteredError struct {
	SystemURL string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("no system connector registered for %s", e.SystemURL)
}
