// Package apperr defines the application error taxonomy: fatal local-store
// failures, degrading remote failures, queued-recoverable sync failures and
// silent fire-and-forget failures.
package apperr

import "fmt"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type AppError struct {
	Code      string
	Message   string
	Severity  Severity
	Retryable bool
	cause     error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

// NewLocalStoreError marks a failure of the durable local store. The local
// store is the one guarantee that must hold, so these are critical and
// surface to callers.
func NewLocalStoreError(op string, cause error) *AppError {
	return &AppError{
		Code:      "E100",
		Message:   fmt.Sprintf("local store %s failed: %v", op, cause),
		Severity:  SeverityCritical,
		Retryable: false,
		cause:     cause,
	}
}

// NewRemoteError marks a degraded remote store. These never escape the
// manager boundary: reads fall back to the local store, writes are covered
// by the sync queue.
func NewRemoteError(op string, cause error) *AppError {
	return &AppError{
		Code:      "E200",
		Message:   fmt.Sprintf("remote store %s failed: %v", op, cause),
		Severity:  SeverityMedium,
		Retryable: true,
		cause:     cause,
	}
}

// NewSyncError marks a queue item that failed to replay. The item stays in
// the queue with an incremented retry count until it exhausts its budget.
func NewSyncError(table, operation string, cause error) *AppError {
	return &AppError{
		Code:      "E300",
		Message:   fmt.Sprintf("sync replay %s.%s failed: %v", table, operation, cause),
		Severity:  SeverityMedium,
		Retryable: true,
		cause:     cause,
	}
}

// NewValidationError marks malformed input, such as an undecodable queue
// payload. Not retryable: replaying it would fail the same way.
func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:      "E400",
		Message:   msg,
		Severity:  SeverityLow,
		Retryable: false,
	}
}
