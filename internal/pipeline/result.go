package pipeline

import (
	"errors"
	"fmt"
)

// Status is the coarse outcome of a stage invocation.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// ErrPermanent marks failures that redelivering the same message cannot fix,
// such as a batch with the wrong header or a malformed notification.
var ErrPermanent = errors.New("permanent failure")

// Result is returned by every stage: a status plus a human-readable message.
// Err holds the cause when Status is StatusError.
type Result struct {
	Stage   string
	Status  Status
	Message string
	Err     error
}

// Failed reports whether the invocation ended in error.
func (r Result) Failed() bool {
	return r.Status == StatusError
}

// Retryable reports whether handling the same message again may succeed.
func (r Result) Retryable() bool {
	return r.Failed() && !errors.Is(r.Err, ErrPermanent)
}

func (r Result) String() string {
	return fmt.Sprintf("%s: %s: %s", r.Stage, r.Status, r.Message)
}

func succeeded(stage, format string, args ...any) Result {
	return Result{Stage: stage, Status: StatusOK, Message: fmt.Sprintf(format, args...)}
}

func skipped(stage, format string, args ...any) Result {
	return Result{Stage: stage, Status: StatusSkipped, Message: fmt.Sprintf(format, args...)}
}

func failed(stage string, err error) Result {
	return Result{Stage: stage, Status: StatusError, Message: err.Error(), Err: err}
}

func failedPermanently(stage string, err error) Result {
	return failed(stage, fmt.Errorf("%w: %w", ErrPermanent, err))
}
