package jobs

import "fmt"

// Status is the outcome kind of one processing cycle.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result describes how one entry was handled. It never implies a retry
// decision; retries belong to the queue.
type Result struct {
	Status  Status
	Message string
	Err     error
}

// Success is a plain successful result.
func Success() Result { return Result{Status: StatusSuccess} }

// SuccessWithMessage is a successful result carrying a note, used when an
// entry was deliberately skipped.
func SuccessWithMessage(msg string) Result {
	return Result{Status: StatusSuccess, Message: msg}
}

// FailedWithMessage is a failure without an underlying error.
func FailedWithMessage(msg string) Result {
	return Result{Status: StatusFailed, Message: msg}
}

// FromError is a failure caused by err.
func FromError(err error, msg string) Result {
	return Result{Status: StatusFailed, Message: msg, Err: err}
}

// Cancelled reports that the cycle stopped because its context ended.
func Cancelled() Result { return Result{Status: StatusCancelled} }

// IsSuccess reports whether the cycle succeeded.
func (r Result) IsSuccess() bool { return r.Status == StatusSuccess }

// IsFailed reports whether the cycle failed.
func (r Result) IsFailed() bool { return r.Status == StatusFailed }

// IsCancelled reports whether the cycle was cancelled.
func (r Result) IsCancelled() bool { return r.Status == StatusCancelled }

// Unwrap returns the underlying error, if any.
func (r Result) Unwrap() error { return r.Err }

func (r Result) String() string {
	switch {
	case r.Err != nil && r.Message != "":
		return fmt.Sprintf("%s: %s: %v", r.Status, r.Message, r.Err)
	case r.Err != nil:
		return fmt.Sprintf("%s: %v", r.Status, r.Err)
	case r.Message != "":
		return fmt.Sprintf("%s: %s", r.Status, r.Message)
	default:
		return r.Status.String()
	}
}
