package backup

import (
	"context"
	"errors"
	"fmt"
)

// Error taxonomy for transfer and collaborator failures. Collaborators wrap
// vendor errors into one of these sentinels so the executor can decide
// whether to retry.
var (
	// ErrAuthFailure means a collaborator cannot authenticate. Fatal for
	// the job; retrying with the same bad credential wastes time and quota.
	ErrAuthFailure = errors.New("authentication failed")

	// ErrTransient covers timeouts, rate limits and connection resets.
	// Retried with exponential backoff up to a bounded attempt count.
	ErrTransient = errors.New("transient error")

	// ErrNotFound means the source file vanished mid-run. Logged as
	// skipped for this run; next run's listing settles it.
	ErrNotFound = errors.New("not found")

	// ErrCorruptState means the tracker state is unreadable. Jobs using
	// timestamp detection refuse to run rather than guess.
	ErrCorruptState = errors.New("corrupt tracker state")

	// ErrQuotaExceeded is a destination throttle; transient, but backed
	// off longer than generic transient errors.
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// ErrorKind buckets an error for retry decisions.
type ErrorKind int

const (
	KindTerminal ErrorKind = iota
	KindAuth
	KindTransient
	KindNotFound
	KindQuota
)

// ClassifyError maps an error onto the taxonomy. Context cancellation and
// deadline expiry count as transient: a timed-out attempt is retried, a
// cancelled run stops at the scheduling loop instead.
func ClassifyError(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrAuthFailure):
		return KindAuth
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuota
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	case errors.Is(err, context.Canceled):
		return KindTransient
	default:
		return KindTerminal
	}
}

// Retryable reports whether an error of this kind should be retried.
func (k ErrorKind) Retryable() bool {
	return k == KindTransient || k == KindQuota
}

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth_failure"
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	case KindQuota:
		return "quota_exceeded"
	default:
		return "terminal"
	}
}

// JobError is a job-level setup failure: the run never started transferring.
type JobError struct {
	Job string
	Err error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s: %v", e.Job, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}
