package backup

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunReport aggregates one job execution. Counters are order-free and the
// failure/skip lists are sorted by identity at finalize, so the report is
// deterministic regardless of worker completion order. Immutable once
// finalized.
type RunReport struct {
	ID          string    `json:"id"`
	Job         string    `json:"job"`
	DryRun      bool      `json:"dry_run"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Scanned     int       `json:"scanned"`
	Transferred int       `json:"transferred"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	Deleted     int       `json:"deleted"`
	Bytes       int64     `json:"bytes"`
	Failures    []Failure `json:"failures,omitempty"`
	Skips       []Failure `json:"skips,omitempty"`

	mu        sync.Mutex
	finalized bool
}

// NewRunReport starts the report for one job execution.
func NewRunReport(job string, dryRun bool) *RunReport {
	return &RunReport{
		ID:        uuid.NewString(),
		Job:       job,
		DryRun:    dryRun,
		StartedAt: time.Now().UTC(),
	}
}

func (r *RunReport) addScanned(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Scanned += n
}

func (r *RunReport) addTransferred(bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Transferred++
	r.Bytes += bytes
}

func (r *RunReport) addDeleted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Deleted++
}

func (r *RunReport) addSkip(f Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Skipped++
	r.Skips = append(r.Skips, f)
}

func (r *RunReport) addFailure(f Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed++
	r.Failures = append(r.Failures, f)
}

// Finalize stamps the finish time and sorts the failure and skip lists by
// identity. Further mutation is a programming error.
func (r *RunReport) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return
	}
	r.finalized = true
	r.FinishedAt = time.Now().UTC()
	sort.Slice(r.Failures, func(i, j int) bool { return r.Failures[i].Identity < r.Failures[j].Identity })
	sort.Slice(r.Skips, func(i, j int) bool { return r.Skips[i].Identity < r.Skips[j].Identity })
}

// Duration is the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// HasFailures reports whether any per-file failure was recorded.
func (r *RunReport) HasFailures() bool {
	return r.Failed > 0
}
