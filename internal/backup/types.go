package backup

import (
	"time"
)

// Scope namespaces tracker records per (source, destination) pairing.
type Scope struct {
	Source      string
	Destination string
}

func (s Scope) String() string {
	return s.Source + ":" + s.Destination
}

// FileRecord is the tracked state of one remote file ever seen in a scope.
type FileRecord struct {
	Identity         string
	Path             string
	Size             int64
	RemoteModifiedAt time.Time
	// ContentHash is empty unless hash detection has run for this file.
	ContentHash string
	// LastBackedUpAt is zero unless at least one transfer succeeded.
	LastBackedUpAt time.Time
	DestinationKey string
}

// Change tags the result of classifying one file against tracker state.
type Change string

const (
	Unchanged Change = "unchanged"
	Modified  Change = "modified"
	New       Change = "new"
	Deleted   Change = "deleted"
)

// Reasons recorded alongside a classification.
const (
	ReasonTimestampDiff     = "timestamp_diff"
	ReasonHashDiff          = "hash_diff"
	ReasonAbsentFromTracker = "absent_from_tracker"
	ReasonAbsentFromListing = "absent_from_listing"
	ReasonTimestampEqual    = "timestamp_equal"
	ReasonHashEqual         = "hash_equal"
)

// RemoteFile is one row of a source listing.
type RemoteFile struct {
	// Identity is the stable key for this file across runs.
	Identity   string
	Path       string
	Size       int64
	ModifiedAt time.Time
	// Locator is an opaque handle the source resolves back to content.
	Locator string
}

// Classification pairs a candidate file with the detector's verdict.
type Classification struct {
	File   RemoteFile
	Change Change
	Reason string
	// Prior is the tracker record consulted, nil for new files.
	Prior *FileRecord
	// Hash carries the content digest when hash detection computed one,
	// so the executor can commit it without re-reading the file.
	Hash string
}

// TransferTask is one unit of work produced by the planner.
type TransferTask struct {
	Identity       string
	Path           string
	Locator        string
	DestinationKey string
	ExpectedSize   int64
	ModifiedAt     time.Time
	// Hash is pre-computed by hash-mode detection, empty otherwise.
	Hash string
	// Delete marks a delete-propagation task; no bytes move.
	Delete   bool
	Attempts int
}

// Skip reasons recorded in the run report.
const (
	SkipTooLarge        = "too_large"
	SkipDeletedUpstream = "deleted_at_source"
	SkipVanishedMidRun  = "vanished_mid_run"
)

// Failure records one per-file failure or skip with its reason.
type Failure struct {
	Identity string `json:"identity"`
	Reason   string `json:"reason"`
	Err      string `json:"error,omitempty"`
}
