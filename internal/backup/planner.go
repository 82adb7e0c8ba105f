package backup

import (
	"log/slog"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/driveback/driveback/internal/config"
)

// PlanInput scopes one planning pass to a job+source pairing.
type PlanInput struct {
	Job        *config.Job
	SourceName string
	Folders    []string // glob patterns, empty = everything
	KeyPrefix  string   // destination key prefix
}

// Plan is the planner's output: tasks execute in order, skips go straight
// into the run report, and removals are identities to drop from the tracker
// (deletions when propagation is off).
type Plan struct {
	Tasks    []TransferTask
	Skips    []Failure
	Removals []string
}

// IsEmpty reports whether the plan contains no work at all.
func (p *Plan) IsEmpty() bool {
	return len(p.Tasks) == 0 && len(p.Skips) == 0 && len(p.Removals) == 0
}

// BuildPlan turns classifications into an ordered transfer plan. Dry runs
// use the identical logic, so dry-run output is exactly what a real run
// would execute. Input classifications are assumed sorted by identity (the
// detector guarantees it), which makes plans reproducible across runs.
func BuildPlan(classifications []Classification, in PlanInput) *Plan {
	plan := &Plan{}

	if !in.Job.IsEnabled() {
		slog.Debug("plan skipped, job disabled", "job", in.Job.Name)
		return plan
	}

	for _, c := range classifications {
		switch c.Change {
		case Unchanged:
			// never produces a task

		case Deleted:
			if in.Job.DeletePropagation {
				plan.Tasks = append(plan.Tasks, TransferTask{
					Identity:       c.File.Identity,
					Path:           c.File.Path,
					DestinationKey: deletionKey(c, in),
					Delete:         true,
				})
			} else {
				// default policy: stop tracking, leave the destination alone
				plan.Skips = append(plan.Skips, Failure{
					Identity: c.File.Identity,
					Reason:   SkipDeletedUpstream,
				})
				plan.Removals = append(plan.Removals, c.File.Identity)
			}

		case New, Modified:
			if !matchesFolders(c.File.Path, in.Folders) {
				continue
			}
			if in.Job.MaxFileSize > 0 && c.File.Size > in.Job.MaxFileSize {
				plan.Skips = append(plan.Skips, Failure{
					Identity: c.File.Identity,
					Reason:   SkipTooLarge,
				})
				continue
			}
			plan.Tasks = append(plan.Tasks, TransferTask{
				Identity:       c.File.Identity,
				Path:           c.File.Path,
				Locator:        c.File.Locator,
				DestinationKey: DestinationKey(in.KeyPrefix, in.SourceName, c.File.Path),
				ExpectedSize:   c.File.Size,
				ModifiedAt:     c.File.ModifiedAt,
				Hash:           c.Hash,
			})
		}
	}

	return plan
}

// DestinationKey builds the destination object key:
// <prefix>/<source-name>/<remote path>, forward slashes, no leading slash.
func DestinationKey(prefix, sourceName, filePath string) string {
	filePath = strings.TrimPrefix(strings.ReplaceAll(filePath, "\\", "/"), "/")
	return strings.TrimPrefix(path.Join(prefix, sourceName, filePath), "/")
}

// deletionKey prefers the key the file was actually stored under.
func deletionKey(c Classification, in PlanInput) string {
	if c.Prior != nil && c.Prior.DestinationKey != "" {
		return c.Prior.DestinationKey
	}
	return DestinationKey(in.KeyPrefix, in.SourceName, c.File.Path)
}

// matchesFolders applies the job's folder scope. No patterns means the
// whole tree is in scope.
func matchesFolders(filePath string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	filePath = strings.TrimPrefix(filePath, "/")
	for _, pattern := range patterns {
		pattern = strings.TrimPrefix(pattern, "/")
		if ok, err := doublestar.Match(pattern, filePath); err == nil && ok {
			return true
		}
		// a bare folder name scopes its whole subtree
		if ok, err := doublestar.Match(pattern+"/**", filePath); err == nil && ok {
			return true
		}
	}
	return false
}
