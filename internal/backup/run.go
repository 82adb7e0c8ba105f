package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/driveback/driveback/internal/config"
)

// Runner wires collaborators to jobs and drives single-pass executions.
// Collaborators are resolved at construction time from the closed set of
// configured source/destination variants.
type Runner struct {
	cfg          *config.Config
	tracker      *Tracker
	sources      map[string]Source
	destinations map[string]Destination
}

func NewRunner(cfg *config.Config, tracker *Tracker, sources map[string]Source, destinations map[string]Destination) *Runner {
	return &Runner{
		cfg:          cfg,
		tracker:      tracker,
		sources:      sources,
		destinations: destinations,
	}
}

// RunJob executes one backup job. The returned error covers job-level
// setup failures only (unknown references, listing failure, corrupt
// tracker state); per-file failures are recorded in the report.
func (r *Runner) RunJob(ctx context.Context, job *config.Job, dryRun bool) (*RunReport, error) {
	report := NewRunReport(job.Name, dryRun)
	defer report.Finalize()

	if !job.IsEnabled() {
		slog.Info("job disabled, skipping", "job", job.Name)
		return report, nil
	}

	dst, ok := r.destinations[job.Destination]
	if !ok {
		return report, &JobError{Job: job.Name, Err: fmt.Errorf("unknown destination %q", job.Destination)}
	}
	dstCfg := r.cfg.DestinationByName(job.Destination)

	for _, sourceName := range job.Sources {
		src, ok := r.sources[sourceName]
		if !ok {
			return report, &JobError{Job: job.Name, Err: fmt.Errorf("unknown source %q", sourceName)}
		}
		srcCfg := r.cfg.SourceByName(sourceName)

		if err := r.runSource(ctx, job, src, srcCfg, dst, dstCfg, report); err != nil {
			return report, &JobError{Job: job.Name, Err: err}
		}
	}

	return report, nil
}

func (r *Runner) runSource(ctx context.Context, job *config.Job, src Source, srcCfg *config.Source, dst Destination, dstCfg *config.Destination, report *RunReport) error {
	scope := Scope{Source: src.Name(), Destination: job.Destination}

	listing, err := src.List(ctx)
	if err != nil {
		return fmt.Errorf("list source %s: %w", src.Name(), err)
	}
	report.addScanned(len(listing))

	detector := NewDetector(job.ChangeDetection, src)
	classifications, err := detector.Classify(ctx, scope, listing, r.tracker)
	if err != nil {
		if errors.Is(err, ErrCorruptState) {
			// Never guess against partial state. A hash-mode cold start
			// (reset-state) reclassifies everything as new, which is
			// expensive but always correct.
			return fmt.Errorf("%w; refusing to run with partial state, reset the tracker to force a full re-backup", err)
		}
		return fmt.Errorf("classify source %s: %w", src.Name(), err)
	}

	plan := BuildPlan(classifications, PlanInput{
		Job:        job,
		SourceName: src.Name(),
		Folders:    srcCfg.Folders,
		KeyPrefix:  dstCfg.Prefix,
	})

	for _, skip := range plan.Skips {
		report.addSkip(skip)
	}

	if report.DryRun {
		// Identical plan, no-op execution: record what would move,
		// mutate nothing.
		for _, task := range plan.Tasks {
			if task.Delete {
				report.addDeleted()
			} else {
				report.addTransferred(task.ExpectedSize)
			}
		}
		slog.Info("dry run plan", "job", job.Name, "source", src.Name(),
			"tasks", len(plan.Tasks), "skips", len(plan.Skips), "untrack", len(plan.Removals))
		return nil
	}

	for _, identity := range plan.Removals {
		if err := r.tracker.Remove(scope, identity); err != nil {
			return fmt.Errorf("untrack deleted %s: %w", identity, err)
		}
	}

	executor := NewExecutor(src, dst, r.tracker, scope, ExecutorOptions{
		Concurrency:    job.Concurrency,
		Retry:          r.retryPolicy(),
		AttemptTimeout: r.cfg.SyncOptions.AttemptTimeout,
		RecordHash:     job.ChangeDetection != config.DetectTimestamp,
		Limiter:        r.limiter(),
	})
	executor.Execute(ctx, plan.Tasks, report)
	return ctx.Err()
}

// RunAll executes every enabled job sequentially and returns all reports.
// A job-level failure stops that job, not the rest.
func (r *Runner) RunAll(ctx context.Context, dryRun bool) ([]*RunReport, error) {
	var reports []*RunReport
	var errs []error

	for i := range r.cfg.Jobs {
		job := &r.cfg.Jobs[i]
		if !job.IsEnabled() {
			continue
		}
		report, err := r.RunJob(ctx, job, dryRun)
		reports = append(reports, report)
		if err != nil {
			slog.Error("job failed", "job", job.Name, "error", err)
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	return reports, errors.Join(errs...)
}

// CheckJob verifies every collaborator the job references is reachable.
func (r *Runner) CheckJob(ctx context.Context, job *config.Job) map[string]error {
	results := make(map[string]error)

	for _, sourceName := range job.Sources {
		src, ok := r.sources[sourceName]
		if !ok {
			results["source:"+sourceName] = fmt.Errorf("unknown source %q", sourceName)
			continue
		}
		results["source:"+sourceName] = src.Check(ctx)
	}

	if dst, ok := r.destinations[job.Destination]; ok {
		results["destination:"+job.Destination] = dst.Check(ctx)
	} else {
		results["destination:"+job.Destination] = fmt.Errorf("unknown destination %q", job.Destination)
	}

	return results
}

func (r *Runner) retryPolicy() RetryPolicy {
	opts := r.cfg.SyncOptions
	policy := DefaultRetryPolicy()
	if opts.RetryAttempts > 0 {
		policy.MaxAttempts = opts.RetryAttempts
	}
	if opts.RetryDelay > 0 {
		policy.BaseDelay = opts.RetryDelay
		policy.QuotaDelay = 4 * opts.RetryDelay
	}
	return policy
}

func (r *Runner) limiter() *rate.Limiter {
	if r.cfg.SyncOptions.RateLimit <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(r.cfg.SyncOptions.RateLimit), 1)
}
