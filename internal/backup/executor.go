package backup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/driveback/driveback/internal/queue"
	"github.com/driveback/driveback/internal/utils"
)

// ExecutorOptions tune one execution pass.
type ExecutorOptions struct {
	Concurrency    int
	Retry          RetryPolicy
	AttemptTimeout time.Duration
	// RecordHash commits content digests with each record; enabled for
	// jobs whose detection mode uses hashes.
	RecordHash bool
	// Limiter optionally throttles transfer attempts across workers.
	Limiter *rate.Limiter
}

// Executor drives planned transfers against a destination with a bounded
// worker pool. Tracker commits happen per task immediately after a
// successful transfer, so a crash mid-run leaves state consistent with
// exactly the files that actually moved.
type Executor struct {
	src     Source
	dst     Destination
	tracker *Tracker
	scope   Scope
	opts    ExecutorOptions
}

func NewExecutor(src Source, dst Destination, tracker *Tracker, scope Scope, opts ExecutorOptions) *Executor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 10 * time.Minute
	}
	return &Executor{
		src:     src,
		dst:     dst,
		tracker: tracker,
		scope:   scope,
		opts:    opts,
	}
}

// Execute runs every task, recording outcomes into report. Per-file
// failures never abort the pass; cancellation stops scheduling new tasks
// immediately while in-flight attempts wind down via their contexts.
func (e *Executor) Execute(ctx context.Context, tasks []TransferTask, report *RunReport) {
	if len(tasks) == 0 {
		return
	}

	pending := queue.NewPriorityQueue[TransferTask]()
	for i, task := range tasks {
		pending.Enqueue(task, i) // plan order is the priority
	}

	g, ctx := errgroup.WithContext(ctx)
	for range e.opts.Concurrency {
		g.Go(func() error {
			for {
				if ctx.Err() != nil {
					return nil // stop scheduling, drop the rest
				}
				task, ok := pending.Dequeue()
				if !ok {
					return nil
				}
				e.runTask(ctx, task, report)
			}
		})
	}
	g.Wait()
}

func (e *Executor) runTask(ctx context.Context, task TransferTask, report *RunReport) {
	var moved int64
	attempts, err := e.opts.Retry.Run(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, e.opts.AttemptTimeout)
		defer cancel()

		if e.opts.Limiter != nil {
			if err := e.opts.Limiter.Wait(attemptCtx); err != nil {
				return fmt.Errorf("%w: rate limit wait: %v", ErrTransient, err)
			}
		}

		if task.Delete {
			return e.deleteOne(attemptCtx, task)
		}
		n, err := e.transferOne(attemptCtx, task)
		moved = n
		return err
	})

	if err == nil {
		if task.Delete {
			report.addDeleted()
			slog.Info("delete", "identity", task.Identity, "key", task.DestinationKey)
		} else {
			report.addTransferred(moved)
		}
		return
	}

	kind := ClassifyError(err)
	if kind == KindNotFound {
		// vanished mid-run; the next listing settles it as deleted
		slog.Warn("transfer skipped, source file vanished", "identity", task.Identity)
		report.addSkip(Failure{Identity: task.Identity, Reason: SkipVanishedMidRun, Err: err.Error()})
		return
	}

	slog.Error("transfer failed", "identity", task.Identity, "kind", kind.String(), "attempts", attempts, "error", err)
	report.addFailure(Failure{Identity: task.Identity, Reason: kind.String(), Err: err.Error()})
}

// transferOne streams one file from source to destination and commits the
// tracker record. The tracker never advances for a transfer that did not
// complete: Put reported success before Commit runs.
func (e *Executor) transferOne(ctx context.Context, task TransferTask) (int64, error) {
	body, err := e.src.Open(ctx, task.Locator)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", task.Identity, err)
	}
	defer body.Close()

	hr := utils.NewHashingReader(body)
	if err := e.dst.Put(ctx, task.DestinationKey, hr, task.ExpectedSize); err != nil {
		return 0, fmt.Errorf("put %s: %w", task.DestinationKey, err)
	}

	rec := &FileRecord{
		Identity:         task.Identity,
		Path:             task.Path,
		Size:             hr.BytesRead(),
		RemoteModifiedAt: task.ModifiedAt,
		LastBackedUpAt:   time.Now().UTC(),
		DestinationKey:   task.DestinationKey,
	}
	if e.opts.RecordHash {
		rec.ContentHash = hr.Sum()
	}
	if err := e.tracker.Commit(e.scope, rec); err != nil {
		return 0, fmt.Errorf("commit %s: %w", task.Identity, err)
	}

	slog.Info("transfer", "identity", task.Identity, "key", task.DestinationKey, "bytes", rec.Size)
	return rec.Size, nil
}

func (e *Executor) deleteOne(ctx context.Context, task TransferTask) error {
	if err := e.dst.Delete(ctx, task.DestinationKey); err != nil {
		return fmt.Errorf("delete %s: %w", task.DestinationKey, err)
	}
	if err := e.tracker.Remove(e.scope, task.Identity); err != nil {
		return fmt.Errorf("untrack %s: %w", task.Identity, err)
	}
	return nil
}
