package backup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveback/driveback/internal/config"
)

// runnerFixture assembles a runner around one fake source/destination pair.
type runnerFixture struct {
	cfg     *config.Config
	tracker *Tracker
	src     *fakeSource
	dst     *fakeDestination
	runner  *Runner
}

func newRunnerFixture(t *testing.T, mode config.DetectionMode, mutate ...func(*config.Config)) *runnerFixture {
	t.Helper()

	cfg := &config.Config{
		Sources: []config.Source{
			{Name: "od", Type: config.SourceOneDrivePersonal, User: "user@example.com"},
		},
		Destinations: []config.Destination{
			{Name: "s3", Type: config.DestinationS3, Bucket: "backups", Prefix: "backups"},
		},
		Jobs: []config.Job{
			{
				Name:            "nightly",
				Sources:         []string{"od"},
				Destination:     "s3",
				ChangeDetection: mode,
				Concurrency:     2,
			},
		},
		SyncOptions: config.SyncOptions{
			RetryAttempts: 2,
			RetryDelay:    time.Millisecond,
		},
	}
	for _, m := range mutate {
		m(cfg)
	}

	src := newFakeSource("od")
	dst := newFakeDestination("s3")
	tracker := openTestTracker(t)

	return &runnerFixture{
		cfg:     cfg,
		tracker: tracker,
		src:     src,
		dst:     dst,
		runner: NewRunner(cfg, tracker,
			map[string]Source{"od": src},
			map[string]Destination{"s3": dst}),
	}
}

func (f *runnerFixture) job() *config.Job { return &f.cfg.Jobs[0] }

func (f *runnerFixture) run(t *testing.T, dryRun bool) *RunReport {
	t.Helper()
	report, err := f.runner.RunJob(context.Background(), f.job(), dryRun)
	require.NoError(t, err)
	return report
}

func TestRunJobFirstRunBacksUpEverything(t *testing.T) {
	f := newRunnerFixture(t, config.DetectTimestamp)
	f.src.addFile("a", "docs/a.txt", []byte("alpha"), t1)
	f.src.addFile("b", "docs/b.txt", []byte("beta!"), t1)

	report := f.run(t, false)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 2, report.Transferred)
	assert.Equal(t, int64(10), report.Bytes)
	assert.False(t, report.HasFailures())

	_, ok := f.dst.object("backups/od/docs/a.txt")
	assert.True(t, ok)
}

func TestRunJobIdempotent(t *testing.T) {
	f := newRunnerFixture(t, config.DetectTimestamp)
	f.src.addFile("a", "a.txt", []byte("alpha"), t1)

	first := f.run(t, false)
	assert.Equal(t, 1, first.Transferred)

	// identical listing: the second run moves nothing
	second := f.run(t, false)
	assert.Equal(t, 1, second.Scanned)
	assert.Equal(t, 0, second.Transferred)
	assert.Equal(t, int64(0), second.Bytes)
}

func TestRunJobIncrementalPass(t *testing.T) {
	f := newRunnerFixture(t, config.DetectTimestamp)
	f.src.addFile("a", "a.txt", []byte("alpha"), t1)
	f.src.addFile("b", "b.txt", []byte("beta"), t1)
	f.src.addFile("c", "c.txt", []byte("gamma"), t1)
	f.run(t, false)

	// a modified, b deleted upstream, d added
	f.src.setModified("a", []byte("alpha-v2"), t2)
	f.src.removeFile("b")
	f.src.addFile("d", "d.txt", []byte("delta"), t1)

	report := f.run(t, false)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 2, report.Transferred, "modified a plus new d")
	assert.Equal(t, 1, report.Skipped, "deleted b is a skip with propagation off")
	assert.Equal(t, 0, report.Deleted)

	body, ok := f.dst.object("backups/od/a.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("alpha-v2"), body)

	// b stopped being tracked but its object stays put
	rec, err := f.tracker.Get(Scope{Source: "od", Destination: "s3"}, "b")
	require.NoError(t, err)
	assert.Nil(t, rec)
	_, ok = f.dst.object("backups/od/b.txt")
	assert.True(t, ok)
}

func TestRunJobDeletePropagation(t *testing.T) {
	f := newRunnerFixture(t, config.DetectTimestamp, func(cfg *config.Config) {
		cfg.Jobs[0].DeletePropagation = true
	})
	f.src.addFile("a", "a.txt", []byte("alpha"), t1)
	f.run(t, false)

	f.src.removeFile("a")
	report := f.run(t, false)

	assert.Equal(t, 1, report.Deleted)
	_, ok := f.dst.object("backups/od/a.txt")
	assert.False(t, ok)
}

func TestRunJobDryRunMutatesNothing(t *testing.T) {
	f := newRunnerFixture(t, config.DetectTimestamp)
	f.src.addFile("a", "a.txt", []byte("alpha"), t1)
	f.src.addFile("b", "b.txt", []byte("beta"), t1)

	report := f.run(t, true)
	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.Transferred, "dry run counts planned transfers")
	assert.Equal(t, int64(10), report.Bytes, "dry run sizes come from the listing")

	// nothing actually moved or was tracked
	assert.Equal(t, 0, f.dst.objectCount())
	n, err := f.tracker.Count(Scope{Source: "od", Destination: "s3"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// a real run afterwards transfers the same set
	real := f.run(t, false)
	assert.Equal(t, report.Transferred, real.Transferred)
}

func TestRunJobDryRunPreservesDeletions(t *testing.T) {
	f := newRunnerFixture(t, config.DetectTimestamp)
	f.src.addFile("a", "a.txt", []byte("alpha"), t1)
	f.run(t, false)

	f.src.removeFile("a")
	report := f.run(t, true)
	assert.Equal(t, 1, report.Skipped)

	// dry run must not untrack: the record survives for the real pass
	rec, err := f.tracker.Get(Scope{Source: "od", Destination: "s3"}, "a")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestRunJobHashModeRecordsDigests(t *testing.T) {
	f := newRunnerFixture(t, config.DetectHash)
	f.src.addFile("a", "a.txt", []byte("hello"), t1)
	f.run(t, false)

	rec, err := f.tracker.Get(Scope{Source: "od", Destination: "s3"}, "a")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", rec.ContentHash)

	// timestamp bumps without content change move nothing in hash mode
	f.src.setModified("a", []byte("hello"), t2)
	report := f.run(t, false)
	assert.Equal(t, 0, report.Transferred)
}

func TestRunJobDisabled(t *testing.T) {
	disabled := false
	f := newRunnerFixture(t, config.DetectTimestamp, func(cfg *config.Config) {
		cfg.Jobs[0].Enabled = &disabled
	})
	f.src.addFile("a", "a.txt", []byte("alpha"), t1)

	report := f.run(t, false)
	assert.Equal(t, 0, report.Scanned)
	assert.Equal(t, 0, report.Transferred)
}

func TestRunJobUnknownReferences(t *testing.T) {
	f := newRunnerFixture(t, config.DetectTimestamp)

	badJob := &config.Job{Name: "broken", Sources: []string{"od"}, Destination: "nope"}
	_, err := f.runner.RunJob(context.Background(), badJob, false)
	var jobErr *JobError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, "broken", jobErr.Job)

	badJob = &config.Job{Name: "broken2", Sources: []string{"nope"}, Destination: "s3"}
	_, err = f.runner.RunJob(context.Background(), badJob, false)
	require.ErrorAs(t, err, &jobErr)
}

func TestRunJobListFailureIsJobLevel(t *testing.T) {
	f := newRunnerFixture(t, config.DetectTimestamp)
	f.src.listErr = assert.AnError

	_, err := f.runner.RunJob(context.Background(), f.job(), false)
	var jobErr *JobError
	require.ErrorAs(t, err, &jobErr)
}

func TestRunJobRefusesCorruptState(t *testing.T) {
	f := newRunnerFixture(t, config.DetectTimestamp)
	f.src.addFile("a", "a.txt", []byte("alpha"), t1)
	f.run(t, false)

	_, err := f.tracker.db.Exec(`UPDATE file_records SET remote_modified_at = 'not-a-time'`)
	require.NoError(t, err)

	_, err = f.runner.RunJob(context.Background(), f.job(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptState)
}

func TestRunAllSkipsDisabledAndCollectsReports(t *testing.T) {
	disabled := false
	f := newRunnerFixture(t, config.DetectTimestamp, func(cfg *config.Config) {
		cfg.Jobs = append(cfg.Jobs, config.Job{
			Name:            "off",
			Sources:         []string{"od"},
			Destination:     "s3",
			ChangeDetection: config.DetectTimestamp,
			Enabled:         &disabled,
		})
	})
	f.src.addFile("a", "a.txt", []byte("alpha"), t1)

	reports, err := f.runner.RunAll(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "nightly", reports[0].Job)
}

func TestCheckJob(t *testing.T) {
	f := newRunnerFixture(t, config.DetectTimestamp)

	results := f.runner.CheckJob(context.Background(), f.job())
	require.Len(t, results, 2)
	assert.NoError(t, results["source:od"])
	assert.NoError(t, results["destination:s3"])

	badJob := &config.Job{Name: "broken", Sources: []string{"ghost"}, Destination: "s3"}
	results = f.runner.CheckJob(context.Background(), badJob)
	assert.Error(t, results["source:ghost"])
}
