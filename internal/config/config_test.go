package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
sources:
  - name: corp-od
    type: onedrive_business
    user: alice@corp.example
  - name: corp-sp
    type: sharepoint
    site_url: https://corp.sharepoint.com/sites/eng
    library: Documents
    folders: ["Reports/**"]
destinations:
  - name: archive
    type: s3
    bucket: corp-backup
  - name: vault
    type: azure_blob
    account: corpvault
    container: backups
    prefix: od
backup_jobs:
  - name: nightly
    sources: [corp-od, corp-sp]
    destination: archive
    change_detection: both
    concurrency: 8
  - name: disabled-job
    sources: [corp-od]
    destination: vault
    enabled: false
sync_options:
  retry_attempts: 5
  retry_delay: 2s
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Len(t, cfg.Sources, 2)
	assert.Len(t, cfg.Destinations, 2)
	assert.Len(t, cfg.Jobs, 2)

	nightly := cfg.JobByName("nightly")
	require.NotNil(t, nightly)
	assert.Equal(t, DetectBoth, nightly.ChangeDetection)
	assert.Equal(t, 8, nightly.Concurrency)
	assert.True(t, nightly.IsEnabled())

	disabled := cfg.JobByName("disabled-job")
	require.NotNil(t, disabled)
	assert.False(t, disabled.IsEnabled())

	// defaults
	assert.Equal(t, 5, cfg.SyncOptions.RetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.SyncOptions.RetryDelay)
	assert.Equal(t, 10*time.Minute, cfg.SyncOptions.AttemptTimeout)
	assert.Equal(t, "us-east-1", cfg.DestinationByName("archive").Region)

	enabled := cfg.EnabledJobs()
	require.Len(t, enabled, 1)
	assert.Equal(t, "nightly", enabled[0].Name)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown source type",
			yaml: `
sources: [{name: a, type: dropbox}]
destinations: [{name: d, type: s3, bucket: b}]
backup_jobs: [{name: j, sources: [a], destination: d}]
`,
			want: "unsupported type",
		},
		{
			name: "sharepoint missing library",
			yaml: `
sources: [{name: a, type: sharepoint, site_url: "https://x"}]
destinations: [{name: d, type: s3, bucket: b}]
backup_jobs: [{name: j, sources: [a], destination: d}]
`,
			want: "library is required",
		},
		{
			name: "s3 missing bucket",
			yaml: `
sources: [{name: a, type: onedrive_personal, user: u}]
destinations: [{name: d, type: s3}]
backup_jobs: [{name: j, sources: [a], destination: d}]
`,
			want: "bucket is required",
		},
		{
			name: "azure missing container",
			yaml: `
sources: [{name: a, type: onedrive_personal, user: u}]
destinations: [{name: d, type: azure_blob, account: acc}]
backup_jobs: [{name: j, sources: [a], destination: d}]
`,
			want: "container is required",
		},
		{
			name: "job references unknown destination",
			yaml: `
sources: [{name: a, type: onedrive_personal, user: u}]
destinations: [{name: d, type: s3, bucket: b}]
backup_jobs: [{name: j, sources: [a], destination: nope}]
`,
			want: "unknown destination",
		},
		{
			name: "job references unknown source",
			yaml: `
sources: [{name: a, type: onedrive_personal, user: u}]
destinations: [{name: d, type: s3, bucket: b}]
backup_jobs: [{name: j, sources: [missing], destination: d}]
`,
			want: "unknown source",
		},
		{
			name: "bad change detection",
			yaml: `
sources: [{name: a, type: onedrive_personal, user: u}]
destinations: [{name: d, type: s3, bucket: b}]
backup_jobs: [{name: j, sources: [a], destination: d, change_detection: vibes}]
`,
			want: "unsupported change_detection",
		},
		{
			name: "duplicate job name",
			yaml: `
sources: [{name: a, type: onedrive_personal, user: u}]
destinations: [{name: d, type: s3, bucket: b}]
backup_jobs:
  - {name: j, sources: [a], destination: d}
  - {name: j, sources: [a], destination: d}
`,
			want: "duplicate name",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
