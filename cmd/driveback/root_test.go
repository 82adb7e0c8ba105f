package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveback/driveback/internal/config"
)

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.env")
	require.NoError(t, os.WriteFile(path, []byte("DRIVEBACK_GRAPH_TOKEN=tok-from-file\n"), 0o600))
	t.Setenv("DRIVEBACK_GRAPH_TOKEN", "")
	os.Unsetenv("DRIVEBACK_GRAPH_TOKEN")

	loadEnvFile(path)
	assert.Equal(t, "tok-from-file", os.Getenv("DRIVEBACK_GRAPH_TOKEN"))
}

func TestLoadEnvFileDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.env")
	require.NoError(t, os.WriteFile(path, []byte("DRIVEBACK_AZURE_ACCOUNT_KEY=from-file\n"), 0o600))
	t.Setenv("DRIVEBACK_AZURE_ACCOUNT_KEY", "from-env")

	loadEnvFile(path)
	assert.Equal(t, "from-env", os.Getenv("DRIVEBACK_AZURE_ACCOUNT_KEY"))
}

func TestLoadEnvFileMissingDefaultIsQuietNoop(t *testing.T) {
	// no .env in the working directory; must not fail or mutate anything
	loadEnvFile("")
}

func TestWriteStarterConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, writeStarterConfig(path, false))

	// the starter document must load and validate as-is
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Jobs, 1)
	assert.Equal(t, config.DetectTimestamp, cfg.Jobs[0].ChangeDetection)

	err = writeStarterConfig(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, writeStarterConfig(path, true))
}
