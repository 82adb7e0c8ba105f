package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/driveback/driveback/internal/backup"
	"github.com/driveback/driveback/internal/config"
	"github.com/driveback/driveback/internal/destination"
	"github.com/driveback/driveback/internal/source"
	"github.com/driveback/driveback/internal/utils"
	"github.com/driveback/driveback/internal/version"
)

var (
	home, _           = os.UserHomeDir()
	defaultConfigPath = filepath.Join(home, ".driveback", "config.yaml")
	defaultStatePath  = filepath.Join(home, ".driveback", "state.db")
)

var rootCmd = &cobra.Command{
	Use:     "driveback",
	Short:   "Incremental backup from OneDrive/SharePoint to S3 or Azure Blob",
	Version: version.Detailed(),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadEnvFile(viper.GetString("env_file"))
		setupLogging(viper.GetString("log_level"))
	},
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", defaultConfigPath, "configuration file")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("env-file", "", "load credentials from this env file (default: .env if present)")

	viper.BindPFlag("config", pf.Lookup("config"))
	viper.BindPFlag("log_level", pf.Lookup("log-level"))
	viper.BindPFlag("env_file", pf.Lookup("env-file"))
	viper.SetEnvPrefix("DRIVEBACK")
	viper.AutomaticEnv()
}

// loadEnvFile loads credentials from an env file before viper reads the
// environment. The default .env is optional; a file named explicitly via
// --env-file must exist.
func loadEnvFile(path string) {
	if path == "" {
		godotenv.Load()
		return
	}
	if err := godotenv.Load(path); err != nil {
		fmt.Fprintf(os.Stderr, "warning: env file %s: %v\n", path, err)
	}
}

// loadConfig reads the configuration named by the --config flag.
func loadConfig() (*config.Config, error) {
	path, err := utils.ResolvePath(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

// trackerPath resolves the tracker database location for this config.
func trackerPath(cfg *config.Config) (string, error) {
	statePath := cfg.StatePath
	if statePath == "" {
		statePath = defaultStatePath
	}
	return utils.ResolvePath(statePath)
}

// openTracker opens the tracker database for this config.
func openTracker(cfg *config.Config) (*backup.Tracker, error) {
	statePath, err := trackerPath(cfg)
	if err != nil {
		return nil, err
	}
	tracker := backup.NewTracker(statePath)
	if err := tracker.Open(); err != nil {
		return nil, fmt.Errorf("open tracker state: %w", err)
	}
	return tracker, nil
}

// buildRunner resolves every configured collaborator and opens the tracker.
// The returned cleanup closes the tracker.
func buildRunner(cfg *config.Config) (*backup.Runner, func(), error) {
	tracker, err := openTracker(cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { tracker.Close() }

	tokens := source.StaticToken(viper.GetString("graph_token"))
	sources := make(map[string]backup.Source, len(cfg.Sources))
	for i := range cfg.Sources {
		srcCfg := &cfg.Sources[i]
		src, err := source.New(srcCfg, tokens)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("source %s: %w", srcCfg.Name, err)
		}
		sources[srcCfg.Name] = src
	}

	creds := destination.Credentials{
		AWSAccessKeyID:     viper.GetString("aws_access_key_id"),
		AWSSecretAccessKey: viper.GetString("aws_secret_access_key"),
		AzureAccountKey:    viper.GetString("azure_account_key"),
	}
	destinations := make(map[string]backup.Destination, len(cfg.Destinations))
	for i := range cfg.Destinations {
		dstCfg := &cfg.Destinations[i]
		dst, err := destination.New(dstCfg, creds)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("destination %s: %w", dstCfg.Name, err)
		}
		destinations[dstCfg.Name] = dst
	}

	return backup.NewRunner(cfg, tracker, sources, destinations), cleanup, nil
}
