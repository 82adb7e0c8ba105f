package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/driveback/driveback/internal/utils"
)

const starterConfig = `# driveback configuration
# Credentials are read from the environment (or a .env file):
#   DRIVEBACK_GRAPH_TOKEN          Microsoft Graph access token
#   DRIVEBACK_AWS_ACCESS_KEY_ID    \
#   DRIVEBACK_AWS_SECRET_ACCESS_KEY > destination credentials
#   DRIVEBACK_AZURE_ACCOUNT_KEY    /

sources:
  - name: my-onedrive
    type: onedrive_personal
    user: you@example.com
    # folders: ["Documents", "Pictures/**"]

destinations:
  - name: archive
    type: s3
    bucket: my-backup-bucket
    region: us-east-1
    prefix: backups

backup_jobs:
  - name: nightly
    sources: [my-onedrive]
    destination: archive
    change_detection: timestamp   # timestamp | hash | both
    # delete_propagation: true
    # max_file_size: 1073741824

sync_options:
  retry_attempts: 3
  retry_delay: 5s
`

// writeStarterConfig writes the starter document to path, creating parent
// directories. Refuses to overwrite unless force is set.
func writeStarterConfig(path string, force bool) error {
	if utils.FileExists(path) && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := utils.EnsureParent(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		path, err := utils.ResolvePath(viper.GetString("config"))
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")

		if err := writeStarterConfig(path, force); err != nil {
			return err
		}
		fmt.Printf("wrote %s\nedit the sources and destinations, then run: driveback check\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "overwrite an existing configuration file")
	rootCmd.AddCommand(initCmd)
}
