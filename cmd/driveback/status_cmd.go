package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/driveback/driveback/internal/backup"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tracked backup state per job",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		tracker, err := openTracker(cfg)
		if err != nil {
			return err
		}
		defer tracker.Close()

		for _, job := range cfg.Jobs {
			fmt.Printf("%s:\n", job.Name)
			for _, sourceName := range job.Sources {
				scope := backup.Scope{Source: sourceName, Destination: job.Destination}
				stats, err := tracker.Stats(scope)
				if err != nil {
					return fmt.Errorf("stats for %s: %w", scope, err)
				}

				last := yellow("never")
				if !stats.LastBackedUp.IsZero() {
					last = green(humanize.Time(stats.LastBackedUp))
				}
				fmt.Printf("  %s -> %s: %d files, %s, last backup %s\n",
					sourceName, job.Destination, stats.Files,
					humanize.Bytes(uint64(stats.Bytes)), last)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
