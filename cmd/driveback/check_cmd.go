package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify source and destination connectivity for every enabled job",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		runner, cleanup, err := buildRunner(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		failed := false
		for _, job := range cfg.EnabledJobs() {
			fmt.Printf("%s:\n", job.Name)
			results := runner.CheckJob(cmd.Context(), &job)

			names := make([]string, 0, len(results))
			for name := range results {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				if err := results[name]; err != nil {
					failed = true
					fmt.Printf("  %s %s: %v\n", red("✗"), name, err)
				} else {
					fmt.Printf("  %s %s\n", green("✓"), name)
				}
			}
		}

		if failed {
			return fmt.Errorf("connectivity check failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
