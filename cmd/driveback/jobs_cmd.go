package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List configured backup jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		for _, job := range cfg.Jobs {
			status := green("enabled")
			if !job.IsEnabled() {
				status = yellow("disabled")
			}
			fmt.Printf("%s [%s]\n", job.Name, status)
			fmt.Printf("  sources:     %s\n", strings.Join(job.Sources, ", "))
			fmt.Printf("  destination: %s\n", job.Destination)
			fmt.Printf("  detection:   %s\n", job.ChangeDetection)
			if job.DeletePropagation {
				fmt.Printf("  deletes:     propagated to destination\n")
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}
