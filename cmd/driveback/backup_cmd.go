package main

import (
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/driveback/driveback/internal/backup"
	"github.com/driveback/driveback/internal/utils"
)

var (
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	red    = color.New(color.FgHiRed, color.Bold).SprintFunc()
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Run backup jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		jobName, _ := cmd.Flags().GetString("job")
		reportPath, _ := cmd.Flags().GetString("report")
		resetState, _ := cmd.Flags().GetBool("reset-state")

		if resetState {
			statePath, err := trackerPath(cfg)
			if err != nil {
				return err
			}
			if utils.FileExists(statePath) {
				if err := backup.NewTracker(statePath).Reset(); err != nil {
					return err
				}
				fmt.Println(yellow("tracker state reset; the next run re-backs up everything"))
			}
		}

		runner, cleanup, err := buildRunner(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		var reports []*backup.RunReport
		if jobName != "" {
			job := cfg.JobByName(jobName)
			if job == nil {
				return fmt.Errorf("unknown job %q", jobName)
			}
			report, err := runner.RunJob(cmd.Context(), job, dryRun)
			reports = append(reports, report)
			if err != nil {
				printReports(reports)
				return err
			}
		} else {
			reports, err = runner.RunAll(cmd.Context(), dryRun)
			if err != nil {
				printReports(reports)
				return err
			}
		}

		printReports(reports)

		if reportPath != "" {
			if err := writeJSONReport(reportPath, reports); err != nil {
				return err
			}
		}

		for _, report := range reports {
			if report.HasFailures() {
				return fmt.Errorf("completed with failures")
			}
		}
		return nil
	},
}

func printReports(reports []*backup.RunReport) {
	for _, r := range reports {
		status := green("ok")
		if r.HasFailures() {
			status = red(fmt.Sprintf("%d failed", r.Failed))
		}
		mode := ""
		if r.DryRun {
			mode = yellow(" (dry run)")
		}
		fmt.Printf("%s%s: scanned %d, transferred %d (%s), skipped %d, deleted %d, %s in %s\n",
			r.Job, mode, r.Scanned, r.Transferred, humanize.Bytes(uint64(r.Bytes)),
			r.Skipped, r.Deleted, status, r.Duration().Round(10*time.Millisecond))
		for _, f := range r.Failures {
			fmt.Printf("  %s %s: %s\n", red("✗"), f.Identity, f.Err)
		}
	}
}

func writeJSONReport(path string, reports []*backup.RunReport) error {
	data, err := sonic.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := utils.EnsureParent(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func init() {
	backupCmd.Flags().StringP("job", "j", "", "run only the named job")
	backupCmd.Flags().Bool("dry-run", false, "plan and report without transferring or mutating state")
	backupCmd.Flags().String("report", "", "write a JSON run report to this path")
	backupCmd.Flags().Bool("reset-state", false, "move the tracker state aside before running (forces a full re-backup)")
	viper.BindPFlag("dry_run", backupCmd.Flags().Lookup("dry-run"))
	rootCmd.AddCommand(backupCmd)
}
