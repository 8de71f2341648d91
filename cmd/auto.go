package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/DominicWuest/verscepter/pkg/verscepter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var autoMaxConcurrent uint

var autoCmd = &cobra.Command{
	Use:   "auto job.yml [job.yml...]",
	Short: "Bisect the versions of one or more job.yml files automatically",
	Long: `Bisect the versions of one or more job.yml files automatically.
Every candidate is judged by running the job's executor against it.
A timeout or failure of the executor aborts the bisection of that job.

Multiple jobs are bisected concurrently, each with its own executor.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobs := make([]*verscepter.Job, len(args))
		for i, path := range args {
			jobs[i] = readJob(path)
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		// The flag overrides the limits from the job configs
		maxConcurrent := autoMaxConcurrent
		if !cmd.Flags().Changed("max-concurrent") {
			maxConcurrent = verscepter.ConcurrencyLimit(jobs)
		}

		reports, err := verscepter.RunJobs(ctx, jobs, maxConcurrent)
		if err != nil {
			logrus.Errorf("Not all bisections succeeded - %v", err)
		}

		for i, report := range reports {
			if report.Boundary == nil {
				fmt.Printf("%s: bisection ended with result %s after %d runs\n", args[i], report.Result, len(report.Runs))
				continue
			}
			fmt.Printf("%s: %s passed, %s failed (%d runs)\n", args[i], report.Boundary.LastGood, report.Boundary.FirstBad, len(report.Runs))
			if jobs[i].CompareURL != "" {
				fmt.Printf("%s: changes: %s\n", args[i], report.Boundary.CompareURL(jobs[i].CompareURL))
			}
		}

		if err != nil {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(autoCmd)

	autoCmd.Flags().UintVarP(&autoMaxConcurrent, "max-concurrent", "c", 0, "The max amount of jobs bisected concurrently, or 0 if no limit. Defaults to the strictest maxConcurrent of the jobs")
}
