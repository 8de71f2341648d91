package cmd

import (
	"context"
	"fmt"

	"github.com/DominicWuest/verscepter/internal/server"
	"github.com/DominicWuest/verscepter/pkg/verscepter"
	"github.com/manifoldco/promptui"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var bisectPort int
var bisectInteractive bool

var bisectCmd = &cobra.Command{
	Use:   "bisect job.yml",
	Short: "Bisect the versions of a job.yml by judging every candidate manually",
	Long: `Bisect the versions of a job.yml by judging every candidate manually.

By default, calling this command results in a RESTful HTTP server being created, with whose API the candidates can be judged.
With --interactive, every candidate is judged on the command line instead.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		job := readJob(args[0])

		session, err := job.StartSession()
		if err != nil {
			logrus.Fatalf("Failed to start bisection - %v", err)
		}

		if bisectInteractive {
			bisectInteractively(cmd.Context(), session, job.CompareURL)
			return
		}

		logrus.Warnf("Serving bisection on localhost:%d", bisectPort)
		if err := server.Serve(server.HTTP, bisectPort, session); err != nil {
			logrus.Fatalf("Failed to serve bisection - %v", err)
		}
	},
}

const (
	judgementGood   = "good"
	judgementBad    = "bad"
	judgementCancel = "cancel"
)

func bisectInteractively(ctx context.Context, session *verscepter.Session, compareURL string) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		candidate, boundary, err := session.Next(ctx)
		if err != nil {
			logrus.Fatalf("Bisection ended unexpectedly - %v", err)
		}

		if boundary != nil {
			fmt.Printf("Bisection done! %s is the last good version, %s is the first bad version.\n", boundary.LastGood, boundary.FirstBad)
			if compareURL != "" {
				fmt.Printf("Changes: %s\n", boundary.CompareURL(compareURL))
			}
			return
		}

		prompt := promptui.Select{
			Label: fmt.Sprintf("Is version %s good? (step %d, at most %d left)", candidate.Version, candidate.Step, candidate.StepsLeft),
			Items: []string{judgementGood, judgementBad, judgementCancel},
		}
		_, judgement, err := prompt.Run()
		if err != nil || judgement == judgementCancel {
			session.Cancel()
			fmt.Printf("Bisection cancelled while checking %s.\n", candidate.Version)
			return
		}

		if judgement == judgementGood {
			candidate.IsGood()
		} else {
			candidate.IsBad()
		}
	}
}

func init() {
	rootCmd.AddCommand(bisectCmd)

	bisectCmd.Flags().IntVarP(&bisectPort, "port", "p", 40032, "The port on which to start the server")
	bisectCmd.Flags().BoolVarP(&bisectInteractive, "interactive", "i", false, "Judge candidates on the command line instead of starting a server")

	bisectCmd.MarkFlagsMutuallyExclusive("port", "interactive")
}
