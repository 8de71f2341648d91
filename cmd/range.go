package cmd

import (
	"fmt"

	"github.com/DominicWuest/verscepter/pkg/verscepter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rangeCmd = &cobra.Command{
	Use:   "range job.yml",
	Short: "Print the versions a job.yml bisects",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		job := readJob(args[0])

		versions, err := job.Range()
		if err != nil {
			logrus.Fatalf("Failed to get versions - %v", err)
		}
		bisector, err := verscepter.NewBisector(versions)
		if err != nil {
			logrus.Fatalf("Failed to create bisector - %v", err)
		}

		for i, v := range versions {
			marker := " "
			switch i {
			case 0:
				marker = "good"
			case len(versions) - 1:
				marker = "bad"
			case bisector.CurrentIndex():
				marker = "first"
			}
			fmt.Printf("%-5s %3d %s (%s, %s)\n", marker, i, v.Version, v.Source, v.State)
		}
		fmt.Printf("%d versions, at most %d judgments needed\n", len(versions), bisector.StepsLeft())
	},
}

func init() {
	rootCmd.AddCommand(rangeCmd)
}
