package cmd

import (
	"io"
	"os"

	"github.com/DominicWuest/verscepter/pkg/verscepter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var verbosity int
var quiet bool

var rootCmd = &cobra.Command{
	Use:   "verscepter",
	Short: "Find the runtime release which introduced a regression",
	Long: `Find the runtime release which introduced a regression.
Versions are bisected either manually or automatically by running a reproducible snippet against every candidate.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		formatter := prefixed.TextFormatter{
			DisableTimestamp: true,
		}
		logrus.SetFormatter(&formatter)
		setVerbosity(logrus.StandardLogger())
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase the log verbosity, may be repeated")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Don't log anything")
}

// setVerbosity sets the level of the passed logger based on the verbosity flags
func setVerbosity(log *logrus.Logger) {
	if quiet {
		log.SetOutput(io.Discard)
		return
	}
	switch verbosity {
	case 0:
		log.SetLevel(logrus.WarnLevel)
	case 1:
		log.SetLevel(logrus.InfoLevel)
	case 2:
		log.SetLevel(logrus.DebugLevel)
	default:
		log.SetLevel(logrus.TraceLevel)
	}
}

// readJob reads in the job config at the passed path and sets up its logger
func readJob(path string) *verscepter.Job {
	jobYaml, err := os.Open(path)
	if err != nil {
		logrus.Fatalf("Failed to open job yaml - %v", err)
	}
	defer jobYaml.Close()

	job, err := verscepter.GetJobFromConfig(jobYaml)
	if err != nil {
		logrus.Fatalf("Failed to read job config from yaml %s - %v", path, err)
	}
	job.Log = logrus.StandardLogger()
	return job
}
