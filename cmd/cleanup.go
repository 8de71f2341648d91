package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/manifoldco/promptui"
	"github.com/moby/moby/client"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cleanupAgree bool

var cleanupCmd = &cobra.Command{
	Use:     "clean",
	Aliases: []string{"prune", "cleanup"},
	Short:   "Clean all docker containers created by verscepter",
	Long: `This command removes all docker containers created by the docker executor of verscepter, both running and stopped.
Containers are normally removed after every run, but may be left behind if verscepter was killed.
Pulled images are not removed.`,
	Run: func(cmd *cobra.Command, args []string) {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			logrus.Fatalf("Couldn't create docker client - %v", err)
		}
		defer cli.Close()

		containers, err := cli.ContainerList(context.Background(), container.ListOptions{
			All: true,
			Filters: filters.NewArgs(
				filters.KeyValuePair{
					Key:   "label",
					Value: "verscepter=1",
				},
			),
		})
		if err != nil {
			logrus.Fatalf("Couldn't list docker containers - %v", err)
		}

		if len(containers) == 0 {
			logrus.Info("No containers to remove. Exiting...")
			return
		}

		logrus.Infof("About to delete %d containers.", len(containers))

		prompt := promptui.Prompt{
			Label:     fmt.Sprintf("Delete %d containers", len(containers)),
			IsConfirm: true,
		}

		if !cleanupAgree {
			_, err := prompt.Run()
			if err != nil {
				logrus.Info("Exiting...")
				os.Exit(0)
			}
		}

		for _, c := range containers {
			logrus.Infof("Deleting container %s (ID: %s)", c.Names[0][1:], c.ID)
			if err := cli.ContainerRemove(context.Background(), c.ID, container.RemoveOptions{Force: true}); err != nil {
				logrus.Fatalf("Failed to remove container with ID %s - %v", c.ID, err)
			}
		}

		logrus.Info("Done cleaning up.")
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().BoolVarP(&cleanupAgree, "assume-yes", "y", false, `Bypass "Are you sure?" message.`)
}
