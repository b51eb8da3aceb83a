package cmd

import (
	"os"
	"path/filepath"

	"github.com/manifoldco/promptui"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cleanAgree bool

var cleanCmd = &cobra.Command{
	Use:     "clean",
	Aliases: []string{"prune", "cleanup"},
	Short:   "Clean all cached artifacts created by versect",
	Long: `This command cleans all cached artifacts created by versect.
This includes the persisted release list as well as all downloaded release binaries.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		entries, err := os.ReadDir(cacheDir)
		if os.IsNotExist(err) {
			logrus.Info("No cached artifacts to remove. Exiting...")
			return
		} else if err != nil {
			logrus.Fatalf("Couldn't read cache directory %s - %v", cacheDir, err)
		}
		if len(entries) == 0 {
			logrus.Info("No cached artifacts to remove. Exiting...")
			return
		}

		logrus.Infof("About to delete %d cached entries under %s.", len(entries), cacheDir)

		prompt := promptui.Prompt{
			Label:     "Proceed",
			IsConfirm: true,
		}

		if !cleanAgree {
			_, err := prompt.Run()
			if err != nil {
				logrus.Info("Exiting...")
				os.Exit(0)
			}
		}

		for _, entry := range entries {
			path := filepath.Join(cacheDir, entry.Name())
			logrus.Infof("Deleting %s", path)
			if err := os.RemoveAll(path); err != nil {
				logrus.Fatalf("Failed to remove %s - %v", path, err)
			}
		}

		logrus.Info("Done cleaning up.")
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().BoolVarP(&cleanAgree, "assume-yes", "y", false, `Bypass "Are you sure?" message.`)
}
