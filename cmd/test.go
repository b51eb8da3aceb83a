package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/DominicWuest/versect/pkg/versect"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var testPayload string
var testArgs []string
var testHeadless bool
var testTimeout time.Duration

var testCmd = &cobra.Command{
	Use:   "test version",
	Short: "Run the payload once against a single release",
	Long: `Run the payload once against a single release and report the classified
outcome. The process exits with 0 for a passed run, 1 for a failed run and 2
for an inconclusive one.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()

		releases := newReleaseService(log)
		if err := releases.Refresh(context.Background()); err != nil {
			log.Warnf("Couldn't refresh release catalog, continuing with cached data - %v", err)
		}

		exe, err := newInstaller(log).Resolve(context.Background(), args[0])
		if err != nil {
			logrus.Fatalf("Failed to resolve executable for %s - %v", args[0], err)
		}

		loader := &versect.PayloadLoader{Log: log}
		payload, err := loader.Resolve(context.Background(), testPayload)
		if err != nil {
			logrus.Fatalf("Failed to resolve payload - %v", err)
		}
		defer payload.Cleanup()

		runner := versect.Runner{Log: log}
		outcome := runner.Run(context.Background(), exe, payload.EntryPath, versect.RunOptions{
			Args:     testArgs,
			Dir:      payload.Dir,
			Headless: testHeadless,
			Output:   os.Stdout,
			Timeout:  testTimeout,
		})

		fmt.Printf("Outcome for %s: %s\n", args[0], outcome)
		switch outcome.Outcome {
		case versect.OutcomePassed:
			os.Exit(0)
		case versect.OutcomeFailed:
			os.Exit(1)
		default:
			os.Exit(2)
		}
	},
}

func init() {
	rootCmd.AddCommand(testCmd)

	testCmd.Flags().StringVar(&testPayload, "payload", "", "The payload source: a folder, git reference, gist id, URL or inline source.")
	testCmd.Flags().StringArrayVar(&testArgs, "arg", nil, "Extra argument appended to the test run. Can be passed multiple times.")
	testCmd.Flags().BoolVar(&testHeadless, "headless", true, "Wrap the test run in a virtual display on platforms without native GUI support.")
	testCmd.Flags().DurationVar(&testTimeout, "run-timeout", 5*time.Minute, "Maximum duration of the test run.")
}
