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

var bisectGood string
var bisectBad string
var bisectPayload string
var bisectArgs []string
var bisectHeadless bool
var bisectTimeout time.Duration

var bisectCmd = &cobra.Command{
	Use:   "bisect [job.yml]",
	Short: "Bisect the release range between a good and a bad version",
	Long: `Bisect the release range between a good and a bad version.
The payload is run against one midpoint release at a time until the adjacent
pair is found at which the outcome flips from passing (exit code 0) to
failing (exit code 1).

The session can either be described by a job.yml passed as the only argument,
or through the --good, --bad and --payload flags.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()

		var job *versect.Job
		if len(args) == 1 {
			file, err := os.Open(args[0])
			if err != nil {
				logrus.Fatalf("Failed to open job yaml - %v", err)
			}
			job, err = versect.GetJobFromConfig(file)
			file.Close()
			if err != nil {
				logrus.Fatalf("Failed to read job config from yaml - %v", err)
			}
		} else {
			job = &versect.Job{
				GoodVersion:   bisectGood,
				BadVersion:    bisectBad,
				PayloadSource: bisectPayload,
				Args:          bisectArgs,
				Headless:      bisectHeadless,
				RunTimeout:    bisectTimeout,
			}
		}
		if job.GoodVersion == "" || job.BadVersion == "" || job.PayloadSource == "" {
			logrus.Fatal("A good version, a bad version and a payload are required")
		}

		releases := newReleaseService(log)
		if err := releases.Refresh(context.Background()); err != nil {
			log.Warnf("Couldn't refresh release catalog, continuing with cached data - %v", err)
		}

		job.Releases = releases
		job.Executables = newInstaller(log)
		job.Payloads = &versect.PayloadLoader{Log: log}
		job.Log = log
		job.Observer = func(p versect.Progress) {
			log.Infof("Tested %s - %s (window %d..%d of %d)", p.Version, p.Outcome, p.Left, p.Right, p.Total)
		}

		boundary, err := job.Run(context.Background())
		if err != nil {
			logrus.Fatalf("Bisection failed - %v", err)
		}

		fmt.Printf("Bisection done after %d run(s)!\n", boundary.Runs)
		fmt.Printf("Last good version: %s\n", boundary.LastGood)
		fmt.Printf("First bad version: %s\n", boundary.FirstBad)
	},
}

func init() {
	rootCmd.AddCommand(bisectCmd)

	bisectCmd.Flags().StringVar(&bisectGood, "good", "", "The version known to pass.")
	bisectCmd.Flags().StringVar(&bisectBad, "bad", "", "The version known to fail.")
	bisectCmd.Flags().StringVar(&bisectPayload, "payload", "", "The payload source: a folder, git reference, gist id, URL or inline source.")
	bisectCmd.Flags().StringArrayVar(&bisectArgs, "arg", nil, "Extra argument appended to every test run. Can be passed multiple times.")
	bisectCmd.Flags().BoolVar(&bisectHeadless, "headless", true, "Wrap test runs in a virtual display on platforms without native GUI support.")
	bisectCmd.Flags().DurationVar(&bisectTimeout, "run-timeout", 5*time.Minute, "Maximum duration of a single test run.")
}
