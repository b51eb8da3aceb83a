package cmd

import (
	"io"
	"os"
	"time"

	"github.com/DominicWuest/versect/pkg/versect"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var verbosity int
var quiet bool

var feedURL string
var mirrorURL string
var mirrorAsset string
var cacheDir string
var cacheTTL time.Duration

var rootCmd = &cobra.Command{
	Use:   "versect",
	Short: "Bisect release histories to find the exact version where a test starts failing",
	Long:  ``,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase logging verbosity. Can be passed multiple times.")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress all logging output.")

	rootCmd.PersistentFlags().StringVar(&feedURL, "feed", "", "URL of the release feed returning the known versions as JSON.")
	rootCmd.PersistentFlags().StringVar(&mirrorURL, "mirror", "", "Base URL of the release mirror binaries are downloaded from.")
	rootCmd.PersistentFlags().StringVar(&mirrorAsset, "asset", "app", "File name of the release binary on the mirror.")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", versect.DefaultCacheDir(), "Directory holding cached release lists and binaries.")
	rootCmd.PersistentFlags().DurationVar(&cacheTTL, "ttl", versect.DefaultTTL, "Maximum age of the cached release list before it is refreshed.")
}

// newLogger builds the logger shared by all commands, with the verbosity
// mapped from the passed flags.
func newLogger() *logrus.Logger {
	log := logrus.New()

	formatter := prefixed.TextFormatter{
		DisableTimestamp: true,
	}
	formatter.SetColorScheme(&prefixed.ColorScheme{})
	log.SetFormatter(&formatter)

	if quiet {
		log.SetOutput(io.Discard)
	} else if verbosity == 0 {
		log.SetLevel(logrus.WarnLevel)
	} else if verbosity == 1 {
		log.SetLevel(logrus.InfoLevel)
	} else if verbosity == 2 {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.TraceLevel)
	}

	return log
}

// newReleaseService wires up the catalog service from the persistent flags.
func newReleaseService(log *logrus.Logger) *versect.ReleaseService {
	if feedURL == "" {
		logrus.Fatal("No release feed configured, pass one via --feed")
	}
	releases, err := versect.NewReleaseService(versect.ServiceConfig{
		FeedURL:  feedURL,
		CacheDir: cacheDir,
		TTL:      cacheTTL,
		Log:      log,
	})
	if err != nil {
		logrus.Fatalf("Failed to create release service - %v", err)
	}
	return releases
}

// newInstaller wires up the on-demand binary installer from the persistent flags.
func newInstaller(log *logrus.Logger) *versect.Installer {
	if mirrorURL == "" {
		logrus.Fatal("No release mirror configured, pass one via --mirror")
	}
	installer, err := versect.NewInstaller(versect.InstallerConfig{
		MirrorURL: mirrorURL,
		Asset:     mirrorAsset,
		CacheDir:  cacheDir,
		Log:       log,
	})
	if err != nil {
		logrus.Fatalf("Failed to create installer - %v", err)
	}
	return installer
}
