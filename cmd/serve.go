package cmd

import (
	"context"

	"github.com/DominicWuest/versect/internal/server"
	"github.com/DominicWuest/versect/pkg/versect"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var servePort int
var serveHeadless bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a server for driving bisections over a RESTful HTTP API",
	Long: `Start a server for driving bisections over a RESTful HTTP API.
Jobs are started with POST /jobs and polled with GET /jobs/:jobId, the known
releases are listed under GET /versions.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()

		releases := newReleaseService(log)
		if err := releases.Refresh(context.Background()); err != nil {
			log.Warnf("Couldn't refresh release catalog, continuing with cached data - %v", err)
		}

		_, err := server.NewServer(server.HTTP, server.Config{
			Port:        servePort,
			Releases:    releases,
			Executables: newInstaller(log),
			Payloads:    &versect.PayloadLoader{Log: log},
			Headless:    serveHeadless,
			Log:         log,
		})
		if err != nil {
			logrus.Fatalf("Failed to start webserver - %v", err)
		}

		select {}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&servePort, "port", "p", 40032, "The port on which to start the server. 0 picks a free port.")
	serveCmd.Flags().BoolVar(&serveHeadless, "headless", true, "Wrap test runs in a virtual display on platforms without native GUI support.")
}
