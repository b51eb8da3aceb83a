package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var versionsMajor uint64
var versionsStable bool
var versionsMajors bool

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List the known releases of the catalog",
	Long: `List the known releases of the catalog in ascending order.
The list can be narrowed to a single major or to stable releases only, or
summarized into the major classification (prerelease, supported, obsolete).`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()

		releases := newReleaseService(log)
		if err := releases.Refresh(context.Background()); err != nil {
			log.Warnf("Couldn't refresh release catalog, continuing with cached data - %v", err)
		}

		if versionsMajors {
			fmt.Printf("Prerelease majors: %v\n", releases.PrereleaseMajors())
			fmt.Printf("Stable majors:     %v\n", releases.StableMajors())
			fmt.Printf("Supported majors:  %v\n", releases.SupportedMajors())
			fmt.Printf("Obsolete majors:   %v\n", releases.ObsoleteMajors())
			if latest := releases.Latest(); latest != nil {
				fmt.Printf("Latest release:    %s\n", latest)
			}
			if stable := releases.LatestStable(); stable != nil {
				fmt.Printf("Latest stable:     %s\n", stable)
			}
			return
		}

		versions := releases.Versions()
		if cmd.Flags().Changed("major") {
			versions = releases.VersionsInMajor(versionsMajor)
		}
		for _, v := range versions {
			if versionsStable && !v.IsStable() {
				continue
			}
			fmt.Println(v)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionsCmd)

	versionsCmd.Flags().Uint64Var(&versionsMajor, "major", 0, "Only list releases of this major.")
	versionsCmd.Flags().BoolVar(&versionsStable, "stable", false, "Only list stable releases.")
	versionsCmd.Flags().BoolVar(&versionsMajors, "majors", false, "Print the major classification instead of the release list.")
}
