package cli

import (
	"github.com/spf13/cobra"

	"github.com/halyard-sh/halyard/internal/output"
	"github.com/halyard-sh/halyard/internal/version"
)

var versionCheck bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

func runVersion(cmd *cobra.Command, _ []string) error {
	info := map[string]string{
		"version": version.Version,
		"commit":  version.Commit,
		"date":    version.Date,
	}

	if !versionCheck {
		if formatter.IsJSON() {
			return writeJSON(formatter.Writer(), info)
		}
		return formatter.Printf("halyard %s\n", version.Current())
	}

	client := version.NewClient()
	upd, err := client.CheckForUpdate(cmd.Context())
	if err != nil {
		return err
	}
	if formatter.IsJSON() {
		return writeJSON(formatter.Writer(), map[string]any{
			"version": info,
			"update":  upd,
		})
	}
	if err := formatter.Printf("halyard %s\n", version.Current()); err != nil {
		return err
	}
	if upd.IsNewer {
		output.Infof("a newer release is available: %s", upd.Latest)
	} else {
		output.Info("you are on the latest release")
	}
	return nil
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "check GitHub for a newer release")
	rootCmd.AddCommand(versionCmd)
}
