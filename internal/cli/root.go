package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "constellate",
	Short: "Supervisory control plane for a multi-pipeline application host",
	Long: `constellate is the orchestration control plane of a browser-style
application host: it tracks the liveness of every pipeline's script and
layout components, routes broadcast-channel messages between isolated
origins, and aggregates warnings, errors, and panics from subordinate
contexts into a single supervisory stream.

Running 'constellate' without a subcommand is equivalent to 'constellate run'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(initCmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to constellate.yaml (default: ./constellate.yaml if present)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
