package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/emberweb/constellate/internal/config"
)

const defaultConfigPath = "constellate.yaml"

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default constellate.yaml to the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			return fmt.Errorf("%s already exists", defaultConfigPath)
		}
		cfg := config.GenerateDefault()
		if err := cfg.Save(defaultConfigPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", defaultConfigPath)
		return nil
	},
}
