package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strataproc/strata/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
		return nil
	},
}
