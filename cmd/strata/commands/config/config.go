// Package config implements the strata config subcommands.
package config

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent "config" command.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Manage strata configuration",
	Long:  `Validate, inspect, and describe the strata configuration file.`,
}

var cfgFile string

func init() {
	Cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./strata.yaml)")

	Cmd.AddCommand(validateCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(schemaCmd)
}
