package main

import (
	"github.com/spf13/cobra"

	"github.com/GPTx-global/flightoracle/oracle/config"
	"github.com/GPTx-global/flightoracle/oracle/log"
)

const flagHome = "home"

// NewRootCmd creates the flightoracled command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "flightoracled",
		Short: "Flight status oracle daemon for FlightSurety",
		Long: `flightoracled registers a pool of oracle accounts with a FlightSurety
contract, listens for OracleRequest events and answers every request whose
index an oracle holds with that oracle's flight status code.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			home, _ := cmd.Flags().GetString(flagHome)
			config.SetHome(home)
		},
	}

	rootCmd.PersistentFlags().String(flagHome, config.Home(), "directory for config and log files")

	rootCmd.AddCommand(
		InitCmd(),
		StartCmd(),
		StatusCmd(),
	)

	return rootCmd
}

// loadConfig reads the config under --home and applies its log level.
func loadConfig() error {
	if err := config.Load(); err != nil {
		return err
	}

	return log.SetLevel(config.LogLevel())
}
