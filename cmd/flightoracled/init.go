package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GPTx-global/flightoracle/oracle/config"
)

const flagOverwrite = "overwrite"

// InitCmd writes the default config file under --home.
func InitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.Path()
			overwrite, _ := cmd.Flags().GetBool(flagOverwrite)

			if _, err := os.Stat(path); err == nil && !overwrite {
				return fmt.Errorf("config file %s already exists, use --%s to replace it", path, flagOverwrite)
			}

			if err := config.WriteDefault(path); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().Bool(flagOverwrite, false, "replace an existing config file")

	return cmd
}
