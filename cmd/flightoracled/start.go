package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GPTx-global/flightoracle/oracle/config"
	"github.com/GPTx-global/flightoracle/oracle/daemon"
	"github.com/GPTx-global/flightoracle/oracle/log"
)

// StartCmd runs the daemon until it is interrupted or the request listener
// loses its connection.
func StartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Register the oracles and answer flight status requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log.ResetLogger(config.Home())
			config.Print()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			go func() {
				select {
				case sig := <-sigCh:
					log.Infof("received %s, shutting down", sig)
					cancel()
				case <-ctx.Done():
				}
			}()

			d, err := daemon.New(ctx)
			if err != nil {
				return fmt.Errorf("failed to create daemon: %w", err)
			}

			if err := d.Start(); err != nil {
				d.Stop()
				return fmt.Errorf("failed to start daemon: %w", err)
			}

			err = d.Run()
			cancel()
			d.Stop()

			if err != nil {
				return fmt.Errorf("oracle request listener stopped: %w", err)
			}

			return nil
		},
	}
}
