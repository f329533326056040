package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/GPTx-global/flightoracle/oracle/config"
)

const flagAddr = "addr"

// StatusCmd prints the pool status reported by a running daemon.
func StatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running daemon for its oracle pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString(flagAddr)
			if addr == "" {
				if err := loadConfig(); err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				addr = config.ServerListen()
			}

			body, err := fetchStatus(addr)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), gjson.Get(body, "@pretty").String())
			return nil
		},
	}

	cmd.Flags().String(flagAddr, "", "daemon HTTP address (default: server.listen from config)")

	return cmd
}

func fetchStatus(addr string) (string, error) {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimSuffix(addr, "/") + "/status")
	if err != nil {
		return "", fmt.Errorf("failed to reach daemon: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read status: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("daemon returned %s", resp.Status)
	}

	body := string(data)
	if !gjson.Valid(body) {
		return "", fmt.Errorf("daemon returned invalid status JSON")
	}

	return body, nil
}
