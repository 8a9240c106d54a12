package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/indexd/miner/internal/config"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Re-crawl every configured root of a running miner",
	Long:  `Reindex re-queues every root already known to a running miner for a fresh crawl/diff cycle, catching anything a lapsed watch may have missed.`,
	RunE:  runReindex,
}

func runReindex(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	socketPath := SocketPath(cfg.Store.Path)

	resp, err := sendCommand(socketPath, "REINDEX")
	if err != nil {
		return exitError{code: ExitFailure, err: fmt.Errorf("no miner appears to be running: %w", err)}
	}
	if resp != "OK" {
		return exitError{code: ExitFailure, err: fmt.Errorf("unexpected reply: %s", resp)}
	}

	fmt.Println("Reindex queued.")
	return nil
}
