package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/indexd/miner/internal/config"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running miner",
	Long:  `Stop asks a running start to shut down cleanly, flushing any buffered store writes first.`,
	RunE:  runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	socketPath := SocketPath(cfg.Store.Path)

	resp, err := sendCommand(socketPath, "STOP")
	if err != nil {
		return exitError{code: ExitFailure, err: fmt.Errorf("no miner appears to be running: %w", err)}
	}
	if resp != "OK" {
		return exitError{code: ExitFailure, err: fmt.Errorf("unexpected reply: %s", resp)}
	}

	fmt.Println("Stopped.")
	return nil
}
