package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/indexd/miner/internal/config"
)

var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "Add a directory to a running miner, or start one with it",
	Long: `Index is add_directory followed by start: if a miner is already running
for this store it is told to pick up the new directory immediately;
otherwise a new miner is started scoped to this one directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	socketPath := SocketPath(cfg.Store.Path)
	path := args[0]

	if resp, err := sendCommand(socketPath, "INDEX "+path); err == nil {
		if resp != "OK" {
			return exitError{code: ExitFailure, err: fmt.Errorf("unexpected reply: %s", resp)}
		}
		fmt.Printf("Added %s to the running miner.\n", path)
		return nil
	}

	return runStart(cmd, []string{path})
}
