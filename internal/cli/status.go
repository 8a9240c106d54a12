package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/indexd/miner/internal/config"
	"github.com/indexd/miner/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a running miner's progress",
	Long:  `Status reports the dispatch loop's current state, completion fraction and estimated remaining time.`,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	socketPath := SocketPath(cfg.Store.Path)

	resp, err := sendCommand(socketPath, "STATUS")
	if err != nil {
		fmt.Println(ui.Dim.Render("No miner is running for this store."))
		fmt.Printf("  %s %s\n", ui.Dim.Render("Store:"), cfg.Store.Path)
		return nil
	}

	fields := strings.SplitN(resp, " ", 4)
	if fields[0] != "OK" || len(fields) < 4 {
		return exitError{code: ExitFailure, err: fmt.Errorf("unexpected reply: %s", resp)}
	}
	status, progressStr, remaining := fields[1], fields[2], fields[3]

	progress := 0.0
	fmt.Sscanf(progressStr, "%f", &progress)

	fmt.Println(ui.Header.Render("Miner Status"))
	fmt.Printf("  %s %s\n", ui.Dim.Render("Status:"), statusLabel(status))
	fmt.Printf("  %s %.0f%%\n", ui.Dim.Render("Progress:"), progress*100)
	fmt.Printf("  %s %s\n", ui.Dim.Render("Remaining:"), remaining)
	fmt.Printf("  %s %s\n", ui.Dim.Render("Store:"), cfg.Store.Path)

	return nil
}

func statusLabel(token string) string {
	switch token {
	case "initializing":
		return "Initializing"
	case "processing":
		return "Processing files"
	case "idle":
		return "Idle"
	default:
		return token
	}
}
