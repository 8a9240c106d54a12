package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/indexd/miner/internal/config"
)

var pauseApplication string

var pauseCmd = &cobra.Command{
	Use:   "pause <reason>",
	Short: "Pause a running miner",
	Long: `Pause asks a running start to stop dispatching new work, printing a cookie
that must be presented to "resume" to release this particular pause.

A second pause with the same application and reason is rejected: each
(application, reason) pair may only be outstanding once.`,
	Args: cobra.ExactArgs(1),
	RunE: runPause,
}

func init() {
	hostname, _ := os.Hostname()
	pauseCmd.Flags().StringVar(&pauseApplication, "application", hostname, "identifies the caller for duplicate-pause detection")
}

func runPause(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	socketPath := SocketPath(cfg.Store.Path)
	reason := args[0]

	resp, err := sendCommand(socketPath, fmt.Sprintf("PAUSE %s %s", pauseApplication, reason))
	if err != nil {
		return exitError{code: ExitFailure, err: err}
	}

	fields := strings.SplitN(resp, " ", 3)
	switch fields[0] {
	case "OK":
		cookie := ""
		if len(fields) > 1 {
			cookie = fields[1]
		}
		fmt.Printf("Paused. Cookie: %s\n", cookie)
		return nil
	case "ERR":
		message := resp
		if len(fields) > 2 {
			message = fields[2]
		}
		return exitError{code: ExitFailure, err: fmt.Errorf("%s", message)}
	default:
		return exitError{code: ExitFailure, err: fmt.Errorf("unexpected reply: %s", resp)}
	}
}
