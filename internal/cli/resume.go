package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/indexd/miner/internal/config"
	"github.com/indexd/miner/internal/minererr"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <cookie>",
	Short: "Release a pause taken out by \"pause\"",
	Long:  `Resume presents a cookie printed by a prior "pause" call; an unrecognized cookie exits with status 3.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	socketPath := SocketPath(cfg.Store.Path)
	cookie := args[0]

	resp, err := sendCommand(socketPath, "RESUME "+cookie)
	if err != nil {
		return exitError{code: ExitFailure, err: err}
	}

	fields := strings.SplitN(resp, " ", 3)
	switch fields[0] {
	case "OK":
		fmt.Println("Resumed.")
		return nil
	case "ERR":
		kind := ""
		if len(fields) > 1 {
			kind = fields[1]
		}
		message := resp
		if len(fields) > 2 {
			message = fields[2]
		}
		code := ExitFailure
		if kind == minererr.InvalidCookie.String() {
			code = ExitInvalidCookie
		}
		return exitError{code: code, err: fmt.Errorf("%s", message)}
	default:
		return exitError{code: ExitFailure, err: fmt.Errorf("unexpected reply: %s", resp)}
	}
}
