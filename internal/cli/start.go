package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/indexd/miner/internal/config"
	"github.com/indexd/miner/internal/ui"
)

// startCmd represents the start command.
var startCmd = &cobra.Command{
	Use:   "start [path...]",
	Short: "Crawl and watch the configured (and given) directories",
	Long: `Start builds the indexing pipeline, crawls every configured root plus any
paths given on the command line, and then keeps watching them for live
changes until stopped.

Only one start can own a given store's control socket at a time. Start
removes any existing socket file before binding, so a second start against
the same store takes the socket over from the first rather than failing.

Examples:
  # Start with only the roots from config.yaml
  minerd start

  # Also index an ad hoc directory for this run
  minerd start ~/Downloads`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	d, err := newDaemon(cfg)
	if err != nil {
		return exitError{code: ExitFailure, err: err}
	}

	socketPath := SocketPath(cfg.Store.Path)
	if err := d.listen(socketPath); err != nil {
		return exitError{code: ExitFailure, err: fmt.Errorf("another start may already be running for this store: %w", err)}
	}
	defer os.Remove(socketPath)

	d.start(args)

	fmt.Println(ui.Header.Render("minerd"))
	fmt.Printf("Store:  %s\n", cfg.Store.Path)
	fmt.Printf("Socket: %s\n", socketPath)
	fmt.Println("Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
		d.requestStop()
	case <-d.Done():
		log.Debug("cli: stop requested over control socket")
	}

	d.stop()
	return nil
}
