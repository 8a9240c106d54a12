package cli

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SocketPath returns the control socket path a running `start` daemon
// listens on. There is one daemon per store, so the socket is derived from
// the store path rather than a fixed name.
func SocketPath(storePath string) string {
	sum := 0
	for _, b := range []byte(storePath) {
		sum = sum*31 + int(b)
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("minerd-%x.sock", uint32(sum)))
}

// dialDaemon connects to the control socket, or returns an error if no
// daemon is listening there.
func dialDaemon(socketPath string) (net.Conn, error) {
	return net.DialTimeout("unix", socketPath, 2*time.Second)
}

// sendCommand dials the daemon, writes a single line command, and returns
// its single line reply with the trailing newline stripped.
func sendCommand(socketPath, line string) (string, error) {
	conn, err := dialDaemon(socketPath)
	if err != nil {
		return "", fmt.Errorf("cli: no daemon listening at %s: %w", socketPath, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		return "", fmt.Errorf("cli: writing command: %w", err)
	}

	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("cli: reading reply: %w", err)
	}
	return strings.TrimRight(reply, "\n"), nil
}

// reply renders a control-protocol response line. ok responses are
// "OK [fields...]"; failures are "ERR <kind> <message>".
func reply(w *bufio.Writer, fields ...string) {
	fmt.Fprintln(w, strings.Join(fields, " "))
	w.Flush()
}

func errReply(w *bufio.Writer, kind, message string) {
	fmt.Fprintf(w, "ERR %s %s\n", kind, message)
	w.Flush()
}
