package cli

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/indexd/miner/internal/config"
	"github.com/indexd/miner/internal/crawler"
	"github.com/indexd/miner/internal/extractor"
	"github.com/indexd/miner/internal/filecache"
	"github.com/indexd/miner/internal/indextree"
	"github.com/indexd/miner/internal/miner"
	"github.com/indexd/miner/internal/minererr"
	"github.com/indexd/miner/internal/monitor"
	"github.com/indexd/miner/internal/notifier"
	"github.com/indexd/miner/internal/pool"
	"github.com/indexd/miner/internal/store"
)

// daemon owns the fully-wired core (components A-G) plus the control
// socket that lets separate CLI invocations drive a running `start`.
type daemon struct {
	cfg    *config.Config
	tree   *indextree.Tree
	mon    *monitor.Monitor
	notif  *notifier.Notifier
	m      *miner.MinerFS
	st     *store.SQLStore
	pauses *pauseRegistry

	listener net.Listener
	done     chan struct{} // closed once, by requestStop: unblocks start's wait loop and monitor.Run
	stopOnce sync.Once
}

// newDaemon constructs the core pipeline (A-G) from cfg: IndexingTree,
// FileCache, Crawler, fsnotify-backed FilesystemMonitor, SQLite Store,
// the reference StatExtractor, ProcessingPool, FileNotifier and MinerFS.
func newDaemon(cfg *config.Config) (*daemon, error) {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, minererr.Wrap(minererr.TransientIO, "opening store", err)
	}

	tree := indextree.New()
	for _, glob := range cfg.Filters.File {
		tree.AddFilter(indextree.FilterFile, glob)
	}
	for _, glob := range cfg.Filters.Directory {
		tree.AddFilter(indextree.FilterDirectory, glob)
	}
	for _, glob := range cfg.Filters.ParentDirectory {
		tree.AddFilter(indextree.FilterParentDirectory, glob)
	}
	tree.SetFilterHidden(cfg.Filters.Hidden)

	cache := filecache.New()
	c := crawler.New()
	c.CheckDirectory = func(dir string) bool { return tree.FileIsIndexable(dir, indextree.KindDirectory) }
	c.CheckFile = func(file string) bool { return tree.FileIsIndexable(file, indextree.KindRegular) }
	c.CheckDirectoryContents = tree.ParentIsIndexable

	backend, err := monitor.NewFsnotifyBackend()
	if err != nil {
		st.Close()
		return nil, minererr.Wrap(minererr.NotSupported, "starting filesystem watcher", err)
	}
	mon := monitor.New(backend, cfg.Monitor.Limit)

	notif := notifier.New(tree, cache, c, st)
	p := pool.New(st, cfg.Pool.LimitWait, cfg.Pool.LimitReady)
	ex := extractor.NewStatExtractor()

	m := miner.New(tree, c, mon, notif, p, st, ex)

	return &daemon{
		cfg:    cfg,
		tree:   tree,
		mon:    mon,
		notif:  notif,
		m:      m,
		st:     st,
		pauses: newPauseRegistry(),
		done:   make(chan struct{}),
	}, nil
}

// start launches the monitor run loop and the dispatch loop, then adds every
// root from cfg.Roots plus the extra paths given on the command line.
func (d *daemon) start(extraPaths []string) {
	go d.mon.Run(d.done)
	d.m.Start()

	for _, r := range d.cfg.Roots {
		d.addRoot(r.Path, r.Recurse)
	}
	for _, p := range extraPaths {
		d.addRoot(p, true)
	}
}

func (d *daemon) addRoot(path string, recurse bool) {
	abs := path
	if resolved, err := filepath.Abs(path); err == nil {
		abs = resolved
	}
	d.m.AddDirectory(abs, recurse)
}

// listen starts accepting control connections at socketPath.
func (d *daemon) listen(socketPath string) error {
	os.Remove(socketPath)
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("cli: listening on control socket: %w", err)
	}
	d.listener = l

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go d.handleConn(conn)
		}
	}()
	return nil
}

// requestStop signals the daemon to shut down; safe to call more than once
// or concurrently with an OS-signal-driven shutdown.
func (d *daemon) requestStop() {
	d.stopOnce.Do(func() { close(d.done) })
}

// Done is closed once requestStop has run.
func (d *daemon) Done() <-chan struct{} { return d.done }

// stop halts the dispatch loop, commits any buffered pool work, closes the
// store and the control socket. Call after Done() has fired.
func (d *daemon) stop() {
	d.m.Stop()
	d.m.Commit(context.Background())
	d.st.Close()
	if d.listener != nil {
		d.listener.Close()
	}
}

// statusToken renders a Status as a single space-free token, since the
// control protocol is whitespace-delimited.
func statusToken(s miner.Status) string {
	switch s {
	case miner.StatusInitializing:
		return "initializing"
	case miner.StatusProcessingFiles:
		return "processing"
	case miner.StatusIdle:
		return "idle"
	default:
		return "unknown"
	}
}

func (d *daemon) handleConn(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	w := bufio.NewWriter(conn)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 3)
		cmd := fields[0]

		switch cmd {
		case "STATUS":
			snap := d.m.Snapshot()
			reply(w, "OK", statusToken(snap.Status), fmt.Sprintf("%.4f", snap.Progress), snap.RemainingTime.String())

		case "PAUSE":
			if len(fields) < 3 {
				errReply(w, minererr.ProgrammerError.String(), "usage: PAUSE <application> <reason>")
				continue
			}
			cookie, err := d.pauses.Pause(d.m, fields[1], fields[2])
			if err != nil {
				kind, _ := minererr.KindOf(err)
				errReply(w, kind.String(), err.Error())
				continue
			}
			reply(w, "OK", cookie)

		case "RESUME":
			if len(fields) < 2 {
				errReply(w, minererr.ProgrammerError.String(), "usage: RESUME <cookie>")
				continue
			}
			if err := d.pauses.Resume(d.m, fields[1]); err != nil {
				kind, _ := minererr.KindOf(err)
				errReply(w, kind.String(), err.Error())
				continue
			}
			reply(w, "OK")

		case "INDEX":
			if len(fields) < 2 {
				errReply(w, minererr.ProgrammerError.String(), "usage: INDEX <path>")
				continue
			}
			d.addRoot(fields[1], true)
			reply(w, "OK")

		case "REINDEX":
			for _, r := range d.tree.Roots() {
				d.notif.QueueRoot(r.Path)
			}
			reply(w, "OK")

		case "STOP":
			d.requestStop()
			reply(w, "OK")
			return

		default:
			errReply(w, minererr.ProgrammerError.String(), "unknown command "+cmd)
		}
	}
}
