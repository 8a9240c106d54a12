// Package miner implements MinerFS (component G): the single-threaded
// cooperative dispatcher that binds IndexingTree, Crawler, FileCache,
// ProcessingPool and FileNotifier together. It maintains four priority event
// queues, drains exactly one item per dispatch tick, delegates extraction to
// a pluggable Extractor, and reports progress and pause state.
package miner

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/indexd/miner/internal/crawler"
	"github.com/indexd/miner/internal/eventbus"
	"github.com/indexd/miner/internal/extractor"
	"github.com/indexd/miner/internal/graph"
	"github.com/indexd/miner/internal/indextree"
	"github.com/indexd/miner/internal/minererr"
	"github.com/indexd/miner/internal/monitor"
	"github.com/indexd/miner/internal/notifier"
	"github.com/indexd/miner/internal/pool"
	"github.com/indexd/miner/internal/store"
)

// Status is the coarse-grained state MinerFS reports alongside Progress.
type Status int

const (
	StatusInitializing Status = iota
	StatusProcessingFiles
	StatusIdle
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "Initializing"
	case StatusProcessingFiles:
		return "Processing files"
	case StatusIdle:
		return "Idle"
	default:
		return "Unknown"
	}
}

// ProgressInfo is published whenever progress changes by a visible amount.
type ProgressInfo struct {
	Progress      float64
	Status        Status
	RemainingTime time.Duration
}

type queueKind int

const (
	queueDeleted queueKind = iota
	queueCreated
	queueUpdated
	queueMoved
)

// queueItem is one pending event; Other is the move destination when Kind is
// queueMoved, unused otherwise.
type queueItem struct {
	Path  string
	Other string
	IsDir bool
}

// MinerFS binds A-F together and drives the Store through Pool. Construct
// its collaborators (Tree, Cache, Crawler, Monitor, Notifier, Pool, Store)
// independently and pass them to New; MinerFS owns only the dispatch loop,
// the four queues, and progress/pause bookkeeping.
type MinerFS struct {
	tree     *indextree.Tree
	crawler  *crawler.Crawler
	monitor  *monitor.Monitor
	notifier *notifier.Notifier
	pool     *pool.Pool
	store    store.Store
	extract  extractor.Extractor

	mu         sync.Mutex
	cond       *sync.Cond
	running    bool
	pauseCount int

	deletedQ []queueItem
	createdQ []queueItem
	updatedQ []queueItem
	movedQ   []queueItem

	cancellables map[string]context.CancelFunc

	totalSeen  int
	totalDone  int
	startedAt  time.Time
	status     Status
	lastEmit   time.Time

	Progress eventbus.Bus[ProgressInfo]
	Paused   eventbus.Bus[struct{}]
	Resumed  eventbus.Bus[struct{}]
}

// New wires a MinerFS over already-constructed collaborators. It subscribes
// to the notifier's crawl/query diff events, forwards eligible monitor
// events through the notifier's scope check, and adds watches for every
// directory the crawler visits.
func New(tree *indextree.Tree, c *crawler.Crawler, mon *monitor.Monitor, notif *notifier.Notifier, p *pool.Pool, st store.Store, ex extractor.Extractor) *MinerFS {
	m := &MinerFS{
		tree:         tree,
		crawler:      c,
		monitor:      mon,
		notifier:     notif,
		pool:         p,
		store:        st,
		extract:      ex,
		status:       StatusInitializing,
		cancellables: make(map[string]context.CancelFunc),
	}
	m.cond = sync.NewCond(&m.mu)

	notif.Created.Subscribe(func(e notifier.FileEvent) { m.enqueue(queueCreated, queueItem{Path: e.Path}) })
	notif.Updated.Subscribe(func(e notifier.FileEvent) { m.enqueue(queueUpdated, queueItem{Path: e.Path}) })
	notif.Deleted.Subscribe(func(e notifier.FileEvent) { m.enqueue(queueDeleted, queueItem{Path: e.Path}) })

	mon.Created.Subscribe(func(e monitor.ItemEvent) { notif.HandleMonitorEvent(notifier.EventCreated, e.Path) })
	mon.Updated.Subscribe(func(e monitor.ItemEvent) { notif.HandleMonitorEvent(notifier.EventUpdated, e.Path) })
	mon.Deleted.Subscribe(func(e monitor.ItemEvent) { notif.HandleMonitorEvent(notifier.EventDeleted, e.Path) })
	mon.Moved.Subscribe(m.onMonitorMoved)

	c.FileFound.Subscribe(func(crawler.FileFound) { m.bumpSeen(1) })
	c.DirectoryCrawled.Subscribe(func(ev crawler.DirectoryCrawled) {
		m.bumpSeen(ev.DirsFound)
		if tree.FileIsIndexable(ev.Dir, indextree.KindDirectory) {
			mon.Add(ev.Dir)
		}
	})

	return m
}

func (m *MinerFS) onMonitorMoved(ev monitor.MovedEvent) {
	// A move is only interesting if either endpoint is in scope; the
	// enqueue handler below reduces out-of-scope cases to created/deleted.
	if !m.tree.FileIsIndexable(ev.Src, indextree.KindUnknown) && !m.tree.FileIsIndexable(ev.Dst, indextree.KindUnknown) {
		return
	}
	m.enqueue(queueMoved, queueItem{Path: ev.Src, Other: ev.Dst, IsDir: ev.IsDir})
}

// AddDirectory configures path as a monitored, mtime-checked root, and
// watches it immediately so no live change is missed before the crawl
// visits it.
func (m *MinerFS) AddDirectory(path string, recurse bool) {
	flags := indextree.FlagMonitor | indextree.FlagCheckMTime
	if recurse {
		flags |= indextree.FlagRecurse
	}
	m.tree.Add(path, flags)
	m.monitor.Add(path)
}

// RemoveDirectory drops path from the indexing tree, cancels any in-flight
// extraction under it, drops queued events under it, and stops the crawler
// if it is currently working under that subtree.
func (m *MinerFS) RemoveDirectory(path string) {
	m.tree.Remove(path)
	m.monitor.RemoveSubtree(path)

	m.mu.Lock()
	for file, cancel := range m.cancellables {
		if file == path || strings.HasPrefix(file, path+"/") {
			cancel()
			delete(m.cancellables, file)
		}
	}
	m.deletedQ = dropPrefix(m.deletedQ, path)
	m.createdQ = dropPrefix(m.createdQ, path)
	m.updatedQ = dropPrefix(m.updatedQ, path)
	m.movedQ = dropPrefix(m.movedQ, path)
	m.mu.Unlock()

	if task := m.pool.FindTask(path, false); task != nil {
		// in-flight pool batches still complete; dropping it from our own
		// queues is enough to stop new work from starting under path.
		log.Debug("miner: directory removed while a task is still in the pool", "path", path)
	}
}

func dropPrefix(items []queueItem, prefix string) []queueItem {
	kept := items[:0]
	for _, it := range items {
		if it.Path == prefix || strings.HasPrefix(it.Path, prefix+"/") {
			continue
		}
		kept = append(kept, it)
	}
	return kept
}

// Start begins the dispatch loop. Calling Start twice is a no-op.
func (m *MinerFS) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.startedAt = time.Now()
	m.status = StatusInitializing
	m.mu.Unlock()

	go m.dispatchLoop()
}

// Stop halts the dispatch loop; queued items are preserved but not drained.
func (m *MinerFS) Stop() {
	m.mu.Lock()
	m.running = false
	m.cond.Broadcast()
	m.mu.Unlock()
}

// Pause increments the pause count; the dispatch loop stops scheduling new
// work once the count is above zero. Also pauses the crawler so no further
// crawl events arrive while paused.
func (m *MinerFS) Pause() {
	m.mu.Lock()
	m.pauseCount++
	first := m.pauseCount == 1
	m.mu.Unlock()

	m.crawler.Pause()
	if first {
		m.Paused.Publish(struct{}{})
	}
}

// Resume releases one Pause. The dispatch loop and crawler resume once the
// count drops to zero.
func (m *MinerFS) Resume() {
	m.mu.Lock()
	if m.pauseCount > 0 {
		m.pauseCount--
	}
	last := m.pauseCount == 0
	if last {
		m.cond.Broadcast()
	}
	m.mu.Unlock()

	m.crawler.Resume()
	if last {
		m.Resumed.Publish(struct{}{})
	}
}

// Commit force-flushes the processing pool's current buffer.
func (m *MinerFS) Commit(ctx context.Context) {
	m.pool.Commit(ctx)
}

func (m *MinerFS) enqueue(kind queueKind, item queueItem) {
	m.mu.Lock()
	switch kind {
	case queueDeleted:
		m.deletedQ = append(m.deletedQ, item)
	case queueCreated:
		m.createdQ = append(m.createdQ, item)
	case queueUpdated:
		m.updatedQ = append(m.updatedQ, item)
	case queueMoved:
		m.movedQ = append(m.movedQ, item)
	}
	m.cond.Broadcast()
	m.mu.Unlock()
}

func (m *MinerFS) bumpSeen(n int) {
	m.mu.Lock()
	m.totalSeen += n
	m.mu.Unlock()
	m.emitProgress(false)
}

// dispatchLoop is the single cooperative loop: wait for (not-paused AND
// eligible work), pop exactly one item by priority, dispatch it, repeat.
func (m *MinerFS) dispatchLoop() {
	m.mu.Lock()
	for {
		for m.running && (m.pauseCount > 0 || !m.hasEligibleLocked()) {
			m.cond.Wait()
		}
		if !m.running {
			m.mu.Unlock()
			return
		}
		kind, item := m.popLocked()
		m.mu.Unlock()

		m.setStatus(StatusProcessingFiles)
		m.dispatch(kind, item)

		m.mu.Lock()
	}
}

func (m *MinerFS) hasEligibleLocked() bool {
	if len(m.deletedQ) > 0 {
		return true
	}
	waitOK := !m.pool.WaitLimitReached()
	if waitOK && len(m.createdQ) > 0 {
		return true
	}
	if waitOK && len(m.updatedQ) > 0 {
		return true
	}
	if len(m.movedQ) > 0 {
		return true
	}
	return false
}

// popLocked removes and returns the next item in priority order: deleted,
// created, updated, moved. Callers must hold m.mu.
func (m *MinerFS) popLocked() (queueKind, queueItem) {
	if len(m.deletedQ) > 0 {
		it := m.deletedQ[0]
		m.deletedQ = m.deletedQ[1:]
		return queueDeleted, it
	}
	if !m.pool.WaitLimitReached() && len(m.createdQ) > 0 {
		it := m.createdQ[0]
		m.createdQ = m.createdQ[1:]
		return queueCreated, it
	}
	if !m.pool.WaitLimitReached() && len(m.updatedQ) > 0 {
		it := m.updatedQ[0]
		m.updatedQ = m.updatedQ[1:]
		return queueUpdated, it
	}
	it := m.movedQ[0]
	m.movedQ = m.movedQ[1:]
	return queueMoved, it
}

func (m *MinerFS) dispatch(kind queueKind, item queueItem) {
	ctx := context.Background()
	switch kind {
	case queueDeleted:
		m.handleDeleted(ctx, item)
	case queueCreated, queueUpdated:
		m.handleCreatedOrUpdated(ctx, item)
	case queueMoved:
		m.handleMoved(ctx, item)
	}
}

// completeDispatch marks one queue item fully handled: advances the done
// counter, re-evaluates progress, and wakes the dispatch loop in case
// back-pressure (wait_limit_reached) had stalled it.
func (m *MinerFS) completeDispatch() {
	m.mu.Lock()
	m.totalDone++
	remaining := len(m.deletedQ) + len(m.createdQ) + len(m.updatedQ) + len(m.movedQ)
	m.cond.Broadcast()
	m.mu.Unlock()

	if remaining == 0 {
		m.setStatus(StatusIdle)
	}
	m.emitProgress(false)
}

func (m *MinerFS) handleDeleted(ctx context.Context, item queueItem) {
	uri := notifier.FileIRI(item.Path)
	rows, err := m.store.Query(ctx, store.ProbeExistsQuery(uri))
	if err != nil {
		log.Warn("miner: probing store before delete failed", "path", item.Path, "error", err)
		m.completeDispatch()
		return
	}
	if len(rows) == 0 || !rows[0][0].Bool {
		m.completeDispatch()
		return
	}

	stmt := graph.NewBuilder(uri).DeleteAllPredicates().Build()
	task := m.pool.PushWait(item.Path)
	m.pool.PushReady(ctx, task, item.Path, stmt, true, func(err error) {
		if err != nil {
			log.Warn("miner: delete statement failed", "path", item.Path, "error", err)
		}
		m.completeDispatch()
	})
}

func (m *MinerFS) handleCreatedOrUpdated(ctx context.Context, item queueItem) {
	uri := notifier.FileIRI(item.Path)
	builder := graph.NewBuilder(uri).DeleteAllPredicates()

	extractCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancellables[item.Path] = cancel
	m.mu.Unlock()

	task := m.pool.PushWait(item.Path)

	finish := func(err error) {
		m.mu.Lock()
		delete(m.cancellables, item.Path)
		m.mu.Unlock()
		cancel()

		if err != nil {
			if minererr.IsCancelled(err) || err == extractor.ErrSkipped {
				m.completeDispatch()
				return
			}
			log.Warn("miner: extraction failed", "path", item.Path, "error", err)
			m.completeDispatch()
			return
		}

		stmt := builder.Build()
		m.pool.PushReady(ctx, task, item.Path, stmt, true, func(err error) {
			if err != nil {
				log.Warn("miner: store update failed", "path", item.Path, "error", err)
			}
			m.completeDispatch()
		})
	}

	more := m.extract.ProcessFile(extractCtx, uri, item.Path, builder, finish)
	if !more {
		return
	}
	// ProcessFile returned true: finish will be invoked later from the
	// extractor's own goroutine, completing this task asynchronously.
}

func (m *MinerFS) handleMoved(ctx context.Context, item queueItem) {
	srcURI := notifier.FileIRI(item.Path)
	rows, err := m.store.Query(ctx, store.ProbeExistsQuery(srcURI))
	if err != nil {
		log.Warn("miner: probing store before move failed", "path", item.Path, "error", err)
		m.completeDispatch()
		return
	}
	srcKnown := len(rows) > 0 && rows[0][0].Bool

	if !srcKnown {
		m.handleCreatedOrUpdated(ctx, queueItem{Path: item.Other})
		return
	}

	if _, err := os.Stat(item.Other); err != nil {
		m.handleDeleted(ctx, queueItem{Path: item.Path})
		return
	}

	// A move whose destination has fallen out of scope - excluded by a
	// filter, or simply outside any configured root - is not a rename: the
	// old subject is gone from the miner's point of view even though the
	// file still physically exists at item.Other.
	if !m.tree.FileIsIndexable(item.Other, indextree.KindUnknown) {
		m.handleDeleted(ctx, queueItem{Path: item.Path})
		return
	}

	dstURI := notifier.FileIRI(item.Other)
	stmt := graph.RenameStatement(srcURI, baseName(item.Other), dstURI)
	task := m.pool.PushWait(item.Path)
	m.pool.PushReady(ctx, task, item.Path, stmt, true, func(err error) {
		if err != nil {
			log.Warn("miner: rename statement failed", "from", item.Path, "to", item.Other, "error", err)
		}
		m.completeDispatch()
	})
}

func baseName(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return path
	}
	return path[i+1:]
}

func (m *MinerFS) setStatus(s Status) {
	m.mu.Lock()
	if m.status == s {
		m.mu.Unlock()
		return
	}
	m.status = s
	m.mu.Unlock()
	m.emitProgress(true)
}

// emitProgress recomputes progress and, unless debounced, publishes it.
// force bypasses the 1-second debounce (used on status transitions).
func (m *MinerFS) emitProgress(force bool) {
	m.mu.Lock()
	now := time.Now()
	if !force && now.Sub(m.lastEmit) < time.Second {
		m.mu.Unlock()
		return
	}
	m.lastEmit = now

	pending := len(m.deletedQ) + len(m.createdQ) + len(m.updatedQ) + len(m.movedQ)
	seen := m.totalSeen
	done := m.totalDone
	status := m.status
	started := m.startedAt
	m.mu.Unlock()

	var progress float64 = 1
	if seen > 0 {
		progress = 1 - float64(pending)/float64(seen)
		if progress < 0 {
			progress = 0
		}
		if progress > 1 {
			progress = 1
		}
	}

	var remaining time.Duration
	if done > 0 && pending > 0 {
		elapsed := time.Since(started)
		remaining = time.Duration(float64(pending) * float64(elapsed) / float64(done))
	}

	m.Progress.Publish(ProgressInfo{Progress: progress, Status: status, RemainingTime: remaining})
}

// Snapshot returns the current progress/status without publishing it,
// for callers (e.g. the CLI's status command) that want a point-in-time
// read rather than a subscription.
func (m *MinerFS) Snapshot() ProgressInfo {
	m.mu.Lock()
	pending := len(m.deletedQ) + len(m.createdQ) + len(m.updatedQ) + len(m.movedQ)
	seen := m.totalSeen
	done := m.totalDone
	status := m.status
	started := m.startedAt
	m.mu.Unlock()

	progress := 1.0
	if seen > 0 {
		progress = 1 - float64(pending)/float64(seen)
		if progress < 0 {
			progress = 0
		}
		if progress > 1 {
			progress = 1
		}
	}

	var remaining time.Duration
	if done > 0 && pending > 0 {
		elapsed := time.Since(started)
		remaining = time.Duration(float64(pending) * float64(elapsed) / float64(done))
	}

	return ProgressInfo{Progress: progress, Status: status, RemainingTime: remaining}
}

// String renders a one-line status summary, used by the status CLI command.
func (p ProgressInfo) String() string {
	return fmt.Sprintf("%s (%.0f%%, %s remaining)", p.Status, p.Progress*100, p.RemainingTime.Round(time.Second))
}
