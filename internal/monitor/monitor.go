// Package monitor implements the FilesystemMonitor (component B): a
// directory watch set with coalesced change events, move detection with
// watch-set rewriting, and a soft cap on the number of active watches.
package monitor

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/indexd/miner/internal/eventbus"
)

// CoalesceTimeout is the longest a write-in-progress or attribute-change
// event waits for its close-out pair before being emitted anyway.
const CoalesceTimeout = 1 * time.Second

// moveCorrelationWindow is how long a bare removal is held back, in case a
// matching create for the same basename arrives and turns it into a move.
const moveCorrelationWindow = 100 * time.Millisecond

// DefaultCapMargin is subtracted from a platform's watch-descriptor limit to
// get a safe default cap.
const DefaultCapMargin = 500

// ItemEvent is published for a single created/updated/deleted path.
type ItemEvent struct {
	Path  string
	IsDir bool
}

// MovedEvent is published when a watched or unwatched path moved to a new
// location.
type MovedEvent struct {
	Src           string
	Dst           string
	IsDir         bool
	SrcWasWatched bool
}

// Monitor watches a set of directories via Backend and republishes their
// changes as coalesced item/move events.
type Monitor struct {
	backend Backend
	limit   int

	mu        sync.Mutex
	watched   map[string]struct{}
	ignored   int
	warned    bool
	pending   map[string]*pendingChange
	departing map[string]*pendingRemove // keyed by basename

	Created eventbus.Bus[ItemEvent]
	Updated eventbus.Bus[ItemEvent]
	Deleted eventbus.Bus[ItemEvent]
	Moved   eventbus.Bus[MovedEvent]
}

type pendingChange struct {
	path    string
	created bool
	timer   *time.Timer
}

type pendingRemove struct {
	path  string
	isDir bool
	timer *time.Timer
}

// New wraps backend with a watch cap of limit (already adjusted for any
// safety margin the caller wants). A limit of zero or less means no cap.
func New(backend Backend, limit int) *Monitor {
	return &Monitor{
		backend:   backend,
		limit:     limit,
		watched:   make(map[string]struct{}),
		pending:   make(map[string]*pendingChange),
		departing: make(map[string]*pendingRemove),
	}
}

// Add installs a watch on dir, unless the cap has been reached. Exceeding
// the cap does not fail the caller: it increments the ignored counter and,
// the first time only, logs a warning.
func (m *Monitor) Add(dir string) bool {
	dir = filepath.Clean(dir)

	m.mu.Lock()
	if _, ok := m.watched[dir]; ok {
		m.mu.Unlock()
		return true
	}
	if m.limit > 0 && len(m.watched) >= m.limit {
		m.ignored++
		warn := !m.warned
		m.warned = true
		m.mu.Unlock()
		if warn {
			log.Warn("monitor: watch cap reached, further directories will not be monitored", "limit", m.limit)
		}
		return false
	}
	m.mu.Unlock()

	if err := m.backend.Add(dir); err != nil {
		log.Warn("monitor: failed to add watch", "dir", dir, "error", err)
		return false
	}

	m.mu.Lock()
	m.watched[dir] = struct{}{}
	m.mu.Unlock()
	return true
}

// Remove drops the watch on dir, if any.
func (m *Monitor) Remove(dir string) {
	dir = filepath.Clean(dir)
	m.mu.Lock()
	_, ok := m.watched[dir]
	delete(m.watched, dir)
	m.mu.Unlock()
	if ok {
		m.backend.Remove(dir)
	}
}

// RemoveSubtree drops the watch on root and every watched descendant of it,
// e.g. when a configured directory is removed from the indexing tree.
func (m *Monitor) RemoveSubtree(root string) {
	root = filepath.Clean(root)
	m.removeSubtreeWatches(root)
}

// Ignored returns how many Add calls have been declined for being over cap.
func (m *Monitor) Ignored() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ignored
}

// IsWatched reports whether dir currently has an installed watch.
func (m *Monitor) IsWatched(dir string) bool {
	dir = filepath.Clean(dir)
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watched[dir]
	return ok
}

// Run drains the backend's event stream until done is closed or the
// backend closes. It does not close the backend.
func (m *Monitor) Run(done <-chan struct{}) {
	for {
		select {
		case ev, ok := <-m.backend.Events():
			if !ok {
				return
			}
			m.handle(ev)
		case err, ok := <-m.backend.Errors():
			if !ok {
				return
			}
			log.Warn("monitor: backend error", "error", err)
		case <-done:
			return
		}
	}
}

func (m *Monitor) handle(ev RawEvent) {
	switch {
	case ev.Op.Has(OpRename):
		m.handleDeparture(ev.Path, true)
	case ev.Op.Has(OpRemove):
		m.handleDeparture(ev.Path, false)
	case ev.Op.Has(OpCreate):
		m.handleCreate(ev.Path)
	case ev.Op.Has(OpWrite) || ev.Op.Has(OpChmod):
		m.handleChange(ev.Path, ev.Op.Has(OpChmod))
	}
}

func (m *Monitor) handleCreate(path string) {
	base := filepath.Base(path)

	m.mu.Lock()
	if dep, ok := m.departing[base]; ok {
		delete(m.departing, base)
		m.mu.Unlock()
		dep.timer.Stop()
		m.completeMove(dep.path, path, dep.isDir)
		return
	}
	m.mu.Unlock()

	m.schedulePending(path, true)
}

func (m *Monitor) handleChange(path string, isCloseout bool) {
	m.mu.Lock()
	p, ok := m.pending[path]
	m.mu.Unlock()

	if ok && isCloseout {
		p.timer.Stop()
		m.flushPending(path)
		return
	}
	if !ok {
		m.schedulePending(path, false)
	}
}

func (m *Monitor) schedulePending(path string, created bool) {
	m.mu.Lock()
	if _, ok := m.pending[path]; ok {
		m.mu.Unlock()
		return
	}
	p := &pendingChange{path: path, created: created}
	p.timer = time.AfterFunc(CoalesceTimeout, func() { m.flushPending(path) })
	m.pending[path] = p
	m.mu.Unlock()
}

func (m *Monitor) flushPending(path string) {
	m.mu.Lock()
	p, ok := m.pending[path]
	if ok {
		delete(m.pending, path)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	if p.created {
		m.Created.Publish(ItemEvent{Path: path})
	} else {
		m.Updated.Publish(ItemEvent{Path: path})
	}
}

func (m *Monitor) handleDeparture(path string, isRename bool) {
	isDir := m.IsWatched(path)

	if !isRename {
		m.finalizeRemoval(path, isDir)
		return
	}

	base := filepath.Base(path)
	dep := &pendingRemove{path: path, isDir: isDir}
	dep.timer = time.AfterFunc(moveCorrelationWindow, func() {
		m.mu.Lock()
		cur, ok := m.departing[base]
		if ok && cur == dep {
			delete(m.departing, base)
		}
		m.mu.Unlock()
		if ok {
			m.finalizeRemoval(path, isDir)
		}
	})

	m.mu.Lock()
	m.departing[base] = dep
	m.mu.Unlock()
}

func (m *Monitor) finalizeRemoval(path string, isDir bool) {
	if isDir {
		m.removeSubtreeWatches(path)
	}
	m.Deleted.Publish(ItemEvent{Path: path, IsDir: isDir})
}

// completeMove rewrites the watch set - descendant watches under dst are
// added before src's watches are cancelled, since some kernels reuse watch
// descriptors asynchronously - then publishes Moved.
func (m *Monitor) completeMove(src, dst string, isDir bool) {
	srcWasWatched := m.IsWatched(src)

	if isDir {
		for _, old := range m.watchedDescendants(src) {
			rel := strings.TrimPrefix(old, src)
			m.backend.Add(dst + rel)
			m.mu.Lock()
			m.watched[dst+rel] = struct{}{}
			m.mu.Unlock()
		}
		m.removeSubtreeWatches(src)
	}

	m.Moved.Publish(MovedEvent{Src: src, Dst: dst, IsDir: isDir, SrcWasWatched: srcWasWatched})
}

func (m *Monitor) watchedDescendants(root string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	prefix := root + string(filepath.Separator)
	for p := range m.watched {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out
}

func (m *Monitor) removeSubtreeWatches(root string) {
	m.mu.Lock()
	prefix := root + string(filepath.Separator)
	var toRemove []string
	for p := range m.watched {
		if p == root || strings.HasPrefix(p, prefix) {
			toRemove = append(toRemove, p)
		}
	}
	for _, p := range toRemove {
		delete(m.watched, p)
	}
	m.mu.Unlock()

	for _, p := range toRemove {
		m.backend.Remove(p)
	}
}
