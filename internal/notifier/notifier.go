// Package notifier implements FileNotifier (component F): it drives the
// Crawler over one IndexingTree's pending roots, cross-references the store,
// and emits a deletion/creation/update diff per root once both sides are
// known.
package notifier

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/indexd/miner/internal/crawler"
	"github.com/indexd/miner/internal/eventbus"
	"github.com/indexd/miner/internal/filecache"
	"github.com/indexd/miner/internal/indextree"
	"github.com/indexd/miner/internal/store"
)

var (
	qCrawled    = filecache.RegisterProperty("notifier.crawled", nil)
	qQueried    = filecache.RegisterProperty("notifier.queried", nil)
	qStoreMtime = filecache.RegisterProperty("notifier.store_mtime", nil)
	qFSMtime    = filecache.RegisterProperty("notifier.fs_mtime", nil)
)

// FileIRI renders a filesystem path as the file:// IRI the store keys
// FileDataObject subjects by.
func FileIRI(path string) string { return "file://" + path }

// EventKind distinguishes the three diff outcomes a root's crawl/query/diff
// cycle can produce for a given file.
type EventKind int

const (
	EventCreated EventKind = iota
	EventUpdated
	EventDeleted
)

// FileEvent is one diff outcome, ready for MinerFS to act on.
type FileEvent struct {
	Path string
	Kind EventKind
}

// Notifier drives one IndexingTree's crawl/query/diff cycle.
type Notifier struct {
	tree    *indextree.Tree
	cache   *filecache.Cache
	crawler *crawler.Crawler
	store   store.Store

	mu           sync.Mutex
	pendingRoots []string
	activeRoot   string
	rootHandles  map[string]*filecache.Handle

	Created eventbus.Bus[FileEvent]
	Updated eventbus.Bus[FileEvent]
	Deleted eventbus.Bus[FileEvent]
}

// New wires up a Notifier over tree/cache, driving c and querying st.
func New(tree *indextree.Tree, cache *filecache.Cache, c *crawler.Crawler, st store.Store) *Notifier {
	n := &Notifier{
		tree:        tree,
		cache:       cache,
		crawler:     c,
		store:       st,
		rootHandles: make(map[string]*filecache.Handle),
	}

	c.FileFound.Subscribe(n.handleFileFound)
	c.Finished.Subscribe(n.handleCrawlFinished)
	tree.Added.Subscribe(func(ev indextree.DirectoryEvent) {
		n.QueueRoot(ev.Path)
	})

	return n
}

// QueueRoot adds path to the pending-roots queue, starting the crawl
// immediately if the notifier is idle.
func (n *Notifier) QueueRoot(path string) {
	n.mu.Lock()
	if n.activeRoot == path {
		n.mu.Unlock()
		return
	}
	for _, p := range n.pendingRoots {
		if p == path {
			n.mu.Unlock()
			return
		}
	}
	n.pendingRoots = append(n.pendingRoots, path)
	idle := n.activeRoot == ""
	n.mu.Unlock()

	if idle {
		n.startNext()
	}
}

func (n *Notifier) startNext() {
	n.mu.Lock()
	if n.activeRoot != "" || len(n.pendingRoots) == 0 {
		n.mu.Unlock()
		return
	}
	root := n.pendingRoots[0]
	n.pendingRoots = n.pendingRoots[1:]
	n.activeRoot = root
	n.mu.Unlock()

	rootInfo, ok := n.tree.GetRoot(root)
	if !ok {
		n.finishRoot(root, nil)
		return
	}

	h := n.cache.GetOrCreate(root, filecache.KindDirectory, nil)
	n.mu.Lock()
	n.rootHandles[root] = h
	n.mu.Unlock()

	n.crawler.Start(root, rootInfo.Flags.Has(indextree.FlagRecurse))
	go n.queryStore(context.Background(), root, rootInfo.Flags.Has(indextree.FlagRecurse))
}

func (n *Notifier) handleFileFound(ev crawler.FileFound) {
	h := n.cache.GetOrCreate(ev.Path, filecache.KindRegular, nil)
	defer h.Release()

	info, err := os.Stat(ev.Path)
	if err != nil {
		log.Debug("notifier: failed to stat crawled file", "path", ev.Path, "error", err)
		return
	}
	h.SetProperty(qFSMtime, info.ModTime().UTC().Format(time.RFC3339))
}

func (n *Notifier) handleCrawlFinished(crawler.Finished) {
	n.mu.Lock()
	root := n.activeRoot
	h, ok := n.rootHandles[root]
	n.mu.Unlock()
	if !ok {
		return
	}

	h.SetProperty(qCrawled, true)
	n.maybeDiff(root, h)
}

func (n *Notifier) queryStore(ctx context.Context, root string, recursive bool) {
	rootIRI := FileIRI(root)
	rows, err := n.store.Query(ctx, store.ScopedURLQuery(rootIRI, recursive))
	if err != nil {
		log.Warn("notifier: scoped url query failed", "root", root, "error", err)
	}

	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		path := stripFileScheme(row[0].Str)
		h := n.cache.GetOrCreate(path, filecache.KindRegular, nil)
		h.SetProperty(qStoreMtime, row[1].Str)
		h.Release()
	}

	n.mu.Lock()
	h, ok := n.rootHandles[root]
	n.mu.Unlock()
	if !ok {
		return
	}
	h.SetProperty(qQueried, true)
	n.maybeDiff(root, h)
}

func (n *Notifier) maybeDiff(root string, h *filecache.Handle) {
	_, crawled := h.GetProperty(qCrawled)
	_, queried := h.GetProperty(qQueried)
	if !crawled || !queried {
		return
	}

	n.cache.Traverse(h, filecache.PreOrder, -1, func(node *filecache.Handle) bool {
		n.diffOne(node)
		return false
	})

	n.finishRoot(root, h)
}

// diffOne classifies a single file handle against the scoped query results:
// created, updated, or deleted (moves are not detected here; a moved file
// shows up as a delete of its old path and a create of its new one).
// Directories carry neither property and are skipped.
func (n *Notifier) diffOne(h *filecache.Handle) {
	if h.FileType() != filecache.KindRegular {
		return
	}

	fsMtime, hasFS := h.GetProperty(qFSMtime)
	storeMtime, hasStore := h.GetProperty(qStoreMtime)

	switch {
	case hasStore && !hasFS:
		n.Deleted.Publish(FileEvent{Path: h.Path(), Kind: EventDeleted})
	case !hasStore && hasFS:
		n.Created.Publish(FileEvent{Path: h.Path(), Kind: EventCreated})
	case hasStore && hasFS:
		if canonicalMtime(storeMtime.(string)) != fsMtime.(string) {
			n.Updated.Publish(FileEvent{Path: h.Path(), Kind: EventUpdated})
		}
	}

	h.UnsetProperty(qFSMtime)
	h.UnsetProperty(qStoreMtime)
}

// finishRoot retires root's crawl/query/diff cycle. The subtree rooted at h
// has already had its diff published by the time this runs, so the cache's
// own ownership of it is dropped here - otherwise every handle the crawl
// ever created (including ones for files later deleted or moved away)
// would survive for the life of the process.
func (n *Notifier) finishRoot(root string, h *filecache.Handle) {
	if h != nil {
		n.cache.Forget(h, filecache.KindUnknown)
	}

	n.mu.Lock()
	if n.activeRoot == root {
		n.activeRoot = ""
	}
	delete(n.rootHandles, root)
	n.mu.Unlock()

	n.startNext()
}

// HandleMonitorEvent is invoked for a live monitor event; the IndexingTree
// decides whether the reported path is still in scope before it is
// forwarded as a diff outcome.
func (n *Notifier) HandleMonitorEvent(kind EventKind, path string) {
	if kind != EventDeleted && !n.tree.FileIsIndexable(path, indextree.KindRegular) {
		return
	}
	switch kind {
	case EventCreated:
		n.Created.Publish(FileEvent{Path: path, Kind: EventCreated})
	case EventUpdated:
		n.Updated.Publish(FileEvent{Path: path, Kind: EventUpdated})
	case EventDeleted:
		n.Deleted.Publish(FileEvent{Path: path, Kind: EventDeleted})
	}
}

func stripFileScheme(url string) string {
	return strings.TrimPrefix(url, "file://")
}

// canonicalMtime strips a graph-statement datatype tag (e.g.
// "^^xsd:dateTime") so a store-held literal compares equal to the plain
// RFC3339 string the filesystem side stores.
func canonicalMtime(s string) string {
	if i := strings.Index(s, "^^"); i >= 0 {
		return s[:i]
	}
	return s
}
