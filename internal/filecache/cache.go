// Package filecache implements the FileCache: a canonicalizing index from
// absolute path to a stable Handle. Handles are *Handle pointers linked into
// a parent/child prefix forest, with no weak references: dropping a node
// becomes reassigning its children's parent, not chasing weak pointers.
package filecache

import (
	"path/filepath"
	"strings"
	"sync"
)

// FileKind mirrors indextree.FileKind; duplicated here to keep filecache
// independent of the tree package (a cache can back more than one tree).
type FileKind int

const (
	KindUnknown FileKind = iota
	KindRegular
	KindDirectory
)

// TraverseOrder selects the order Traverse visits nodes in.
type TraverseOrder int

const (
	// PreOrder visits a node before its children.
	PreOrder TraverseOrder = iota
	// PostOrder visits a node after its children.
	PostOrder
	// LevelOrder visits nodes breadth-first.
	LevelOrder
)

// Cache is the forest of known handles, rooted at "/". The zero value is not
// usable; use New.
type Cache struct {
	mu   sync.RWMutex
	root *Handle
}

// New returns an empty cache with its synthetic root at "/", which is never
// finalized.
func New() *Cache {
	c := &Cache{}
	c.root = &Handle{cache: c, path: string(filepath.Separator), fileType: KindDirectory, indexed: true}
	return c
}

func normalize(path string) string {
	clean := filepath.Clean(path)
	if len(clean) > 1 {
		clean = strings.TrimSuffix(clean, string(filepath.Separator))
	}
	return clean
}

func isPrefixOf(parent, child string) bool {
	if parent == child {
		return true
	}
	if parent == string(filepath.Separator) {
		return strings.HasPrefix(child, parent)
	}
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}

// GetOrCreate returns the handle for path, creating it (as a child of parent,
// or of the closest existing ancestor if parent is nil) if it does not yet
// exist. A concrete kind overwrites a previously unknown one. Every call
// takes one external reference; callers own a matching Release.
func (c *Cache) GetOrCreate(path string, kind FileKind, parent *Handle) *Handle {
	path = normalize(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	if h := c.findLocked(path); h != nil {
		if h.fileType == KindUnknown && kind != KindUnknown {
			h.fileType = kind
		}
		h.external++
		return h
	}

	anc := parent
	if anc == nil {
		anc = c.deepestAncestorLocked(path)
	}
	h := &Handle{cache: c, path: path, fileType: kind, parent: anc, indexed: true, external: 1}

	var kept []*Handle
	for _, child := range anc.children {
		if isPrefixOf(path, child.path) && child.path != path {
			child.parent = h
			h.children = append(h.children, child)
		} else {
			kept = append(kept, child)
		}
	}
	anc.children = append(kept, h)
	return h
}

// Peek returns the handle for path without taking a reference, or false if
// no such path is currently known.
func (c *Cache) Peek(path string) (*Handle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h := c.findLocked(normalize(path))
	return h, h != nil
}

// PeekParent returns the parent of the handle at path, if path is known and
// is not the root.
func (c *Cache) PeekParent(path string) (*Handle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h := c.findLocked(normalize(path))
	if h == nil || h.parent == nil {
		return nil, false
	}
	return h.parent, true
}

// Root returns the cache's synthetic root handle.
func (c *Cache) Root() *Handle { return c.root }

// Traverse walks the subtree rooted at root in the given order, calling
// visitor on each handle. maxDepth < 0 means unlimited; maxDepth == 0 visits
// only root. If visitor returns true the subtree below that handle is
// pruned (not descended into); this has no effect in PostOrder, where
// children are already visited by the time the parent is.
func (c *Cache) Traverse(root *Handle, order TraverseOrder, maxDepth int, visitor func(*Handle) bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch order {
	case PostOrder:
		traversePost(root, maxDepth, visitor)
	case LevelOrder:
		traverseLevel(root, maxDepth, visitor)
	default:
		traversePre(root, maxDepth, visitor)
	}
}

func traversePre(h *Handle, depth int, visitor func(*Handle) bool) {
	if visitor(h) {
		return
	}
	if depth == 0 {
		return
	}
	for _, c := range h.children {
		traversePre(c, depth-1, visitor)
	}
}

func traversePost(h *Handle, depth int, visitor func(*Handle) bool) {
	if depth != 0 {
		for _, c := range h.children {
			traversePost(c, depth-1, visitor)
		}
	}
	visitor(h)
}

func traverseLevel(h *Handle, depth int, visitor func(*Handle) bool) {
	type item struct {
		h     *Handle
		depth int
	}
	queue := []item{{h, depth}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visitor(cur.h) {
			continue
		}
		if cur.depth == 0 {
			continue
		}
		for _, c := range cur.h.children {
			queue = append(queue, item{c, cur.depth - 1})
		}
	}
}

// Forget walks root's subtree and drops the cache's own ownership of every
// node matching kind (KindUnknown matches any kind). A node whose external
// reference count is still positive stays in the cache, still returned by
// Peek and GetOrCreate, until its last Release; only then is it finalized.
func (c *Cache) Forget(root *Handle, kind FileKind) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var walk func(*Handle)
	walk = func(h *Handle) {
		children := append([]*Handle(nil), h.children...)
		for _, child := range children {
			walk(child)
		}
		if h == c.root {
			return
		}
		if kind != KindUnknown && h.fileType != kind {
			return
		}
		if !h.indexed {
			return
		}
		h.indexed = false
		c.finalizeIfDeadLocked(h)
	}
	walk(root)
}

// finalizeIfDeadLocked drops h from its parent's children, destroys its
// remaining properties, and re-parents its own children up to h.parent, but
// only once h is neither indexed nor externally referenced. Callers must
// hold c.mu.
func (c *Cache) finalizeIfDeadLocked(h *Handle) {
	if h == c.root || h.alive() {
		return
	}

	for _, p := range h.props {
		if d := destructorFor(p.quark); d != nil {
			d(p.value)
		}
	}
	h.props = nil

	parent := h.parent
	if parent != nil {
		var kept []*Handle
		for _, sibling := range parent.children {
			if sibling != h {
				kept = append(kept, sibling)
			}
		}
		for _, child := range h.children {
			child.parent = parent
			kept = append(kept, child)
		}
		parent.children = kept
	}
	h.children = nil
}

// findLocked returns the handle with an exact path match, or nil. Callers
// must hold c.mu (read or write).
func (c *Cache) findLocked(path string) *Handle {
	var found *Handle
	var walk func(*Handle)
	walk = func(h *Handle) {
		if found != nil {
			return
		}
		if h.path == path {
			found = h
			return
		}
		if isPrefixOf(h.path, path) {
			for _, child := range h.children {
				walk(child)
			}
		}
	}
	walk(c.root)
	return found
}

// deepestAncestorLocked returns the deepest known handle whose path prefixes
// the given (not-yet-present) path. Callers must hold c.mu (write).
func (c *Cache) deepestAncestorLocked(path string) *Handle {
	best := c.root
	var walk func(*Handle)
	walk = func(h *Handle) {
		if isPrefixOf(h.path, path) {
			if len(h.path) > len(best.path) {
				best = h
			}
			for _, child := range h.children {
				walk(child)
			}
		}
	}
	walk(c.root)
	return best
}
