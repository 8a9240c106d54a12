// Package indextree implements the configurable indexing tree (component A):
// a tree of configured roots with per-root flags and glob filters, answering
// "is this path indexable" and "which root governs it".
package indextree

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/indexd/miner/internal/eventbus"
)

// Flags is the per-root bitset from the data model.
type Flags uint8

const (
	// FlagRecurse allows descending below the root.
	FlagRecurse Flags = 1 << iota
	// FlagCheckMTime requests diffing by modification time against the store.
	FlagCheckMTime
	// FlagMonitor requests live monitors be installed for this root.
	FlagMonitor
	// FlagNoStat marks a root whose children are not to be stat'ed. The
	// crawler takes no flags, so it neither receives nor rejects this one.
	FlagNoStat
)

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// FileKind distinguishes the file/directory facet a Filter applies to.
type FileKind int

const (
	KindUnknown FileKind = iota
	KindRegular
	KindDirectory
)

// FilterKind selects which facet of the walk a Filter rejects.
type FilterKind int

const (
	FilterFile FilterKind = iota
	FilterDirectory
	FilterParentDirectory
)

// Filter is a (kind, glob-pattern) pair matched against a path's basename.
type Filter struct {
	Kind FilterKind
	Glob string
}

// DirectoryEvent is published on directory-added / directory-removed.
type DirectoryEvent struct {
	Path  string
	Flags Flags
}

// node is one entry of the prefix forest.
type node struct {
	path     string
	flags    Flags
	shallow  bool
	parent   *node
	children []*node
}

// Normalize canonicalizes a path for byte-wise comparison: absolute,
// cleaned, without a trailing separator (except for "/" itself). The core
// never follows symlinks to do this.
func Normalize(path string) string {
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

func isDirectChild(parent, child string) bool {
	if !isPrefixOf(parent, child) || parent == child {
		return false
	}
	return filepath.Dir(child) == parent
}

// Tree is the configured indexing tree. The zero value is not usable; use New.
type Tree struct {
	mu     sync.RWMutex
	root   *node
	filter map[FilterKind][]*compiledFilter

	filterHidden bool

	Added   eventbus.Bus[DirectoryEvent]
	Removed eventbus.Bus[DirectoryEvent]
}

type compiledFilter struct {
	glob string
	ig   *gitignore.GitIgnore
}

// New creates a tree with its synthetic, always-shallow root at "/".
func New() *Tree {
	return &Tree{
		root: &node{path: string(filepath.Separator), shallow: true},
		filter: map[FilterKind][]*compiledFilter{
			FilterFile:            nil,
			FilterDirectory:       nil,
			FilterParentDirectory: nil,
		},
	}
}

// Add registers path as a configured root with the given flags. If the exact
// path is already a node, it is promoted out of shallow state and its flags
// are overwritten (logging a warning if they changed). Otherwise a new node
// is attached under the deepest existing ancestor, and any existing
// descendants of the ancestor that fall under path are re-parented to it.
func (t *Tree) Add(path string, flags Flags) {
	path = Normalize(path)

	t.mu.Lock()
	existing := t.find(path)
	if existing != nil {
		if existing.flags != flags {
			log.Warn("overwriting flags for directory", "path", path)
		}
		existing.shallow = false
		existing.flags = flags
		t.mu.Unlock()
		t.Added.Publish(DirectoryEvent{Path: path, Flags: flags})
		return
	}

	ancestor := t.deepestAncestor(path)
	n := &node{path: path, flags: flags, parent: ancestor}

	var kept []*node
	for _, child := range ancestor.children {
		if isPrefixOf(path, child.path) && child.path != path {
			child.parent = n
			n.children = append(n.children, child)
		} else {
			kept = append(kept, child)
		}
	}
	ancestor.children = append(kept, n)
	t.mu.Unlock()

	t.Added.Publish(DirectoryEvent{Path: path, Flags: flags})
}

// Remove locates the exact node at path. The synthetic root is demoted back
// to shallow rather than removed; any other node's children are re-parented
// to its parent before the node is dropped.
func (t *Tree) Remove(path string) {
	path = Normalize(path)

	t.mu.Lock()
	n := t.find(path)
	if n == nil {
		t.mu.Unlock()
		return
	}

	if n.parent == nil {
		n.shallow = true
		flags := n.flags
		t.mu.Unlock()
		t.Removed.Publish(DirectoryEvent{Path: path, Flags: flags})
		return
	}

	parent := n.parent
	var kept []*node
	for _, sibling := range parent.children {
		if sibling == n {
			continue
		}
		kept = append(kept, sibling)
	}
	for _, child := range n.children {
		child.parent = parent
		kept = append(kept, child)
	}
	parent.children = kept
	flags := n.flags
	t.mu.Unlock()

	t.Removed.Publish(DirectoryEvent{Path: path, Flags: flags})
}

// AddFilter registers a glob filter of the given kind, matched against a
// path's basename.
func (t *Tree) AddFilter(kind FilterKind, glob string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.filter[kind] = append(t.filter[kind], &compiledFilter{
		glob: glob,
		ig:   gitignore.CompileIgnoreLines(glob),
	})
}

// ClearFilters removes every registered filter of the given kind.
func (t *Tree) ClearFilters(kind FilterKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.filter[kind] = nil
}

// SetFilterHidden records the orthogonal "hidden files excluded" flag, which
// FilterHidden reports back. FileIsIndexable does not consult it, and
// neither the crawler nor the monitor reads it, so setting it does not by
// itself exclude any path.
func (t *Tree) SetFilterHidden(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.filterHidden = v
}

func (t *Tree) FilterHidden() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.filterHidden
}

func (t *Tree) matchesFilter(kind FilterKind, path string) bool {
	base := filepath.Base(path)
	for _, f := range t.filter[kind] {
		if f.ig.MatchesPath(base) {
			return true
		}
	}
	return false
}

// FileIsIndexable reports whether path should be indexed. If kind is
// KindUnknown it is resolved via Lstat (symlinks are never followed).
func (t *Tree) FileIsIndexable(path string, kind FileKind) bool {
	path = Normalize(path)

	if kind == KindUnknown {
		kind = statKind(path)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	filterKind := FilterFile
	if kind == KindDirectory {
		filterKind = FilterDirectory
	}
	if t.matchesFilter(filterKind, path) {
		return false
	}

	governor := t.governingAncestor(path)
	if governor == nil || governor.shallow {
		return false
	}
	if !governor.flags.Has(FlagMonitor) {
		return false
	}

	return governor.path == path ||
		isDirectChild(governor.path, path) ||
		governor.flags.Has(FlagRecurse)
}

// ParentIsIndexable reports whether parent should be indexed given its
// children: parent itself must be indexable as a directory, and no child may
// match a PARENT_DIRECTORY filter.
func (t *Tree) ParentIsIndexable(parent string, children []string) bool {
	if !t.FileIsIndexable(parent, KindDirectory) {
		return false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, child := range children {
		if t.matchesFilter(FilterParentDirectory, child) {
			return false
		}
	}
	return true
}

// Root describes a configured root returned by GetRoot.
type Root struct {
	Path  string
	Flags Flags
}

// GetRoot returns the deepest non-shallow ancestor governing path, if any.
func (t *Tree) GetRoot(path string) (Root, bool) {
	path = Normalize(path)

	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.governingAncestor(path)
	if n == nil || n.shallow {
		return Root{}, false
	}
	return Root{Path: n.path, Flags: n.flags}, true
}

// Roots returns every non-shallow node currently configured, in no
// particular order.
func (t *Tree) Roots() []Root {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Root
	var walk func(*node)
	walk = func(n *node) {
		if !n.shallow {
			out = append(out, Root{Path: n.path, Flags: n.flags})
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(t.root)
	return out
}

// find returns the node with an exact path match, or nil.
func (t *Tree) find(path string) *node {
	var found *node
	var walk func(*node)
	walk = func(n *node) {
		if found != nil {
			return
		}
		if n.path == path {
			found = n
			return
		}
		if isPrefixOf(n.path, path) {
			for _, c := range n.children {
				walk(c)
			}
		}
	}
	walk(t.root)
	return found
}

// deepestAncestor returns the deepest node whose path prefixes (or equals,
// though callers only ask this for a not-yet-present path) the given path.
func (t *Tree) deepestAncestor(path string) *node {
	best := t.root
	var walk func(*node)
	walk = func(n *node) {
		if isPrefixOf(n.path, path) {
			if len(n.path) > len(best.path) {
				best = n
			}
			for _, c := range n.children {
				walk(c)
			}
		}
	}
	walk(t.root)
	return best
}

// governingAncestor is deepestAncestor but also accepts an exact match at any
// depth (used by FileIsIndexable, which wants "equal-or-ancestor").
func (t *Tree) governingAncestor(path string) *node {
	return t.deepestAncestor(path)
}

func statKind(path string) FileKind {
	info, err := os.Lstat(path)
	if err != nil {
		return KindUnknown
	}
	if info.IsDir() {
		return KindDirectory
	}
	return KindRegular
}
