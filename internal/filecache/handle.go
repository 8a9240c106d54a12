package filecache

import "sort"

// Handle is a stable identity for one absolute path inside a Cache. For a
// given (Cache, path) pair at most one live Handle exists; repeated
// GetOrCreate calls for the same path return the same *Handle.
//
// A Handle is kept alive by two independent forces: the cache's own path
// index (cleared by Forget) and any number of external references taken by
// GetOrCreate and released by Release. It is finalized - its properties
// destroyed and its children re-parented to its own parent - only once
// neither force holds it anymore.
type Handle struct {
	cache    *Cache
	path     string
	fileType FileKind
	parent   *Handle
	children []*Handle

	props []property

	indexed  bool
	external int32
}

type property struct {
	quark Quark
	value any
}

// Path returns the absolute path this handle identifies.
func (h *Handle) Path() string { return h.path }

// FileType returns the file kind recorded at creation time, or as later
// refined by a GetOrCreate call that supplied a concrete kind.
func (h *Handle) FileType() FileKind { return h.fileType }

// Parent returns the handle's current parent, or nil for the arena root.
func (h *Handle) Parent() *Handle { return h.parent }

// Children returns a snapshot of the handle's current children.
func (h *Handle) Children() []*Handle {
	h.cache.mu.RLock()
	defer h.cache.mu.RUnlock()
	out := make([]*Handle, len(h.children))
	copy(out, h.children)
	return out
}

// Release drops one external reference taken by GetOrCreate. Once neither
// the cache index nor any external reference remains, the handle is
// finalized: its properties are destroyed and its children re-parented to
// its own parent.
func (h *Handle) Release() {
	h.cache.mu.Lock()
	defer h.cache.mu.Unlock()
	h.external--
	h.cache.finalizeIfDeadLocked(h)
}

// SetProperty stores v under q, invoking q's registered destructor on
// whatever value was previously stored (if any) before v becomes visible to
// readers.
func (h *Handle) SetProperty(q Quark, v any) {
	h.cache.mu.Lock()
	defer h.cache.mu.Unlock()

	i, found := h.propIndex(q)
	if found {
		if d := destructorFor(q); d != nil {
			d(h.props[i].value)
		}
		h.props[i].value = v
		return
	}
	h.props = append(h.props, property{})
	copy(h.props[i+1:], h.props[i:])
	h.props[i] = property{quark: q, value: v}
}

// GetProperty returns the value stored under q, if any.
func (h *Handle) GetProperty(q Quark) (any, bool) {
	h.cache.mu.RLock()
	defer h.cache.mu.RUnlock()

	i, found := h.propIndex(q)
	if !found {
		return nil, false
	}
	return h.props[i].value, true
}

// UnsetProperty removes the value stored under q, invoking its destructor
// exactly once, if a value was present.
func (h *Handle) UnsetProperty(q Quark) {
	h.cache.mu.Lock()
	defer h.cache.mu.Unlock()

	i, found := h.propIndex(q)
	if !found {
		return
	}
	if d := destructorFor(q); d != nil {
		d(h.props[i].value)
	}
	h.props = append(h.props[:i], h.props[i+1:]...)
}

// propIndex returns the index at which q is stored, or where it would be
// inserted to keep h.props sorted by quark. Callers must hold h.cache.mu.
func (h *Handle) propIndex(q Quark) (int, bool) {
	i := sort.Search(len(h.props), func(i int) bool { return h.props[i].quark >= q })
	return i, i < len(h.props) && h.props[i].quark == q
}

func (h *Handle) alive() bool { return h.indexed || h.external > 0 }
