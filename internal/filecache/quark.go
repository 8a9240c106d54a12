package filecache

import "sync"

// Quark identifies a registered property kind. Quarks are process-wide and
// never reused.
type Quark int

// Destructor is invoked exactly once when a property value is replaced or
// unset, or when its owning handle is finally dropped.
type Destructor func(value any)

var registry struct {
	mu    sync.Mutex
	names []string
	dtors []Destructor
}

// RegisterProperty appends a new property kind to the process-wide,
// append-only registry and returns its Quark. Typically called from an
// init() in the package that owns the property (e.g. the notifier
// registering "crawled", "queried", "store_mtime").
func RegisterProperty(name string, destructor Destructor) Quark {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	q := Quark(len(registry.names))
	registry.names = append(registry.names, name)
	registry.dtors = append(registry.dtors, destructor)
	return q
}

func destructorFor(q Quark) Destructor {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if int(q) < 0 || int(q) >= len(registry.dtors) {
		return nil
	}
	return registry.dtors[q]
}

// QuarkName returns the registered name for q, mostly for diagnostics.
func QuarkName(q Quark) string {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if int(q) < 0 || int(q) >= len(registry.names) {
		return "?"
	}
	return registry.names[q]
}
