package filecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGetOrCreateUniqueness is invariant 3: get_or_create on the same path
// twice returns the same handle.
func TestGetOrCreateUniqueness(t *testing.T) {
	c := New()
	a := c.GetOrCreate("/home/alice/Docs", KindDirectory, nil)
	b := c.GetOrCreate("/home/alice/Docs", KindDirectory, nil)
	assert.Same(t, a, b)
}

func TestGetOrCreateRefinesUnknownKind(t *testing.T) {
	c := New()
	a := c.GetOrCreate("/home/alice/a.txt", KindUnknown, nil)
	assert.Equal(t, KindUnknown, a.FileType())

	b := c.GetOrCreate("/home/alice/a.txt", KindRegular, nil)
	assert.Same(t, a, b)
	assert.Equal(t, KindRegular, a.FileType())
}

func TestGetOrCreateAttachesToClosestAncestor(t *testing.T) {
	c := New()
	docs := c.GetOrCreate("/home/alice/Docs", KindDirectory, nil)
	leaf := c.GetOrCreate("/home/alice/Docs/sub/a.txt", KindRegular, nil)
	assert.Same(t, docs, leaf.Parent())
}

func TestGetOrCreateReparentsExistingDescendants(t *testing.T) {
	c := New()
	leaf := c.GetOrCreate("/home/alice/Docs/sub/a.txt", KindRegular, nil)
	docs := c.GetOrCreate("/home/alice/Docs", KindDirectory, nil)
	assert.Same(t, docs, leaf.Parent())
}

func TestPeekDoesNotTakeReference(t *testing.T) {
	c := New()
	created := c.GetOrCreate("/a", KindDirectory, nil)
	created.Release()

	peeked, ok := c.Peek("/a")
	require.True(t, ok)
	assert.Same(t, created, peeked)
}

func TestPeekParent(t *testing.T) {
	c := New()
	c.GetOrCreate("/a", KindDirectory, nil)
	c.GetOrCreate("/a/b", KindRegular, nil)

	parent, ok := c.PeekParent("/a/b")
	require.True(t, ok)
	assert.Equal(t, "/a", parent.Path())
}

// TestPropertyDestructorInvokedOnce is invariant 4: set(q,v); set(q,w)
// invokes the destructor for v exactly once before exposing w.
func TestPropertyDestructorInvokedOnce(t *testing.T) {
	var destroyed []string
	q := RegisterProperty("test.value", func(v any) {
		destroyed = append(destroyed, v.(string))
	})

	c := New()
	h := c.GetOrCreate("/a", KindRegular, nil)
	h.SetProperty(q, "v")
	h.SetProperty(q, "w")

	assert.Equal(t, []string{"v"}, destroyed)
	got, ok := h.GetProperty(q)
	require.True(t, ok)
	assert.Equal(t, "w", got)

	h.UnsetProperty(q)
	assert.Equal(t, []string{"v", "w"}, destroyed)
	_, ok = h.GetProperty(q)
	assert.False(t, ok)
}

func TestPropertiesKeptSortedAcrossInterleavedInserts(t *testing.T) {
	q1 := RegisterProperty("test.q1", nil)
	q2 := RegisterProperty("test.q2", nil)
	q3 := RegisterProperty("test.q3", nil)

	c := New()
	h := c.GetOrCreate("/a", KindRegular, nil)
	h.SetProperty(q3, 3)
	h.SetProperty(q1, 1)
	h.SetProperty(q2, 2)

	for _, q := range []Quark{q1, q2, q3} {
		v, ok := h.GetProperty(q)
		require.True(t, ok)
		assert.Equal(t, int(q)+1-int(q1), v)
	}
}

func TestTraversePreOrderPrune(t *testing.T) {
	c := New()
	c.GetOrCreate("/a", KindDirectory, nil)
	c.GetOrCreate("/a/b", KindDirectory, nil)
	c.GetOrCreate("/a/b/c", KindRegular, nil)
	c.GetOrCreate("/a/d", KindRegular, nil)

	root, _ := c.Peek("/a")

	var visited []string
	c.Traverse(root, PreOrder, -1, func(h *Handle) bool {
		visited = append(visited, h.Path())
		return h.Path() == "/a/b" // prune below /a/b
	})

	assert.Equal(t, []string{"/a", "/a/b", "/a/d"}, visited)
}

func TestTraversePostOrderVisitsChildrenFirst(t *testing.T) {
	c := New()
	c.GetOrCreate("/a", KindDirectory, nil)
	c.GetOrCreate("/a/b", KindRegular, nil)

	root, _ := c.Peek("/a")

	var visited []string
	c.Traverse(root, PostOrder, -1, func(h *Handle) bool {
		visited = append(visited, h.Path())
		return false
	})

	assert.Equal(t, []string{"/a/b", "/a"}, visited)
}

func TestForgetFinalizesUnreferencedNodes(t *testing.T) {
	var destroyed []string
	q := RegisterProperty("test.forget", func(v any) {
		destroyed = append(destroyed, v.(string))
	})

	c := New()
	docs := c.GetOrCreate("/home/alice/Docs", KindDirectory, nil)
	file := c.GetOrCreate("/home/alice/Docs/a.txt", KindRegular, nil)
	file.SetProperty(q, "payload")
	file.Release() // drop the external reference GetOrCreate took

	c.Forget(docs, KindRegular)

	assert.Equal(t, []string{"payload"}, destroyed)
	_, ok := c.Peek("/home/alice/Docs/a.txt")
	assert.False(t, ok)
}

func TestForgetSurvivesWhileExternalReferenceHeld(t *testing.T) {
	c := New()
	docs := c.GetOrCreate("/home/alice/Docs", KindDirectory, nil)
	file := c.GetOrCreate("/home/alice/Docs/a.txt", KindRegular, nil) // one external ref held

	c.Forget(docs, KindRegular)

	// The handle is still referenced, so Forget leaves it in place and a
	// lookup returns the same handle rather than a second one...
	peeked, ok := c.Peek("/home/alice/Docs/a.txt")
	require.True(t, ok)
	assert.Same(t, file, peeked)
	assert.Equal(t, "/home/alice/Docs/a.txt", file.Path())

	// ...and it is finalized once that last reference is released.
	file.Release()
	_, ok = c.Peek("/home/alice/Docs/a.txt")
	assert.False(t, ok)
}

func TestReleaseReparentsChildrenOnFinalize(t *testing.T) {
	c := New()
	docs := c.GetOrCreate("/home/alice/Docs", KindDirectory, nil)
	mid := c.GetOrCreate("/home/alice/Docs/mid", KindDirectory, nil)
	leaf := c.GetOrCreate("/home/alice/Docs/mid/leaf", KindRegular, nil)

	mid.Release() // drop GetOrCreate's external ref
	c.Forget(docs, KindDirectory)

	assert.Same(t, docs, leaf.Parent())
}
