package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-memory Backend for deterministic tests.
type fakeBackend struct {
	events chan RawEvent
	errors chan error
	added  []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		events: make(chan RawEvent, 64),
		errors: make(chan error, 8),
	}
}

func (f *fakeBackend) Add(dir string) error    { f.added = append(f.added, dir); return nil }
func (f *fakeBackend) Remove(dir string)       {}
func (f *fakeBackend) Events() <-chan RawEvent { return f.events }
func (f *fakeBackend) Errors() <-chan error    { return f.errors }
func (f *fakeBackend) Name() string            { return "fake" }
func (f *fakeBackend) Close() error            { close(f.events); close(f.errors); return nil }

func (f *fakeBackend) emit(ev RawEvent) { f.events <- ev }

func runMonitor(t *testing.T, m *Monitor) func() {
	t.Helper()
	done := make(chan struct{})
	go m.Run(done)
	return func() { close(done) }
}

func TestAddRespectsCap(t *testing.T) {
	b := newFakeBackend()
	m := New(b, 2)

	assert.True(t, m.Add("/a"))
	assert.True(t, m.Add("/b"))
	assert.False(t, m.Add("/c"))
	assert.Equal(t, 1, m.Ignored())
}

func TestAddIsIdempotent(t *testing.T) {
	b := newFakeBackend()
	m := New(b, 10)

	assert.True(t, m.Add("/a"))
	assert.True(t, m.Add("/a"))
	assert.Len(t, b.added, 1)
}

func TestWriteCoalescesIntoUpdatedAfterTimeout(t *testing.T) {
	b := newFakeBackend()
	m := New(b, 10)
	stop := runMonitor(t, m)
	defer stop()

	received := make(chan ItemEvent, 1)
	m.Updated.Subscribe(func(e ItemEvent) { received <- e })

	b.emit(RawEvent{Path: "/a/file.txt", Op: OpWrite})

	select {
	case e := <-received:
		assert.Equal(t, "/a/file.txt", e.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("update was not coalesced within the timeout")
	}
}

func TestChmodCloseoutFlushesImmediately(t *testing.T) {
	b := newFakeBackend()
	m := New(b, 10)
	stop := runMonitor(t, m)
	defer stop()

	received := make(chan ItemEvent, 1)
	m.Updated.Subscribe(func(e ItemEvent) { received <- e })

	start := time.Now()
	b.emit(RawEvent{Path: "/a/file.txt", Op: OpWrite})
	b.emit(RawEvent{Path: "/a/file.txt", Op: OpChmod})

	select {
	case <-received:
		assert.Less(t, time.Since(start), CoalesceTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("chmod close-out did not flush the pending update")
	}
}

func TestCreateIsReportedAsCreated(t *testing.T) {
	b := newFakeBackend()
	m := New(b, 10)
	stop := runMonitor(t, m)
	defer stop()

	received := make(chan ItemEvent, 1)
	m.Created.Subscribe(func(e ItemEvent) { received <- e })

	b.emit(RawEvent{Path: "/a/new.txt", Op: OpCreate})

	select {
	case e := <-received:
		assert.Equal(t, "/a/new.txt", e.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("create was not reported")
	}
}

func TestRenameThenCreateIsReportedAsMove(t *testing.T) {
	b := newFakeBackend()
	m := New(b, 10)
	m.Add("/scope/docs")
	stop := runMonitor(t, m)
	defer stop()

	moved := make(chan MovedEvent, 1)
	m.Moved.Subscribe(func(e MovedEvent) { moved <- e })
	deleted := make(chan ItemEvent, 1)
	m.Deleted.Subscribe(func(e ItemEvent) { deleted <- e })

	b.emit(RawEvent{Path: "/scope/docs", Op: OpRename})
	b.emit(RawEvent{Path: "/other/docs", Op: OpCreate})

	select {
	case e := <-moved:
		assert.Equal(t, "/scope/docs", e.Src)
		assert.Equal(t, "/other/docs", e.Dst)
		assert.True(t, e.SrcWasWatched)
	case <-deleted:
		t.Fatal("expected a move, got a bare delete")
	case <-time.After(2 * time.Second):
		t.Fatal("move was not correlated")
	}
}

func TestRenameWithoutMatchingCreateIsReportedAsDelete(t *testing.T) {
	b := newFakeBackend()
	m := New(b, 10)

	stop := runMonitor(t, m)
	defer stop()

	deleted := make(chan ItemEvent, 1)
	m.Deleted.Subscribe(func(e ItemEvent) { deleted <- e })

	b.emit(RawEvent{Path: "/gone.txt", Op: OpRename})

	select {
	case e := <-deleted:
		assert.Equal(t, "/gone.txt", e.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("uncorrelated rename did not fall back to delete")
	}
}

func TestCapWarningLoggedOnlyOnce(t *testing.T) {
	b := newFakeBackend()
	m := New(b, 1)
	require.True(t, m.Add("/full"))

	assert.False(t, m.Add("/a"))
	assert.False(t, m.Add("/b"))
	assert.Equal(t, 2, m.Ignored())
	require.True(t, m.warned)
}
