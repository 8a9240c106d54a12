package notifier

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indexd/miner/internal/crawler"
	"github.com/indexd/miner/internal/filecache"
	"github.com/indexd/miner/internal/indextree"
	"github.com/indexd/miner/internal/store"
)

// fakeStore serves canned rows for Query and records nothing else; the
// notifier never calls Update/UpdateArray.
type fakeStore struct {
	rows []store.Row
}

func (f *fakeStore) Query(ctx context.Context, text string) ([]store.Row, error) { return f.rows, nil }
func (f *fakeStore) UpdateArray(ctx context.Context, texts []string) ([]error, error) {
	return nil, nil
}
func (f *fakeStore) Update(ctx context.Context, text string) error { return nil }
func (f *fakeStore) Close() error                                 { return nil }

func collectEvents(n *Notifier) (created, updated, deleted *[]string, mu *sync.Mutex) {
	mu = &sync.Mutex{}
	var c, u, d []string
	n.Created.Subscribe(func(e FileEvent) { mu.Lock(); c = append(c, e.Path); mu.Unlock() })
	n.Updated.Subscribe(func(e FileEvent) { mu.Lock(); u = append(u, e.Path); mu.Unlock() })
	n.Deleted.Subscribe(func(e FileEvent) { mu.Lock(); d = append(d, e.Path); mu.Unlock() })
	return &c, &u, &d, mu
}

func waitFor(t *testing.T, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// TestColdCrawlReportsEveryFileAsCreated is scenario 1: empty store, two
// files on disk.
func TestColdCrawlReportsEveryFileAsCreated(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("b"), 0o644))

	tree := indextree.New()
	cache := filecache.New()
	c := crawler.New()
	st := &fakeStore{}
	n := New(tree, cache, c, st)

	created, _, _, mu := collectEvents(n)

	tree.Add(root, indextree.FlagRecurse|indextree.FlagMonitor)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(*created) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "a.txt"),
		filepath.Join(root, "sub", "b.txt"),
	}, *created)
}

// TestMtimeUpdateReportsUpdated is scenario 2: store holds an older mtime
// than disk.
func TestMtimeUpdateReportsUpdated(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(target, []byte("a"), 0o644))
	newMtime := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(target, newMtime, newMtime))

	tree := indextree.New()
	cache := filecache.New()
	c := crawler.New()
	st := &fakeStore{rows: []store.Row{{
		store.StrValue(FileIRI(target)),
		store.StrValue("2023-01-01T00:00:00Z"),
	}}}
	n := New(tree, cache, c, st)

	_, updated, _, mu := collectEvents(n)

	tree.Add(root, indextree.FlagRecurse|indextree.FlagMonitor)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(*updated) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{target}, *updated)
}

// TestStoreOnlyFileReportsDeleted is scenario 3: store has a file, disk does
// not.
func TestStoreOnlyFileReportsDeleted(t *testing.T) {
	root := t.TempDir()
	missing := filepath.Join(root, "b.txt")

	tree := indextree.New()
	cache := filecache.New()
	c := crawler.New()
	st := &fakeStore{rows: []store.Row{{
		store.StrValue(FileIRI(missing)),
		store.StrValue("2023-01-01T00:00:00Z"),
	}}}
	n := New(tree, cache, c, st)

	_, _, deleted, mu := collectEvents(n)

	tree.Add(root, indextree.FlagRecurse|indextree.FlagMonitor)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(*deleted) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{missing}, *deleted)
}

func TestMonitorEventOutOfScopeIsDropped(t *testing.T) {
	tree := indextree.New()
	cache := filecache.New()
	c := crawler.New()
	n := New(tree, cache, c, &fakeStore{})

	tree.Add("/scope", indextree.FlagRecurse|indextree.FlagMonitor)

	created, _, _, mu := collectEvents(n)

	n.HandleMonitorEvent(EventCreated, "/not-scope/x.txt")
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, *created)
}
