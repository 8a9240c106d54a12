package crawler

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

// TestColdCrawlFindsAllFiles mirrors the cold-crawl scenario: a root with a
// flat file and a nested one, both discovered in some order with no
// duplicates or omissions.
func TestColdCrawlFindsAllFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":     "a",
		"sub/b.txt": "b",
	})

	c := New()
	var mu sync.Mutex
	var found []string
	c.FileFound.Subscribe(func(e FileFound) {
		mu.Lock()
		defer mu.Unlock()
		found = append(found, e.Path)
	})

	done := make(chan Finished, 1)
	c.Finished.Subscribe(func(f Finished) { done <- f })

	require.True(t, c.Start(root, true))

	select {
	case f := <-done:
		assert.False(t, f.WasInterrupted)
		assert.Equal(t, 2, f.FilesFound)
	case <-time.After(5 * time.Second):
		t.Fatal("crawl did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "a.txt"),
		filepath.Join(root, "sub", "b.txt"),
	}, found)
}

func TestNonRecursiveOnlyVisitsDirectChildren(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":     "a",
		"sub/b.txt": "b",
	})

	c := New()
	var found []string
	c.FileFound.Subscribe(func(e FileFound) { found = append(found, e.Path) })
	done := make(chan Finished, 1)
	c.Finished.Subscribe(func(f Finished) { done <- f })

	require.True(t, c.Start(root, false))
	<-done

	assert.Equal(t, []string{filepath.Join(root, "a.txt")}, found)
}

func TestCheckDirectoryRejectsSubtree(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"keep/a.txt": "a",
		"skip/b.txt": "b",
	})

	c := New()
	c.CheckDirectory = func(dir string) bool {
		return filepath.Base(dir) != "skip"
	}
	var found []string
	c.FileFound.Subscribe(func(e FileFound) { found = append(found, e.Path) })
	done := make(chan Finished, 1)
	c.Finished.Subscribe(func(f Finished) { done <- f })

	require.True(t, c.Start(root, true))
	f := <-done

	assert.Equal(t, []string{filepath.Join(root, "keep", "a.txt")}, found)
	assert.Equal(t, 1, f.DirsIgnored)
}

// TestStopEmitsInterruptedFinishedExactlyOnce is testable-property 9.
func TestStopEmitsInterruptedFinishedExactlyOnce(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		writeTree(t, root, map[string]string{filepath.Join("d", string(rune('a'+i%26)), "f.txt"): "x"})
	}

	c := New()
	c.Throttle = 50 * time.Millisecond
	var finishedCount int
	var mu sync.Mutex
	done := make(chan Finished, 1)
	c.Finished.Subscribe(func(f Finished) {
		mu.Lock()
		finishedCount++
		mu.Unlock()
		done <- f
	})

	require.True(t, c.Start(root, true))
	c.Stop()

	select {
	case f := <-done:
		assert.True(t, f.WasInterrupted)
	case <-time.After(5 * time.Second):
		t.Fatal("crawl did not finish after stop")
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, finishedCount)
}

func TestStartReturnsFalseWhilePaused(t *testing.T) {
	c := New()
	c.Pause()
	assert.False(t, c.Start(t.TempDir(), true))
}

func TestStartReturnsFalseWhileRunning(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a"})

	c := New()
	c.Throttle = time.Second
	require.True(t, c.Start(root, true))
	assert.False(t, c.Start(root, true))
	c.Stop()
}
