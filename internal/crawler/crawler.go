// Package crawler implements the Crawler: a cooperative, single-outstanding-
// enumeration directory walker. One goroutine per walk owns the traversal -
// one directory is ever being read at a time, pause blocks it between
// directories, and stop cancels it promptly without visiting anything
// queued behind the current one.
package crawler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/indexd/miner/internal/eventbus"
)

// DefaultBatchSize is the number of directory entries read and checked
// between throttle pauses.
const DefaultBatchSize = 100

// CheckDirectoryFunc rejects a subtree before it is opened.
type CheckDirectoryFunc func(dir string) bool

// CheckFileFunc rejects an individual file.
type CheckFileFunc func(file string) bool

// CheckDirectoryContentsFunc decides, after a directory's children have been
// listed, whether the directory should be admitted at all (e.g. it contains
// a "don't index me" marker file).
type CheckDirectoryContentsFunc func(parent string, children []string) bool

// FileFound is published as each file passes its check.
type FileFound struct {
	Path string
}

// DirectoryCrawled is published once a directory's children have all been
// categorized.
type DirectoryCrawled struct {
	Dir        string
	FilesFound int
	DirsFound  int
}

// Finished is published exactly once per Start, when the walk completes or
// is interrupted by Stop.
type Finished struct {
	WasInterrupted bool
	DirsFound      int
	DirsIgnored    int
	FilesFound     int
	FilesIgnored   int
}

// Crawler walks a directory tree, applying the check hooks and publishing
// events as it goes. The zero value is ready to use once the check hooks
// are assigned; use New for a fully initialized value.
type Crawler struct {
	CheckDirectory         CheckDirectoryFunc
	CheckFile              CheckFileFunc
	CheckDirectoryContents CheckDirectoryContentsFunc
	BatchSize              int
	Throttle               time.Duration

	FileFound        eventbus.Bus[FileFound]
	DirectoryCrawled eventbus.Bus[DirectoryCrawled]
	Finished         eventbus.Bus[Finished]

	mu         sync.Mutex
	cond       *sync.Cond
	running    bool
	pauseCount int
	cancel     context.CancelFunc
}

// New returns a ready Crawler with the default batch size.
func New() *Crawler {
	c := &Crawler{BatchSize: DefaultBatchSize}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Start begins walking root in a new goroutine. It returns false if a walk
// is already running or the crawler is currently paused.
func (c *Crawler) Start(root string, recurse bool) bool {
	c.mu.Lock()
	if c.running || c.pauseCount > 0 {
		c.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.running = true
	c.cancel = cancel
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	}()

	go c.run(ctx, root, recurse)
	return true
}

// Stop cancels the outstanding enumeration. The running walk will publish
// Finished{WasInterrupted: true} once it notices.
func (c *Crawler) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Pause halts the dispatch loop between directories; the enumeration
// currently in flight completes but no successor is scheduled until Resume.
func (c *Crawler) Pause() {
	c.mu.Lock()
	c.pauseCount++
	c.mu.Unlock()
}

// Resume releases one Pause. The dispatch loop resumes once the count drops
// to zero.
func (c *Crawler) Resume() {
	c.mu.Lock()
	if c.pauseCount > 0 {
		c.pauseCount--
	}
	if c.pauseCount == 0 {
		c.cond.Broadcast()
	}
	c.mu.Unlock()
}

type counts struct {
	dirsFound, dirsIgnored, filesFound, filesIgnored int
}

func (c *Crawler) run(ctx context.Context, root string, recurse bool) {
	var cs counts
	interrupted := false

	directories := []string{root}
	for len(directories) > 0 {
		c.waitWhilePaused(ctx)
		if ctx.Err() != nil {
			interrupted = true
			break
		}

		dir := directories[0]
		directories = directories[1:]

		if !c.checkDirectoryAllowed(dir) {
			cs.dirsIgnored++
			continue
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			log.Warn("crawler: failed to open directory", "dir", dir, "error", err)
			continue
		}

		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		if c.CheckDirectoryContents != nil && !c.CheckDirectoryContents(dir, names) {
			cs.dirsIgnored++
			continue
		}

		dirsFound, filesFound := 0, 0
		for i, e := range entries {
			if ctx.Err() != nil {
				interrupted = true
				break
			}

			full := filepath.Join(dir, e.Name())
			if e.IsDir() {
				if c.checkDirectoryAllowed(full) {
					dirsFound++
					if recurse {
						directories = append(directories, full)
					}
				} else {
					cs.dirsIgnored++
				}
			} else {
				if c.checkFileAllowed(full) {
					filesFound++
					c.FileFound.Publish(FileFound{Path: full})
				} else {
					cs.filesIgnored++
				}
			}

			if c.Throttle > 0 && i%c.BatchSize == c.BatchSize-1 {
				time.Sleep(c.Throttle)
			}
		}
		cs.dirsFound += dirsFound
		cs.filesFound += filesFound

		c.DirectoryCrawled.Publish(DirectoryCrawled{Dir: dir, FilesFound: filesFound, DirsFound: dirsFound})

		if interrupted {
			break
		}
	}

	c.mu.Lock()
	c.running = false
	c.cancel = nil
	c.mu.Unlock()

	c.Finished.Publish(Finished{
		WasInterrupted: interrupted,
		DirsFound:      cs.dirsFound,
		DirsIgnored:    cs.dirsIgnored,
		FilesFound:     cs.filesFound,
		FilesIgnored:   cs.filesIgnored,
	})
}

func (c *Crawler) waitWhilePaused(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pauseCount > 0 && ctx.Err() == nil {
		c.cond.Wait()
	}
}

func (c *Crawler) checkDirectoryAllowed(dir string) bool {
	if c.CheckDirectory == nil {
		return true
	}
	return c.CheckDirectory(dir)
}

func (c *Crawler) checkFileAllowed(file string) bool {
	if c.CheckFile == nil {
		return true
	}
	return c.CheckFile(file)
}
