// Package pool implements the ProcessingPool: a per-task state machine
// (WAIT -> READY -> PROCESSING) with parent-directory-keyed buffering of
// sibling writes headed to the same parent directory.
package pool

import (
	"context"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/indexd/miner/internal/store"
)

// MaxBufferAge is the buffer age past which the next buffered push flushes
// the existing batch before joining a new one. The age is only checked when
// a push arrives; no timer flushes an idle buffer on its own.
const MaxBufferAge = 15 * time.Second

// State is a task's position in the WAIT -> READY -> PROCESSING machine.
type State int

const (
	Wait State = iota
	Ready
	Processing
)

// DoneFunc is called exactly once per task with its outcome: nil on
// success, a per-statement error, or the whole-batch error if the batch
// itself failed to apply.
type DoneFunc func(error)

// Task is one file's pending graph update.
type Task struct {
	File      string
	state     State
	statement string
	done      DoneFunc
}

func (t *Task) State() State { return t.state }

// Pool is the processing pool for one miner. The zero value is not usable;
// use New.
type Pool struct {
	store      store.Store
	limitWait  int
	limitReady int

	mu            sync.Mutex
	tasks         []*Task
	buffer        []*Task
	bufferParent  string
	bufferStart   time.Time
}

// New returns a pool backed by st, capping WAIT at limitWait and READY
// (buffered batch size) at limitReady. Zero means unlimited.
func New(st store.Store, limitWait, limitReady int) *Pool {
	return &Pool{store: st, limitWait: limitWait, limitReady: limitReady}
}

// PushWait creates a new task with no payload yet - e.g. while its
// extractor output is pending - and returns it so the caller can later call
// PushReady on the same task.
func (p *Pool) PushWait(file string) *Task {
	t := &Task{File: file, state: Wait}
	p.mu.Lock()
	p.tasks = append(p.tasks, t)
	p.mu.Unlock()
	return t
}

// PushReady moves task (or, if task is nil, a freshly created one for file)
// into READY with statement as its payload and done as its completion
// callback. If buffered, the task joins the parent-directory buffer subject
// to the flush rules; otherwise the current buffer is flushed first and the
// task is submitted alone.
func (p *Pool) PushReady(ctx context.Context, task *Task, file, statement string, buffered bool, done DoneFunc) {
	p.mu.Lock()
	if task == nil {
		task = &Task{File: file}
		p.tasks = append(p.tasks, task)
	}
	task.state = Ready
	task.statement = statement
	task.done = done

	if !buffered {
		p.flushLocked(ctx)
		p.submitSingleLocked(ctx, task)
		p.mu.Unlock()
		return
	}

	parent := parentOf(task.File)
	if len(p.buffer) > 0 && p.shouldFlushBefore(parent) {
		p.flushLocked(ctx)
	}
	if len(p.buffer) == 0 {
		p.bufferParent = parent
		p.bufferStart = time.Now()
	}
	p.buffer = append(p.buffer, task)

	if parent == "" || (p.readyLimit() > 0 && len(p.buffer) >= p.readyLimit()) {
		p.flushLocked(ctx)
	}
	p.mu.Unlock()
}

// shouldFlushBefore reports whether the current buffer must be flushed
// before a task belonging to parent can join it. Callers must hold p.mu.
func (p *Pool) shouldFlushBefore(parent string) bool {
	if parent == "" {
		return true
	}
	if parent != p.bufferParent {
		return true
	}
	if p.readyLimit() > 0 && len(p.buffer) >= p.readyLimit() {
		return true
	}
	if time.Since(p.bufferStart) > MaxBufferAge {
		return true
	}
	return false
}

func (p *Pool) readyLimit() int {
	if p.limitReady <= 0 {
		return 0
	}
	return p.limitReady
}

// Commit force-flushes the buffered batch, if any.
func (p *Pool) Commit(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushLocked(ctx)
}

// flushLocked submits the current buffer as a single batched update.
// Callers must hold p.mu.
func (p *Pool) flushLocked(ctx context.Context) {
	if len(p.buffer) == 0 {
		return
	}
	batch := p.buffer
	p.buffer = nil
	p.bufferParent = ""

	statements := make([]string, len(batch))
	for i, t := range batch {
		t.state = Processing
		statements[i] = t.statement
	}

	perStmt, err := p.store.UpdateArray(ctx, statements)
	if err != nil {
		log.Warn("pool: batch update failed, reporting to every queued task", "size", len(batch), "error", err)
		for _, t := range batch {
			p.completeLocked(t, err)
		}
		return
	}
	for i, t := range batch {
		p.completeLocked(t, perStmt[i])
	}
}

func (p *Pool) submitSingleLocked(ctx context.Context, t *Task) {
	t.state = Processing
	err := p.store.Update(ctx, t.statement)
	p.completeLocked(t, err)
}

// completeLocked removes t from the pool and invokes its callback. Callers
// must hold p.mu.
func (p *Pool) completeLocked(t *Task, err error) {
	for i, cur := range p.tasks {
		if cur == t {
			p.tasks = append(p.tasks[:i], p.tasks[i+1:]...)
			break
		}
	}
	if t.done != nil {
		t.done(err)
	}
}

// FindTask linearly scans every tracked task (WAIT, buffered READY, and
// in-flight PROCESSING) for one matching file. pathEqual requires an exact
// match; otherwise file is treated as a directory prefix.
func (p *Pool) FindTask(file string, pathEqual bool) *Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.tasks {
		if pathEqual {
			if t.File == file {
				return t
			}
			continue
		}
		if t.File == file || strings.HasPrefix(t.File, file+"/") {
			return t
		}
	}
	return nil
}

// WaitCount returns how many tasks are currently in WAIT.
func (p *Pool) WaitCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.tasks {
		if t.state == Wait {
			n++
		}
	}
	return n
}

// WaitLimitReached reports whether WAIT is at its cap (back-pressure for
// the extractor).
func (p *Pool) WaitLimitReached() bool {
	return p.limitWait > 0 && p.WaitCount() >= p.limitWait
}

// ReadyLimitReached reports whether the current buffer is at its cap.
func (p *Pool) ReadyLimitReached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readyLimit() > 0 && len(p.buffer) >= p.readyLimit()
}

func parentOf(file string) string {
	dir := path.Dir(file)
	if dir == "." || dir == file {
		return ""
	}
	return dir
}
