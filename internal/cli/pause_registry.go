package cli

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/indexd/miner/internal/miner"
	"github.com/indexd/miner/internal/minererr"
)

// pauseHandle records which (application, reason) a cookie was issued for.
type pauseHandle struct {
	application string
	reason      string
}

// pauseRegistry maps the adapter-level pause(reason)/resume(cookie) surface
// onto MinerFS's idempotent pause-count primitive. Dedup and cookie
// validation live here because the core only ever sees an anonymous
// increment/decrement; the CLI is what owns (application, reason, cookie)
// bookkeeping.
type pauseRegistry struct {
	mu       sync.Mutex
	byKey    map[string]string // "application\x00reason" -> cookie
	byCookie map[string]pauseHandle
}

func newPauseRegistry() *pauseRegistry {
	return &pauseRegistry{
		byKey:    make(map[string]string),
		byCookie: make(map[string]pauseHandle),
	}
}

// Pause records a new (application, reason) pause and forwards it to m,
// returning the cookie resume(cookie) must later present. A duplicate
// (application, reason) pair is rejected with AlreadyPaused.
func (r *pauseRegistry) Pause(m *miner.MinerFS, application, reason string) (string, error) {
	key := application + "\x00" + reason

	r.mu.Lock()
	if _, exists := r.byKey[key]; exists {
		r.mu.Unlock()
		return "", minererr.New(minererr.AlreadyPaused,
			fmt.Sprintf("%s already paused for %q", application, reason))
	}
	cookie, err := newCookie()
	if err != nil {
		r.mu.Unlock()
		return "", err
	}
	r.byKey[key] = cookie
	r.byCookie[cookie] = pauseHandle{application: application, reason: reason}
	r.mu.Unlock()

	m.Pause()
	return cookie, nil
}

// Resume validates cookie and, if recognized, releases the matching pause.
// An unrecognized cookie is rejected with InvalidCookie.
func (r *pauseRegistry) Resume(m *miner.MinerFS, cookie string) error {
	r.mu.Lock()
	h, ok := r.byCookie[cookie]
	if !ok {
		r.mu.Unlock()
		return minererr.New(minererr.InvalidCookie, fmt.Sprintf("unrecognized pause cookie %q", cookie))
	}
	delete(r.byCookie, cookie)
	delete(r.byKey, h.application+"\x00"+h.reason)
	r.mu.Unlock()

	m.Resume()
	return nil
}

// Count reports how many named pauses are currently outstanding.
func (r *pauseRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byCookie)
}

func newCookie() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cli: generating pause cookie: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
