package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indexd/miner/internal/crawler"
	"github.com/indexd/miner/internal/extractor"
	"github.com/indexd/miner/internal/filecache"
	"github.com/indexd/miner/internal/indextree"
	"github.com/indexd/miner/internal/miner"
	"github.com/indexd/miner/internal/minererr"
	"github.com/indexd/miner/internal/monitor"
	"github.com/indexd/miner/internal/notifier"
	"github.com/indexd/miner/internal/pool"
	"github.com/indexd/miner/internal/store"
)

func newTestMinerFS(t *testing.T) *miner.MinerFS {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	backend, err := monitor.NewFsnotifyBackend()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	tree := indextree.New()
	cache := filecache.New()
	c := crawler.New()
	mon := monitor.New(backend, 64)
	notif := notifier.New(tree, cache, c, st)
	p := pool.New(st, 8, 16)
	ex := extractor.NewStatExtractor()

	return miner.New(tree, c, mon, notif, p, st, ex)
}

func TestPauseRegistryIssuesAndValidatesCookies(t *testing.T) {
	m := newTestMinerFS(t)
	r := newPauseRegistry()

	cookie, err := r.Pause(m, "laptop", "on battery")
	require.NoError(t, err)
	assert.NotEmpty(t, cookie)
	assert.Equal(t, 1, r.Count())

	require.NoError(t, r.Resume(m, cookie))
	assert.Equal(t, 0, r.Count())
}

func TestPauseRegistryRejectsDuplicatePause(t *testing.T) {
	m := newTestMinerFS(t)
	r := newPauseRegistry()

	_, err := r.Pause(m, "laptop", "on battery")
	require.NoError(t, err)

	_, err = r.Pause(m, "laptop", "on battery")
	require.Error(t, err)
	kind, ok := minererr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, minererr.AlreadyPaused, kind)
}

func TestPauseRegistryAllowsSameReasonFromDifferentApplications(t *testing.T) {
	m := newTestMinerFS(t)
	r := newPauseRegistry()

	_, err := r.Pause(m, "laptop", "on battery")
	require.NoError(t, err)

	_, err = r.Pause(m, "desktop", "on battery")
	assert.NoError(t, err)
	assert.Equal(t, 2, r.Count())
}

func TestPauseRegistryRejectsUnrecognizedCookie(t *testing.T) {
	m := newTestMinerFS(t)
	r := newPauseRegistry()

	err := r.Resume(m, "not-a-real-cookie")
	require.Error(t, err)
	kind, ok := minererr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, minererr.InvalidCookie, kind)
}

func TestPauseRegistryCookieIsSingleUse(t *testing.T) {
	m := newTestMinerFS(t)
	r := newPauseRegistry()

	cookie, err := r.Pause(m, "laptop", "on battery")
	require.NoError(t, err)
	require.NoError(t, r.Resume(m, cookie))

	err = r.Resume(m, cookie)
	require.Error(t, err)
	kind, _ := minererr.KindOf(err)
	assert.Equal(t, minererr.InvalidCookie, kind)
}
