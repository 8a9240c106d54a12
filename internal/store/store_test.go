package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indexd/miner/internal/graph"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpdateInsertsAndDeleteAllRemoves(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	insert := graph.NewBuilder("file:///a.txt").
		Insert("a", "nfo:FileDataObject", true).
		Insert("nie:url", "file:///a.txt", true).
		Insert("nie:contentLastModified", graph.FormatDate(mustParseTime(t, "2023-01-01T00:00:00Z")), false).
		Build()
	require.NoError(t, s.Update(ctx, insert))

	rows, err := s.Query(ctx, ScopedURLQuery("file:///", true))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "file:///a.txt", rows[0][0].Str)

	del := graph.NewBuilder("file:///a.txt").DeleteAllPredicates().Build()
	require.NoError(t, s.Update(ctx, del))

	rows, err = s.Query(ctx, ScopedURLQuery("file:///", true))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUpdateArrayAppliesEveryStatementInOneTransaction(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var texts []string
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		subject := "file:///" + name
		texts = append(texts, graph.NewBuilder(subject).
			Insert("a", "nfo:FileDataObject", true).
			Insert("nie:url", subject, true).
			Insert("nie:contentLastModified", "\"2023-01-01T00:00:00Z\"", false).
			Build())
	}

	perStmt, err := s.UpdateArray(ctx, texts)
	require.NoError(t, err)
	for _, e := range perStmt {
		assert.NoError(t, e)
	}

	rows, err := s.Query(ctx, ScopedURLQuery("file:///", true))
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestScopedURLQueryNonRecursiveOnlyDirectChildren(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, url := range []string{"file:///docs/a.txt", "file:///docs/sub/b.txt"} {
		require.NoError(t, s.Update(ctx, graph.NewBuilder(url).
			Insert("a", "nfo:FileDataObject", true).
			Insert("nie:url", url, true).
			Insert("nie:contentLastModified", "\"2023-01-01T00:00:00Z\"", false).
			Build()))
	}

	rows, err := s.Query(ctx, ScopedURLQuery("file:///docs", false))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "file:///docs/a.txt", rows[0][0].Str)
}

func TestRenameStatementUpdatesURLAndFileName(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, graph.NewBuilder("file:///old").
		Insert("a", "nfo:FileDataObject", true).
		Insert("nie:url", "file:///old", true).
		Insert("nfo:fileName", graph.EscapeString("old.txt"), false).
		Build()))

	require.NoError(t, s.Update(ctx, graph.RenameStatement("file:///old", "new.txt", "file:///new")))

	rows, err := s.Query(ctx, ScopedURLQuery("file:///", true))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "file:///new", rows[0][0].Str)
}

func TestParseTriplesHandlesSemicolonContinuation(t *testing.T) {
	stmt, err := parseStatement(`DELETE { <file:///x> nie:url ?u ; nfo:fileName ?n } WHERE { <file:///x> nie:url ?u ; nfo:fileName ?n } INSERT { <file:///x> nie:url <file:///y> ; nfo:fileName "new.txt" . }`)
	require.NoError(t, err)
	require.Len(t, stmt.deletes, 2)
	assert.Equal(t, "file:///x", stmt.deletes[0].subject)
	assert.Equal(t, "file:///x", stmt.deletes[1].subject)
	require.Len(t, stmt.inserts, 2)
	assert.Equal(t, "new.txt", stmt.inserts[1].object)
}

func TestProbeExistsQueryReportsPresenceAndAbsence(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rows, err := s.Query(ctx, ProbeExistsQuery("file:///missing.txt"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0][0].Bool)

	require.NoError(t, s.Update(ctx, graph.NewBuilder("file:///present.txt").
		Insert("a", "nfo:FileDataObject", true).
		Insert("nie:url", "file:///present.txt", true).
		Build()))

	rows, err = s.Query(ctx, ProbeExistsQuery("file:///present.txt"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0][0].Bool)
}

func mustParseTime(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return parsed
}
