package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuilderDeleteAllThenInsert(t *testing.T) {
	stmt := NewBuilder("file:///home/alice/a.txt").
		DeleteAllPredicates().
		Insert("a", "nfo:FileDataObject", true).
		Insert("nie:mimeType", EscapeString("text/plain"), false).
		Build()

	assert.Contains(t, stmt, "DELETE { <file:///home/alice/a.txt> ?p ?o } WHERE { <file:///home/alice/a.txt> ?p ?o }")
	assert.Contains(t, stmt, "INSERT { <file:///home/alice/a.txt> a <nfo:FileDataObject> . <file:///home/alice/a.txt> nie:mimeType \"text/plain\" . }")
}

func TestBuilderItemizedDelete(t *testing.T) {
	stmt := NewBuilder("file:///x").
		Delete("nie:url", "file:///x", true).
		Build()

	assert.Equal(t, `DELETE { <file:///x> nie:url <file:///x> . }`, stmt)
}

func TestEscapeString(t *testing.T) {
	assert.Equal(t, `"a\"b\\c\nd"`, EscapeString("a\"b\\c\nd"))
}

func TestFormatDate(t *testing.T) {
	ts := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, `"2023-06-01T00:00:00Z"^^xsd:dateTime`, FormatDate(ts))
}

func TestRenameStatement(t *testing.T) {
	stmt := RenameStatement("file:///old", "new.txt", "file:///new")
	assert.Contains(t, stmt, "DELETE { <file:///old> nie:url ?u ; nfo:fileName ?n }")
	assert.Contains(t, stmt, "INSERT { <file:///old> nie:url <file:///new> ; nfo:fileName \"new.txt\" . }")
}
