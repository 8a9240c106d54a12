// Package store defines the Store capability the core relies on (graph
// query/update), plus SQLStore, a SQLite-backed reference implementation
// over a small triples schema. The core itself never parses the statement
// text it sends here - only SQLStore's parser does, and only for the
// bounded grammar internal/graph actually emits.
package store

import "context"

// Value is one typed cell of a query result row.
type Value struct {
	Int    int64
	Str    string
	Bool   bool
	IsInt  bool
	IsStr  bool
	IsBool bool
}

// StrValue wraps a string cell.
func StrValue(s string) Value { return Value{Str: s, IsStr: true} }

// IntValue wraps an integer cell.
func IntValue(i int64) Value { return Value{Int: i, IsInt: true} }

// BoolValue wraps a boolean cell.
func BoolValue(b bool) Value { return Value{Bool: b, IsBool: true} }

// Row is one ordered result row.
type Row []Value

// Store is the capability the core needs from its backing graph database:
// query, a batched update, and a single update. Implementations choose how
// (or whether) to parse the statement text; the core only ever concatenates
// it.
type Store interface {
	// Query runs text and returns every matching row. The core always
	// consumes the full result before moving on, so a slice return (rather
	// than a lazy iterator) keeps this interface easy to fake in tests.
	Query(ctx context.Context, text string) ([]Row, error)

	// UpdateArray applies a batch of statements as a single transaction and
	// reports a per-statement error slice (same length and order as texts,
	// nil entries for statements that succeeded).
	UpdateArray(ctx context.Context, texts []string) ([]error, error)

	// Update applies a single statement.
	Update(ctx context.Context, text string) error

	Close() error
}
