// Package extractor defines the per-file metadata extraction hook MinerFS
// delegates to, plus a reference implementation that extracts only what the
// filesystem itself can tell it (stat attributes, a content hash, a guessed
// MIME type) without parsing any file format.
package extractor

import (
	"context"

	"github.com/indexd/miner/internal/graph"
)

// DoneFunc is invoked exactly once to resolve a ProcessFile call that
// returned true: err nil means the builder now holds the file's extracted
// triples and should be committed; non-nil means the file was skipped (or
// failed) and nothing should be written for it.
type DoneFunc func(err error)

// Extractor materializes the metadata for one file into a graph.Builder.
// ProcessFile's return value only tells the caller whether more work is
// outstanding: true means the extractor is still working and will invoke
// done exactly once later, from any goroutine. false means no further call
// is coming, but done may already have been invoked synchronously before
// ProcessFile returned - callers must not assume a false return leaves the
// task unresolved.
type Extractor interface {
	ProcessFile(ctx context.Context, uri, path string, builder *graph.Builder, done DoneFunc) bool
}

// ErrSkipped is a sentinel DoneFunc error meaning the extractor decided,
// after starting async work, not to produce output - distinct from a real
// failure so MinerFS does not log it as one.
var ErrSkipped = skipError{}

type skipError struct{}

func (skipError) Error() string { return "extractor: file skipped" }
