package extractor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"

	"github.com/indexd/miner/internal/graph"
	"github.com/indexd/miner/internal/minererr"
)

// DefaultMaxHashBytes caps how much of a file StatExtractor reads to compute
// its content hash; larger files are still indexed, just without a hash.
const DefaultMaxHashBytes = 8 * 1024 * 1024

// StatExtractor is the reference Extractor: it never parses a file's
// contents, only its stat attributes, a guessed MIME type, and - for files
// under MaxHashBytes - an xxhash content digest for change/duplicate
// detection. It always completes synchronously but still honors the
// asynchronous ProcessFile contract so a fuller extractor can be swapped in
// without touching MinerFS.
type StatExtractor struct {
	MaxHashBytes int64
}

// NewStatExtractor returns a StatExtractor with DefaultMaxHashBytes.
func NewStatExtractor() *StatExtractor {
	return &StatExtractor{MaxHashBytes: DefaultMaxHashBytes}
}

// ProcessFile stats path, fills builder with nfo/nie properties, and invokes
// done synchronously - it never returns true, since there is no async work
// to suspend on.
func (e *StatExtractor) ProcessFile(ctx context.Context, uri, path string, builder *graph.Builder, done DoneFunc) bool {
	info, err := os.Stat(path)
	if err != nil {
		if ctx.Err() != nil {
			done(minererr.Wrap(minererr.Cancelled, "stat", ctx.Err()))
		} else {
			done(minererr.Wrap(minererr.TransientIO, "stat failed during extraction", err))
		}
		return false
	}
	if info.IsDir() {
		done(ErrSkipped)
		return false
	}

	builder.Insert("a", "nfo:FileDataObject", true)
	builder.Insert("nie:url", uri, true)
	builder.Insert("nfo:fileName", graph.EscapeString(filepath.Base(path)), false)
	builder.Insert("nfo:fileSize", fmt.Sprintf("%d", info.Size()), false)
	builder.Insert("nie:contentLastModified", graph.FormatDate(info.ModTime()), false)
	builder.Insert("nie:mimeType", graph.EscapeString(detectMIMEType(path)), false)

	if info.Size() <= e.MaxHashBytes {
		hash, herr := hashFile(path)
		if herr != nil {
			log.Debug("extractor: failed to hash file, indexing without a digest", "path", path, "error", herr)
		} else {
			builder.Insert("nfo:hashValue", graph.EscapeString(hash), false)
		}
	}

	done(nil)
	return false
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
