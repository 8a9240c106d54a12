package store

import (
	"fmt"
	"regexp"
	"strings"
)

// ScopedURLQuery renders the one query shape FileNotifier issues: "URLs and
// store mtimes of all FileDataObject descended from or equal to this root".
// Non-recursive roots use DIRECTCHILD instead of STRSTARTS so the reference
// Store only returns direct children.
func ScopedURLQuery(rootIRI string, recursive bool) string {
	fn := "STRSTARTS"
	if !recursive {
		fn = "DIRECTCHILD"
	}
	return fmt.Sprintf(
		`SELECT ?url ?mtime WHERE { ?s a nfo:FileDataObject ; nie:url ?url ; nie:contentLastModified ?mtime . FILTER(%s(?url, %s)) }`,
		fn, quoteLiteral(rootIRI),
	)
}

// ProbeExistsQuery renders the "does this subject exist" check MinerFS
// issues before treating a deletion or a moved-source as store-backed,
// probing by URI equality.
func ProbeExistsQuery(uri string) string {
	return fmt.Sprintf(`ASK { <%s> a nfo:FileDataObject }`, uri)
}

var probeQueryPattern = regexp.MustCompile(`^ASK \{ <(.*)> a nfo:FileDataObject \}$`)

func parseProbeExistsQuery(text string) (uri string, ok bool) {
	m := probeQueryPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func quoteLiteral(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

type scopedURLQuery struct {
	root      string
	recursive bool
}

func (q scopedURLQuery) matches(url string) bool {
	if url == q.root {
		return true
	}
	prefix := q.root
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if !strings.HasPrefix(url, prefix) {
		return false
	}
	if q.recursive {
		return true
	}
	return !strings.Contains(url[len(prefix):], "/")
}

var scopedQueryPattern = regexp.MustCompile(`FILTER\((STRSTARTS|DIRECTCHILD)\(\?url,\s*"((?:[^"\\]|\\.)*)"\)\)`)

func parseScopedURLQuery(text string) (scopedURLQuery, error) {
	m := scopedQueryPattern.FindStringSubmatch(text)
	if m == nil {
		return scopedURLQuery{}, fmt.Errorf("store: unsupported query text: %q", text)
	}
	root := unquote(`"` + m[2] + `"`)
	return scopedURLQuery{root: root, recursive: m[1] == "STRSTARTS"}, nil
}
