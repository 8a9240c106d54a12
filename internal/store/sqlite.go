package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS triples (
	subject       TEXT NOT NULL,
	predicate     TEXT NOT NULL,
	object        TEXT NOT NULL,
	object_is_iri INTEGER NOT NULL,
	PRIMARY KEY (subject, predicate, object)
);
CREATE INDEX IF NOT EXISTS triples_subject_idx ON triples(subject);
CREATE INDEX IF NOT EXISTS triples_predicate_idx ON triples(predicate);
`

// SQLStore is the reference Store, backed by SQLite via mattn/go-sqlite3.
// It serializes every statement through a single mutex: the core already
// runs on one cooperative loop, so this trades concurrency for a simpler,
// always-consistent triples table.
type SQLStore struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates (or reuses) a SQLite database at path and ensures the
// triples schema exists. path may be ":memory:" for tests.
func Open(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("store: opening sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: applying schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

// Update applies a single statement's DELETE then INSERT triples in one
// transaction.
func (s *SQLStore) Update(ctx context.Context, text string) error {
	stmt, err := parseStatement(text)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyOne(ctx, stmt)
}

// UpdateArray applies every statement in texts as one transaction, matching
// the core's expectation that a buffered pool flush is atomic as a whole
// while still reporting a per-statement result.
func (s *SQLStore) UpdateArray(ctx context.Context, texts []string) ([]error, error) {
	stmts := make([]statement, len(texts))
	perStmt := make([]error, len(texts))
	for i, text := range texts {
		parsed, err := parseStatement(text)
		if err != nil {
			perStmt[i] = err
			continue
		}
		stmts[i] = parsed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return perStmt, fmt.Errorf("store: beginning batch transaction: %w", err)
	}

	for i, stmt := range stmts {
		if perStmt[i] != nil {
			continue
		}
		if err := applyTx(ctx, tx, stmt); err != nil {
			perStmt[i] = err
		}
	}

	if err := tx.Commit(); err != nil {
		return perStmt, fmt.Errorf("store: committing batch: %w", err)
	}
	return perStmt, nil
}

func (s *SQLStore) applyOne(ctx context.Context, stmt statement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := applyTx(ctx, tx, stmt); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func applyTx(ctx context.Context, tx *sql.Tx, stmt statement) error {
	for _, t := range stmt.deletes {
		if t.isDeleteAll() {
			if _, err := tx.ExecContext(ctx, `DELETE FROM triples WHERE subject = ?`, t.subject); err != nil {
				return err
			}
			continue
		}
		if !t.objectIsIRI && strings.HasPrefix(t.object, "?") {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM triples WHERE subject = ? AND predicate = ?`,
				t.subject, t.predicate); err != nil {
				return err
			}
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM triples WHERE subject = ? AND predicate = ? AND object = ?`,
			t.subject, t.predicate, t.object); err != nil {
			return err
		}
	}
	for _, t := range stmt.inserts {
		isIRI := 0
		if t.objectIsIRI {
			isIRI = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO triples (subject, predicate, object, object_is_iri) VALUES (?, ?, ?, ?)`,
			t.subject, t.predicate, t.object, isIRI); err != nil {
			return err
		}
	}
	return nil
}

// Query runs a ScopedURLQuery (the only query shape the notifier issues)
// and returns, for every subject typed nfo:FileDataObject whose nie:url
// falls within scope, its (url, mtime) pair.
func (s *SQLStore) Query(ctx context.Context, text string) ([]Row, error) {
	if uri, ok := parseProbeExistsQuery(text); ok {
		return s.queryProbeExists(ctx, uri)
	}

	q, err := parseScopedURLQuery(text)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT subject, predicate, object FROM triples
		 WHERE subject IN (SELECT subject FROM triples WHERE predicate = 'a' AND object = 'nfo:FileDataObject')
		 AND predicate IN ('nie:url', 'nie:contentLastModified')`)
	if err != nil {
		return nil, fmt.Errorf("store: querying scoped urls: %w", err)
	}
	defer rows.Close()

	type fields struct {
		url, mtime string
	}
	bySubject := make(map[string]*fields)
	for rows.Next() {
		var subject, predicate, object string
		if err := rows.Scan(&subject, &predicate, &object); err != nil {
			return nil, err
		}
		f, ok := bySubject[subject]
		if !ok {
			f = &fields{}
			bySubject[subject] = f
		}
		switch predicate {
		case "nie:url":
			f.url = object
		case "nie:contentLastModified":
			f.mtime = object
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []Row
	for _, f := range bySubject {
		if f.url == "" || !q.matches(f.url) {
			continue
		}
		out = append(out, Row{StrValue(f.url), StrValue(f.mtime)})
	}
	return out, nil
}

// queryProbeExists answers ProbeExistsQuery: one row holding a single
// boolean cell.
func (s *SQLStore) queryProbeExists(ctx context.Context, uri string) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM triples WHERE subject = ? AND predicate = 'a' AND object = 'nfo:FileDataObject'`,
		uri).Scan(&n)
	if err != nil {
		return nil, fmt.Errorf("store: probing subject existence: %w", err)
	}
	return []Row{{BoolValue(n > 0)}}, nil
}
