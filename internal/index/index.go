// Package index maintains the document search index: a standalone SQLite
// file rebuilt from the DocStore tree at startup and updated on every
// commit. The index is derived state and is never replicated; each node
// rebuilds its own.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/offenes-grundbuch/registry/internal/canonical"
	"github.com/offenes-grundbuch/registry/internal/models"
)

// Hit is one search result.
type Hit struct {
	Land        string `json:"land"`
	Amtsgericht string `json:"amtsgericht"`
	Bezirk      string `json:"bezirk"`
	Blatt       int    `json:"blatt"`
	Snippet     string `json:"snippet"`
}

// Index answers substring queries over document content.
type Index interface {
	// Add indexes one document, replacing any earlier version.
	Add(ctx context.Context, land string, doc models.Document) error
	// Query returns documents whose content contains every term.
	Query(ctx context.Context, terms string) ([]Hit, error)
	Close() error
}

type sqliteIndex struct {
	db *sql.DB
}

// Open opens or creates the index under dir.
func Open(dir string) (Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(TRUNCATE)&_pragma=busy_timeout(5000)",
		filepath.Join(dir, "index.db"))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS docs (
			land        TEXT NOT NULL,
			amtsgericht TEXT NOT NULL,
			bezirk      TEXT NOT NULL,
			blatt       INTEGER NOT NULL,
			content     TEXT NOT NULL,
			PRIMARY KEY (amtsgericht, bezirk, blatt)
		)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create index schema: %w", err)
	}
	return &sqliteIndex{db: db}, nil
}

func (ix *sqliteIndex) Add(ctx context.Context, land string, doc models.Document) error {
	_, err := ix.db.ExecContext(ctx,
		`INSERT INTO docs (land, amtsgericht, bezirk, blatt, content) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (amtsgericht, bezirk, blatt) DO UPDATE
		 SET land = excluded.land, content = excluded.content`,
		land, doc.Amtsgericht, doc.Bezirk, doc.Blatt, string(doc.Body))
	return err
}

// Query matches case-insensitively; every whitespace-separated term must
// occur in the document content.
func (ix *sqliteIndex) Query(ctx context.Context, terms string) ([]Hit, error) {
	words := strings.Fields(terms)
	if len(words) == 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString(`SELECT land, amtsgericht, bezirk, blatt, content FROM docs WHERE 1=1`)
	args := make([]any, 0, len(words))
	for _, w := range words {
		b.WriteString(` AND content LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(w)+"%")
	}
	b.WriteString(` ORDER BY amtsgericht, bezirk, blatt LIMIT 100`)

	rows, err := ix.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var content string
		if err := rows.Scan(&h.Land, &h.Amtsgericht, &h.Bezirk, &h.Blatt, &content); err != nil {
			return nil, err
		}
		h.Snippet = snippet(content, words[0])
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (ix *sqliteIndex) Close() error { return ix.db.Close() }

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// snippet extracts a short context window around the first occurrence of
// term.
func snippet(content, term string) string {
	const window = 60
	idx := strings.Index(strings.ToLower(content), strings.ToLower(term))
	if idx < 0 {
		idx = 0
	}
	start := idx - window
	if start < 0 {
		start = 0
	}
	end := idx + len(term) + window
	if end > len(content) {
		end = len(content)
	}
	s := strings.Join(strings.Fields(content[start:end]), " ")
	return s
}

// Rebuild repopulates the index from a document tree walk.
func Rebuild(ctx context.Context, ix Index, walk func(fn func(path string, content []byte) error) error) error {
	return walk(func(p string, content []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		land, amtsgericht, bezirk, blatt, err := canonical.ParseDocumentPath(p)
		if err != nil {
			// Non-document files in the tree are skipped, not fatal.
			return nil
		}
		return ix.Add(ctx, land, models.Document{
			DocumentKey: models.DocumentKey{Amtsgericht: amtsgericht, Bezirk: bezirk, Blatt: blatt},
			Body:        content,
		})
	})
}
