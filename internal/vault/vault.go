// Package vault indexes a directory of markdown notes into SQLite and
// answers full-text queries over them. Search results carry a title
// and relevance score; the agent loop surfaces these as citations.
package vault

import (
	"bytes"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Note is one indexed markdown file.
type Note struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Body      string    `json:"-"`
	IndexedAt time.Time `json:"indexed_at"`
}

// SearchResult is one full-text hit. Score is higher for better
// matches; Snippet is a short highlighted excerpt.
type SearchResult struct {
	Title   string  `json:"title"`
	Path    string  `json:"path"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
}

// Index is a SQLite-FTS5-backed note index rooted at a vault
// directory.
type Index struct {
	db     *sql.DB
	root   string
	logger *slog.Logger
}

// NewIndex opens (creating if needed) the note index at dbPath for the
// vault rooted at root.
func NewIndex(dbPath, root string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open vault index: %w", err)
	}

	idx := &Index{db: db, root: root, logger: logger.With("component", "vault")}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("vault migrate: %w", err)
	}
	return idx, nil
}

func (idx *Index) migrate() error {
	_, err := idx.db.Exec(`
		CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			indexed_at TIMESTAMP NOT NULL
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			title, body,
			content=notes,
			content_rowid=rowid
		);
	`)
	return err
}

// Close closes the index database.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Root returns the vault directory this index covers.
func (idx *Index) Root() string {
	return idx.root
}

// Reindex walks the vault directory and (re)indexes every markdown
// file. Existing entries are replaced wholesale; removed files drop
// out of the index. Returns the number of notes indexed.
func (idx *Index) Reindex() (int, error) {
	tx, err := idx.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM notes_fts`); err != nil {
		return 0, fmt.Errorf("clear fts: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM notes`); err != nil {
		return 0, fmt.Errorf("clear notes: %w", err)
	}

	insert, err := tx.Prepare(`
		INSERT INTO notes (id, path, title, body, indexed_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer insert.Close()

	insertFTS, err := tx.Prepare(`
		INSERT INTO notes_fts(rowid, title, body)
		SELECT rowid, title, body FROM notes WHERE id = ?
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare fts: %w", err)
	}
	defer insertFTS.Close()

	count := 0
	now := time.Now().UTC()
	err = filepath.WalkDir(idx.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != idx.root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			idx.logger.Warn("skipping unreadable note", "path", path, "error", err)
			return nil
		}

		rel, err := filepath.Rel(idx.root, path)
		if err != nil {
			return err
		}

		title, body := extract(raw)
		if title == "" {
			title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}

		id, _ := uuid.NewV7()
		if _, err := insert.Exec(id.String(), rel, title, body, now); err != nil {
			return fmt.Errorf("insert note %s: %w", rel, err)
		}
		if _, err := insertFTS.Exec(id.String()); err != nil {
			return fmt.Errorf("fts sync %s: %w", rel, err)
		}
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk vault: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	idx.logger.Info("vault indexed", "root", idx.root, "notes", count)
	return count, nil
}

// Search runs a full-text query and returns up to limit results,
// best match first.
func (idx *Index) Search(query string, limit int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := idx.db.Query(`
		SELECT n.title, n.path,
		       -bm25(notes_fts) AS score,
		       snippet(notes_fts, 1, '**', '**', '...', 24) AS snip
		FROM notes_fts
		JOIN notes n ON notes_fts.rowid = n.rowid
		WHERE notes_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, sanitizeQuery(query), limit)
	if err != nil {
		return nil, fmt.Errorf("vault search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Title, &r.Path, &r.Score, &r.Snippet); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// NoteCount returns how many notes are indexed.
func (idx *Index) NoteCount() int {
	var count int
	_ = idx.db.QueryRow(`SELECT COUNT(*) FROM notes`).Scan(&count)
	return count
}

// sanitizeQuery wraps each term in double quotes so punctuation in the
// user's query cannot break FTS5 syntax.
func sanitizeQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ReplaceAll(t, `"`, "")
		if t == "" {
			continue
		}
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " ")
}

// extract parses markdown and returns the first heading as the title
// and the full document rendered to plain text as the body.
func extract(raw []byte) (title, body string) {
	doc := goldmark.DefaultParser().Parse(text.NewReader(raw))

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			if title == "" && node.Level == 1 {
				title = string(node.Text(raw))
			}
		case *ast.Text:
			buf.Write(node.Segment.Value(raw))
			if node.HardLineBreak() || node.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.AutoLink:
			buf.Write(node.URL(raw))
		}
		if _, isBlock := n.(*ast.Paragraph); isBlock {
			buf.WriteByte('\n')
		}
		return ast.WalkContinue, nil
	})

	return title, strings.TrimSpace(buf.String())
}
