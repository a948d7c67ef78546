// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package knowledge is the local knowledge store: documents are split into
// chunks, indexed with SQLite FTS5, optionally embedded for vector search,
// and answered through query(text, mode) with naive, local, global, and
// hybrid strategies.
package knowledge

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Stellven/KBSkills/internal/resilience"
	"github.com/Stellven/KBSkills/internal/textutil"
	"github.com/Stellven/KBSkills/pkg/types"
)

const (
	dbFile = "kbskills.db"

	// embedBatchSize is the most texts sent in one embedding request.
	embedBatchSize = 100
)

// ErrEmptyDocument is returned by Insert for documents with no text.
var ErrEmptyDocument = errors.New("document has no content")

// Embedder turns texts into vectors, one per input in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Store manages the knowledge store SQLite database.
type Store struct {
	db           *sql.DB
	dir          string
	maxResults   int
	chunkSize    int
	chunkOverlap int
	embedder     Embedder
	cache        *lru.Cache[string, string]
	logger       *slog.Logger
}

// NewStore opens or creates the database at cfg.Dir/kbskills.db and creates
// the schema if it does not exist. embedder may be nil, in which case
// chunks are not embedded and vector modes fall back to full-text search.
func NewStore(cfg types.KnowledgeBaseConfig, embedder Embedder, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating knowledge directory: %w", err)
	}

	dbPath := DatabasePath(cfg.Dir)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if cfg.MaxResults <= 0 {
		cfg.MaxResults = types.DefaultMaxResults
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = types.DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = types.DefaultQueryCacheSize
	}
	cache, err := lru.New[string, string](cfg.CacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating query cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		db:           db,
		dir:          cfg.Dir,
		maxResults:   cfg.MaxResults,
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
		embedder:     embedder,
		cache:        cache,
		logger:       logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return DatabasePath(s.dir)
}

// DatabasePath returns the database file a store in dir uses.
func DatabasePath(dir string) string {
	return filepath.Join(dir, dbFile)
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			title TEXT,
			metadata TEXT,
			char_count INTEGER,
			ingested_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			document_id TEXT NOT NULL REFERENCES documents(id),
			seq INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='chunks_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE chunks_fts USING fts5(content, content=chunks, content_rowid=rowid)`,
			`CREATE TRIGGER chunks_ai AFTER INSERT ON chunks BEGIN
				INSERT INTO chunks_fts(rowid, content) VALUES (new.rowid, new.content);
			END`,
			`CREATE TRIGGER chunks_ad AFTER DELETE ON chunks BEGIN
				INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES('delete', old.rowid, old.content);
			END`,
			`CREATE TRIGGER chunks_au AFTER UPDATE ON chunks BEGIN
				INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES('delete', old.rowid, old.content);
				INSERT INTO chunks_fts(rowid, content) VALUES (new.rowid, new.content);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// DocumentID returns the stable ID for a source: the first 12 hex
// characters of SHA-256(source).
func DocumentID(source string) string {
	sum := sha256.Sum256([]byte(source))
	return fmt.Sprintf("%x", sum)[:12]
}

// InsertText stores bare text under a source derived from its content.
func (s *Store) InsertText(ctx context.Context, text string) error {
	return s.Insert(ctx, types.Document{Source: "text:" + DocumentID(text), Content: text})
}

// Insert cleans, chunks, and stores doc, replacing any earlier version from
// the same source. When an embedder is configured every chunk is embedded.
// Errors are knowledge base errors, or embedding errors from the embedder.
func (s *Store) Insert(ctx context.Context, doc types.Document) error {
	content := textutil.Clean(doc.Content)
	if content == "" {
		return resilience.KnowledgeBaseError(fmt.Errorf("inserting %s: %w", doc.Source, ErrEmptyDocument))
	}

	docID := DocumentID(doc.Source)
	chunks := textutil.Chunk(content, s.chunkSize, s.chunkOverlap)

	var embeddings [][]float32
	if s.embedder != nil {
		var err error
		embeddings, err = s.embedChunks(ctx, chunks)
		if err != nil {
			return fmt.Errorf("embedding chunks of %s: %w", doc.Source, err)
		}
	}

	if err := s.writeDocument(ctx, docID, doc, content, chunks, embeddings); err != nil {
		return resilience.KnowledgeBaseError(fmt.Errorf("inserting %s: %w", doc.Source, err))
	}

	s.cache.Purge()
	s.logger.Debug("inserted document", "source", doc.Source, "id", docID, "chunks", len(chunks))
	return nil
}

func (s *Store) embedChunks(ctx context.Context, chunks []string) ([][]float32, error) {
	out := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		vecs, err := s.embedder.Embed(ctx, chunks[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, resilience.EmbeddingError(fmt.Errorf("got %d embeddings for %d chunks", len(vecs), end-start))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (s *Store) writeDocument(ctx context.Context, docID string, doc types.Document, content string, chunks []string, embeddings [][]float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, docID); err != nil {
		return fmt.Errorf("deleting old chunks: %w", err)
	}

	metaJSON, _ := json.Marshal(doc.Metadata)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, source, title, metadata, char_count, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			source=excluded.source, title=excluded.title, metadata=excluded.metadata,
			char_count=excluded.char_count, ingested_at=excluded.ingested_at`,
		docID, doc.Source, doc.Metadata["title"], string(metaJSON),
		len([]rune(content)), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, document_id, seq, content, embedding) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, chunk := range chunks {
		var embedding sql.NullString
		if i < len(embeddings) {
			data, err := json.Marshal(embeddings[i])
			if err != nil {
				return fmt.Errorf("encoding embedding: %w", err)
			}
			embedding = sql.NullString{String: string(data), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, fmt.Sprintf("%s-%04d", docID, i), docID, i, chunk, embedding); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// Delete removes the document stored for source together with its chunks.
// Unknown sources are ignored.
func (s *Store) Delete(ctx context.Context, source string) error {
	docID := DocumentID(source)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return resilience.KnowledgeBaseError(fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, docID); err != nil {
		return resilience.KnowledgeBaseError(fmt.Errorf("deleting chunks of %s: %w", source, err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, docID); err != nil {
		return resilience.KnowledgeBaseError(fmt.Errorf("deleting %s: %w", source, err))
	}
	if err := tx.Commit(); err != nil {
		return resilience.KnowledgeBaseError(fmt.Errorf("committing delete: %w", err))
	}
	s.cache.Purge()
	return nil
}

// Status summarizes the store's contents.
type Status struct {
	Path           string
	Documents      int
	Chunks         int
	EmbeddedChunks int
	SizeBytes      int64
}

// Initialized reports whether anything has been ingested.
func (st Status) Initialized() bool { return st.Documents > 0 }

// Size returns SizeBytes in human-readable form.
func (st Status) Size() string { return humanSize(st.SizeBytes) }

// Status counts documents and chunks and measures the database files.
func (s *Store) Status(ctx context.Context) (Status, error) {
	st := Status{Path: s.Path()}
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT count(*) FROM documents),
		        (SELECT count(*) FROM chunks),
		        (SELECT count(*) FROM chunks WHERE embedding IS NOT NULL)`,
	).Scan(&st.Documents, &st.Chunks, &st.EmbeddedChunks)
	if err != nil {
		return Status{}, resilience.KnowledgeBaseError(fmt.Errorf("reading status: %w", err))
	}

	for _, suffix := range []string{"", "-wal", "-shm"} {
		if info, err := os.Stat(st.Path + suffix); err == nil {
			st.SizeBytes += info.Size()
		}
	}
	return st, nil
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// DocumentInfo describes one stored document.
type DocumentInfo struct {
	ID         string            `json:"id" yaml:"id"`
	Source     string            `json:"source" yaml:"source"`
	Title      string            `json:"title,omitempty" yaml:"title,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CharCount  int               `json:"char_count" yaml:"char_count"`
	Chunks     int               `json:"chunks" yaml:"chunks"`
	IngestedAt string            `json:"ingested_at" yaml:"ingested_at"`
}

// Documents lists stored documents ordered by source.
func (s *Store) Documents(ctx context.Context) ([]DocumentInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.source, d.title, d.metadata, d.char_count, d.ingested_at,
		        (SELECT count(*) FROM chunks c WHERE c.document_id = d.id)
		 FROM documents d ORDER BY d.source`)
	if err != nil {
		return nil, resilience.KnowledgeBaseError(fmt.Errorf("listing documents: %w", err))
	}
	defer rows.Close()

	var docs []DocumentInfo
	for rows.Next() {
		var (
			d        DocumentInfo
			title    sql.NullString
			metaJSON sql.NullString
			ingested sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.Source, &title, &metaJSON, &d.CharCount, &ingested, &d.Chunks); err != nil {
			return nil, resilience.KnowledgeBaseError(fmt.Errorf("scanning row: %w", err))
		}
		d.Title = title.String
		d.IngestedAt = ingested.String
		if metaJSON.Valid && metaJSON.String != "null" {
			if err := json.Unmarshal([]byte(metaJSON.String), &d.Metadata); err != nil {
				s.logger.Warn("ignoring unreadable document metadata", "source", d.Source, "error", err)
				d.Metadata = nil
			}
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// sourceLabel is the tag rendered ahead of each retrieved chunk.
func sourceLabel(source string) string {
	return "[Source: " + strings.TrimSpace(source) + "]"
}
