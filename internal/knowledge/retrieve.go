// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/Stellven/KBSkills/internal/resilience"
	"github.com/Stellven/KBSkills/internal/vecmath"
	"github.com/Stellven/KBSkills/pkg/types"
)

// hit is one retrieved chunk.
type hit struct {
	rowID   int64
	docID   string
	source  string
	content string
	score   float64
}

// Query answers query with the given retrieval mode and renders the hits
// as "[Source: ...]" tagged blocks separated by blank lines. No hits is an
// empty string, not an error. Results are cached until the next insert.
//
//   - naive: FTS5 match over chunks ranked by bm25.
//   - local: cosine similarity between the query embedding and chunk
//     embeddings. Falls back to naive when nothing is embedded.
//   - global: full-text ranking keeping the best chunk per document, so
//     results span as many sources as possible.
//   - hybrid: local and naive results interleaved without duplicates.
func (s *Store) Query(ctx context.Context, query string, mode types.SearchMode) (string, error) {
	key := string(mode) + "\x00" + query
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	var (
		hits []hit
		err  error
	)
	switch mode {
	case types.SearchNaive:
		hits, err = s.searchText(ctx, query, s.maxResults)
	case types.SearchLocal:
		hits, err = s.searchVector(ctx, query, s.maxResults)
	case types.SearchGlobal:
		hits, err = s.searchGlobal(ctx, query)
	case types.SearchHybrid, "":
		hits, err = s.searchHybrid(ctx, query)
	default:
		return "", resilience.KnowledgeBaseError(fmt.Errorf("unknown search mode %q", mode))
	}
	if err != nil {
		return "", fmt.Errorf("querying %q (%s): %w", query, mode, err)
	}

	out := render(hits)
	s.cache.Add(key, out)
	return out, nil
}

func render(hits []hit) string {
	blocks := make([]string, len(hits))
	for i, h := range hits {
		blocks[i] = sourceLabel(h.source) + "\n" + h.content
	}
	return strings.Join(blocks, "\n\n")
}

// ftsQuery turns free text into an FTS5 expression: every word quoted and
// OR-ed together, so punctuation in the query cannot break the syntax.
func ftsQuery(text string) string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	var terms []string
	for _, w := range words {
		w = strings.ToLower(w)
		if seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}

func (s *Store) searchText(ctx context.Context, query string, limit int) ([]hit, error) {
	expr := ftsQuery(query)
	if expr == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.rowid, c.document_id, d.source, c.content, chunks_fts.rank
		 FROM chunks_fts
		 JOIN chunks c ON c.rowid = chunks_fts.rowid
		 JOIN documents d ON d.id = c.document_id
		 WHERE chunks_fts MATCH ?
		 ORDER BY chunks_fts.rank
		 LIMIT ?`, expr, limit)
	if err != nil {
		return nil, resilience.KnowledgeBaseError(fmt.Errorf("full-text search: %w", err))
	}
	defer rows.Close()

	var hits []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.rowID, &h.docID, &h.source, &h.content, &h.score); err != nil {
			return nil, resilience.KnowledgeBaseError(fmt.Errorf("scanning row: %w", err))
		}
		// bm25 ranks are negative with better matches lower.
		h.score = -h.score
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, resilience.KnowledgeBaseError(err)
	}
	return hits, nil
}

func (s *Store) searchVector(ctx context.Context, query string, limit int) ([]hit, error) {
	if s.embedder == nil {
		return s.searchText(ctx, query, limit)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.rowid, c.document_id, d.source, c.content, c.embedding
		 FROM chunks c JOIN documents d ON d.id = c.document_id
		 WHERE c.embedding IS NOT NULL`)
	if err != nil {
		return nil, resilience.KnowledgeBaseError(fmt.Errorf("loading embeddings: %w", err))
	}

	type candidate struct {
		hit
		vec []float32
	}
	var candidates []candidate
	for rows.Next() {
		var (
			c   candidate
			raw sql.NullString
		)
		if err := rows.Scan(&c.rowID, &c.docID, &c.source, &c.content, &raw); err != nil {
			rows.Close()
			return nil, resilience.KnowledgeBaseError(fmt.Errorf("scanning row: %w", err))
		}
		if err := json.Unmarshal([]byte(raw.String), &c.vec); err != nil {
			s.logger.Warn("skipping chunk with unreadable embedding", "chunk", c.rowID, "error", err)
			continue
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, resilience.KnowledgeBaseError(err)
	}

	if len(candidates) == 0 {
		return s.searchText(ctx, query, limit)
	}

	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, resilience.EmbeddingError(fmt.Errorf("got %d embeddings for 1 query", len(vecs)))
	}

	hits := make([]hit, 0, len(candidates))
	for _, c := range candidates {
		c.score = vecmath.Cosine(vecs[0], c.vec)
		if c.score > 0 {
			hits = append(hits, c.hit)
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *Store) searchGlobal(ctx context.Context, query string) ([]hit, error) {
	hits, err := s.searchText(ctx, query, s.maxResults*4)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []hit
	for _, h := range hits {
		if seen[h.docID] {
			continue
		}
		seen[h.docID] = true
		out = append(out, h)
		if len(out) == s.maxResults {
			break
		}
	}
	return out, nil
}

func (s *Store) searchHybrid(ctx context.Context, query string) ([]hit, error) {
	vector, err := s.searchVector(ctx, query, s.maxResults)
	if err != nil {
		return nil, err
	}
	text, err := s.searchText(ctx, query, s.maxResults)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool)
	var out []hit
	add := func(h hit) {
		if !seen[h.rowID] && len(out) < s.maxResults {
			seen[h.rowID] = true
			out = append(out, h)
		}
	}
	for i := 0; i < max(len(vector), len(text)); i++ {
		if i < len(vector) {
			add(vector[i])
		}
		if i < len(text) {
			add(text[i])
		}
	}
	return out, nil
}
