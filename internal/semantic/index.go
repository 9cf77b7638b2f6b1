// internal/semantic/index.go
package semantic

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"
)

// Index is a sqlite-backed vector index partitioned by (case_id, kind).
// It implements Searcher.
type Index struct {
	db       *sql.DB
	embedder Embedder
}

// NewIndex opens (or creates) the sqlite database and runs migrations.
func NewIndex(path string, embedder Embedder) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("semantic: mkdir %s: %w", filepath.Dir(path), err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("semantic: open db: %w", err)
	}

	// Single connection avoids write contention for our scale
	db.SetMaxOpenConns(1)

	idx := &Index{db: db, embedder: embedder}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("semantic: migrate: %w", err)
	}
	return idx, nil
}

func (idx *Index) migrate() error {
	_, err := idx.db.Exec(`
		CREATE TABLE IF NOT EXISTS passages (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			case_id   TEXT NOT NULL,
			kind      TEXT NOT NULL,
			content   TEXT NOT NULL,
			metadata  TEXT NOT NULL DEFAULT '{}',
			embedding BLOB,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
		CREATE INDEX IF NOT EXISTS idx_passages_case_kind ON passages(case_id, kind);
	`)
	return err
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Reset drops every passage of a case so the namespace can be rebuilt.
func (idx *Index) Reset(ctx context.Context, caseID string) error {
	_, err := idx.db.ExecContext(ctx, `DELETE FROM passages WHERE case_id = ?`, caseID)
	return err
}

// Add embeds and stores documents under (caseID, kind).
func (idx *Index) Add(ctx context.Context, caseID, kind string, docs []Document) error {
	for _, doc := range docs {
		if doc.Text == "" {
			continue
		}
		vec, err := idx.embedder.Embed(ctx, doc.Text, TaskDocument)
		if err != nil {
			return fmt.Errorf("embed passage: %w", err)
		}
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		_, err = idx.db.ExecContext(ctx, `
			INSERT INTO passages (case_id, kind, content, metadata, embedding)
			VALUES (?, ?, ?, ?, ?)`,
			caseID, kind, doc.Text, string(meta), EncodeVector(vec),
		)
		if err != nil {
			return fmt.Errorf("insert passage: %w", err)
		}
	}
	return nil
}

// Search ranks the passages of (caseID, kind) by cosine similarity to the
// query and returns the top k.
func (idx *Index) Search(ctx context.Context, caseID, kind, query string, k int) ([]Match, error) {
	if k <= 0 {
		k = 3
	}
	queryVec, err := idx.embedder.Embed(ctx, query, TaskQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := idx.db.QueryContext(ctx, `
		SELECT content, metadata, embedding FROM passages
		WHERE case_id = ? AND kind = ?`, caseID, kind)
	if err != nil {
		return nil, fmt.Errorf("query passages: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var content, metaRaw string
		var blob []byte
		if err := rows.Scan(&content, &metaRaw, &blob); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		var meta map[string]string
		if err := json.Unmarshal([]byte(metaRaw), &meta); err != nil {
			meta = map[string]string{}
		}
		matches = append(matches, Match{
			Document: Document{Text: content, Metadata: meta},
			Score:    CosineSimilarity(queryVec, DecodeVector(blob)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// CosineSimilarity computes the cosine similarity between two float32 vectors.
// Returns 0 if either vector is zero-length or zero-norm.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// EncodeVector converts a float32 slice to a little-endian byte blob.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector converts a little-endian byte blob back to a float32 slice.
func DecodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
