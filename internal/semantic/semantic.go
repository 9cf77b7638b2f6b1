// internal/semantic/semantic.go
package semantic

import (
	"context"
)

// Document kinds partition the index within one case namespace.
const (
	KindScene   = "scene"
	KindPersona = "persona"
	KindPolicy  = "policy"
)

// Document is one indexable passage with flat string metadata.
type Document struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Match is one ranked search hit.
type Match struct {
	Document
	Score float64 `json:"score"`
}

// Searcher is the retrieval capability consumed by the pipeline. Every call
// names the case explicitly; there is no process-wide current case.
type Searcher interface {
	Search(ctx context.Context, caseID, kind, query string, k int) ([]Match, error)
}

// Embedder turns text into a vector. taskType distinguishes query embeddings
// from document embeddings for models that care.
type Embedder interface {
	Embed(ctx context.Context, text, taskType string) ([]float32, error)
}
