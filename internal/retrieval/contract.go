// Package retrieval turns a text query into ranked node hits: classify the
// query, search the embedding levels it calls for, and fuse the per-level
// rankings into one list.
package retrieval

import (
	"context"

	"github.com/malibio/nodespace-core-logic/internal/db"
	"github.com/malibio/nodespace-core-logic/internal/domain"
	"github.com/malibio/nodespace-core-logic/internal/domain/level"
)

// Searcher runs a KNN query against one embedding level's vector index.
type Searcher interface {
	VectorSearch(ctx context.Context, lvl level.Level, query []float32, k int) ([]db.Hit, error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
