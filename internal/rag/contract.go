// Package rag answers natural-language questions over the node store:
// retrieve, assemble hierarchy-aware context under a token budget, generate,
// attribute sources.
package rag

import (
	"context"

	"github.com/malibio/nodespace-core-logic/internal/domain/node"
	"github.com/malibio/nodespace-core-logic/internal/domain/search/intent"
	"github.com/malibio/nodespace-core-logic/internal/domain/search/result"
	"github.com/malibio/nodespace-core-logic/internal/hierarchy"
)

// Retriever supplies ranked node hits for a question.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]result.Result, intent.Intent, error)
}

// ContextBuilder assembles the neighborhood snapshot for a retrieved node.
type ContextBuilder interface {
	BuildContext(ctx context.Context, id string) (hierarchy.Context, error)
}

// NodeReader loads full node records for source attribution.
type NodeReader interface {
	GetNode(ctx context.Context, id string) (node.Node, error)
}

// Generator produces the answer text from the assembled prompt.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}
