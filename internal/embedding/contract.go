// Package embedding owns the multi-level embedding cache: fingerprint-based
// validity, dependency fan-out invalidation, and deduplicated background
// regeneration.
package embedding

import (
	"context"

	"github.com/malibio/nodespace-core-logic/internal/domain/level"
	"github.com/malibio/nodespace-core-logic/internal/domain/node"
)

// NodeReader loads current node content.
type NodeReader interface {
	GetNode(ctx context.Context, id string) (node.Node, error)
}

// Hierarchy is the adjacency the cache consults for dependencies.
type Hierarchy interface {
	Parent(id string) (string, bool)
	Siblings(id string) []string
	Children(id string) []string
	Ancestors(id string) []string
	Subtree(id string) []string
	RootOf(id string) string
}

// VectorWriter persists vectors into the storage collaborator's index.
type VectorWriter interface {
	SetVector(ctx context.Context, nodeID string, lvl level.Level, vec []float32) error
}
