// Package db defines the storage collaborator contract. The engine owns
// hierarchy and cache coherence; implementations own persistence and the
// vector index.
package db

import (
	"context"
	"time"

	"github.com/malibio/nodespace-core-logic/internal/domain/level"
	"github.com/malibio/nodespace-core-logic/internal/domain/node"
)

// Store is the storage facade combining all sub-interfaces. Consumers use
// the narrow sub-interfaces.
type Store interface {
	NodeStore
	VectorStore
	Pinger
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// NodeStore persists nodes and the root-key index.
// UpdateNode has delete-then-insert semantics; identity is preserved
// across the two operations.
type NodeStore interface {
	GetNode(ctx context.Context, id string) (node.Node, error)
	StoreNode(ctx context.Context, n node.Node) error
	UpdateNode(ctx context.Context, n node.Node) error
	DeleteNode(ctx context.Context, id string) error
	// QueryByKey returns all nodes under the root identified by key,
	// the root node included.
	QueryByKey(ctx context.Context, rootKey string) ([]node.Node, error)
	// ListNodes returns every stored node (hierarchy rebuild at startup).
	ListNodes(ctx context.Context) ([]node.Node, error)
	// SetRootKey binds an identifying key (e.g. a date) to a root node id.
	SetRootKey(ctx context.Context, key, nodeID string) error
	// RootByKey resolves a root key to its node id. ErrKeyNotFound when absent.
	RootByKey(ctx context.Context, key string) (string, error)
	// ListRootKeys returns all key → root node id bindings.
	ListRootKeys(ctx context.Context) (map[string]string, error)
}

// Hit is one vector search match.
type Hit struct {
	ID      string
	Score   float64 // similarity in [0,1], higher is better
	Content string
}

// VectorStore persists per-level embedding vectors and serves
// nearest-neighbor lookups over them.
type VectorStore interface {
	SetVector(ctx context.Context, nodeID string, lvl level.Level, vec []float32) error
	VectorSearch(ctx context.Context, lvl level.Level, query []float32, k int) ([]Hit, error)
}

// Pinger checks storage connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
