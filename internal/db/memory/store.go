// Package memory is an in-memory db.Store for tests and offline operation.
// Vector search is a brute-force cosine scan; fine for local corpora.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/malibio/nodespace-core-logic/internal/db"
	"github.com/malibio/nodespace-core-logic/internal/domain/level"
	"github.com/malibio/nodespace-core-logic/internal/domain/node"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Store holds nodes, root keys, and per-level vectors in maps.
type Store struct {
	mu      sync.RWMutex
	nodes   map[string]node.Node
	roots   map[string]string // root key -> node id
	vectors map[level.Level]map[string][]float32
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	vectors := make(map[level.Level]map[string][]float32, len(level.All()))
	for _, lvl := range level.All() {
		vectors[lvl] = make(map[string][]float32)
	}
	return &Store{
		nodes:   make(map[string]node.Node),
		roots:   make(map[string]string),
		vectors: vectors,
	}
}

// GetNode returns a node by id.
func (s *Store) GetNode(_ context.Context, id string) (node.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return node.Node{}, fmt.Errorf("node %s: %w", id, db.ErrNodeNotFound)
	}
	return n, nil
}

// StoreNode inserts a node.
func (s *Store) StoreNode(_ context.Context, n node.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID()] = n
	return nil
}

// UpdateNode replaces a node record, delete-then-insert. Vectors survive
// the replacement; staleness is the cache manager's concern, not storage's.
func (s *Store) UpdateNode(_ context.Context, n node.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[n.ID()]; !ok {
		return fmt.Errorf("node %s: %w", n.ID(), db.ErrNodeNotFound)
	}
	delete(s.nodes, n.ID())
	s.nodes[n.ID()] = n
	return nil
}

// DeleteNode removes a node and its vectors.
func (s *Store) DeleteNode(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, id)
	for _, lvl := range level.All() {
		delete(s.vectors[lvl], id)
	}
	return nil
}

// QueryByKey returns all nodes under the root bound to key.
func (s *Store) QueryByKey(_ context.Context, rootKey string) ([]node.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rootID, ok := s.roots[rootKey]
	if !ok {
		return nil, fmt.Errorf("root key %s: %w", rootKey, db.ErrKeyNotFound)
	}
	var out []node.Node
	for _, n := range s.nodes {
		if n.RootID() == rootID {
			out = append(out, n)
		}
	}
	sortByCreation(out)
	return out, nil
}

// ListNodes returns every stored node in creation order.
func (s *Store) ListNodes(_ context.Context) ([]node.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]node.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	sortByCreation(out)
	return out, nil
}

// SetRootKey binds a root key to a node id.
func (s *Store) SetRootKey(_ context.Context, key, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roots[key] = nodeID
	return nil
}

// RootByKey resolves a root key.
func (s *Store) RootByKey(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.roots[key]
	if !ok {
		return "", fmt.Errorf("root key %s: %w", key, db.ErrKeyNotFound)
	}
	return id, nil
}

// ListRootKeys returns a copy of all root key bindings.
func (s *Store) ListRootKeys(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.roots))
	for k, v := range s.roots {
		out[k] = v
	}
	return out, nil
}

// SetVector stores a node's vector at the given level.
func (s *Store) SetVector(_ context.Context, nodeID string, lvl level.Level, vec []float32) error {
	if !lvl.IsValid() {
		return fmt.Errorf("invalid level %q", lvl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]float32, len(vec))
	copy(cp, vec)
	s.vectors[lvl][nodeID] = cp
	return nil
}

// VectorSearch scans all vectors at the level and returns the top-k by
// cosine similarity.
func (s *Store) VectorSearch(
	_ context.Context, lvl level.Level, query []float32, k int,
) ([]db.Hit, error) {
	if !lvl.IsValid() {
		return nil, fmt.Errorf("invalid level %q", lvl)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]db.Hit, 0, len(s.vectors[lvl]))
	for id, vec := range s.vectors[lvl] {
		score := cosine(query, vec)
		content := ""
		if n, ok := s.nodes[id]; ok {
			content = n.Content()
		}
		hits = append(hits, db.Hit{ID: id, Score: score, Content: content})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// WaitForReady returns immediately.
func (s *Store) WaitForReady(_ context.Context, _ time.Duration) error { return nil }

// cosine computes cosine similarity mapped into [0,1].
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return (sim + 1) / 2
}

func sortByCreation(nodes []node.Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].CreatedAt().Equal(nodes[j].CreatedAt()) {
			return nodes[i].ID() < nodes[j].ID()
		}
		return nodes[i].CreatedAt().Before(nodes[j].CreatedAt())
	})
}
