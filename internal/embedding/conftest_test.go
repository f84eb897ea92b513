package embedding

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/malibio/nodespace-core-logic/internal/domain"
	"github.com/malibio/nodespace-core-logic/internal/domain/level"
	"github.com/malibio/nodespace-core-logic/internal/domain/node"
	"github.com/malibio/nodespace-core-logic/internal/hierarchy"
)

// --- Mocks ---

type mockNodes struct {
	mu    sync.Mutex
	nodes map[string]node.Node
}

func newMockNodes() *mockNodes {
	return &mockNodes{nodes: make(map[string]node.Node)}
}

func (m *mockNodes) put(t *testing.T, id, content, rootID string) {
	t.Helper()
	n, err := node.New(id, node.Text, content, rootID, nil)
	if err != nil {
		t.Fatalf("node.New(%s): %v", id, err)
	}
	m.mu.Lock()
	m.nodes[id] = n
	m.mu.Unlock()
}

func (m *mockNodes) GetNode(_ context.Context, id string) (node.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	if !ok {
		return node.Node{}, domain.ErrNotFound
	}
	return n, nil
}

type mockVectors struct {
	mu    sync.Mutex
	calls int
	last  map[Key][]float32
}

func newMockVectors() *mockVectors {
	return &mockVectors{last: make(map[Key][]float32)}
}

func (m *mockVectors) SetVector(_ context.Context, nodeID string, lvl level.Level, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.last[Key{NodeID: nodeID, Level: lvl}] = vec
	return nil
}

func (m *mockVectors) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockEmbedder struct {
	mu     sync.Mutex
	calls  int
	err    error
	onCall func() // runs inside Embed, before returning
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	m.calls++
	hook := m.onCall
	err := m.err
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: []float32{float32(len(text)), 1}, TotalTokens: len(text) / 4}, nil
}

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockEmbedder) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// --- Fixtures ---

// testTree builds:
//
//	root
//	├── a
//	│   └── c
//	└── b
func testTree(t *testing.T) (*mockNodes, *hierarchy.Index) {
	t.Helper()
	nodes := newMockNodes()
	nodes.put(t, "root", "project notes", "root")
	nodes.put(t, "a", "budget planning", "root")
	nodes.put(t, "b", "hiring plan", "root")
	nodes.put(t, "c", "q3 numbers", "root")

	ix := hierarchy.NewIndex()
	ix.AttachRoot("notes", "root")
	for _, att := range []struct{ id, parent string }{
		{"a", "root"}, {"b", "root"}, {"c", "a"},
	} {
		if _, err := ix.Attach(att.id, att.parent, ""); err != nil {
			t.Fatalf("attach %s: %v", att.id, err)
		}
	}
	return nodes, ix
}

func testManager(t *testing.T, nodes *mockNodes, ix *hierarchy.Index, emb domain.Embedder) (*Manager, *mockVectors) {
	t.Helper()
	vecs := newMockVectors()
	m := NewManager(nodes, ix, vecs, emb, zap.NewNop(), Config{Workers: 1})
	t.Cleanup(m.Close)
	return m, vecs
}
