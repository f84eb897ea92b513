package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/malibio/nodespace-core-logic/internal/domain"
	"github.com/malibio/nodespace-core-logic/internal/domain/level"
)

func TestGetOrGenerate_CachesByFingerprint(t *testing.T) {
	nodes, ix := testTree(t)
	emb := &mockEmbedder{}
	m, vecs := testManager(t, nodes, ix, emb)

	ctx := context.Background()
	v1, err := m.GetOrGenerate(ctx, "a", level.Individual)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	v2, err := m.GetOrGenerate(ctx, "a", level.Individual)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if emb.callCount() != 1 {
		t.Errorf("expected 1 embed call, got %d", emb.callCount())
	}
	if len(v1) == 0 || len(v2) != len(v1) {
		t.Errorf("expected identical cached vector, got %v / %v", v1, v2)
	}
	if vecs.callCount() != 1 {
		t.Errorf("expected 1 vector persist, got %d", vecs.callCount())
	}
}

func TestGetOrGenerate_ContentChangeRegenerates(t *testing.T) {
	nodes, ix := testTree(t)
	emb := &mockEmbedder{}
	m, _ := testManager(t, nodes, ix, emb)

	ctx := context.Background()
	if _, err := m.GetOrGenerate(ctx, "a", level.Individual); err != nil {
		t.Fatalf("first call: %v", err)
	}

	nodes.put(t, "a", "budget planning v2", "root")
	if _, err := m.GetOrGenerate(ctx, "a", level.Individual); err != nil {
		t.Fatalf("after edit: %v", err)
	}
	if emb.callCount() != 2 {
		t.Errorf("expected regeneration after content change, got %d embed calls", emb.callCount())
	}
}

func TestGetOrGenerate_SiblingEditInvalidatesContextual(t *testing.T) {
	nodes, ix := testTree(t)
	emb := &mockEmbedder{}
	m, _ := testManager(t, nodes, ix, emb)

	ctx := context.Background()
	if _, err := m.GetOrGenerate(ctx, "a", level.Contextual); err != nil {
		t.Fatalf("first call: %v", err)
	}

	// b is a's sibling; its content feeds a's contextual embedding.
	nodes.put(t, "b", "hiring plan revised", "root")
	if _, err := m.GetOrGenerate(ctx, "a", level.Contextual); err != nil {
		t.Fatalf("after sibling edit: %v", err)
	}
	if emb.callCount() != 2 {
		t.Errorf("expected contextual regeneration after sibling edit, got %d embed calls", emb.callCount())
	}

	// Individual level ignores siblings entirely.
	if _, err := m.GetOrGenerate(ctx, "a", level.Individual); err != nil {
		t.Fatalf("individual: %v", err)
	}
	nodes.put(t, "b", "hiring plan v3", "root")
	if _, err := m.GetOrGenerate(ctx, "a", level.Individual); err != nil {
		t.Fatalf("individual after sibling edit: %v", err)
	}
	if emb.callCount() != 3 {
		t.Errorf("individual level should not depend on siblings, got %d embed calls", emb.callCount())
	}
}

func TestGetOrGenerate_StaleFallbackOnEmbedFailure(t *testing.T) {
	nodes, ix := testTree(t)
	emb := &mockEmbedder{}
	m, _ := testManager(t, nodes, ix, emb)

	ctx := context.Background()
	v1, err := m.GetOrGenerate(ctx, "a", level.Individual)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}

	nodes.put(t, "a", "budget planning v2", "root")
	emb.fail(errors.New("provider down"))

	v2, err := m.GetOrGenerate(ctx, "a", level.Individual)
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if len(v2) != len(v1) || v2[0] != v1[0] {
		t.Errorf("expected stale vector %v, got %v", v1, v2)
	}
}

func TestGetOrGenerate_ErrorWithoutCache(t *testing.T) {
	nodes, ix := testTree(t)
	emb := &mockEmbedder{}
	emb.fail(errors.New("provider down"))
	m, _ := testManager(t, nodes, ix, emb)

	_, err := m.GetOrGenerate(context.Background(), "a", level.Individual)
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
}

func TestGetOrGenerate_UnknownNode(t *testing.T) {
	nodes, ix := testTree(t)
	m, _ := testManager(t, nodes, ix, &mockEmbedder{})

	_, err := m.GetOrGenerate(context.Background(), "ghost", level.Individual)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCommit_SupersededByConcurrentEdit(t *testing.T) {
	nodes, ix := testTree(t)
	emb := &mockEmbedder{}
	// Edit the node while its embedding is in flight: the commit fingerprint
	// recheck must abandon the write.
	emb.onCall = func() { nodes.put(t, "a", "edited mid-flight", "root") }
	m, vecs := testManager(t, nodes, ix, emb)

	if _, err := m.GetOrGenerate(context.Background(), "a", level.Individual); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vecs.callCount() != 0 {
		t.Errorf("superseded embedding must not be persisted, got %d writes", vecs.callCount())
	}
}

func TestValid_TracksContentChanges(t *testing.T) {
	nodes, ix := testTree(t)
	m, _ := testManager(t, nodes, ix, &mockEmbedder{})

	ctx := context.Background()
	if _, err := m.GetOrGenerate(ctx, "a", level.Individual); err != nil {
		t.Fatalf("generate: %v", err)
	}
	ok, err := m.Valid(ctx, "a", level.Individual)
	if err != nil || !ok {
		t.Fatalf("expected valid record, got ok=%v err=%v", ok, err)
	}

	nodes.put(t, "a", "changed", "root")
	ok, err = m.Valid(ctx, "a", level.Individual)
	if err != nil || ok {
		t.Fatalf("expected stale record after edit, got ok=%v err=%v", ok, err)
	}
}

func TestDependencyEdges_FanOut(t *testing.T) {
	_, ix := testTree(t)

	has := func(edges []Edge, id string, lvl level.Level) bool {
		for _, e := range edges {
			if e.Dependent == id && e.Level == lvl {
				return true
			}
		}
		return false
	}

	edges := dependencyEdges(ix, "a")
	for _, want := range []struct {
		id  string
		lvl level.Level
	}{
		{"a", level.Individual},
		{"a", level.Contextual},
		{"b", level.Contextual},    // sibling
		{"c", level.Contextual},    // child
		{"c", level.Hierarchical},  // descendant
		{"root", level.Document},   // same tree
		{"b", level.Document},      // same tree
	} {
		if !has(edges, want.id, want.lvl) {
			t.Errorf("missing edge %s/%s", want.id, want.lvl)
		}
	}

	if has(edges, "b", level.Hierarchical) {
		t.Error("sibling must not be invalidated at hierarchical level")
	}
	if has(edges, "root", level.Individual) {
		t.Error("individual level of other nodes must not be invalidated")
	}
}
