package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/malibio/nodespace-core-logic/internal/domain"
	"github.com/malibio/nodespace-core-logic/internal/domain/answer"
	"github.com/malibio/nodespace-core-logic/internal/domain/level"
	"github.com/malibio/nodespace-core-logic/internal/domain/node"
	"github.com/malibio/nodespace-core-logic/internal/domain/search/intent"
	"github.com/malibio/nodespace-core-logic/internal/domain/search/result"
	"github.com/malibio/nodespace-core-logic/internal/hierarchy"
)

// --- Mocks ---

type mockRetriever struct {
	results []result.Result
	err     error
}

func (m *mockRetriever) Search(_ context.Context, _ string, _ int) ([]result.Result, intent.Intent, error) {
	return m.results, intent.Conceptual, m.err
}

type mockContexts struct {
	contexts map[string]hierarchy.Context
}

func (m *mockContexts) BuildContext(_ context.Context, id string) (hierarchy.Context, error) {
	nc, ok := m.contexts[id]
	if !ok {
		return hierarchy.Context{}, domain.ErrNotFound
	}
	return nc, nil
}

type mockNodes struct {
	nodes map[string]node.Node
}

func (m *mockNodes) GetNode(_ context.Context, id string) (node.Node, error) {
	n, ok := m.nodes[id]
	if !ok {
		return node.Node{}, domain.ErrNotFound
	}
	return n, nil
}

type mockGenerator struct {
	text       string
	err        error
	lastPrompt string
	delay      time.Duration
}

func (m *mockGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	m.lastPrompt = prompt
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.text, m.err
}

// --- Fixtures ---

func makeNode(t *testing.T, id, content string) node.Node {
	t.Helper()
	n, err := node.New(id, node.Text, content, "root", nil)
	if err != nil {
		t.Fatalf("node.New(%s): %v", id, err)
	}
	return n
}

func makeResult(id string, fused float64) result.Result {
	return result.New(id, level.Contextual, fused, fused, "")
}

func fixture(t *testing.T) (*mockRetriever, *mockContexts, *mockNodes) {
	t.Helper()
	retr := &mockRetriever{results: []result.Result{
		makeResult("a", 0.9),
		makeResult("b", 0.6),
	}}
	ctxs := &mockContexts{contexts: map[string]hierarchy.Context{
		"a": {NodeID: "a", Content: "marketing budget is $50,000", ParentContent: "Q3 planning"},
		"b": {NodeID: "b", Content: "venue booked for the offsite"},
	}}
	nodes := &mockNodes{nodes: map[string]node.Node{
		"a": makeNode(t, "a", "marketing budget is $50,000"),
		"b": makeNode(t, "b", "venue booked for the offsite"),
	}}
	return retr, ctxs, nodes
}

// --- Tests ---

func TestAnswer_AttributesSources(t *testing.T) {
	retr, ctxs, nodes := fixture(t)
	gen := &mockGenerator{text: "The marketing budget is $50,000."}
	svc := New(retr, ctxs, nodes, gen, Config{})

	resp, err := svc.Answer(context.Background(), "what is the marketing budget?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Answer != gen.text {
		t.Errorf("unexpected answer: %q", resp.Answer)
	}
	if resp.Degraded {
		t.Error("response must not be degraded")
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(resp.Sources))
	}
	src := resp.Sources[0]
	if src.NodeID != "a" || src.Score != 0.9 || src.Content == "" || src.Tokens == 0 {
		t.Errorf("incomplete source attribution: %+v", src)
	}
	if src.Type != node.Text {
		t.Errorf("expected source type text, got %s", src.Type)
	}
}

func TestAnswer_PromptCarriesHierarchyContext(t *testing.T) {
	retr, ctxs, nodes := fixture(t)
	gen := &mockGenerator{text: "ok"}
	svc := New(retr, ctxs, nodes, gen, Config{})

	if _, err := svc.Answer(context.Background(), "budget?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(gen.lastPrompt, "Q3 planning") {
		t.Error("prompt should include the parent section of a retrieved node")
	}
	if !strings.Contains(gen.lastPrompt, "Question: budget?") {
		t.Error("prompt should end with the question")
	}
}

func TestAnswer_NoContext(t *testing.T) {
	retr := &mockRetriever{}
	gen := &mockGenerator{text: "should not be called"}
	svc := New(retr, &mockContexts{}, &mockNodes{}, gen, Config{})

	resp, err := svc.Answer(context.Background(), "anything?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Answer != answer.NoContextAnswer {
		t.Errorf("expected the no-context answer, got %q", resp.Answer)
	}
	if resp.Confidence != 0 || len(resp.Sources) != 0 {
		t.Errorf("expected zero confidence and no sources: %+v", resp)
	}
	if gen.lastPrompt != "" {
		t.Error("generator must not run without context")
	}
}

func TestAnswer_DegradedOnGenerationFailure(t *testing.T) {
	retr, ctxs, nodes := fixture(t)
	gen := &mockGenerator{err: errors.New("provider down")}
	svc := New(retr, ctxs, nodes, gen, Config{})

	resp, err := svc.Answer(context.Background(), "budget?")
	if err != nil {
		t.Fatalf("generation failure must degrade, not error: %v", err)
	}
	if !resp.Degraded || resp.Answer != answer.UnavailableAnswer {
		t.Errorf("expected degraded response, got %+v", resp)
	}
}

func TestAnswer_DegradedOnTimeout(t *testing.T) {
	retr, ctxs, nodes := fixture(t)
	gen := &mockGenerator{text: "too late", delay: 100 * time.Millisecond}
	svc := New(retr, ctxs, nodes, gen, Config{Timeout: 5 * time.Millisecond})

	resp, err := svc.Answer(context.Background(), "budget?")
	if err != nil {
		t.Fatalf("timeout must degrade, not error: %v", err)
	}
	if !resp.Degraded {
		t.Errorf("expected degraded response, got %+v", resp)
	}
}

func TestAnswer_DegradedOnRetrievalFailure(t *testing.T) {
	retr := &mockRetriever{err: errors.New("index offline")}
	svc := New(retr, &mockContexts{}, &mockNodes{}, &mockGenerator{}, Config{})

	resp, err := svc.Answer(context.Background(), "budget?")
	if err != nil {
		t.Fatalf("retrieval failure must degrade, not error: %v", err)
	}
	if !resp.Degraded {
		t.Errorf("expected degraded response, got %+v", resp)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("degraded response must carry no sources, got %+v", resp.Sources)
	}
}

func TestAnswer_TokenBudgetDropsWeakestSources(t *testing.T) {
	long := strings.Repeat("margin notes and meeting detail ", 50)
	retr := &mockRetriever{results: []result.Result{
		makeResult("a", 0.9),
		makeResult("b", 0.5),
	}}
	ctxs := &mockContexts{contexts: map[string]hierarchy.Context{
		"a": {NodeID: "a", Content: long},
		"b": {NodeID: "b", Content: long},
	}}
	nodes := &mockNodes{nodes: map[string]node.Node{
		"a": makeNode(t, "a", long),
		"b": makeNode(t, "b", long),
	}}
	gen := &mockGenerator{text: "ok"}
	// Budget fits one block only.
	svc := New(retr, ctxs, nodes, gen, Config{TokenBudget: estimateTokens(long) + 10})

	resp, err := svc.Answer(context.Background(), "budget?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].NodeID != "a" {
		t.Fatalf("expected only the top source kept, got %+v", resp.Sources)
	}
}

func TestConfidence_Shape(t *testing.T) {
	svc := New(&mockRetriever{}, &mockContexts{}, &mockNodes{}, &mockGenerator{}, Config{TopN: 5})

	low := svc.confidence(0.3, 1, time.Millisecond)
	high := svc.confidence(0.9, 5, time.Millisecond)
	if high <= low {
		t.Errorf("confidence must grow with score and coverage: %f vs %f", low, high)
	}

	slow := svc.confidence(0.9, 5, 20*time.Second)
	if slow >= high {
		t.Errorf("latency must penalize confidence: %f vs %f", slow, high)
	}

	if c := svc.confidence(1.0, 10, time.Millisecond); c > 1 {
		t.Errorf("confidence must clamp to 1, got %f", c)
	}
	if c := svc.confidence(0, 0, time.Hour); c < 0 {
		t.Errorf("confidence must clamp to 0, got %f", c)
	}
}
