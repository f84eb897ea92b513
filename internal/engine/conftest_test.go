package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/malibio/nodespace-core-logic/internal/db/memory"
	"github.com/malibio/nodespace-core-logic/internal/domain"
	"github.com/malibio/nodespace-core-logic/internal/embedding"
)

// keywordEmbedder maps text onto a fixed vocabulary so similarity is
// word overlap. Deterministic stand-in for a real embedding model.
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
}

var vocabulary = []string{
	"marketing", "budget", "campaign", "venue", "hiring",
	"q3", "50,000", "60,000", "offsite", "planning",
}

func (m *keywordEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	lower := strings.ToLower(text)
	vec := make([]float32, len(vocabulary)+1)
	for i, w := range vocabulary {
		if strings.Contains(lower, w) {
			vec[i] = 1
		}
	}
	vec[len(vocabulary)] = 0.1 // keeps texts without vocabulary words searchable
	return domain.EmbeddingResult{Embedding: vec}, nil
}

func (m *keywordEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fixedGenerator struct {
	text string
	err  error
}

func (m *fixedGenerator) GenerateText(_ context.Context, _ string) (string, error) {
	return m.text, m.err
}

func testEngine(t *testing.T) (*Engine, *memory.Store, *keywordEmbedder) {
	t.Helper()
	store := memory.NewStore()
	emb := &keywordEmbedder{}
	e := New(store, emb, emb, &fixedGenerator{text: "generated"}, zap.NewNop(), Config{
		Cache: embedding.Config{
			Workers:      4,
			RatePerSec:   10000,
			RateBurst:    100,
			MaxRetries:   2,
			RetryBackoff: time.Millisecond,
		},
	})
	t.Cleanup(e.Close)
	return e, store, emb
}

// waitFor polls until the condition holds, failing the test on timeout.
// Background regeneration is asynchronous by contract.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
