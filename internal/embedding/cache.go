package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/malibio/nodespace-core-logic/internal/domain"
	"github.com/malibio/nodespace-core-logic/internal/domain/level"
	"github.com/malibio/nodespace-core-logic/internal/logger"
	"github.com/malibio/nodespace-core-logic/internal/metrics"
)

// Key identifies one cached embedding: a node at one abstraction level.
type Key struct {
	NodeID string
	Level  level.Level
}

func (k Key) String() string { return k.NodeID + "/" + string(k.Level) }

// record is one cache entry. A record whose fingerprint no longer matches
// the fingerprint recomputed from current state is stale but kept: a stale
// vector is still a usable answer when the embedder is down.
type record struct {
	fp        string
	vector    []float32
	updatedAt time.Time
}

// Manager owns the multi-level embedding cache: fingerprint validity checks,
// dependency fan-out on content changes, and handoff to the background
// regeneration pool.
type Manager struct {
	embedder domain.Embedder
	vectors  VectorWriter
	h        Hierarchy
	synth    *synthesizer

	mu      sync.Mutex
	records map[Key]record

	pool *pool
}

// Config bounds the background regeneration pool.
type Config struct {
	Workers      int
	RatePerSec   float64
	RateBurst    int
	MaxRetries   int
	RetryBackoff time.Duration
}

// ApplyDefaults fills zero fields with safe defaults.
func (c *Config) ApplyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 10
	}
	if c.RateBurst <= 0 {
		c.RateBurst = c.Workers
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
}

// NewManager wires the cache to its collaborators and starts the
// regeneration pool.
func NewManager(nodes NodeReader, h Hierarchy, vectors VectorWriter, embedder domain.Embedder, log *zap.Logger, cfg Config) *Manager {
	cfg.ApplyDefaults()
	m := &Manager{
		embedder: embedder,
		vectors:  vectors,
		h:        h,
		synth:    &synthesizer{nodes: nodes, h: h},
		records:  make(map[Key]record),
	}
	m.pool = newPool(cfg, m.refresh, log)
	return m
}

// GetOrGenerate returns a vector for the node at the given level. A cached
// record with a matching fingerprint is returned as-is; otherwise the text
// is synthesized and embedded synchronously. If embedding fails and a stale
// record exists, the stale vector is returned instead of the error.
func (m *Manager) GetOrGenerate(ctx context.Context, nodeID string, lvl level.Level) ([]float32, error) {
	k := Key{NodeID: nodeID, Level: lvl}

	inputs, text, err := m.synth.gather(ctx, nodeID, lvl)
	if err != nil {
		return nil, fmt.Errorf("gather %s: %w", k, err)
	}
	fp := fingerprint(lvl, inputs)

	m.mu.Lock()
	rec, cached := m.records[k]
	m.mu.Unlock()

	if cached && rec.fp == fp {
		metrics.EmbeddingCacheTotal.WithLabelValues(string(lvl), "hit").Inc()
		return rec.vector, nil
	}
	metrics.EmbeddingCacheTotal.WithLabelValues(string(lvl), "miss").Inc()

	res, err := m.embedder.Embed(ctx, text)
	if err != nil {
		if cached {
			logger.FromContext(ctx).Warn("embedding failed, serving stale vector",
				zap.String("node_id", nodeID),
				zap.String("level", string(lvl)),
				zap.Error(err))
			metrics.EmbeddingCacheTotal.WithLabelValues(string(lvl), "stale").Inc()
			m.pool.Enqueue(k)
			return rec.vector, nil
		}
		return nil, fmt.Errorf("embed %s: %w", k, errors.Join(domain.ErrEmbedding, err))
	}

	if err := m.commit(ctx, k, fp, res.Embedding); err != nil {
		return nil, err
	}
	return res.Embedding, nil
}

// Valid reports whether the cached vector for the key still matches current
// content. Used by tests and the health surface; retrieval goes through
// GetOrGenerate.
func (m *Manager) Valid(ctx context.Context, nodeID string, lvl level.Level) (bool, error) {
	inputs, _, err := m.synth.gather(ctx, nodeID, lvl)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	rec, ok := m.records[Key{NodeID: nodeID, Level: lvl}]
	m.mu.Unlock()
	return ok && rec.fp == fingerprint(lvl, inputs), nil
}

// Invalidate fans a content change in nodeID out to every embedding that
// depends on it and queues background regeneration for each. Records are not
// dropped: fingerprints make them stale, and stale vectors serve as fallback
// until the rebuild lands.
func (m *Manager) Invalidate(nodeID string) {
	for _, e := range dependencyEdges(m.h, nodeID) {
		m.pool.Enqueue(Key{NodeID: e.Dependent, Level: e.Level})
	}
}

// Forget drops all cached levels for a deleted node.
func (m *Manager) Forget(nodeID string) {
	m.mu.Lock()
	for _, lvl := range level.All() {
		delete(m.records, Key{NodeID: nodeID, Level: lvl})
	}
	m.mu.Unlock()
}

// Close drains the regeneration pool.
func (m *Manager) Close() { m.pool.Close() }

// refresh is the background regeneration body: synthesize, embed, commit.
// Unlike GetOrGenerate it never falls back to stale vectors; a failure is
// returned so the pool can retry.
func (m *Manager) refresh(ctx context.Context, k Key) error {
	start := time.Now()

	inputs, text, err := m.synth.gather(ctx, k.NodeID, k.Level)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			m.Forget(k.NodeID) // deleted between enqueue and run
			return nil
		}
		metrics.EmbeddingRegenerationsTotal.WithLabelValues(string(k.Level), "error").Inc()
		return fmt.Errorf("gather %s: %w", k, err)
	}
	fp := fingerprint(k.Level, inputs)

	m.mu.Lock()
	rec, ok := m.records[k]
	m.mu.Unlock()
	if ok && rec.fp == fp {
		metrics.EmbeddingRegenerationsTotal.WithLabelValues(string(k.Level), "superseded").Inc()
		return nil // someone already rebuilt it
	}

	res, err := m.embedder.Embed(ctx, text)
	if err != nil {
		metrics.EmbeddingRegenerationsTotal.WithLabelValues(string(k.Level), "error").Inc()
		return fmt.Errorf("embed %s: %w", k, err)
	}

	if err := m.commit(ctx, k, fp, res.Embedding); err != nil {
		metrics.EmbeddingRegenerationsTotal.WithLabelValues(string(k.Level), "error").Inc()
		return err
	}
	metrics.EmbeddingRegenerationsTotal.WithLabelValues(string(k.Level), "ok").Inc()
	metrics.EmbeddingRegenerationDuration.WithLabelValues(string(k.Level)).Observe(time.Since(start).Seconds())
	return nil
}

// commit persists the vector and records the fingerprint. Before writing it
// re-derives the fingerprint from current state: if content moved underneath
// the embed call, this write is abandoned and the rerun already queued for
// the newer content wins.
func (m *Manager) commit(ctx context.Context, k Key, fp string, vec []float32) error {
	inputs, _, err := m.synth.gather(ctx, k.NodeID, k.Level)
	if err != nil {
		return fmt.Errorf("recheck %s: %w", k, err)
	}
	if fingerprint(k.Level, inputs) != fp {
		metrics.EmbeddingRegenerationsTotal.WithLabelValues(string(k.Level), "superseded").Inc()
		return nil
	}

	if err := m.vectors.SetVector(ctx, k.NodeID, k.Level, vec); err != nil {
		return fmt.Errorf("persist vector %s: %w", k, err)
	}

	m.mu.Lock()
	m.records[k] = record{fp: fp, vector: vec, updatedAt: time.Now()}
	m.mu.Unlock()
	return nil
}
