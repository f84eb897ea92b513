package retrieval

import (
	"context"
	"fmt"
	"sync"

	"github.com/malibio/nodespace-core-logic/internal/db"
	"github.com/malibio/nodespace-core-logic/internal/domain/level"
	"github.com/malibio/nodespace-core-logic/internal/domain/search/intent"
	"github.com/malibio/nodespace-core-logic/internal/domain/search/result"
)

// Config holds retrieval policy knobs.
type Config struct {
	// TopK is the default result count when the caller passes 0.
	TopK int
	// MinScore drops fused results below the threshold. No result above
	// the threshold yields an empty list, not an error.
	MinScore float64
	// ConceptualFloor widens a conceptual search to individual embeddings
	// when the contextual level alone returns fewer results than this.
	ConceptualFloor int
	// Weights scale per-level normalized scores during fusion. A missing
	// level weighs 1.
	Weights map[level.Level]float64
	// Classify configures the query intent heuristics.
	Classify intent.Config
}

// ApplyDefaults fills zero fields with safe defaults.
func (c *Config) ApplyDefaults() {
	if c.TopK <= 0 {
		c.TopK = 10
	}
	if c.ConceptualFloor <= 0 {
		c.ConceptualFloor = 3
	}
}

// Service routes queries across embedding levels by intent and fuses the
// per-level rankings.
type Service struct {
	store      Searcher
	embed      Embedder
	classifier *intent.Classifier
	cfg        Config
}

// New creates a retrieval service.
func New(store Searcher, embed Embedder, cfg Config) *Service {
	cfg.ApplyDefaults()
	return &Service{
		store:      store,
		embed:      embed,
		classifier: intent.NewClassifier(cfg.Classify),
		cfg:        cfg,
	}
}

// Classify exposes the intent decision for callers that report it.
func (s *Service) Classify(query string) intent.Intent {
	return s.classifier.Classify(query)
}

// Search classifies the query, embeds it once, searches the levels the
// intent calls for, and returns fused results best-first.
func (s *Service) Search(ctx context.Context, query string, topK int) ([]result.Result, intent.Intent, error) {
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	qi := s.classifier.Classify(query)

	emb, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, qi, fmt.Errorf("vectorize query: %w", err)
	}

	byLevel, err := s.searchLevels(ctx, levelsFor(qi), emb.Embedding, topK)
	if err != nil {
		return nil, qi, err
	}

	// A conceptual query that finds too little context widens to exact
	// matches rather than returning a thin list.
	if qi == intent.Conceptual && hitCount(byLevel) < s.cfg.ConceptualFloor {
		widened, err := s.searchLevels(ctx, []level.Level{level.Individual}, emb.Embedding, topK)
		if err != nil {
			return nil, qi, err
		}
		byLevel[level.Individual] = widened[level.Individual]
	}

	results := fuseLevels(byLevel, s.cfg.Weights, topK)
	if s.cfg.MinScore > 0 {
		filtered := results[:0]
		for _, r := range results {
			if r.Fused() >= s.cfg.MinScore {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	return results, qi, nil
}

// levelsFor maps an intent to the embedding levels worth querying.
func levelsFor(qi intent.Intent) []level.Level {
	switch qi {
	case intent.Specific:
		return []level.Level{level.Individual}
	case intent.Conceptual:
		return []level.Level{level.Contextual}
	case intent.Broad:
		return []level.Level{level.Hierarchical, level.Document}
	default:
		return level.All()
	}
}

// searchLevels queries the given levels concurrently with the same vector.
func (s *Service) searchLevels(ctx context.Context, levels []level.Level, vec []float32, k int) (map[level.Level][]db.Hit, error) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	byLevel := make(map[level.Level][]db.Hit, len(levels))

	for _, lvl := range levels {
		wg.Add(1)
		go func(lvl level.Level) {
			defer wg.Done()
			hits, err := s.store.VectorSearch(ctx, lvl, vec, k)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("search level %s: %w", lvl, err)
				}
				return
			}
			byLevel[lvl] = hits
		}(lvl)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return byLevel, nil
}

func hitCount(byLevel map[level.Level][]db.Hit) int {
	n := 0
	for _, hits := range byLevel {
		n += len(hits)
	}
	return n
}
