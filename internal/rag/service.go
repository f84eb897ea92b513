package rag

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/malibio/nodespace-core-logic/internal/domain/answer"
	"github.com/malibio/nodespace-core-logic/internal/domain/search/result"
	"github.com/malibio/nodespace-core-logic/internal/logger"
)

// Config holds answering policy knobs.
type Config struct {
	// TopN is how many retrieved nodes feed the prompt.
	TopN int
	// TokenBudget caps the context portion of the prompt.
	TokenBudget int
	// Timeout bounds the generation call.
	Timeout time.Duration
	// ScoreWeight and CountWeight shape the confidence estimate; see
	// confidence().
	ScoreWeight float64
	CountWeight float64
	// LatencyPenalty is confidence subtracted per second of elapsed time
	// beyond the first.
	LatencyPenalty float64
}

// ApplyDefaults fills zero fields with safe defaults.
func (c *Config) ApplyDefaults() {
	if c.TopN <= 0 {
		c.TopN = 5
	}
	if c.TokenBudget <= 0 {
		c.TokenBudget = 2000
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.ScoreWeight <= 0 {
		c.ScoreWeight = 0.7
	}
	if c.CountWeight <= 0 {
		c.CountWeight = 0.3
	}
	if c.LatencyPenalty <= 0 {
		c.LatencyPenalty = 0.02
	}
}

// Service answers questions over the node store.
type Service struct {
	retriever Retriever
	contexts  ContextBuilder
	nodes     NodeReader
	gen       Generator
	cfg       Config
}

// New creates an answering service.
func New(retriever Retriever, contexts ContextBuilder, nodes NodeReader, gen Generator, cfg Config) *Service {
	cfg.ApplyDefaults()
	return &Service{retriever: retriever, contexts: contexts, nodes: nodes, gen: gen, cfg: cfg}
}

// Answer retrieves context for the question, generates an answer, and
// attributes the sources that informed it. Provider failures on either
// side — query vectorization, retrieval, generation, timeout — yield the
// fixed degraded response, never an error.
func (s *Service) Answer(ctx context.Context, question string) (answer.Response, error) {
	start := time.Now()

	results, _, err := s.retriever.Search(ctx, question, s.cfg.TopN)
	if err != nil {
		elapsed := time.Since(start)
		logger.FromContext(ctx).Warn("retrieval failed, returning degraded answer",
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return answer.DegradedResponse(elapsed), nil
	}
	if len(results) == 0 {
		return answer.Response{
			Answer:  answer.NoContextAnswer,
			Elapsed: time.Since(start),
			Sources: []answer.Source{},
		}, nil
	}

	blocks, sources := s.assemble(ctx, results)
	blocks = fitBudget(blocks, s.cfg.TokenBudget)
	sources = sources[:len(blocks)]

	genCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	text, err := s.gen.GenerateText(genCtx, buildPrompt(question, blocks))
	elapsed := time.Since(start)
	if err != nil {
		logger.FromContext(ctx).Warn("generation failed, returning degraded answer",
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return answer.DegradedResponse(elapsed), nil
	}

	return answer.Response{
		Answer:     text,
		Confidence: s.confidence(results[0].Fused(), len(sources), elapsed),
		Elapsed:    elapsed,
		Sources:    sources,
	}, nil
}

// assemble builds prompt blocks and source attributions in rank order.
// A node that vanished between retrieval and assembly is skipped.
func (s *Service) assemble(ctx context.Context, results []result.Result) ([]block, []answer.Source) {
	blocks := make([]block, 0, len(results))
	sources := make([]answer.Source, 0, len(results))

	for i := range results {
		r := &results[i]
		n, err := s.nodes.GetNode(ctx, r.NodeID())
		if err != nil {
			continue
		}

		nc, err := s.contexts.BuildContext(ctx, r.NodeID())
		if err != nil {
			continue
		}
		blk := renderBlock(nc)
		blocks = append(blocks, blk)
		sources = append(sources, answer.Source{
			NodeID:       n.ID(),
			Content:      n.Content(),
			Score:        r.Fused(),
			Tokens:       blk.tokens,
			Type:         n.Type(),
			LastModified: n.UpdatedAt(),
		})
	}
	return blocks, sources
}

// confidence blends the top retrieval score with source coverage and decays
// with latency. Monotonic in both score and count, clamped to [0, 1].
func (s *Service) confidence(topScore float64, sourceCount int, elapsed time.Duration) float64 {
	coverage := float64(sourceCount) / float64(s.cfg.TopN)
	if coverage > 1 {
		coverage = 1
	}
	c := s.cfg.ScoreWeight*topScore + s.cfg.CountWeight*coverage

	if extra := elapsed.Seconds() - 1; extra > 0 {
		c -= extra * s.cfg.LatencyPenalty
	}

	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
