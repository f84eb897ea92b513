// Package result defines the search hit value object.
package result

import "github.com/malibio/nodespace-core-logic/internal/domain/level"

// Result is a single search hit.
type Result struct {
	nodeID  string
	lvl     level.Level
	score   float64
	fused   float64
	content string
}

// New creates a search result. score is the raw similarity from the vector
// index; fused is the normalized score after multi-level merging.
func New(nodeID string, lvl level.Level, score, fused float64, content string) Result {
	return Result{nodeID: nodeID, lvl: lvl, score: score, fused: fused, content: content}
}

// NodeID returns the matched node identifier.
func (r *Result) NodeID() string { return r.nodeID }

// Level returns the embedding level that produced the match.
func (r *Result) Level() level.Level { return r.lvl }

// Score returns the raw similarity score.
func (r *Result) Score() float64 { return r.score }

// Fused returns the normalized fused score used for final ranking.
func (r *Result) Fused() float64 { return r.fused }

// Content returns the matched node content, when hydrated.
func (r *Result) Content() string { return r.content }

// WithContent returns a copy with hydrated content.
func (r *Result) WithContent(content string) Result {
	c := *r
	c.content = content
	return c
}
