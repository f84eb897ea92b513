package retrieval

import (
	"sort"

	"github.com/malibio/nodespace-core-logic/internal/db"
	"github.com/malibio/nodespace-core-logic/internal/domain/level"
	"github.com/malibio/nodespace-core-logic/internal/domain/search/result"
)

// fuseLevels merges per-level rankings into one list. Scores are normalized
// within each level (levels score on different scales: a document embedding
// matches diffusely, an individual one sharply), weighted, and deduplicated
// by node keeping the strongest signal.
func fuseLevels(byLevel map[level.Level][]db.Hit, weights map[level.Level]float64, topK int) []result.Result {
	best := make(map[string]result.Result)

	for lvl, hits := range byLevel {
		if len(hits) == 0 {
			continue
		}
		max := hits[0].Score
		for _, h := range hits[1:] {
			if h.Score > max {
				max = h.Score
			}
		}
		if max <= 0 {
			continue
		}

		w := weights[lvl]
		if w == 0 {
			w = 1
		}
		for _, h := range hits {
			fused := w * (h.Score / max)
			if prev, ok := best[h.ID]; ok && prev.Fused() >= fused {
				continue
			}
			best[h.ID] = result.New(h.ID, lvl, h.Score, fused, h.Content)
		}
	}

	results := make([]result.Result, 0, len(best))
	for _, r := range best {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Fused() != results[j].Fused() {
			return results[i].Fused() > results[j].Fused()
		}
		return results[i].NodeID() < results[j].NodeID() // stable order for ties
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results
}
