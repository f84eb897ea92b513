// Package intent classifies queries to pick the embedding levels worth searching.
package intent

import (
	"strings"
	"unicode"
)

// Intent is the query classification driving level selection.
type Intent string

// Intent constants.
const (
	// Specific queries name exact things (quoted phrases, numbers, codes);
	// they match best against individual embeddings.
	Specific Intent = "specific"
	// Conceptual queries ask about a topic; contextual embeddings carry
	// the neighborhood signal short fragments lack.
	Conceptual Intent = "conceptual"
	// Broad queries survey whole areas; hierarchical and document
	// embeddings aggregate enough scope to answer them.
	Broad Intent = "broad"
	// Ambiguous queries give no usable signal; all levels are searched
	// and fused.
	Ambiguous Intent = "ambiguous"
)

// Classifier applies heuristic signals with configurable cutoffs.
// The thresholds are policy, not contract; defaults come from config.
type Classifier struct {
	broadMinWords    int
	specificMaxWords int
	broadMarkers     []string
}

// Config holds classification thresholds.
type Config struct {
	// BroadMinWords is the word count at or above which a marker-free
	// query counts as broad.
	BroadMinWords int
	// SpecificMaxWords caps the length of a quoted/numeric query that
	// still counts as specific.
	SpecificMaxWords int
	// BroadMarkers are leading phrases that signal survey-style queries.
	BroadMarkers []string
}

// DefaultBroadMarkers are the survey phrasings recognized out of the box.
func DefaultBroadMarkers() []string {
	return []string{
		"overview of", "summary of", "summarize", "everything about",
		"all about", "what happened", "tell me about",
	}
}

// NewClassifier creates a classifier, filling zero thresholds with defaults.
func NewClassifier(cfg Config) *Classifier {
	if cfg.BroadMinWords <= 0 {
		cfg.BroadMinWords = 8
	}
	if cfg.SpecificMaxWords <= 0 {
		cfg.SpecificMaxWords = 12
	}
	if len(cfg.BroadMarkers) == 0 {
		cfg.BroadMarkers = DefaultBroadMarkers()
	}
	markers := make([]string, len(cfg.BroadMarkers))
	for i, m := range cfg.BroadMarkers {
		markers[i] = strings.ToLower(m)
	}
	return &Classifier{
		broadMinWords:    cfg.BroadMinWords,
		specificMaxWords: cfg.SpecificMaxWords,
		broadMarkers:     markers,
	}
}

// Classify determines the query intent.
func (c *Classifier) Classify(query string) Intent {
	query = strings.TrimSpace(query)
	if query == "" {
		return Ambiguous
	}

	lower := strings.ToLower(query)
	words := strings.Fields(lower)

	for _, marker := range c.broadMarkers {
		if strings.Contains(lower, marker) {
			return Broad
		}
	}

	if (hasQuoted(query) || hasNumeric(words)) && len(words) <= c.specificMaxWords {
		return Specific
	}

	if len(words) >= c.broadMinWords {
		return Broad
	}
	if len(words) >= 2 {
		return Conceptual
	}
	return Ambiguous
}

// hasQuoted reports whether the query contains a quoted phrase.
func hasQuoted(query string) bool {
	return strings.Count(query, `"`) >= 2 || strings.Count(query, "'") >= 2
}

// hasNumeric reports whether any token carries a digit ($50,000, Q3, 2024-06-15).
func hasNumeric(words []string) bool {
	for _, w := range words {
		for _, r := range w {
			if unicode.IsDigit(r) {
				return true
			}
		}
	}
	return false
}
