// Package level defines the embedding scopes maintained for every node.
package level

// Level is the semantic scope of text used to embed a node.
type Level string

// Embedding level constants, narrowest first.
const (
	// Individual embeds the raw node content only.
	Individual Level = "individual"
	// Contextual embeds the content enriched with parent and sibling text.
	Contextual Level = "contextual"
	// Hierarchical embeds the content joined with the full ancestor path.
	Hierarchical Level = "hierarchical"
	// Document embeds a representative summary of the whole root subtree.
	Document Level = "document"
)

// All returns every level, narrowest first.
func All() []Level {
	return []Level{Individual, Contextual, Hierarchical, Document}
}

// IsValid checks if the level is one of the supported values.
func (l Level) IsValid() bool {
	return l == Individual || l == Contextual || l == Hierarchical || l == Document
}

// Column returns the storage column holding vectors for this level.
func (l Level) Column() string {
	return "vec_" + string(l)
}
