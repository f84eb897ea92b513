package embedding

import "github.com/malibio/nodespace-core-logic/internal/domain/level"

// Edge records that Dependent's embedding at Level depends on DependedOn's
// content. The edge set is derived from hierarchy adjacency at invalidation
// time, so it can never drift from the actual tree.
type Edge struct {
	Dependent  string
	DependedOn string
	Level      level.Level
}

// dependencyEdges computes the invalidation fan-out for a content change
// in id:
//
//	Individual:   id itself.
//	Contextual:   id, id's siblings (id is in their neighborhood), and
//	              id's children (id is their parent).
//	Hierarchical: id and every descendant (id is on their ancestor chain).
//	Document:     every node under id's root.
func dependencyEdges(h Hierarchy, id string) []Edge {
	var edges []Edge
	add := func(dependent string, lvl level.Level) {
		edges = append(edges, Edge{Dependent: dependent, DependedOn: id, Level: lvl})
	}

	add(id, level.Individual)
	add(id, level.Contextual)

	for _, s := range h.Siblings(id) {
		add(s, level.Contextual)
	}
	for _, c := range h.Children(id) {
		add(c, level.Contextual)
	}

	for _, d := range h.Subtree(id) {
		add(d, level.Hierarchical)
	}

	if root := h.RootOf(id); root != "" {
		for _, d := range h.Subtree(root) {
			add(d, level.Document)
		}
	}

	return edges
}
