package hierarchy

import (
	"context"
	"fmt"

	"github.com/malibio/nodespace-core-logic/internal/domain/node"
)

// NodeReader is the consumer interface for loading node content.
type NodeReader interface {
	GetNode(ctx context.Context, id string) (node.Node, error)
}

// Context is a transient snapshot of a node's neighborhood. Built fresh per
// request, never cached beyond one operation.
type Context struct {
	NodeID        string
	Content       string
	ParentID      string
	ParentContent string
	// Siblings and Children are ordered oldest-first and capped at the
	// builder's configured maximums.
	Siblings []string
	Children []string
	RootID   string
}

// Builder assembles node neighborhoods on demand. Pure function of current
// index and store state.
type Builder struct {
	index       *Index
	nodes       NodeReader
	maxSiblings int
	maxChildren int
}

// NewBuilder creates a context builder. Caps of zero or below fall back to
// the defaults.
func NewBuilder(index *Index, nodes NodeReader, maxSiblings, maxChildren int) *Builder {
	if maxSiblings <= 0 {
		maxSiblings = 8
	}
	if maxChildren <= 0 {
		maxChildren = 16
	}
	return &Builder{index: index, nodes: nodes, maxSiblings: maxSiblings, maxChildren: maxChildren}
}

// BuildContext reads the current parent, ordered siblings, and ordered
// children of a node. Missing parent or siblings (roots, only children)
// are omitted rather than treated as errors.
func (b *Builder) BuildContext(ctx context.Context, id string) (Context, error) {
	n, err := b.nodes.GetNode(ctx, id)
	if err != nil {
		return Context{}, fmt.Errorf("build context for %s: %w", id, err)
	}

	nc := Context{
		NodeID:  id,
		Content: n.Content(),
		RootID:  b.index.RootOf(id),
	}

	if parentID, ok := b.index.Parent(id); ok {
		parent, err := b.nodes.GetNode(ctx, parentID)
		if err == nil {
			nc.ParentID = parentID
			nc.ParentContent = parent.Content()
		}
	}

	nc.Siblings = b.contents(ctx, b.index.Siblings(id), b.maxSiblings)
	nc.Children = b.contents(ctx, b.index.Children(id), b.maxChildren)

	return nc, nil
}

// contents loads node contents in order, capped at limit (oldest-first).
func (b *Builder) contents(ctx context.Context, ids []string, limit int) []string {
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := b.nodes.GetNode(ctx, id)
		if err != nil {
			// A sibling disappearing mid-read is not fatal to the snapshot.
			continue
		}
		out = append(out, n.Content())
	}
	return out
}
