package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/malibio/nodespace-core-logic/internal/domain"
	"github.com/malibio/nodespace-core-logic/internal/domain/node"
)

// Insights generates a short analysis of a node in its hierarchy context.
func (e *Engine) Insights(ctx context.Context, nodeID string) (string, error) {
	nc, err := e.builder.BuildContext(ctx, nodeID)
	if err != nil {
		return "", fmt.Errorf("insights for %s: %w", nodeID, err)
	}

	var b strings.Builder
	b.WriteString("Provide brief insights about the following note")
	if nc.ParentContent != "" {
		b.WriteString(" from the section \"")
		b.WriteString(nc.ParentContent)
		b.WriteString("\"")
	}
	b.WriteString(":\n\n")
	b.WriteString(nc.Content)
	if len(nc.Children) > 0 {
		b.WriteString("\n\nIt contains:\n")
		for _, c := range nc.Children {
			b.WriteString("- ")
			b.WriteString(c)
			b.WriteString("\n")
		}
	}

	text, err := e.gen.GenerateText(ctx, b.String())
	if err != nil {
		return "", fmt.Errorf("insights for %s: %w", nodeID, errors.Join(domain.ErrGeneration, err))
	}
	return text, nil
}

// RelatedNodes resolves the nodes a node's metadata mentions. Mentions that
// point at deleted nodes are skipped.
func (e *Engine) RelatedNodes(ctx context.Context, nodeID string) ([]node.Node, error) {
	n, err := e.store.GetNode(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("related for %s: %w", nodeID, err)
	}
	meta := n.Meta()
	if meta == nil {
		return []node.Node{}, nil
	}

	mentions := meta.Mentions()
	related := make([]node.Node, 0, len(mentions))
	for _, id := range mentions {
		m, err := e.store.GetNode(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("related for %s: load %s: %w", nodeID, id, err)
		}
		related = append(related, m)
	}
	return related, nil
}
