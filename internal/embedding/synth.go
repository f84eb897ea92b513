package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/malibio/nodespace-core-logic/internal/domain/level"
)

const (
	synthMaxSiblings     = 8
	synthMaxSubtreeNodes = 64
	synthMaxText         = 32 * 1024
)

// synthesizer composes the text embedded at each level. The inputs slice it
// returns is the ordered dependency contents the fingerprint is computed
// over; the text is what actually goes to the embedder.
type synthesizer struct {
	nodes NodeReader
	h     Hierarchy
}

func (s *synthesizer) gather(ctx context.Context, id string, lvl level.Level) (inputs []string, text string, err error) {
	self, err := s.nodes.GetNode(ctx, id)
	if err != nil {
		return nil, "", err
	}

	switch lvl {
	case level.Individual:
		return []string{self.Content()}, clip(self.Content()), nil
	case level.Contextual:
		return s.contextual(ctx, self.ID(), self.Content())
	case level.Hierarchical:
		return s.hierarchical(ctx, self.ID(), self.Content())
	case level.Document:
		return s.document(ctx, self.ID(), self.Content())
	default:
		return nil, "", fmt.Errorf("synthesize level %q: unknown level", lvl)
	}
}

// contextual embeds the node in its immediate neighborhood: parent content,
// then sibling contents in document order, then the node's own content.
func (s *synthesizer) contextual(ctx context.Context, id, content string) ([]string, string, error) {
	inputs := []string{content}
	var b strings.Builder

	if pid, ok := s.h.Parent(id); ok {
		if pc, err := s.content(ctx, pid); err == nil {
			inputs = append(inputs, pc)
			b.WriteString("Section: ")
			b.WriteString(pc)
			b.WriteString("\n")
		}
	}

	sibs := s.h.Siblings(id)
	if len(sibs) > synthMaxSiblings {
		sibs = sibs[:synthMaxSiblings]
	}
	for _, sid := range sibs {
		sc, err := s.content(ctx, sid)
		if err != nil {
			continue // sibling vanished mid-gather
		}
		inputs = append(inputs, sc)
		b.WriteString("Related: ")
		b.WriteString(sc)
		b.WriteString("\n")
	}

	b.WriteString(content)
	return inputs, clip(b.String()), nil
}

// hierarchical prefixes the content with the ancestor path, root first.
func (s *synthesizer) hierarchical(ctx context.Context, id, content string) ([]string, string, error) {
	inputs := []string{content}

	anc := s.h.Ancestors(id) // nearest-first
	path := make([]string, 0, len(anc))
	for i := len(anc) - 1; i >= 0; i-- {
		ac, err := s.content(ctx, anc[i])
		if err != nil {
			continue
		}
		inputs = append(inputs, ac)
		path = append(path, ac)
	}

	var b strings.Builder
	if len(path) > 0 {
		b.WriteString(strings.Join(path, " > "))
		b.WriteString("\n")
	}
	b.WriteString(content)
	return inputs, clip(b.String()), nil
}

// document aggregates the whole tree under the node's root so that any node
// in the tree retrieves on document-wide queries.
func (s *synthesizer) document(ctx context.Context, id, content string) ([]string, string, error) {
	root := s.h.RootOf(id)
	if root == "" {
		root = id
	}

	ids := s.h.Subtree(root)
	if len(ids) > synthMaxSubtreeNodes {
		ids = ids[:synthMaxSubtreeNodes]
	}

	inputs := make([]string, 0, len(ids))
	parts := make([]string, 0, len(ids))
	for _, nid := range ids {
		nc, err := s.content(ctx, nid)
		if err != nil {
			continue
		}
		inputs = append(inputs, nc)
		parts = append(parts, nc)
	}
	if len(inputs) == 0 {
		inputs = []string{content}
		parts = []string{content}
	}
	return inputs, clip(strings.Join(parts, "\n")), nil
}

func (s *synthesizer) content(ctx context.Context, id string) (string, error) {
	n, err := s.nodes.GetNode(ctx, id)
	if err != nil {
		return "", err
	}
	return n.Content(), nil
}

func clip(s string) string {
	if len(s) <= synthMaxText {
		return s
	}
	return s[:synthMaxText]
}
