package rag

import (
	"strings"

	"github.com/malibio/nodespace-core-logic/internal/hierarchy"
)

// estimateTokens approximates token count as len/4. Good enough for budget
// enforcement; exact counts would need the provider's tokenizer.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// block is one source's rendered prompt section with its token cost.
type block struct {
	nodeID string
	text   string
	tokens int
}

// renderBlock formats a retrieved node with its hierarchy context. The
// neighborhood lines let the model resolve references the node's own text
// leaves implicit.
func renderBlock(nc hierarchy.Context) block {
	var b strings.Builder
	if nc.ParentContent != "" {
		b.WriteString("Section: ")
		b.WriteString(nc.ParentContent)
		b.WriteString("\n")
	}
	b.WriteString(nc.Content)
	for _, s := range nc.Siblings {
		b.WriteString("\n- ")
		b.WriteString(s)
	}
	for _, c := range nc.Children {
		b.WriteString("\n  - ")
		b.WriteString(c)
	}
	text := b.String()
	return block{nodeID: nc.NodeID, text: text, tokens: estimateTokens(text)}
}

// buildPrompt assembles the final generation prompt from the question and
// the context blocks that fit the budget.
func buildPrompt(question string, blocks []block) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below. If the context does not contain the answer, say so.\n\n")
	for i, blk := range blocks {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		b.WriteString(blk.text)
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String()
}

// fitBudget drops the lowest-ranked blocks until the total fits. Blocks
// arrive best-first, so truncation removes the weakest evidence.
func fitBudget(blocks []block, budget int) []block {
	total := 0
	for i, blk := range blocks {
		if total+blk.tokens > budget && i > 0 {
			return blocks[:i]
		}
		total += blk.tokens
	}
	return blocks
}
