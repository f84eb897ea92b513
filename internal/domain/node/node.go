// Package node defines the node aggregate and its typed metadata variants.
package node

import (
	"fmt"
	"regexp"
	"time"

	"github.com/malibio/nodespace-core-logic/internal/domain"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// MaxContentSize is the maximum node content size in bytes.
const MaxContentSize = 163840 // 160KB

// Node is the knowledge node aggregate (immutable value object).
// Identity never changes once assigned; content replacement goes through
// the With* copy methods so callers cannot desynchronize fields.
type Node struct {
	id        string
	typ       Type
	content   string
	meta      Metadata
	parentID  string
	rootID    string
	prevID    string
	nextID    string
	createdAt time.Time
	updatedAt time.Time
}

// New validates and creates a Node.
// ID: ^[a-zA-Z0-9_-]+$, 1-256 chars. Content: non-empty, max 160KB.
// A nil meta gets the zero variant for the node type.
func New(id string, typ Type, content, rootID string, meta Metadata) (Node, error) {
	if id == "" {
		return Node{}, fmt.Errorf("node ID is required: %w", domain.ErrValidation)
	}
	if len(id) > 256 {
		return Node{}, fmt.Errorf("node ID too long (max 256): %w", domain.ErrValidation)
	}
	if !idRegex.MatchString(id) {
		return Node{}, fmt.Errorf(
			"node ID must be alphanumeric with underscores and hyphens: %w", domain.ErrValidation,
		)
	}
	if !typ.IsValid() {
		return Node{}, fmt.Errorf("unsupported node type %q: %w", typ, domain.ErrValidation)
	}
	if content == "" {
		return Node{}, fmt.Errorf("content is required: %w", domain.ErrValidation)
	}
	if len(content) > MaxContentSize {
		return Node{}, fmt.Errorf("content too large (max %d bytes): %w", MaxContentSize, domain.ErrValidation)
	}
	if rootID == "" {
		return Node{}, fmt.Errorf("root reference is required: %w", domain.ErrValidation)
	}

	if meta == nil {
		meta = zeroMeta(typ)
	}
	if meta.Kind() != typ {
		return Node{}, fmt.Errorf(
			"metadata kind %q does not match node type %q: %w", meta.Kind(), typ, domain.ErrValidation,
		)
	}
	if err := meta.Validate(); err != nil {
		return Node{}, err
	}

	now := time.Now().UTC()
	return Node{
		id:        id,
		typ:       typ,
		content:   content,
		meta:      meta,
		rootID:    rootID,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// Reconstruct creates a Node without validation (storage hydration).
func Reconstruct(
	id string, typ Type, content string, meta Metadata,
	parentID, rootID, prevID, nextID string,
	createdAt, updatedAt time.Time,
) Node {
	if meta == nil {
		meta = zeroMeta(typ)
	}
	return Node{
		id: id, typ: typ, content: content, meta: meta,
		parentID: parentID, rootID: rootID, prevID: prevID, nextID: nextID,
		createdAt: createdAt, updatedAt: updatedAt,
	}
}

// ID returns the stable node identifier.
func (n *Node) ID() string { return n.id }

// Type returns the node type tag.
func (n *Node) Type() Type { return n.typ }

// Content returns the node text content. Content is the only field that
// is ever embedded.
func (n *Node) Content() string { return n.content }

// Meta returns the typed metadata variant. Metadata is never embedded.
func (n *Node) Meta() Metadata { return n.meta }

// ParentID returns the parent reference, empty for root-level nodes.
func (n *Node) ParentID() string { return n.parentID }

// RootID returns the root reference (self for root nodes).
func (n *Node) RootID() string { return n.rootID }

// PrevID returns the preceding sibling, empty for the head of the chain.
func (n *Node) PrevID() string { return n.prevID }

// NextID returns the following sibling, empty for the tail of the chain.
func (n *Node) NextID() string { return n.nextID }

// CreatedAt returns the creation timestamp.
func (n *Node) CreatedAt() time.Time { return n.createdAt }

// UpdatedAt returns the last modification timestamp.
func (n *Node) UpdatedAt() time.Time { return n.updatedAt }

// IsRoot reports whether the node is its own root.
func (n *Node) IsRoot() bool { return n.rootID == n.id }

// WithContent returns a copy with replaced content and a fresh update timestamp.
func (n *Node) WithContent(content string) Node {
	c := *n
	c.content = content
	c.updatedAt = time.Now().UTC()
	return c
}

// WithMeta returns a copy with replaced metadata and a fresh update timestamp.
func (n *Node) WithMeta(meta Metadata) Node {
	c := *n
	c.meta = meta
	c.updatedAt = time.Now().UTC()
	return c
}

// WithParent returns a copy attached under the given parent and root.
func (n *Node) WithParent(parentID, rootID string) Node {
	c := *n
	c.parentID = parentID
	c.rootID = rootID
	c.updatedAt = time.Now().UTC()
	return c
}

// WithSiblings returns a copy with updated sibling chain links.
func (n *Node) WithSiblings(prevID, nextID string) Node {
	c := *n
	c.prevID = prevID
	c.nextID = nextID
	return c
}
