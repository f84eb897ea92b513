// Package hierarchy maintains the in-memory adjacency of the node tree:
// parent/child edges, the explicit sibling chain, and the direct root-key
// lookup. It is rebuilt from storage at startup and mutated only under the
// engine's single writer.
package hierarchy

import (
	"fmt"
	"sync"

	"github.com/malibio/nodespace-core-logic/internal/domain"
	"github.com/malibio/nodespace-core-logic/internal/domain/node"
)

// Invalidator receives the id of every node whose structural position
// changed. The embedding cache manager consumes this to fan out staleness.
type Invalidator interface {
	Invalidate(nodeID string)
}

// Link is a sibling chain update produced by a structural change. The
// engine persists these so the chain survives restarts.
type Link struct {
	ID     string
	PrevID string
	NextID string
}

// Index is the hierarchy arena. Nodes are addressed by opaque ids; adjacency
// is explicit maps, so accidental cycles are a validation concern rather
// than a traversal hazard.
type Index struct {
	mu         sync.RWMutex
	parent     map[string]string
	firstChild map[string]string
	prev       map[string]string
	next       map[string]string
	rootOf     map[string]string
	rootsByKey map[string]string
	inv        Invalidator
}

// NewIndex creates an empty hierarchy index.
func NewIndex() *Index {
	return &Index{
		parent:     make(map[string]string),
		firstChild: make(map[string]string),
		prev:       make(map[string]string),
		next:       make(map[string]string),
		rootOf:     make(map[string]string),
		rootsByKey: make(map[string]string),
	}
}

// SetInvalidator wires the staleness hook. Must be called before concurrent use.
func (ix *Index) SetInvalidator(inv Invalidator) { ix.inv = inv }

// AttachRoot registers a root node under its identifying key. Idempotent.
func (ix *Index) AttachRoot(key, id string) {
	ix.mu.Lock()
	ix.rootsByKey[key] = id
	ix.rootOf[id] = id
	ix.mu.Unlock()
}

// RootByKey resolves an identifying key to its root node id in constant
// time regardless of total node count.
func (ix *Index) RootByKey(key string) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	id, ok := ix.rootsByKey[key]
	return id, ok
}

// RootOf returns the root of a node, empty if the node is unknown.
func (ix *Index) RootOf(id string) string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.rootOf[id]
}

// Parent returns the parent of a node.
func (ix *Index) Parent(id string) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	p, ok := ix.parent[id]
	return p, ok && p != ""
}

// Position returns the current parent and next sibling of a node, suitable
// for re-attaching it where it was. attached is false for ids the index has
// never placed under a parent.
func (ix *Index) Position(id string) (parentID, nextID string, attached bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	parentID, attached = ix.parent[id]
	return parentID, ix.next[id], attached
}

// Detach removes a node from the hierarchy entirely, repairing its sibling
// chain. Only safe for leaves; the engine uses it to undo a freshly
// attached node.
func (ix *Index) Detach(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	touched := make(map[string]struct{})
	ix.unlink(id, touched)
	delete(ix.parent, id)
	delete(ix.prev, id)
	delete(ix.next, id)
	delete(ix.rootOf, id)
}

// Contains reports whether the node is known to the index.
func (ix *Index) Contains(id string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.rootOf[id]
	return ok
}

// Attach inserts or relocates a node under a parent. beforeID names the
// existing sibling the node should precede; empty appends at the tail.
// Returns the sibling chain updates the caller must persist.
//
// Fails with a CycleError when the target parent is the node itself or one
// of its descendants, and with ErrValidation when beforeID is not a child
// of the parent. On failure the index is unchanged.
func (ix *Index) Attach(id, parentID, beforeID string) ([]Link, error) {
	links, err := ix.attach(id, parentID, beforeID)
	if err != nil {
		return nil, err
	}
	// Outside the lock: the invalidator walks the index for its fan-out.
	if ix.inv != nil {
		ix.inv.Invalidate(id)
	}
	return links, nil
}

func (ix *Index) attach(id, parentID, beforeID string) ([]Link, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.rootOf[parentID]; !ok {
		return nil, fmt.Errorf("parent %s: %w", parentID, domain.ErrNotFound)
	}
	if path, cyclic := ix.descentPath(id, parentID); cyclic {
		return nil, domain.NewCycle(id, path)
	}
	if beforeID != "" {
		if ix.parent[beforeID] != parentID || beforeID == id {
			return nil, fmt.Errorf(
				"before-sibling %s is not a child of %s: %w",
				beforeID, parentID, domain.ErrValidation,
			)
		}
	}

	touched := make(map[string]struct{})
	touched[id] = struct{}{}

	// Relocation: unlink from the current position first.
	if _, attached := ix.parent[id]; attached {
		ix.unlink(id, touched)
	}

	ix.parent[id] = parentID
	ix.insert(id, parentID, beforeID, touched)
	ix.adoptRoot(id, ix.rootOf[parentID])

	links := make([]Link, 0, len(touched))
	for t := range touched {
		links = append(links, Link{ID: t, PrevID: ix.prev[t], NextID: ix.next[t]})
	}
	return links, nil
}

// Ancestors returns the ancestor chain, nearest parent first, root last.
func (ix *Index) Ancestors(id string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []string
	for cur := ix.parent[id]; cur != ""; cur = ix.parent[cur] {
		out = append(out, cur)
	}
	if root := ix.rootOf[id]; root != "" && root != id {
		if len(out) == 0 || out[len(out)-1] != root {
			out = append(out, root)
		}
	}
	return out
}

// Children returns the ordered children of a parent, chain head first.
func (ix *Index) Children(parentID string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.chain(parentID)
}

// Siblings returns the ordered siblings of a node, the node itself excluded.
func (ix *Index) Siblings(id string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	parentID, ok := ix.parent[id]
	if !ok || parentID == "" {
		return nil
	}
	var out []string
	for _, c := range ix.chain(parentID) {
		if c != id {
			out = append(out, c)
		}
	}
	return out
}

// Subtree returns the node and all its descendants in depth-first order.
func (ix *Index) Subtree(id string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.subtree(id)
}

// Restore rebuilds the index from persisted nodes and root key bindings.
// Replaces all current state.
func (ix *Index) Restore(nodes []node.Node, roots map[string]string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.parent = make(map[string]string, len(nodes))
	ix.firstChild = make(map[string]string)
	ix.prev = make(map[string]string, len(nodes))
	ix.next = make(map[string]string, len(nodes))
	ix.rootOf = make(map[string]string, len(nodes))
	ix.rootsByKey = make(map[string]string, len(roots))

	for key, id := range roots {
		ix.rootsByKey[key] = id
	}

	for i := range nodes {
		n := &nodes[i]
		ix.rootOf[n.ID()] = n.RootID()
		if n.IsRoot() {
			continue
		}
		ix.parent[n.ID()] = n.ParentID()
		ix.prev[n.ID()] = n.PrevID()
		ix.next[n.ID()] = n.NextID()
		if n.PrevID() == "" {
			ix.firstChild[n.ParentID()] = n.ID()
		}
	}
}

// --- internal, callers hold the lock ---

// descentPath walks up from candidate parent; a path through id means the
// attach would close a cycle. Returns the offending descent path, id first.
func (ix *Index) descentPath(id, parentID string) ([]string, bool) {
	var path []string
	for cur := parentID; cur != ""; cur = ix.parent[cur] {
		path = append(path, cur)
		if cur == id {
			// reverse: report the downward path from id to the new parent
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}
			return path, true
		}
	}
	return nil, false
}

func (ix *Index) chain(parentID string) []string {
	var out []string
	for cur := ix.firstChild[parentID]; cur != ""; cur = ix.next[cur] {
		out = append(out, cur)
	}
	return out
}

func (ix *Index) subtree(id string) []string {
	out := []string{id}
	for _, c := range ix.chain(id) {
		out = append(out, ix.subtree(c)...)
	}
	return out
}

// unlink removes id from its sibling chain, recording touched neighbors.
func (ix *Index) unlink(id string, touched map[string]struct{}) {
	p, n := ix.prev[id], ix.next[id]
	if p != "" {
		ix.next[p] = n
		touched[p] = struct{}{}
	} else if parentID := ix.parent[id]; parentID != "" && ix.firstChild[parentID] == id {
		ix.firstChild[parentID] = n
	}
	if n != "" {
		ix.prev[n] = p
		touched[n] = struct{}{}
	}
	ix.prev[id] = ""
	ix.next[id] = ""
}

// insert links id into parentID's chain before beforeID (tail when empty),
// recording touched neighbors.
func (ix *Index) insert(id, parentID, beforeID string, touched map[string]struct{}) {
	if beforeID == "" {
		// append at tail
		tail := ""
		for cur := ix.firstChild[parentID]; cur != ""; cur = ix.next[cur] {
			tail = cur
		}
		if tail == "" {
			ix.firstChild[parentID] = id
			ix.prev[id] = ""
			ix.next[id] = ""
			return
		}
		ix.next[tail] = id
		ix.prev[id] = tail
		ix.next[id] = ""
		touched[tail] = struct{}{}
		return
	}

	p := ix.prev[beforeID]
	ix.prev[id] = p
	ix.next[id] = beforeID
	ix.prev[beforeID] = id
	touched[beforeID] = struct{}{}
	if p == "" {
		ix.firstChild[parentID] = id
	} else {
		ix.next[p] = id
		touched[p] = struct{}{}
	}
}

// adoptRoot propagates a root change through the whole subtree (relocation
// across roots).
func (ix *Index) adoptRoot(id, root string) {
	ix.rootOf[id] = root
	for cur := ix.firstChild[id]; cur != ""; cur = ix.next[cur] {
		ix.adoptRoot(cur, root)
	}
}
