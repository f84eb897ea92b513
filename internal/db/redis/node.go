package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/malibio/nodespace-core-logic/internal/db"
	"github.com/malibio/nodespace-core-logic/internal/domain/level"
	"github.com/malibio/nodespace-core-logic/internal/domain/node"
)

// Hash field names. Vector fields use the level.Column() names so the FT
// index schema and the DTO stay in sync.
const (
	fieldType    = "__type"
	fieldContent = "__content"
	fieldMeta    = "__meta"
	fieldParent  = "__parent"
	fieldRoot    = "__root"
	fieldPrev    = "__prev"
	fieldNext    = "__next"
	fieldCreated = "__created"
	fieldUpdated = "__updated"
)

// GetNode returns a node by id.
func (s *Store) GetNode(ctx context.Context, id string) (node.Node, error) {
	m, err := s.hgetAll(ctx, s.nodeKey(id))
	if err != nil {
		return node.Node{}, fmt.Errorf("get node %s: %w", id, err)
	}
	if len(m) == 0 {
		return node.Node{}, fmt.Errorf("node %s: %w", id, db.ErrNodeNotFound)
	}
	return parseHashFields(id, m)
}

// StoreNode inserts a node.
func (s *Store) StoreNode(ctx context.Context, n node.Node) error {
	fields, err := buildHashFields(&n)
	if err != nil {
		return err
	}
	if err := s.hset(ctx, s.nodeKey(n.ID()), fields); err != nil {
		return fmt.Errorf("store node %s: %w", n.ID(), err)
	}
	return nil
}

// UpdateNode replaces a node record with delete-then-insert semantics.
// The key is rewritten atomically enough for the single-writer model; the
// node id (and thus the key) never changes.
func (s *Store) UpdateNode(ctx context.Context, n node.Node) error {
	key := s.nodeKey(n.ID())

	old, err := s.hgetAll(ctx, key)
	if err != nil {
		return fmt.Errorf("update node %s: %w", n.ID(), err)
	}
	if len(old) == 0 {
		return fmt.Errorf("node %s: %w", n.ID(), db.ErrNodeNotFound)
	}

	fields, err := buildHashFields(&n)
	if err != nil {
		return err
	}
	// Carry vectors across the replacement; staleness is tracked by the
	// cache manager's fingerprints, not by storage.
	for _, lvl := range level.All() {
		if v, ok := old[lvl.Column()]; ok {
			fields[lvl.Column()] = v
		}
	}

	if err := s.del(ctx, key); err != nil {
		return fmt.Errorf("update node %s: %w", n.ID(), err)
	}
	if err := s.hset(ctx, key, fields); err != nil {
		return fmt.Errorf("update node %s: %w", n.ID(), err)
	}
	return nil
}

// DeleteNode removes a node record.
func (s *Store) DeleteNode(ctx context.Context, id string) error {
	if err := s.del(ctx, s.nodeKey(id)); err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	return nil
}

// QueryByKey returns all nodes under the root bound to key.
func (s *Store) QueryByKey(ctx context.Context, rootKey string) ([]node.Node, error) {
	rootID, err := s.RootByKey(ctx, rootKey)
	if err != nil {
		return nil, err
	}

	all, err := s.ListNodes(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]node.Node, 0, len(all))
	for _, n := range all {
		if n.RootID() == rootID {
			out = append(out, n)
		}
	}
	return out, nil
}

// ListNodes returns every stored node.
func (s *Store) ListNodes(ctx context.Context) ([]node.Node, error) {
	keys, err := s.scan(ctx, s.prefix+nodeKeyPart+"*")
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	maps, err := s.hgetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	out := make([]node.Node, 0, len(maps))
	for i, m := range maps {
		if len(m) == 0 {
			continue
		}
		id := strings.TrimPrefix(keys[i], s.prefix+nodeKeyPart)
		n, err := parseHashFields(id, m)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// SetRootKey binds a root key to a node id.
func (s *Store) SetRootKey(ctx context.Context, key, nodeID string) error {
	if err := s.hset(ctx, s.rootsKey(), map[string]string{key: nodeID}); err != nil {
		return fmt.Errorf("set root key %s: %w", key, err)
	}
	return nil
}

// RootByKey resolves a root key to its node id.
func (s *Store) RootByKey(ctx context.Context, key string) (string, error) {
	id, err := s.hget(ctx, s.rootsKey(), key)
	if err != nil {
		return "", fmt.Errorf("root key %s: %w", key, err)
	}
	return id, nil
}

// ListRootKeys returns all key bindings.
func (s *Store) ListRootKeys(ctx context.Context) (map[string]string, error) {
	m, err := s.hgetAll(ctx, s.rootsKey())
	if err != nil {
		return nil, fmt.Errorf("list root keys: %w", err)
	}
	return m, nil
}

// SetVector stores a node's vector at the given level.
func (s *Store) SetVector(ctx context.Context, nodeID string, lvl level.Level, vec []float32) error {
	if !lvl.IsValid() {
		return fmt.Errorf("invalid level %q", lvl)
	}
	fields := map[string]string{lvl.Column(): vectorToBytes(vec)}
	if err := s.hset(ctx, s.nodeKey(nodeID), fields); err != nil {
		return fmt.Errorf("set vector %s/%s: %w", nodeID, lvl, err)
	}
	return nil
}

// buildHashFields converts a node into a flat map for HSET.
func buildHashFields(n *node.Node) (map[string]string, error) {
	meta, err := node.EncodeMeta(n.Meta())
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", n.ID(), err)
	}
	return map[string]string{
		fieldType:    string(n.Type()),
		fieldContent: n.Content(),
		fieldMeta:    string(meta),
		fieldParent:  n.ParentID(),
		fieldRoot:    n.RootID(),
		fieldPrev:    n.PrevID(),
		fieldNext:    n.NextID(),
		fieldCreated: n.CreatedAt().Format(time.RFC3339Nano),
		fieldUpdated: n.UpdatedAt().Format(time.RFC3339Nano),
	}, nil
}

// parseHashFields converts a flat hash map back into a node.
func parseHashFields(id string, m map[string]string) (node.Node, error) {
	typ := node.Type(m[fieldType])
	meta, err := node.DecodeMeta(typ, []byte(m[fieldMeta]))
	if err != nil {
		return node.Node{}, fmt.Errorf("node %s metadata: %w", id, err)
	}

	created, err := time.Parse(time.RFC3339Nano, m[fieldCreated])
	if err != nil {
		return node.Node{}, fmt.Errorf("node %s created_at: %w", id, err)
	}
	updated, err := time.Parse(time.RFC3339Nano, m[fieldUpdated])
	if err != nil {
		return node.Node{}, fmt.Errorf("node %s updated_at: %w", id, err)
	}

	return node.Reconstruct(
		id, typ, m[fieldContent], meta,
		m[fieldParent], m[fieldRoot], m[fieldPrev], m[fieldNext],
		created, updated,
	), nil
}
