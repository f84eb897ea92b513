// Package engine is the orchestration facade: the idempotent upsert entry
// point, the read surface (resolve, search, answer), and startup hydration
// of the hierarchy from storage.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/malibio/nodespace-core-logic/internal/db"
	"github.com/malibio/nodespace-core-logic/internal/domain"
	"github.com/malibio/nodespace-core-logic/internal/domain/answer"
	"github.com/malibio/nodespace-core-logic/internal/domain/node"
	"github.com/malibio/nodespace-core-logic/internal/domain/search/intent"
	"github.com/malibio/nodespace-core-logic/internal/domain/search/result"
	"github.com/malibio/nodespace-core-logic/internal/embedding"
	"github.com/malibio/nodespace-core-logic/internal/hierarchy"
	"github.com/malibio/nodespace-core-logic/internal/rag"
	"github.com/malibio/nodespace-core-logic/internal/retrieval"
)

// Config aggregates the policy knobs of the orchestrated services.
type Config struct {
	Cache       embedding.Config
	Retrieval   retrieval.Config
	RAG         rag.Config
	MaxSiblings int
	MaxChildren int
}

// Engine wires the hierarchy index, embedding cache, retrieval, and
// answering services over one storage collaborator.
type Engine struct {
	store   db.Store
	index   *hierarchy.Index
	builder *hierarchy.Builder
	cache   *embedding.Manager
	search  *retrieval.Service
	rag     *rag.Service
	gen     domain.Generator
	log     *zap.Logger

	// Writes serialize through a single logical writer: the storage model
	// is append-only and interleaved structural updates risk lost links.
	// Reads run unrestricted.
	writeMu sync.Mutex
}

// New assembles the engine. docEmbed vectorizes stored content,
// queryEmbed vectorizes queries (instruction-tuned providers use
// different prefixes for the two).
func New(store db.Store, docEmbed, queryEmbed domain.Embedder, gen domain.Generator, log *zap.Logger, cfg Config) *Engine {
	ix := hierarchy.NewIndex()
	cache := embedding.NewManager(store, ix, store, docEmbed, log, cfg.Cache)
	ix.SetInvalidator(cache)

	e := &Engine{
		store:   store,
		index:   ix,
		builder: hierarchy.NewBuilder(ix, store, cfg.MaxSiblings, cfg.MaxChildren),
		cache:   cache,
		search:  retrieval.New(store, queryEmbed, cfg.Retrieval),
		gen:     gen,
		log:     log,
	}
	e.rag = rag.New(e.search, e.builder, store, gen, cfg.RAG)
	return e
}

// Load hydrates the hierarchy index from storage. Called once at startup
// before the engine serves requests.
func (e *Engine) Load(ctx context.Context) error {
	nodes, err := e.store.ListNodes(ctx)
	if err != nil {
		return fmt.Errorf("load nodes: %w", err)
	}
	roots, err := e.store.ListRootKeys(ctx)
	if err != nil {
		return fmt.Errorf("load root keys: %w", err)
	}
	e.index.Restore(nodes, roots)
	e.log.Info("hierarchy restored",
		zap.Int("nodes", len(nodes)),
		zap.Int("roots", len(roots)))
	return nil
}

// Close drains background regeneration and releases storage.
func (e *Engine) Close() {
	e.cache.Close()
	e.store.Close()
}

// UpsertRequest carries one upsert. An empty NodeID mints a new identity.
// An empty ParentID attaches the node directly under the root named by
// RootKey, creating that root when absent.
type UpsertRequest struct {
	NodeID   string
	RootKey  string
	Content  string
	ParentID string
	BeforeID string
	Type     node.Type
	Meta     node.Metadata
}

// Upsert creates the node if absent or replaces its content and position if
// present, preserving identity. Structural and content updates apply as one
// logical unit: the node record is staged first, and a failed hierarchy
// change rolls the staged write back.
func (e *Engine) Upsert(ctx context.Context, req UpsertRequest) (string, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	id := req.NodeID
	if id == "" {
		id = uuid.NewString()
	}

	parentID := req.ParentID
	if parentID == "" {
		if req.RootKey == "" {
			return "", fmt.Errorf("upsert %s: parent or root key required: %w", id, domain.ErrValidation)
		}
		rootID, err := e.ensureRootLocked(ctx, req.RootKey)
		if err != nil {
			return "", err
		}
		parentID = rootID
	}
	rootID := e.index.RootOf(parentID)
	if rootID == "" {
		return "", fmt.Errorf("upsert %s: parent %s unknown: %w", id, parentID, domain.ErrNotFound)
	}

	prior, priorErr := e.store.GetNode(ctx, id)
	exists := priorErr == nil
	if priorErr != nil && !errors.Is(priorErr, domain.ErrNotFound) {
		return "", fmt.Errorf("upsert %s: read prior: %w", id, errors.Join(domain.ErrStorage, priorErr))
	}
	if exists {
		// Identity is stable: the type a node was created with is the type
		// it keeps. Metadata updates must still match it.
		if req.Type != prior.Type() {
			return "", fmt.Errorf(
				"upsert %s: node type is immutable (%s to %s): %w",
				id, prior.Type(), req.Type, domain.ErrValidation,
			)
		}
		if req.Meta != nil {
			if req.Meta.Kind() != prior.Type() {
				return "", fmt.Errorf(
					"upsert %s: metadata kind %q does not match node type %q: %w",
					id, req.Meta.Kind(), prior.Type(), domain.ErrValidation,
				)
			}
			if err := req.Meta.Validate(); err != nil {
				return "", fmt.Errorf("upsert %s: %w", id, err)
			}
		}
	}

	if exists && e.unchanged(&prior, &req, parentID) {
		return id, nil // idempotent repeat, no regeneration churn
	}

	staged, err := e.stage(ctx, &prior, exists, id, rootID, parentID, &req)
	if err != nil {
		return "", err
	}

	priorParent, priorNext, hadPos := e.index.Position(id)

	links, err := e.index.Attach(id, parentID, req.BeforeID)
	if err != nil {
		e.rollback(ctx, &prior, exists, id)
		return "", fmt.Errorf("upsert %s: %w", id, err)
	}

	written, perr := e.persistLinks(ctx, staged, links)
	if perr == nil && exists && prior.RootID() != rootID {
		// A move across roots carries the whole subtree; the index adopted
		// the new root already, storage has to follow or a restart would
		// rebuild the old tree.
		var adopted []node.Node
		adopted, perr = e.persistSubtreeRoots(ctx, id, rootID)
		written = append(written, adopted...)
	}
	if perr != nil {
		e.revertAttach(id, priorParent, priorNext, hadPos)
		e.restoreRecords(ctx, written)
		e.rollback(ctx, &prior, exists, id)
		return "", fmt.Errorf("upsert %s: persist structure: %w", id, errors.Join(domain.ErrStorage, perr))
	}

	e.cache.Invalidate(id)
	return id, nil
}

// unchanged reports whether the request repeats the node's current state.
func (e *Engine) unchanged(prior *node.Node, req *UpsertRequest, parentID string) bool {
	if prior.Content() != req.Content || prior.Type() != req.Type {
		return false
	}
	if prior.ParentID() != parentID {
		return false
	}
	if req.BeforeID != "" && prior.NextID() != req.BeforeID {
		return false
	}
	a, errA := node.EncodeMeta(prior.Meta())
	b, errB := node.EncodeMeta(req.Meta)
	if errA != nil || errB != nil {
		return false
	}
	return string(a) == string(b)
}

// stage writes the node record before the hierarchy change so a structural
// failure can roll it back cleanly.
func (e *Engine) stage(ctx context.Context, prior *node.Node, exists bool, id, rootID, parentID string, req *UpsertRequest) (node.Node, error) {
	var staged node.Node
	if exists {
		staged = prior.WithContent(req.Content)
		if req.Meta != nil {
			staged = staged.WithMeta(req.Meta)
		}
		staged = staged.WithParent(parentID, rootID)
		if err := e.store.UpdateNode(ctx, staged); err != nil {
			return node.Node{}, fmt.Errorf("upsert %s: update: %w", id, errors.Join(domain.ErrStorage, err))
		}
		return staged, nil
	}

	staged, err := node.New(id, req.Type, req.Content, rootID, req.Meta)
	if err != nil {
		return node.Node{}, fmt.Errorf("upsert %s: %w", id, err)
	}
	staged = staged.WithParent(parentID, rootID)
	if err := e.store.StoreNode(ctx, staged); err != nil {
		return node.Node{}, fmt.Errorf("upsert %s: store: %w", id, errors.Join(domain.ErrStorage, err))
	}
	return staged, nil
}

// rollback undoes a staged node write after a failed hierarchy change.
func (e *Engine) rollback(ctx context.Context, prior *node.Node, existed bool, id string) {
	var err error
	if existed {
		err = e.store.UpdateNode(ctx, *prior)
	} else {
		err = e.store.DeleteNode(ctx, id)
	}
	if err != nil {
		e.log.Error("rollback of staged node failed",
			zap.String("node_id", id),
			zap.Error(err))
	}
}

// persistLinks writes the sibling chain updates so ordering survives restart.
// It returns the pre-update copies of every neighbor record it touched so a
// partial failure can be compensated.
func (e *Engine) persistLinks(ctx context.Context, staged node.Node, links []hierarchy.Link) ([]node.Node, error) {
	var written []node.Node
	for _, l := range links {
		var n node.Node
		if l.ID == staged.ID() {
			n = staged
		} else {
			loaded, err := e.store.GetNode(ctx, l.ID)
			if err != nil {
				return written, fmt.Errorf("load %s: %w", l.ID, err)
			}
			written = append(written, loaded)
			n = loaded
		}
		n = n.WithSiblings(l.PrevID, l.NextID)
		if err := e.store.UpdateNode(ctx, n); err != nil {
			return written, fmt.Errorf("update %s: %w", l.ID, err)
		}
	}
	return written, nil
}

// persistSubtreeRoots rewrites the stored root of every descendant after a
// move across roots. Returns the pre-update copies for compensation.
func (e *Engine) persistSubtreeRoots(ctx context.Context, id, rootID string) ([]node.Node, error) {
	var written []node.Node
	for _, did := range e.index.Subtree(id) {
		if did == id {
			continue
		}
		n, err := e.store.GetNode(ctx, did)
		if err != nil {
			return written, fmt.Errorf("load %s: %w", did, err)
		}
		if n.RootID() == rootID {
			continue
		}
		written = append(written, n)
		if err := e.store.UpdateNode(ctx, n.WithParent(n.ParentID(), rootID)); err != nil {
			return written, fmt.Errorf("update %s: %w", did, err)
		}
	}
	return written, nil
}

// revertAttach puts a node back where it was before a failed structural
// persist: re-attached at its previous position, or detached entirely when
// the upsert was introducing it.
func (e *Engine) revertAttach(id, priorParent, priorNext string, hadPos bool) {
	if !hadPos {
		e.index.Detach(id)
		return
	}
	if _, err := e.index.Attach(id, priorParent, priorNext); err != nil {
		e.log.Error("restore of node position failed",
			zap.String("node_id", id),
			zap.Error(err))
	}
}

// restoreRecords writes back the pre-change copies of records rewritten by a
// failed structural update. Best effort; failures are logged.
func (e *Engine) restoreRecords(ctx context.Context, records []node.Node) {
	for i := range records {
		if err := e.store.UpdateNode(ctx, records[i]); err != nil {
			e.log.Error("restore of sibling record failed",
				zap.String("node_id", records[i].ID()),
				zap.Error(err))
		}
	}
}

// Resolve returns the node for any id ever returned by Upsert. Content
// updates never change the id, so stored share links stay valid.
func (e *Engine) Resolve(ctx context.Context, id string) (node.Node, error) {
	n, err := e.store.GetNode(ctx, id)
	if err != nil {
		return node.Node{}, fmt.Errorf("resolve %s: %w", id, err)
	}
	return n, nil
}

// Search runs intent-routed multi-level retrieval.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]result.Result, intent.Intent, error) {
	return e.search.Search(ctx, query, k)
}

// Answer runs the full retrieval-augmented answering pipeline.
func (e *Engine) Answer(ctx context.Context, question string) (answer.Response, error) {
	return e.rag.Answer(ctx, question)
}

// EnsureRoot resolves a root key to its node id, creating a date root when
// the key parses as a date and no root exists yet.
func (e *Engine) EnsureRoot(ctx context.Context, key string) (string, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.ensureRootLocked(ctx, key)
}

func (e *Engine) ensureRootLocked(ctx context.Context, key string) (string, error) {
	if id, ok := e.index.RootByKey(key); ok {
		return id, nil
	}

	id := uuid.NewString()
	content, meta := rootContent(key)
	n, err := node.New(id, meta.Kind(), content, id, meta)
	if err != nil {
		return "", fmt.Errorf("create root %q: %w", key, err)
	}
	if err := e.store.StoreNode(ctx, n); err != nil {
		return "", fmt.Errorf("create root %q: %w", key, errors.Join(domain.ErrStorage, err))
	}
	if err := e.store.SetRootKey(ctx, key, id); err != nil {
		e.rollback(ctx, nil, false, id)
		return "", fmt.Errorf("bind root key %q: %w", key, errors.Join(domain.ErrStorage, err))
	}
	e.index.AttachRoot(key, id)
	return id, nil
}

// rootContent builds the content and metadata for a new root. Date keys get
// the human-readable description used by journal views; anything else
// becomes a plain text root carrying the key as content.
func rootContent(key string) (string, node.Metadata) {
	if d, err := time.Parse(dateKeyFormat, key); err == nil {
		desc := d.Format(dateDescriptionFormat)
		return desc, node.DateMeta{Description: desc}
	}
	return key, node.TextMeta{}
}
