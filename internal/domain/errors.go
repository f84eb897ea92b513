package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound signals a missing node or root.
	ErrNotFound = errors.New("not found")
	// ErrValidation signals rejected input (unknown node type, malformed
	// metadata, sibling position conflict, cycle).
	ErrValidation = errors.New("validation failed")
	// ErrEmbedding signals an embedding provider failure.
	ErrEmbedding = errors.New("embedding provider error")
	// ErrStorage signals a storage collaborator failure on read or write.
	ErrStorage = errors.New("storage error")
	// ErrGeneration signals a text generation provider failure.
	ErrGeneration = errors.New("generation provider error")
	// ErrNotReady signals that the engine has not finished initialization.
	ErrNotReady = errors.New("engine not ready")
)

// CycleError wraps ErrValidation with the descent path that would close a cycle.
type CycleError struct {
	NodeID string
	Path   []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf(
		"attaching %s under its own descendant (path %s): %s",
		e.NodeID, strings.Join(e.Path, " -> "), ErrValidation.Error(),
	)
}

func (e *CycleError) Unwrap() error { return ErrValidation }

// NewCycle creates a cycle error for the given node and descent path.
func NewCycle(nodeID string, path []string) error {
	return &CycleError{NodeID: nodeID, Path: path}
}
