package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/malibio/nodespace-core-logic/internal/domain/node"
)

const (
	// dateKeyFormat is the canonical root key for a journal day.
	dateKeyFormat = "2006-01-02"
	// dateDescriptionFormat is the human-readable day heading.
	dateDescriptionFormat = "Monday, January 02, 2006"
)

// DateKey formats a time as a root key.
func DateKey(t time.Time) string { return t.Format(dateKeyFormat) }

// NodesForDate returns every node under the given day's root, the root
// included, in creation order. A day with no root yields an empty slice.
func (e *Engine) NodesForDate(ctx context.Context, date time.Time) ([]node.Node, error) {
	key := DateKey(date)
	if _, ok := e.index.RootByKey(key); !ok {
		return []node.Node{}, nil
	}
	nodes, err := e.store.QueryByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("nodes for %s: %w", key, err)
	}
	return nodes, nil
}

// NavigateToDate returns the day's nodes, creating the day root when it
// does not exist yet. Journal views call this when the user lands on a day.
func (e *Engine) NavigateToDate(ctx context.Context, date time.Time) ([]node.Node, error) {
	if _, err := e.EnsureRoot(ctx, DateKey(date)); err != nil {
		return nil, err
	}
	return e.NodesForDate(ctx, date)
}

// HasDate reports whether a day root exists for the given date.
func (e *Engine) HasDate(date time.Time) bool {
	_, ok := e.index.RootByKey(DateKey(date))
	return ok
}

// PreviousDay returns the nodes of the day before the given date.
func (e *Engine) PreviousDay(ctx context.Context, date time.Time) ([]node.Node, error) {
	return e.NodesForDate(ctx, date.AddDate(0, 0, -1))
}

// NextDay returns the nodes of the day after the given date.
func (e *Engine) NextDay(ctx context.Context, date time.Time) ([]node.Node, error) {
	return e.NodesForDate(ctx, date.AddDate(0, 0, 1))
}
