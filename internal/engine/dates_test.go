package engine

import (
	"context"
	"testing"
	"time"

	"github.com/malibio/nodespace-core-logic/internal/domain/node"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(dateKeyFormat, s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return d
}

func TestNodesForDate(t *testing.T) {
	e, _, _ := testEngine(t)
	ctx := context.Background()

	mustUpsert(t, e, UpsertRequest{RootKey: "2024-06-15", Content: "offsite planning", Type: node.Text})
	mustUpsert(t, e, UpsertRequest{RootKey: "2024-06-15", Content: "venue shortlist", Type: node.Text})

	nodes, err := e.NodesForDate(ctx, day(t, "2024-06-15"))
	if err != nil {
		t.Fatalf("nodes for date: %v", err)
	}
	// Root plus the two children.
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(nodes))
	}

	empty, err := e.NodesForDate(ctx, day(t, "1999-01-01"))
	if err != nil {
		t.Fatalf("empty day must not error: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no nodes for an untouched day, got %d", len(empty))
	}
}

func TestNavigateToDate_CreatesRoot(t *testing.T) {
	e, _, _ := testEngine(t)
	ctx := context.Background()

	nodes, err := e.NavigateToDate(ctx, day(t, "2024-06-16"))
	if err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected the fresh date root only, got %d nodes", len(nodes))
	}
	if nodes[0].Type() != node.Date || nodes[0].Content() != "Sunday, June 16, 2024" {
		t.Errorf("unexpected date root: type=%s content=%q", nodes[0].Type(), nodes[0].Content())
	}

	// Navigating again reuses the root.
	again, err := e.NavigateToDate(ctx, day(t, "2024-06-16"))
	if err != nil {
		t.Fatalf("second navigate: %v", err)
	}
	if len(again) != 1 || again[0].ID() != nodes[0].ID() {
		t.Errorf("navigate must be idempotent")
	}
}

func TestDayNavigation(t *testing.T) {
	e, _, _ := testEngine(t)
	ctx := context.Background()

	mustUpsert(t, e, UpsertRequest{RootKey: "2024-06-14", Content: "yesterday notes", Type: node.Text})
	mustUpsert(t, e, UpsertRequest{RootKey: "2024-06-16", Content: "tomorrow notes", Type: node.Text})

	if e.HasDate(day(t, "2024-06-15")) {
		t.Error("untouched day must report no root")
	}
	if !e.HasDate(day(t, "2024-06-14")) || !e.HasDate(day(t, "2024-06-16")) {
		t.Error("adjacent days have roots")
	}

	prev, err := e.PreviousDay(ctx, day(t, "2024-06-15"))
	if err != nil {
		t.Fatalf("previous day: %v", err)
	}
	if len(prev) != 2 {
		t.Errorf("expected yesterday's root and note, got %d nodes", len(prev))
	}

	next, err := e.NextDay(ctx, day(t, "2024-06-15"))
	if err != nil {
		t.Fatalf("next day: %v", err)
	}
	if len(next) != 2 {
		t.Errorf("expected tomorrow's root and note, got %d nodes", len(next))
	}
}
