package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/malibio/nodespace-core-logic/internal/domain/level"
)

func poolConfig() Config {
	cfg := Config{Workers: 1, RatePerSec: 1000, RateBurst: 1000, MaxRetries: 2, RetryBackoff: time.Millisecond}
	return cfg
}

func TestPool_CoalescesDuplicateKeys(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	var mu sync.Mutex
	runs := 0
	run := func(_ context.Context, _ Key) error {
		mu.Lock()
		runs++
		mu.Unlock()
		started <- struct{}{}
		<-release
		return nil
	}

	p := newPool(poolConfig(), run, zap.NewNop())
	k := Key{NodeID: "a", Level: level.Individual}

	p.Enqueue(k)
	<-started // task is running

	// Three invalidations while running collapse into a single rerun.
	p.Enqueue(k)
	p.Enqueue(k)
	p.Enqueue(k)
	release <- struct{}{}

	<-started // the rerun
	release <- struct{}{}

	p.Close()

	mu.Lock()
	defer mu.Unlock()
	if runs != 2 {
		t.Fatalf("expected 2 runs (original + coalesced rerun), got %d", runs)
	}
}

func TestPool_DrainsQueueOnClose(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[Key]int)
	run := func(_ context.Context, k Key) error {
		mu.Lock()
		seen[k]++
		mu.Unlock()
		return nil
	}

	p := newPool(poolConfig(), run, zap.NewNop())
	keys := []Key{
		{NodeID: "a", Level: level.Individual},
		{NodeID: "b", Level: level.Contextual},
		{NodeID: "c", Level: level.Document},
	}
	for _, k := range keys {
		p.Enqueue(k)
	}
	p.Close()

	mu.Lock()
	defer mu.Unlock()
	for _, k := range keys {
		if seen[k] != 1 {
			t.Errorf("expected key %s to run exactly once, ran %d times", k, seen[k])
		}
	}
}

func TestPool_RetriesThenGivesUp(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	run := func(_ context.Context, _ Key) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("provider down")
	}

	p := newPool(poolConfig(), run, zap.NewNop())
	p.Enqueue(Key{NodeID: "a", Level: level.Individual})
	p.Close()

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Fatalf("expected 2 attempts (MaxRetries), got %d", attempts)
	}
}

func TestPool_EnqueueAfterCloseIsNoop(t *testing.T) {
	ran := false
	var mu sync.Mutex
	run := func(_ context.Context, _ Key) error {
		mu.Lock()
		ran = true
		mu.Unlock()
		return nil
	}

	p := newPool(poolConfig(), run, zap.NewNop())
	p.Close()
	p.Enqueue(Key{NodeID: "a", Level: level.Individual})
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if ran {
		t.Fatal("task must not run after Close")
	}
}
