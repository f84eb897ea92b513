package embedding

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/malibio/nodespace-core-logic/internal/metrics"
)

type taskState int

const (
	taskQueued taskState = iota
	taskRunning
	taskRerun // invalidated again while running; requeue when done
)

// pool runs background regenerations with per-key deduplication: a key
// already queued is not queued twice, and a key invalidated while its task
// runs is marked for exactly one rerun. Embed calls are rate limited so a
// large fan-out cannot saturate the provider.
type pool struct {
	run     func(ctx context.Context, k Key) error
	log     *zap.Logger
	limiter *rate.Limiter

	maxRetries int
	backoff    time.Duration

	mu     sync.Mutex
	cond   *sync.Cond
	state  map[Key]taskState
	queue  []Key
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newPool(cfg Config, run func(ctx context.Context, k Key) error, log *zap.Logger) *pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &pool{
		run:        run,
		log:        log,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RateBurst),
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		state:      make(map[Key]taskState),
		ctx:        ctx,
		cancel:     cancel,
	}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Enqueue schedules a regeneration for the key, coalescing duplicates.
func (p *pool) Enqueue(k Key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	switch st, ok := p.state[k]; {
	case !ok:
		p.state[k] = taskQueued
		p.queue = append(p.queue, k)
		metrics.EmbeddingQueueDepth.Set(float64(len(p.queue)))
		p.cond.Signal()
	case st == taskRunning:
		p.state[k] = taskRerun
	default:
		// already queued or already marked for rerun
	}
}

// Close stops accepting work, drains the queue, and waits for workers.
func (p *pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
	p.cancel()
}

func (p *pool) worker() {
	defer p.wg.Done()
	for {
		k, ok := p.next()
		if !ok {
			return
		}
		p.process(k)
	}
}

// next blocks until a key is available or the pool is closed with an empty
// queue. Closing drains: queued tasks still run.
func (p *pool) next() (Key, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 {
		if p.closed {
			return Key{}, false
		}
		p.cond.Wait()
	}
	k := p.queue[0]
	p.queue = p.queue[1:]
	p.state[k] = taskRunning
	metrics.EmbeddingQueueDepth.Set(float64(len(p.queue)))
	return k, true
}

func (p *pool) process(k Key) {
	err := p.attempt(k)
	if err != nil {
		p.log.Warn("embedding regeneration failed",
			zap.String("node_id", k.NodeID),
			zap.String("level", string(k.Level)),
			zap.Int("attempts", p.maxRetries),
			zap.Error(err))
	}

	p.mu.Lock()
	if p.state[k] == taskRerun {
		p.state[k] = taskQueued
		p.queue = append(p.queue, k)
		metrics.EmbeddingQueueDepth.Set(float64(len(p.queue)))
		p.cond.Signal()
	} else {
		delete(p.state, k)
	}
	p.mu.Unlock()
}

// attempt runs the regeneration with exponential backoff between retries.
func (p *pool) attempt(k Key) error {
	var err error
	delay := p.backoff
	for i := 0; i < p.maxRetries; i++ {
		if i > 0 {
			select {
			case <-time.After(delay):
				delay *= 2
			case <-p.ctx.Done():
				return p.ctx.Err()
			}
		}
		if err = p.limiter.Wait(p.ctx); err != nil {
			return err
		}
		if err = p.run(p.ctx, k); err == nil {
			return nil
		}
	}
	return err
}
