// Package redis implements db.Store on Redis 8+ via rueidis. Nodes live in
// hashes, per-level vectors in HNSW-indexed vector fields, root keys in a
// single lookup hash.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/malibio/nodespace-core-logic/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Key layout under the configured prefix.
const (
	nodeKeyPart  = "node:"
	rootsKeyPart = "roots"
	indexSuffix  = "-nodes"
)

// Config holds connection parameters for a Redis store.
type Config struct {
	Addrs     []string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	// VectorDim is the embedding dimensionality for the HNSW index.
	VectorDim int
}

// Store implements db.Store via rueidis for Redis 8+.
type Store struct {
	client    rueidis.Client
	prefix    string
	indexName string
	vectorDim int
}

// NewStore creates a Redis store via rueidis.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	if cfg.VectorDim <= 0 {
		return nil, fmt.Errorf("vector dimension is required")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "nodespace:"
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Store{
		client:    client,
		prefix:    prefix,
		indexName: strings.TrimSuffix(prefix, ":") + indexSuffix,
		vectorDim: cfg.VectorDim,
	}, nil
}

func (s *Store) nodeKey(id string) string { return s.prefix + nodeKeyPart + id }
func (s *Store) rootsKey() string         { return s.prefix + rootsKeyPart }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady polls Ping until the store responds or timeout expires, then
// ensures the node index exists.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			return fmt.Errorf("timeout waiting for database: %w", waitCtx.Err())
		case <-ticker.C:
			if err := s.Ping(waitCtx); err == nil {
				return s.ensureIndex(ctx)
			}
		}
	}
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}

// isRedisErr checks if err is a Redis server error containing substr (case-insensitive).
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}
