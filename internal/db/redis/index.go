package redis

import (
	"context"
	"strconv"

	"github.com/malibio/nodespace-core-logic/internal/db"
	"github.com/malibio/nodespace-core-logic/internal/domain/level"
)

// HNSW parameters for the node vector index.
const (
	hnswM           = 32
	hnswEFConstruct = 400
)

// ensureIndex creates the FT index over node hashes if it does not exist.
// One index carries a vector field per embedding level plus the content
// for hydration.
func (s *Store) ensureIndex(ctx context.Context) error {
	exists, err := s.indexExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	args := []string{
		s.indexName,
		"ON", "HASH",
		"PREFIX", "1", s.prefix + nodeKeyPart,
		"SCHEMA",
		fieldContent, "TEXT",
		fieldRoot, "TAG",
		fieldType, "TAG",
	}
	for _, lvl := range level.All() {
		args = append(args,
			lvl.Column(), "VECTOR", "HNSW", "12",
			"TYPE", "FLOAT32",
			"DIM", strconv.Itoa(s.vectorDim),
			"DISTANCE_METRIC", "COSINE",
			"M", strconv.Itoa(hnswM),
			"EF_CONSTRUCTION", strconv.Itoa(hnswEFConstruct),
		)
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return nil
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// indexExists probes via FT.INFO; "unknown index name" means absent.
func (s *Store) indexExists(ctx context.Context) (bool, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(s.indexName).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") {
			return false, nil
		}
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return true, nil
}
