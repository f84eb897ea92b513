package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/malibio/nodespace-core-logic/internal/db"
	"github.com/malibio/nodespace-core-logic/internal/domain/level"
)

// VectorSearch runs a KNN similarity search over one level's vector field
// via FT.SEARCH. Nodes without a vector at that level are simply not in
// the candidate set.
func (s *Store) VectorSearch(
	ctx context.Context, lvl level.Level, query []float32, k int,
) ([]db.Hit, error) {
	if !lvl.IsValid() {
		return nil, fmt.Errorf("invalid level %q", lvl)
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("query vector is required")
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	queryStr := fmt.Sprintf("*=>[KNN %d @%s $BLOB AS __score]", k, lvl.Column())
	args := []string{
		s.indexName, queryStr,
		"RETURN", "2", fieldContent, "__score",
		"SORTBY", "__score",
		"PARAMS", "2", "BLOB", vectorToBytes(query),
		"DIALECT", "2",
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return s.parseKNNResult(raw)
}

// parseKNNResult decodes the RESP2 FT.SEARCH reply:
// [total, key1, fields1, key2, fields2, ...].
func (s *Store) parseKNNResult(raw []rueidis.RedisMessage) ([]db.Hit, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	hits := make([]db.Hit, 0, total)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		pairs := parseFieldPairs(fields)
		hit := db.Hit{
			ID:      strings.TrimPrefix(key, s.prefix+nodeKeyPart),
			Content: pairs[fieldContent],
		}
		if scoreStr, ok := pairs["__score"]; ok {
			if d, err := strconv.ParseFloat(scoreStr, 64); err == nil {
				hit.Score = max(0, 1.0-d) // cosine distance -> similarity, clamped to [0,1]
			}
		}
		hits = append(hits, hit)
	}

	return hits, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
