package db

import (
	"fmt"

	"github.com/malibio/nodespace-core-logic/internal/domain"
)

// Sentinel errors for storage operations. Both unwrap to domain.ErrNotFound
// so callers above the storage layer match on one sentinel.
var (
	ErrKeyNotFound  = fmt.Errorf("db: key not found: %w", domain.ErrNotFound)
	ErrNodeNotFound = fmt.Errorf("db: node not found: %w", domain.ErrNotFound)
)

// Op constants map to storage command names for error context.
const (
	OpGet         = "GET"
	OpSet         = "SET"
	OpDel         = "DEL"
	OpHSet        = "HSET"
	OpHDel        = "HDEL"
	OpHGet        = "HGET"
	OpHGetAll     = "HGETALL"
	OpExists      = "EXISTS"
	OpScan        = "SCAN"
	OpSearch      = "FT.SEARCH"
	OpCreateIndex = "FT.CREATE"
	OpIndexInfo   = "FT.INFO"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
