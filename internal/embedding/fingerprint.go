package embedding

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/malibio/nodespace-core-logic/internal/domain/level"
)

// fingerprint hashes the level tag and the ordered dependency contents.
// A record is valid iff its stored fingerprint equals the fingerprint
// recomputed from current state.
func fingerprint(lvl level.Level, inputs []string) string {
	h := sha256.New()
	h.Write([]byte(lvl))
	h.Write([]byte{0})
	for _, in := range inputs {
		h.Write([]byte(in))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
