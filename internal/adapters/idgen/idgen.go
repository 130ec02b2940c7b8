package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// Generator creates short random poll identifiers.
type Generator struct{}

// NewID returns 8 random bytes hex encoded, or "" if entropy is unavailable.
func (Generator) NewID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(b[:])
}
