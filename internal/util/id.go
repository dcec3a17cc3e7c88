package util

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

var idPattern = regexp.MustCompile(`^([a-z0-9]+_)?[0-9a-f]{32}$`)

// IsID reports whether identity has the native identifier syntax produced by
// NewID. Anything else is treated as a slug by record lookups.
func IsID(identity string) bool {
	return idPattern.MatchString(identity)
}
