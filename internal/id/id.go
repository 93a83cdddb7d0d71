package id

import (
	"crypto/rand"
	"encoding/hex"
)

func New() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "image-fallback-id"
	}
	return hex.EncodeToString(b[:])
}

// Suffix returns a short random token used to derive output filenames that
// never collide with their source.
func Suffix() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "deadbeef"
	}
	return hex.EncodeToString(b[:])
}
