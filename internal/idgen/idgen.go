// Package idgen provides identifier generation for entities and requests.
package idgen

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// New generates a fresh random UUID, used for account, transaction, event,
// and job identifiers.
func New() uuid.UUID {
	return uuid.New()
}

// Hex generates a random hex string of the given byte length, used for
// short-lived correlation tokens such as HTTP request IDs.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
