/*
Package randx provides functions for generating unique identifiers.

User ids are standard UUID v4 strings; the same generator backs proof-of-work
nonces and proof tokens.
*/
package randx

import (
	"github.com/google/uuid"
)

// UserID generates a UUID v4 string used as the immutable identifier of a user record.
func UserID() string {
	return uuid.New().String()
}

// Nonce generates a random single-use value for challenges and proof tokens.
func Nonce() string {
	return uuid.New().String()
}
