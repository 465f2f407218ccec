// Package models provides data structures used throughout the federated query coordinator.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Question is the raw natural-language input. It is never normalized before
// fingerprinting.
type Question string

// Fingerprint is a deterministic digest of a question's exact bytes.
type Fingerprint string

// Fingerprint returns the lower-case hex SHA-256 of the question text.
func (q Question) Fingerprint() Fingerprint {
	sum := sha256.Sum256([]byte(q))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// Lower returns the lower-cased question text used by keyword matching.
func (q Question) Lower() string {
	return strings.ToLower(string(q))
}

// String returns the raw question text.
func (q Question) String() string {
	return string(q)
}
