package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

const (
	CanonicalPrefix = "canon-"
	MentionPrefix   = "ment-"
)

// CanonicalID identifies the merged entity for a normalized key.
func CanonicalID(schema, key string) string {
	return CanonicalPrefix + digest(schema, key)
}

// MentionID identifies one mention of a key within one piece of evidence.
func MentionID(proofID, schema, key string) string {
	return MentionPrefix + digest(proofID, schema, key)
}

func digest(parts ...string) string {
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
