package fieldcrypt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashSize is the length of the hex-encoded blind index digest.
const HashSize = sha256.Size * 2

// Hasher computes the deterministic blind index for a sensitive column.
// The digest is HMAC-SHA256 over the canonicalized plaintext, keyed with a
// key derived independently from the encryption key, so identical values
// always map to identical indexes while offline guessing of low-entropy
// inputs (email addresses) requires the key.
type Hasher struct {
	key [32]byte
}

// NewHasher creates a Hasher from a derived 32-byte blind-index key.
func NewHasher(key []byte) (*Hasher, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKeySize
	}

	h := &Hasher{}
	copy(h.key[:], key)
	return h, nil
}

// Canonicalize normalizes a value before hashing: lowercase plus surrounding
// whitespace trim. This rule is fixed; changing it invalidates every stored
// blind index and requires a full re-backfill.
func Canonicalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Hash returns the hex-encoded blind index for plaintext, or an empty string
// when the canonicalized plaintext is empty (empty values are never indexed).
func (h *Hasher) Hash(plaintext string) string {
	canonical := Canonicalize(plaintext)
	if canonical == "" {
		return ""
	}

	mac := hmac.New(sha256.New, h.key[:])
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}
