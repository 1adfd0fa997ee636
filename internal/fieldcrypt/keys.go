// Package fieldcrypt implements reversible encryption and deterministic blind
// indexing for a single sensitive column. The two concerns share one 32-byte
// master key but never share derived key bytes: HKDF-SHA256 with distinct info
// strings separates the AES-GCM encryption key from the HMAC blind-index key.
package fieldcrypt

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Info strings for HKDF derivation. Distinct strings guarantee the codec and
// the hasher operate on cryptographically independent keys.
const (
	infoEncryption = "piivault-field-encryption-v1"
	infoBlindIndex = "piivault-blind-index-v1"
)

// masterKeySize is the required master key length in bytes.
const masterKeySize = 32

// Keys holds the derived encryption and blind-index keys.
type Keys struct {
	Encryption [32]byte
	BlindIndex [32]byte
}

// DeriveKeys derives the encryption and blind-index keys from a 32-byte
// master key using HKDF-SHA256.
func DeriveKeys(masterKey []byte) (*Keys, error) {
	if len(masterKey) != masterKeySize {
		return nil, ErrInvalidKeySize
	}

	keys := &Keys{}

	if err := hkdfDerive(masterKey, infoEncryption, keys.Encryption[:]); err != nil {
		return nil, err
	}
	if err := hkdfDerive(masterKey, infoBlindIndex, keys.BlindIndex[:]); err != nil {
		return nil, err
	}

	return keys, nil
}

// Zero wipes the derived key material from memory.
func (k *Keys) Zero() {
	for i := range k.Encryption {
		k.Encryption[i] = 0
	}
	for i := range k.BlindIndex {
		k.BlindIndex[i] = 0
	}
}

// hkdfDerive performs HKDF-SHA256 key derivation with the given info string.
// No salt is used (nil salt means HKDF uses a zero-filled salt of HashLen bytes).
func hkdfDerive(masterKey []byte, info string, out []byte) error {
	reader := hkdf.New(sha256.New, masterKey, nil, []byte(info))
	_, err := io.ReadFull(reader, out)
	return err
}
