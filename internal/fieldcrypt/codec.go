package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Codec encrypts and decrypts a single string column using AES-256-GCM.
// The stored form is base64(nonce || ciphertext+tag). A Codec is stateless
// after construction and safe for concurrent use.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec creates a Codec from a derived 32-byte encryption key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Codec{aead: aead}, nil
}

// Encrypt encrypts plaintext for storage. A fresh random nonce is generated
// per call, so encrypting the same plaintext twice yields different stored
// values. Empty plaintext maps to an empty stored value (no sentinel values
// are ever encrypted).
func (c *Codec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Empty stored values map to empty plaintext.
// Malformed encoding, truncated data, or a failed authentication tag all
// surface ErrDecryptionFailed; corrupted ciphertext is never silently
// returned as empty plaintext.
func (c *Codec) Decrypt(stored string) (string, error) {
	if stored == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("%w: invalid encoding", ErrDecryptionFailed)
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	plaintext, err := c.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}
