package fieldcrypt

import "errors"

var (
	// ErrDecryptionFailed indicates authenticated decryption failed (wrong key,
	// truncated or tampered ciphertext). Callers must treat the stored value as
	// corrupted, never as empty.
	ErrDecryptionFailed = errors.New("fieldcrypt: decryption failed")

	// ErrInvalidKeySize indicates the master key is not exactly 32 bytes.
	ErrInvalidKeySize = errors.New("fieldcrypt: key must be 32 bytes")

	// ErrMissingKey indicates no field key material was configured.
	ErrMissingKey = errors.New("fieldcrypt: field key is not configured")
)
