package fieldcrypt

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMasterKey(id string) []byte {
	// Deterministic 32-byte key for testing
	key := make([]byte, 32)
	copy(key, []byte(id))
	for i := len(id); i < 32; i++ {
		key[i] = byte(i)
	}
	return key
}

func newTestCodec(t *testing.T) *Codec {
	t.Helper()

	keys, err := DeriveKeys(testMasterKey("test"))
	require.NoError(t, err)

	codec, err := NewCodec(keys.Encryption[:])
	require.NoError(t, err)
	return codec
}

func TestNewCodec_InvalidKeySize(t *testing.T) {
	_, err := NewCodec([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	plaintexts := []string{
		"alice@example.com",
		"a",
		strings.Repeat("long-value-", 100),
		"unicode: héllo wörld 日本語",
	}

	for _, plaintext := range plaintexts {
		stored, err := codec.Encrypt(plaintext)
		require.NoError(t, err)
		require.NotEmpty(t, stored)
		require.NotEqual(t, plaintext, stored)

		decrypted, err := codec.Decrypt(stored)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestCodec_EncryptEmptyIsNoOp(t *testing.T) {
	codec := newTestCodec(t)

	stored, err := codec.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestCodec_DecryptEmptyIsNoOp(t *testing.T) {
	codec := newTestCodec(t)

	plaintext, err := codec.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, plaintext)
}

func TestCodec_NonDeterministicCiphertext(t *testing.T) {
	codec := newTestCodec(t)

	stored1, err := codec.Encrypt("alice@example.com")
	require.NoError(t, err)
	stored2, err := codec.Encrypt("alice@example.com")
	require.NoError(t, err)

	// Fresh nonce per encryption, so stored values must differ
	assert.NotEqual(t, stored1, stored2)
}

func TestCodec_DecryptTamperedCiphertext(t *testing.T) {
	codec := newTestCodec(t)

	stored, err := codec.Encrypt("alice@example.com")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(stored)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	plaintext, err := codec.Decrypt(tampered)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
	assert.Empty(t, plaintext)
}

func TestCodec_DecryptTruncatedCiphertext(t *testing.T) {
	codec := newTestCodec(t)

	stored, err := codec.Encrypt("alice@example.com")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(stored)
	require.NoError(t, err)
	truncated := base64.StdEncoding.EncodeToString(raw[:8])

	_, err = codec.Decrypt(truncated)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestCodec_DecryptInvalidEncoding(t *testing.T) {
	codec := newTestCodec(t)

	_, err := codec.Decrypt("not-valid-base64!!!")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestCodec_DecryptWithWrongKey(t *testing.T) {
	codec := newTestCodec(t)

	otherKeys, err := DeriveKeys(testMasterKey("other"))
	require.NoError(t, err)
	otherCodec, err := NewCodec(otherKeys.Encryption[:])
	require.NoError(t, err)

	stored, err := codec.Encrypt("alice@example.com")
	require.NoError(t, err)

	_, err = otherCodec.Decrypt(stored)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}
