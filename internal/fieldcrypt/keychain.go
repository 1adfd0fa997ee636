package fieldcrypt

import (
	"context"
	"encoding/base64"
	"fmt"

	"gocloud.dev/secrets"

	// Register KMS provider drivers for key unwrapping
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// LoadMasterKey resolves the 32-byte field master key from configuration.
//
// encodedKey is the base64 value of FIELD_KEY. When kmsKeyURI is empty the
// decoded bytes are the key itself. When kmsKeyURI is set, the decoded bytes
// are KMS-wrapped ciphertext and are unwrapped through a gocloud.dev secrets
// keeper (gcpkms://, awskms://, azurekeyvault://, hashivault://, base64key://).
//
// Missing or undersized key material is a fatal startup condition for callers.
func LoadMasterKey(ctx context.Context, encodedKey, kmsKeyURI string) ([]byte, error) {
	if encodedKey == "" {
		return nil, ErrMissingKey
	}

	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode field key: %w", err)
	}

	if kmsKeyURI != "" {
		raw, err = unwrapKey(ctx, kmsKeyURI, raw)
		if err != nil {
			return nil, err
		}
	}

	if len(raw) != masterKeySize {
		return nil, ErrInvalidKeySize
	}

	return raw, nil
}

// unwrapKey decrypts KMS-wrapped key material using a gocloud.dev keeper.
func unwrapKey(ctx context.Context, keyURI string, wrapped []byte) ([]byte, error) {
	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	defer func() { _ = keeper.Close() }()

	key, err := keeper.Decrypt(ctx, wrapped)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap field key: %w", err)
	}

	return key, nil
}
