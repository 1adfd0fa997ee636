package commands

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"gocloud.dev/secrets"
)

// RunCreateFieldKey generates a cryptographically secure 32-byte master key
// for field encryption and blind indexing, and prints it as environment
// variable assignments.
//
// When kmsKeyURI is set, the key is wrapped with the KMS keeper before output
// and FIELD_KEY holds the wrapped ciphertext. For local development use
// "base64key://<32-byte-base64-key>"; production should use a cloud keeper
// (gcpkms://..., awskms://..., azurekeyvault://..., hashivault://...).
func RunCreateFieldKey(ctx context.Context, kmsKeyURI string, out io.Writer) error {
	masterKey := make([]byte, 32)
	if _, err := rand.Read(masterKey); err != nil {
		return fmt.Errorf("failed to generate field key: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(masterKey)

	if kmsKeyURI == "" {
		fmt.Fprintln(out, "# Field Key Configuration (plain mode)")
		fmt.Fprintln(out, "# Copy this environment variable to your .env file or secrets manager.")
		fmt.Fprintln(out, "# Rotating this key invalidates every stored ciphertext and blind index.")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "FIELD_KEY=%q\n", encoded)
		return nil
	}

	keeper, err := secrets.OpenKeeper(ctx, kmsKeyURI)
	if err != nil {
		return fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	defer func() {
		if closeErr := keeper.Close(); closeErr != nil {
			fmt.Fprintf(out, "# Warning: failed to close KMS keeper: %v\n", closeErr)
		}
	}()

	wrapped, err := keeper.Encrypt(ctx, masterKey)
	if err != nil {
		return fmt.Errorf("failed to wrap field key with KMS: %w", err)
	}

	fmt.Fprintln(out, "# Field Key Configuration (KMS mode)")
	fmt.Fprintln(out, "# Copy these environment variables to your .env file or secrets manager.")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "KMS_KEY_URI=%q\n", kmsKeyURI)
	fmt.Fprintf(out, "FIELD_KEY=%q\n", base64.StdEncoding.EncodeToString(wrapped))
	return nil
}
