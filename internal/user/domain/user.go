// Package domain defines the core user domain entities and types.
package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/allisson/piivault/internal/errors"
)

// User represents a user in the system. The email address is stored encrypted
// at rest alongside a deterministic blind index that permits exact-match
// lookup without decryption.
type User struct {
	ID uuid.UUID

	Name string

	// Email is the plaintext email address. It exists only in memory: the
	// after-load stage populates it by decrypting EmailEncrypted, and the
	// before-save stage consumes it. It is never written to storage.
	Email string

	// EmailEncrypted is the AES-GCM ciphertext of the email address. Opaque
	// to everything except the field codec.
	EmailEncrypted string

	// EmailHash is the deterministic blind index of the canonicalized email.
	// Empty until computed; rows created before the column existed are
	// reconciled by the backfill.
	EmailHash string

	Password  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Domain-specific errors for user operations.
var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = errors.Wrap(errors.ErrNotFound, "user not found")

	// ErrUserAlreadyExists indicates a user with the same email already exists.
	ErrUserAlreadyExists = errors.Wrap(errors.ErrConflict, "user already exists")

	// ErrEmailDecryption indicates the stored email ciphertext failed
	// authenticated decryption. The record must be treated as corrupted,
	// never as a user without an email.
	ErrEmailDecryption = errors.Wrap(errors.ErrCorruptedData, "email decryption failed")

	// ErrInvalidEmail indicates the email format is invalid.
	ErrInvalidEmail = errors.Wrap(errors.ErrInvalidInput, "invalid email format")

	// ErrNameRequired indicates the name field is required.
	ErrNameRequired = errors.Wrap(errors.ErrInvalidInput, "name is required")

	// ErrEmailRequired indicates the email field is required.
	ErrEmailRequired = errors.Wrap(errors.ErrInvalidInput, "email is required")

	// ErrPasswordRequired indicates the password field is required.
	ErrPasswordRequired = errors.Wrap(errors.ErrInvalidInput, "password is required")
)
