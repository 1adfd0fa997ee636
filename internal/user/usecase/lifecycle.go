package usecase

import (
	"github.com/allisson/piivault/internal/fieldcrypt"
	"github.com/allisson/piivault/internal/user/domain"

	apperrors "github.com/allisson/piivault/internal/errors"
)

// lifecycle holds the explicit read/write pipeline stages for the encrypted
// email column. The stages are invoked deliberately by the use case on every
// normal read and write path; the backfill bypasses the encryption stage on
// purpose and talks to the hasher directly.
type lifecycle struct {
	codec  *fieldcrypt.Codec
	hasher *fieldcrypt.Hasher
}

// afterLoad decrypts the stored email ciphertext into the transient Email
// field. A decryption failure marks the whole record as corrupted: the error
// propagates and the record is never handed to callers half-populated.
func (l *lifecycle) afterLoad(user *domain.User) error {
	if user.EmailEncrypted == "" {
		user.Email = ""
		return nil
	}

	email, err := l.codec.Decrypt(user.EmailEncrypted)
	if err != nil {
		return apperrors.Wrapf(domain.ErrEmailDecryption, "user %s", user.ID)
	}

	user.Email = email
	return nil
}

// beforeSave encrypts the transient Email field and recomputes the blind
// index, but only when the email actually changed. An unchanged email leaves
// both stored columns untouched: re-encrypting would rotate the nonce for no
// reason and recomputing the index would churn a value that cannot change.
func (l *lifecycle) beforeSave(user *domain.User) error {
	if user.Email == "" {
		return nil
	}

	if user.EmailEncrypted != "" {
		current, err := l.codec.Decrypt(user.EmailEncrypted)
		if err != nil {
			return apperrors.Wrapf(domain.ErrEmailDecryption, "user %s", user.ID)
		}
		if current == user.Email {
			return nil
		}
	}

	encrypted, err := l.codec.Encrypt(user.Email)
	if err != nil {
		return apperrors.Wrap(err, "failed to encrypt email")
	}

	user.EmailEncrypted = encrypted
	user.EmailHash = l.hasher.Hash(user.Email)
	return nil
}
