// Package usecase implements the user business logic and orchestrates user domain operations.
package usecase

import (
	"context"

	validation "github.com/jellydator/validation"

	"github.com/allisson/go-pwdhash"
	"github.com/google/uuid"

	"github.com/allisson/piivault/internal/database"
	"github.com/allisson/piivault/internal/fieldcrypt"
	"github.com/allisson/piivault/internal/user/domain"

	apperrors "github.com/allisson/piivault/internal/errors"
	appValidation "github.com/allisson/piivault/internal/validation"
)

// RegisterUserInput contains the input data for user registration
type RegisterUserInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UseCase defines the interface for user business logic operations
type UseCase interface {
	RegisterUser(ctx context.Context, input RegisterUserInput) (*domain.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateUserEmail(ctx context.Context, id uuid.UUID, email string) (*domain.User, error)
}

// UserRepository interface defines user repository operations
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmailHash(ctx context.Context, hash string) (*domain.User, error)
	ListPage(ctx context.Context, afterID uuid.UUID, limit int) ([]*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	UpdateEmailHash(ctx context.Context, id uuid.UUID, hash string) error
}

// UserUseCase handles user-related business logic
type UserUseCase struct {
	txManager      database.TxManager
	userRepo       UserRepository
	pipeline       *lifecycle
	hasher         *fieldcrypt.Hasher
	passwordHasher *pwdhash.PasswordHasher
}

// NewUserUseCase creates a new UserUseCase
func NewUserUseCase(
	txManager database.TxManager,
	userRepo UserRepository,
	codec *fieldcrypt.Codec,
	hasher *fieldcrypt.Hasher,
) (UseCase, error) {
	// Initialize password hasher with interactive policy for user passwords
	passwordHasher, err := pwdhash.New(pwdhash.WithPolicy(pwdhash.PolicyInteractive))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create password hasher")
	}

	return &UserUseCase{
		txManager:      txManager,
		userRepo:       userRepo,
		pipeline:       &lifecycle{codec: codec, hasher: hasher},
		hasher:         hasher,
		passwordHasher: passwordHasher,
	}, nil
}

// validateRegisterUserInput validates the registration input using jellydator/validation
func (uc *UserUseCase) validateRegisterUserInput(input RegisterUserInput) error {
	err := validation.ValidateStruct(&input,
		validation.Field(&input.Name,
			validation.Required.Error("name is required"),
			appValidation.NotBlank,
			validation.Length(1, 255).Error("name must be between 1 and 255 characters"),
		),
		validation.Field(&input.Email,
			validation.Required.Error("email is required"),
			appValidation.NotBlank,
			appValidation.Email,
			validation.Length(5, 255).Error("email must be between 5 and 255 characters"),
		),
		validation.Field(&input.Password,
			validation.Required.Error("password is required"),
			validation.Length(8, 128).Error("password must be between 8 and 128 characters"),
			appValidation.PasswordStrength{
				MinLength:      8,
				RequireUpper:   true,
				RequireLower:   true,
				RequireNumber:  true,
				RequireSpecial: true,
			},
		),
	)
	return appValidation.WrapValidationError(err)
}

// RegisterUser registers a new user. The before-save stage encrypts the email
// and computes its blind index in the same write, so ciphertext and index can
// never drift apart on creation.
func (uc *UserUseCase) RegisterUser(ctx context.Context, input RegisterUserInput) (*domain.User, error) {
	if err := uc.validateRegisterUserInput(input); err != nil {
		return nil, err
	}

	hashedPassword, err := uc.passwordHasher.Hash([]byte(input.Password))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to hash password")
	}

	user := &domain.User{
		ID:       uuid.Must(uuid.NewV7()),
		Name:     input.Name,
		Email:    input.Email,
		Password: hashedPassword,
	}

	if err := uc.pipeline.beforeSave(user); err != nil {
		return nil, err
	}

	err = uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		return uc.userRepo.Create(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// GetUserByID retrieves a user by ID, decrypting the email on the way out.
func (uc *UserUseCase) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := uc.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := uc.pipeline.afterLoad(user); err != nil {
		return nil, err
	}

	return user, nil
}

// GetUserByEmail looks a user up through the blind index: the query hashes
// the canonicalized email and matches against the stored index, so no row is
// ever decrypted during the search.
func (uc *UserUseCase) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	err := validation.Validate(email,
		validation.Required.Error("email is required"),
		appValidation.Email,
	)
	if err != nil {
		return nil, appValidation.WrapValidationError(err)
	}

	user, err := uc.userRepo.GetByEmailHash(ctx, uc.hasher.Hash(email))
	if err != nil {
		return nil, err
	}

	if err := uc.pipeline.afterLoad(user); err != nil {
		return nil, err
	}

	return user, nil
}

// UpdateUserEmail changes a user's email address. Runs the read-modify-write
// inside a transaction; the before-save stage re-encrypts and re-indexes only
// when the email actually changed.
func (uc *UserUseCase) UpdateUserEmail(ctx context.Context, id uuid.UUID, email string) (*domain.User, error) {
	err := validation.Validate(email,
		validation.Required.Error("email is required"),
		appValidation.Email,
	)
	if err != nil {
		return nil, appValidation.WrapValidationError(err)
	}

	var user *domain.User
	err = uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		var txErr error
		user, txErr = uc.userRepo.GetByID(ctx, id)
		if txErr != nil {
			return txErr
		}

		user.Email = email
		if txErr := uc.pipeline.beforeSave(user); txErr != nil {
			return txErr
		}

		return uc.userRepo.Update(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}
