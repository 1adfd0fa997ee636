package commands

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/piivault/internal/fieldcrypt"
	"github.com/allisson/piivault/internal/user/domain"
	userUsecase "github.com/allisson/piivault/internal/user/usecase"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmailHash(ctx context.Context, hash string) (*domain.User, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) ListPage(
	ctx context.Context,
	afterID uuid.UUID,
	limit int,
) ([]*domain.User, error) {
	args := m.Called(ctx, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.User), args.Error(1)
}

func (m *MockUserRepository) Update(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) UpdateEmailHash(ctx context.Context, id uuid.UUID, hash string) error {
	return m.Called(ctx, id, hash).Error(0)
}

func newTestBackfillUseCase(t *testing.T, repo userUsecase.UserRepository) *userUsecase.BackfillUseCase {
	t.Helper()

	masterKey := make([]byte, 32)
	for i := range masterKey {
		masterKey[i] = byte(i)
	}

	keys, err := fieldcrypt.DeriveKeys(masterKey)
	require.NoError(t, err)

	codec, err := fieldcrypt.NewCodec(keys.Encryption[:])
	require.NoError(t, err)

	hasher, err := fieldcrypt.NewHasher(keys.BlindIndex[:])
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return userUsecase.NewBackfillUseCase(repo, codec, hasher, logger, nil)
}

func TestRunBackfillEmailHash(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("invalid-batch-size", func(t *testing.T) {
		err := RunBackfillEmailHash(ctx, nil, logger, 0)
		require.Error(t, err)
		require.Contains(t, err.Error(), "batch-size must be greater than 0")
	})

	t.Run("success-empty-table", func(t *testing.T) {
		repo := &MockUserRepository{}
		repo.On("ListPage", ctx, uuid.Nil, 100).Return([]*domain.User{}, nil)

		err := RunBackfillEmailHash(ctx, newTestBackfillUseCase(t, repo), logger, 100)
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("failed-records-surface-as-error", func(t *testing.T) {
		corrupted := &domain.User{
			ID:             uuid.Must(uuid.NewV7()),
			EmailEncrypted: "not-a-valid-ciphertext",
		}

		repo := &MockUserRepository{}
		repo.On("ListPage", ctx, uuid.Nil, 100).Return([]*domain.User{corrupted}, nil)

		err := RunBackfillEmailHash(ctx, newTestBackfillUseCase(t, repo), logger, 100)
		require.Error(t, err)
		require.Contains(t, err.Error(), "1 failed records")
	})
}
