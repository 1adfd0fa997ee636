package usecase

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/allisson/piivault/internal/fieldcrypt"
	"github.com/allisson/piivault/internal/metrics"
	"github.com/allisson/piivault/internal/user/domain"
)

// BackfillResult summarizes a backfill run.
type BackfillResult struct {
	// Scanned is the number of records examined.
	Scanned int
	// Updated is the number of records whose blind index was written.
	Updated int
	// Skipped counts records that already had an index or had no email to index.
	Skipped int
	// Failed counts records with decryption or persistence errors. Each
	// failure is logged with the record id; the run continues past them.
	Failed int
}

// BackfillUseCase reconciles the email blind index for records that predate
// the index column. It reads rows in bounded pages, recomputes the index from
// the decrypted email, and writes only the index column back - the ciphertext
// is never rewritten. The run is idempotent: records with an index are
// skipped, so re-running after a partial failure is safe.
type BackfillUseCase struct {
	userRepo UserRepository
	codec    *fieldcrypt.Codec
	hasher   *fieldcrypt.Hasher
	logger   *slog.Logger
	metrics  metrics.BusinessMetrics
}

// NewBackfillUseCase creates a new BackfillUseCase. The metrics parameter may
// be nil when metrics collection is disabled.
func NewBackfillUseCase(
	userRepo UserRepository,
	codec *fieldcrypt.Codec,
	hasher *fieldcrypt.Hasher,
	logger *slog.Logger,
	businessMetrics metrics.BusinessMetrics,
) *BackfillUseCase {
	return &BackfillUseCase{
		userRepo: userRepo,
		codec:    codec,
		hasher:   hasher,
		logger:   logger,
		metrics:  businessMetrics,
	}
}

// Run executes a full backfill pass over the users table in pages of
// batchSize records. It returns the accumulated result; a page-level read
// error aborts the run (the partial result is still returned), while
// per-record failures are logged and counted without stopping the run.
func (uc *BackfillUseCase) Run(ctx context.Context, batchSize int) (*BackfillResult, error) {
	result := &BackfillResult{}
	afterID := uuid.Nil

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		users, err := uc.userRepo.ListPage(ctx, afterID, batchSize)
		if err != nil {
			return result, err
		}
		if len(users) == 0 {
			break
		}

		for _, user := range users {
			uc.processRecord(ctx, user, result)
		}
		afterID = users[len(users)-1].ID

		uc.logger.Info("processed backfill page",
			slog.Int("page_size", len(users)),
			slog.Int("updated", result.Updated),
			slog.Int("skipped", result.Skipped),
			slog.Int("failed", result.Failed),
		)

		if len(users) < batchSize {
			break
		}
	}

	return result, nil
}

// processRecord reconciles a single record. The encryption stage is bypassed
// deliberately: the record's ciphertext is already correct, so only the
// hashing stage runs and only the index column is written.
func (uc *BackfillUseCase) processRecord(ctx context.Context, user *domain.User, result *BackfillResult) {
	result.Scanned++

	// Idempotence: an existing index is never recomputed or overwritten.
	if user.EmailHash != "" {
		result.Skipped++
		uc.recordOutcome(ctx, "skipped")
		return
	}

	if user.EmailEncrypted == "" {
		result.Skipped++
		uc.logger.Debug("skipping user without email", slog.String("user_id", user.ID.String()))
		uc.recordOutcome(ctx, "skipped")
		return
	}

	email, err := uc.codec.Decrypt(user.EmailEncrypted)
	if err != nil {
		// Corrupted ciphertext is surfaced loudly, never treated as "no email".
		result.Failed++
		uc.logger.Error("failed to decrypt email during backfill",
			slog.String("user_id", user.ID.String()),
			slog.Any("error", err),
		)
		uc.recordOutcome(ctx, "error")
		return
	}

	hash := uc.hasher.Hash(email)
	if hash == "" {
		result.Skipped++
		uc.logger.Debug("skipping user with blank email", slog.String("user_id", user.ID.String()))
		uc.recordOutcome(ctx, "skipped")
		return
	}

	if err := uc.userRepo.UpdateEmailHash(ctx, user.ID, hash); err != nil {
		result.Failed++
		uc.logger.Error("failed to persist email hash during backfill",
			slog.String("user_id", user.ID.String()),
			slog.Any("error", err),
		)
		uc.recordOutcome(ctx, "error")
		return
	}

	result.Updated++
	uc.recordOutcome(ctx, "success")
}

// recordOutcome reports a per-record backfill outcome when metrics are enabled.
func (uc *BackfillUseCase) recordOutcome(ctx context.Context, status string) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.RecordOperation(ctx, "user", "backfill_email_hash", status)
}
