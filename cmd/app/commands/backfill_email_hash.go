package commands

import (
	"context"
	"fmt"
	"log/slog"

	userUsecase "github.com/allisson/piivault/internal/user/usecase"
)

// RunBackfillEmailHash computes the email blind index for user records that
// predate the index column. The run is idempotent and can be re-executed
// safely after a partial failure.
func RunBackfillEmailHash(
	ctx context.Context,
	backfill *userUsecase.BackfillUseCase,
	logger *slog.Logger,
	batchSize int,
) error {
	if batchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}

	logger.Info("starting email hash backfill",
		slog.Int("batch_size", batchSize),
	)

	result, err := backfill.Run(ctx, batchSize)

	// The summary is logged even on a partial run so operators can see how
	// far the pass got before the error.
	logger.Info("email hash backfill finished",
		slog.Int("scanned", result.Scanned),
		slog.Int("updated", result.Updated),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
	)

	if err != nil {
		return fmt.Errorf("backfill aborted: %w", err)
	}

	if result.Failed > 0 {
		return fmt.Errorf("backfill completed with %d failed records, see logs for record ids", result.Failed)
	}

	return nil
}
