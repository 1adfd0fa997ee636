package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/piivault/cmd/app/commands"
	"github.com/allisson/piivault/internal/app"
	"github.com/allisson/piivault/internal/config"
)

func getUserCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "backfill-email-hash",
			Usage: "Compute the email blind index for records that predate it",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "batch-size",
					Aliases: []string{"b"},
					Value:   0,
					Usage:   "Records per page (defaults to BACKFILL_BATCH_SIZE)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				batchSize := int(cmd.Int("batch-size"))
				if batchSize == 0 {
					batchSize = cfg.BackfillBatchSize
				}

				backfill, err := container.BackfillUseCase()
				if err != nil {
					return err
				}

				return commands.RunBackfillEmailHash(ctx, backfill, container.Logger(), batchSize)
			},
		},
		{
			Name:  "create-field-key",
			Usage: "Generate a new master key for field encryption and blind indexing",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "kms-key-uri",
					Aliases: []string{"k"},
					Value:   "",
					Usage:   "Optional KMS keeper URI used to wrap the key (e.g., gcpkms://..., base64key://...)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunCreateFieldKey(ctx, cmd.String("kms-key-uri"), os.Stdout)
			},
		},
	}
}
