package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/casevault/cmd/app/commands"
	"github.com/allisson/casevault/internal/app"
	"github.com/allisson/casevault/internal/config"
)

func getAuditCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "verify-chain",
			Usage: "Verify the hash chain of a tenant's audit ledger",
			Flags: []cli.Flag{
				tenantFlag(true),
				&cli.Uint64Flag{
					Name:  "from-seq",
					Value: 0,
					Usage: "First sequence to verify (0 for the start of the retained chain)",
				},
				&cli.Uint64Flag{
					Name:  "to-seq",
					Value: 0,
					Usage: "Last sequence to verify (0 for the head)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(func(container *app.Container) error {
					sweep, err := container.IntegritySweep()
					if err != nil {
						return err
					}

					return commands.RunVerifyChain(
						ctx,
						sweep,
						container.Logger(),
						os.Stdout,
						cmd.String("tenant-id"),
						cmd.Uint64("from-seq"),
						cmd.Uint64("to-seq"),
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "integrity-sweep",
			Usage: "Verify every tenant ledger once",
			Flags: []cli.Flag{
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(func(container *app.Container) error {
					sweep, err := container.IntegritySweep()
					if err != nil {
						return err
					}

					return commands.RunIntegritySweep(
						ctx,
						sweep,
						container.Logger(),
						os.Stdout,
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "purge-audit-logs",
			Usage: "Archive and delete audit entries older than the retention window",
			Flags: []cli.Flag{
				tenantFlag(false),
				&cli.IntFlag{
					Name:    "retention-days",
					Aliases: []string{"d"},
					Value:   config.MinAuditRetentionDays,
					Usage:   "Keep entries newer than this many days",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(func(container *app.Container) error {
					ledger, err := container.LedgerUseCase()
					if err != nil {
						return err
					}

					return commands.RunPurgeAuditLogs(
						ctx,
						ledger,
						container.Logger(),
						os.Stdout,
						cmd.String("tenant-id"),
						int(cmd.Int("retention-days")),
						cmd.String("format"),
					)
				})
			},
		},
	}
}
