package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/casevault/cmd/app/commands"
	"github.com/allisson/casevault/internal/app"
)

func getMigrationCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "run-migration",
			Usage: "Re-encrypt a tenant's protected fields under a new key version",
			Flags: []cli.Flag{
				tenantFlag(true),
				&cli.UintFlag{
					Name:  "old-version",
					Usage: "Key version being retired",
				},
				&cli.UintFlag{
					Name:  "new-version",
					Usage: "Key version to re-encrypt under",
				},
				&cli.BoolFlag{
					Name:  "initial",
					Value: false,
					Usage: "Encrypt legacy plaintext under the active version instead",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(func(container *app.Container) error {
					migrations, err := container.MigrationUseCase()
					if err != nil {
						return err
					}

					return commands.RunMigration(
						ctx,
						migrations,
						container.Logger(),
						os.Stdout,
						cmd.String("tenant-id"),
						cmd.Uint("old-version"),
						cmd.Uint("new-version"),
						cmd.Bool("initial"),
						cmd.String("format"),
					)
				})
			},
		},
	}
}
