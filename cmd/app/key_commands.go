package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/casevault/cmd/app/commands"
	"github.com/allisson/casevault/internal/app"
)

func getKeyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-local-master-key",
			Usage: "Generate a local KMS master key for development",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "id",
					Aliases: []string{"i"},
					Value:   "",
					Usage:   "Master key ID (e.g., dev-master-key-2026)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunCreateLocalMasterKey(ctx, os.Stdout, cmd.String("id"))
			},
		},
		{
			Name:  "rotate-key",
			Usage: "Rotate a tenant's data encryption key to a new version",
			Flags: []cli.Flag{
				tenantFlag(true),
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(func(container *app.Container) error {
					keys, err := container.TenantKeyUseCase()
					if err != nil {
						return err
					}

					return commands.RunRotateKey(
						ctx,
						keys,
						container.Logger(),
						os.Stdout,
						cmd.String("tenant-id"),
						cmd.String("format"),
					)
				})
			},
		},
	}
}
