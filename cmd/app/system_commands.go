package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/casevault/cmd/app/commands"
	"github.com/allisson/casevault/internal/app"
	"github.com/allisson/casevault/internal/config"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "server",
			Usage: "Start the HTTP server, outbox processor and integrity sweep",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunServer(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Run database migrations",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer commands.CloseContainer(container, container.Logger())

				return commands.RunMigrations(container.Logger(), cfg.DBDriver, cfg.DBConnectionString)
			},
		},
	}
}
