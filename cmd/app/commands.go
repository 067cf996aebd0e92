package main

import (
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/allisson/casevault/cmd/app/commands"
	"github.com/allisson/casevault/internal/app"
	"github.com/allisson/casevault/internal/config"
)

func getCommands(version string) []*cli.Command {
	cmds := []*cli.Command{}
	cmds = append(cmds, getSystemCommands(version)...)
	cmds = append(cmds, getKeyCommands()...)
	cmds = append(cmds, getAuditCommands()...)
	cmds = append(cmds, getMigrationCommands()...)
	return cmds
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "text",
		Usage:   "Output format: " + strings.Join(commands.Formats, " or "),
	}
}

func tenantFlag(required bool) cli.Flag {
	return &cli.StringFlag{
		Name:     "tenant-id",
		Aliases:  []string{"t"},
		Required: required,
		Usage:    "Tenant identifier",
	}
}

// withContainer loads and validates configuration, builds the container and
// releases it once fn returns.
func withContainer(fn func(container *app.Container) error) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	container := app.NewContainer(cfg)
	defer commands.CloseContainer(container, container.Logger())

	return fn(container)
}
