package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/rbxmod/banlist/internal/cmd/base"
	"github.com/rbxmod/banlist/internal/cmd/commands/operator"
	"github.com/rbxmod/banlist/internal/cmd/commands/server"
	"github.com/rbxmod/banlist/internal/cmd/commands/version"
)

// Commands returns the CLI command table.
func Commands(log hclog.Logger, ui cli.Ui) map[string]cli.CommandFactory {
	b := base.NewCommand(log, ui)

	return map[string]cli.CommandFactory{
		"server": func() (cli.Command, error) {
			return &server.Command{Command: b}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{Command: b}, nil
		},
		"operator": func() (cli.Command, error) {
			return &operator.Command{Command: b}, nil
		},
		"operator migrate-records": func() (cli.Command, error) {
			return &operator.MigrateRecordsCommand{Command: b}, nil
		},
		"operator export": func() (cli.Command, error) {
			return &operator.ExportCommand{Command: b}, nil
		},
		"operator history": func() (cli.Command, error) {
			return &operator.HistoryCommand{Command: b}, nil
		},
	}
}
