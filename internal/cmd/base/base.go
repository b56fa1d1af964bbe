// Package base holds what every CLI command shares.
package base

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
)

// Command is embedded by every command.
type Command struct {
	Log hclog.Logger
	UI  cli.Ui
}

// NewCommand creates a Command.
func NewCommand(log hclog.Logger, ui cli.Ui) *Command {
	return &Command{
		Log: log,
		UI:  ui,
	}
}
