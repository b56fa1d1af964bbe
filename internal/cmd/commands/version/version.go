package version

import (
	"github.com/rbxmod/banlist/internal/cmd/base"
	"github.com/rbxmod/banlist/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the version"
}

func (c *Command) Help() string {
	return `Usage: banlist version

  Print the version of the binary.`
}

func (c *Command) Run(args []string) int {
	c.UI.Output("banlist " + version.String())
	return 0
}
