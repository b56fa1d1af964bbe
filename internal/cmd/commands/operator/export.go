package operator

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rbxmod/banlist/internal/cmd/base"
	"github.com/rbxmod/banlist/pkg/banlist"
)

type ExportCommand struct {
	*base.Command

	flagConfig string
	flagFormat string
}

type exportDocument struct {
	BannedUsers map[string]banlist.BanRecord `yaml:"banned_users"`
}

func (c *ExportCommand) Synopsis() string {
	return "Print the current ban list"
}

func (c *ExportCommand) Help() string {
	return `Usage: banlist operator export [options]

  This command prints the current ban list in the canonical document format
  or as YAML.` + c.Flags().Help()
}

func (c *ExportCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("export", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "", "Path to an HCL config file",
	)
	f.StringVar(
		&c.flagFormat, "format", "json", "Output format: json or yaml",
	)

	return f
}

func (c *ExportCommand) Run(args []string) int {
	logger, ui := c.Log, c.UI

	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	format := strings.ToLower(c.flagFormat)
	if format != "json" && format != "yaml" {
		ui.Error(fmt.Sprintf("unsupported format %q, use json or yaml", c.flagFormat))
		return 1
	}

	syncer, st, err := openSyncer(c.flagConfig, logger)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	defer st.Close()

	handle, err := syncer.Fetch(context.Background())
	if err != nil {
		ui.Error(err.Error())
		return 1
	}

	out, err := render(handle.Registry, format)
	if err != nil {
		ui.Error(fmt.Sprintf("error rendering ban list: %v", err))
		return 1
	}

	ui.Output(strings.TrimRight(string(out), "\n"))
	return 0
}

func render(reg *banlist.Registry, format string) ([]byte, error) {
	if format == "yaml" {
		return yaml.Marshal(exportDocument{BannedUsers: reg.List()})
	}
	return banlist.Encode(reg)
}
