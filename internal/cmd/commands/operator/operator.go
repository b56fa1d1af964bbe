package operator

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/rbxmod/banlist/internal/cmd/base"
	"github.com/rbxmod/banlist/internal/config"
	"github.com/rbxmod/banlist/internal/store"
	"github.com/rbxmod/banlist/pkg/banlist"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Perform operator-specific tasks"
}

func (c *Command) Help() string {
	return `Usage: banlist operator <subcommand> [options] [args]

  This command groups subcommands for operators maintaining the ban list.`
}

func (c *Command) Run(args []string) int {
	return cli.RunResultHelp
}

// openStore loads the store settings from the config file and environment
// and opens the configured store.
func openStore(configPath string, log hclog.Logger) (*store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	if err := cfg.ValidateStore(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return store.Open(cfg, log)
}

// openSyncer returns a Syncer on the configured store.
func openSyncer(configPath string, log hclog.Logger) (*banlist.Syncer, *store.Store, error) {
	st, err := openStore(configPath, log)
	if err != nil {
		return nil, nil, err
	}

	syncer, err := banlist.NewSyncer(banlist.SyncerConfig{Store: st, Logger: log})
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	return syncer, st, nil
}
