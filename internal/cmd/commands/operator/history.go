package operator

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/rbxmod/banlist/internal/cmd/base"
	"github.com/rbxmod/banlist/pkg/docstore"
)

type HistoryCommand struct {
	*base.Command

	flagConfig string
	flagLimit  int
}

func (c *HistoryCommand) Synopsis() string {
	return "Print recent changes to the ban list"
}

func (c *HistoryCommand) Help() string {
	return `Usage: banlist operator history [options]

  This command prints the most recent writes to the ban list, newest first.
  Only the database store and the local store (with history enabled) keep
  a change log; for the GitHub store use the repository's commit history.` +
		c.Flags().Help()
}

func (c *HistoryCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("history", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "", "Path to an HCL config file",
	)
	f.IntVar(
		&c.flagLimit, "limit", 20, "Maximum number of changes to print.",
	)

	return f
}

func (c *HistoryCommand) Run(args []string) int {
	logger, ui := c.Log, c.UI

	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if c.flagLimit <= 0 {
		ui.Error("limit must be positive")
		return 1
	}

	st, err := openStore(c.flagConfig, logger)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	defer st.Close()

	reader, ok := st.Store.(docstore.HistoryReader)
	if !ok {
		ui.Error(fmt.Sprintf("the %s store does not keep a change history", st.Name()))
		return 1
	}

	changes, err := reader.History(context.Background(), c.flagLimit)
	if err != nil {
		ui.Error(fmt.Sprintf("error reading history: %v", err))
		return 1
	}
	if len(changes) == 0 {
		ui.Info("No changes recorded.")
		return 0
	}

	for _, change := range changes {
		when := "-"
		if !change.Time.IsZero() {
			when = change.Time.UTC().Format(time.RFC3339)
		}
		ui.Output(fmt.Sprintf("%s  %s  %s", when, shortRevision(change.Revision), change.Message))
	}
	return 0
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
