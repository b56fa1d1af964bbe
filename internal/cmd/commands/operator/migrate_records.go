package operator

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/rbxmod/banlist/internal/cmd/base"
	"github.com/rbxmod/banlist/pkg/banlist"
)

type MigrateRecordsCommand struct {
	*base.Command

	flagConfig  string
	flagDryRun  bool
	flagVerbose bool
}

func (c *MigrateRecordsCommand) Synopsis() string {
	return "Rewrite legacy ban records in the canonical format"
}

func (c *MigrateRecordsCommand) Help() string {
	return `Usage: banlist operator migrate-records [options]

  This command rewrites the stored ban list in the canonical format. Records
  without a "displayName" get their username as display name, "banned_at"
  fields are removed, null records are dropped, and user IDs with
  surrounding whitespace are re-keyed. The
  document is written once, and only if something changed.` +
		c.Flags().Help()
}

func (c *MigrateRecordsCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(
		flag.NewFlagSet("migrate-records", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "", "Path to an HCL config file",
	)
	f.BoolVar(
		&c.flagDryRun, "dry-run", false,
		"Only print what would be done without making changes.",
	)
	f.BoolVar(
		&c.flagVerbose, "verbose", false,
		"Print each migrated legacy record.",
	)

	return f
}

func (c *MigrateRecordsCommand) Run(args []string) int {
	logger, ui := c.Log, c.UI

	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	syncer, st, err := openSyncer(c.flagConfig, logger)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	defer st.Close()

	result, err := c.migrate(context.Background(), syncer)
	if err != nil {
		ui.Error(fmt.Sprintf("error migrating records: %v", err))
		return 1
	}
	return result
}

func (c *MigrateRecordsCommand) migrate(ctx context.Context, syncer *banlist.Syncer) (int, error) {
	ui := c.UI

	// Fetch normalizes on read; storing the result persists it.
	handle, err := syncer.Fetch(ctx)
	if err != nil {
		return 1, err
	}
	report := handle.Migration

	if !report.Changed() {
		ui.Info("Ban list is already in the canonical format.")
		return 0, nil
	}

	if c.flagVerbose {
		for _, legacy := range report.Legacy {
			ui.Output(fmt.Sprintf("  legacy record %s (%s)", legacy.UserID, describeLegacy(legacy)))
		}
		for _, key := range report.Dropped {
			ui.Output(fmt.Sprintf("  dropped key %q", key))
		}
	}

	if c.flagDryRun {
		ui.Info(fmt.Sprintf("Dry run: would store %s", report.Summary()))
		return 0, nil
	}

	revision, err := syncer.Store(ctx, handle.Registry, handle.Revision,
		fmt.Sprintf("%s Migrate ban records: %s", banlist.CommitPrefix, report.Summary()))
	if err != nil {
		return 1, err
	}

	ui.Info(fmt.Sprintf("Migrated ban list: %s (revision %s)", report.Summary(), revision))
	return 0, nil
}

func describeLegacy(legacy banlist.LegacyRecord) string {
	var parts []string
	if legacy.FilledDisplayName {
		parts = append(parts, "display name from username")
	}
	switch {
	case !legacy.BannedAt.IsZero():
		parts = append(parts, "banned at "+legacy.BannedAt.Format(time.RFC3339))
	case legacy.RawBannedAt != "":
		parts = append(parts, "banned at "+legacy.RawBannedAt)
	}
	return strings.Join(parts, ", ")
}
