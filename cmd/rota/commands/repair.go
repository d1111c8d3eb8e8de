package commands

import (
	"context"

	"github.com/dyluth/rota/internal/printer"
	"github.com/dyluth/rota/internal/repair"
	"github.com/spf13/cobra"
)

var repairDryRun bool

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Canonicalize personnel references in stored state",
	Long: `Rewrite the stored board so that every seated and queued reference is a known
personnel id.

References are matched against the active directory by id, by id with a
configured prefix stripped (repair.id_prefixes), or by name ignoring case and
accents. Unresolvable references are dropped. Anyone seated twice keeps the
first position; anyone both seated and queued leaves the queue.

The write is rejected if the board changed while the repair ran.

Examples:
  rota repair --dry-run
  rota repair --date yesterday`,
	Args: cobra.NoArgs,
	RunE: runRepair,
}

func init() {
	repairCmd.Flags().BoolVar(&repairDryRun, "dry-run", false, "Report changes without writing them")
	rootCmd.AddCommand(repairCmd)
}

func runRepair(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := repair.Run(ctx, s.client, s.scope, s.dir, repair.Options{
		DryRun:   repairDryRun,
		Prefixes: s.cfg.Repair.IDPrefixes,
		TTL:      s.cfg.Sandbox.TTL,
	})
	if err != nil {
		return printer.Failure("repair", err)
	}

	if !report.Changed() {
		printer.Success("%s is already clean (rev %d)\n", s.scope, report.Rev)
		return nil
	}

	for _, c := range report.Resolved {
		printer.Step("%s: %s → %s\n", c.Where, c.From, c.To)
	}
	for _, c := range report.Dropped {
		printer.Warning("%s: dropped %s (%s)\n", c.Where, c.From, c.Reason)
	}
	for _, c := range report.Duplicates {
		printer.Warning("%s: removed %s (%s)\n", c.Where, c.From, c.Reason)
	}

	if !report.Written {
		printer.Info("Dry run: nothing written\n")
		return nil
	}
	printer.Success("Repaired %s (rev %d)\n", s.scope, report.Rev)
	return nil
}
