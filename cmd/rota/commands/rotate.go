package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/dyluth/rota/internal/printer"
	"github.com/dyluth/rota/internal/timespec"
	"github.com/spf13/cobra"
)

var (
	rotateAt   string
	rotateJSON bool
)

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Advance every section by one tick",
	Long: `Advance every section by one tick and record the result as a new frame.

Occupants move to the next position of their section. Occupants of a section's
last position rotate off into the break queue of the section it breaks to.
From the restricted minute of the hour onward, every non-rest position is
cleared into the break queue as well. Vacant entry positions are then refilled
from the queue.

--at sets the wall-clock time used for the policy and the frame timestamp:
  15:04 or 15:04:05   - that time on the current date
  RFC3339             - an absolute instant
  10m                 - an offset from now

Examples:
  rota rotate
  rota rotate --at 10:47 --sandbox trial-1`,
	Args: cobra.NoArgs,
	RunE: runRotate,
}

func init() {
	rotateCmd.Flags().StringVar(&rotateAt, "at", "", "Time to rotate at (HH:MM[:SS], RFC3339, or duration offset)")
	rotateCmd.Flags().BoolVar(&rotateJSON, "json", false, "Print the outcome as JSON")
	rootCmd.AddCommand(rotateCmd)
}

func runRotate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	at, err := timespec.ParseAt(rotateAt, now(), s.scope.Date, s.cfg.Location())
	if err != nil {
		return printer.Error("invalid --at", err.Error(), nil)
	}

	outcome, err := s.svc.Rotate(ctx, s.scope, at)
	if err != nil {
		return printer.Failure("rotate", err)
	}
	if rotateJSON {
		return printer.FormatJSON(os.Stdout, outcome)
	}

	printer.Success("Rotated %s to tick %d (%s period, frame %s)\n",
		s.scope, outcome.State.Tick, outcome.Period, outcome.FrameTimestamp)
	for _, d := range outcome.RotatedOff {
		printer.Step("%s rotated off %s\n", d.PersonnelID, d.PositionID)
	}
	for _, d := range outcome.Cleared {
		printer.Step("%s cleared from %s\n", d.PersonnelID, d.PositionID)
	}
	for _, r := range outcome.Refilled {
		printer.Step("%s seated at %s from the queue\n", r.PersonnelID, r.PositionID)
	}
	for _, c := range outcome.Conflicts {
		printer.Warning("%s at %s: %s\n", c.PersonnelID, c.PositionID, c.Reason)
	}

	fmt.Println()
	printer.FormatBoard(os.Stdout, s.svc.Topology(), outcome.State, s.scope.String())
	return nil
}
