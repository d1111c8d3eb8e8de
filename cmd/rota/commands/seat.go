package commands

import (
	"context"
	"os"

	"github.com/dyluth/rota/internal/orchestrator"
	"github.com/dyluth/rota/internal/printer"
	"github.com/dyluth/rota/pkg/rotation"
	"github.com/spf13/cobra"
)

var seatRev int64

var seatCmd = &cobra.Command{
	Use:   "seat <position> <personnel>",
	Short: "Seat one person at a position",
	Long: `Seat one person at a position. They leave any other position they held and
the break queue. Whoever held the position before goes off duty.

Without --rev the current revision is read and the write retried if someone
else changes the board in between. With --rev the write is rejected unless the
board is still at that revision (shown by 'rota board --json').

Examples:
  rota seat A.1 G1
  rota seat A.1 "José Álvarez" --rev 12`,
	Args: cobra.ExactArgs(2),
	RunE: runSeat,
}

var unseatCmd = &cobra.Command{
	Use:   "unseat <position>",
	Short: "Vacate a position",
	Long: `Vacate a position. The previous occupant goes off duty; use
'rota queue add' to put them on a break queue instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runUnseat,
}

func init() {
	seatCmd.Flags().Int64Var(&seatRev, "rev", -1, "Expected board revision (rejects the write if the board changed)")
	unseatCmd.Flags().Int64Var(&seatRev, "rev", -1, "Expected board revision (rejects the write if the board changed)")
	rootCmd.AddCommand(seatCmd)
	rootCmd.AddCommand(unseatCmd)
}

func runSeat(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	ids, err := s.activePersonnel(ctx)
	if err != nil {
		return err
	}
	personnel, err := ids.lookup("seat", args[1])
	if err != nil {
		return printer.Failure("seat", err)
	}

	return applySeat(ctx, s, args[0], personnel)
}

func runUnseat(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	return applySeat(ctx, s, args[0], "")
}

func applySeat(ctx context.Context, s *session, position, personnel string) error {
	req := orchestrator.SeatRequest{Position: position, Personnel: personnel}
	if seatRev >= 0 {
		req.ExpectedRev = rotation.Rev(seatRev)
	}

	state, err := s.svc.Seat(ctx, s.scope, req, now())
	if err != nil {
		if personnel == "" {
			return printer.Failure("unseat", err)
		}
		return printer.Failure("seat", err)
	}

	if personnel == "" {
		printer.Success("Vacated %s (rev %d)\n", position, state.Rev)
	} else {
		printer.Success("Seated %s at %s (rev %d)\n", personnel, position, state.Rev)
	}
	for _, c := range state.Conflicts {
		if c.PositionID == position {
			printer.Warning("%s at %s: %s\n", c.PersonnelID, c.PositionID, c.Reason)
		}
	}
	printer.FormatBoard(os.Stdout, s.svc.Topology(), state, s.scope.String())
	return nil
}
