package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/dyluth/rota/internal/printer"
	"github.com/dyluth/rota/pkg/rotation"
	"github.com/spf13/cobra"
)

var (
	boardFrames bool
	boardJSON   bool
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show the current seat board",
	Long: `Show every configured position with its occupant, the time the seat last
changed and any eligibility flags, followed by the break queue.

With --frames the board is rebuilt from the historical frame rows instead of
the current state: for every position, the row with the latest timestamp wins.

Examples:
  # Today's board
  rota board

  # A sandbox board for a given date, as JSON
  rota board --sandbox trial-1 --date 2026-06-01 --json`,
	Args: cobra.NoArgs,
	RunE: runBoard,
}

func init() {
	boardCmd.Flags().BoolVar(&boardFrames, "frames", false, "Rebuild the board from historical frame rows")
	boardCmd.Flags().BoolVar(&boardJSON, "json", false, "Print JSON instead of a table")
	rootCmd.AddCommand(boardCmd)
}

func runBoard(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if boardFrames {
		view, err := s.svc.FrameBoard(ctx, s.scope)
		if err != nil {
			return printer.Failure("board", err)
		}
		if boardJSON {
			return printer.FormatJSON(os.Stdout, view)
		}
		if view.Rows == 0 {
			printer.Info("No frames recorded for %s\n", s.scope)
			return nil
		}
		state := rotation.NewState()
		state.Assignments = view.Assignment
		printer.FormatBoard(os.Stdout, s.svc.Topology(), state, fmt.Sprintf("%s @ %s", s.scope, view.Timestamp))
		return nil
	}

	state, err := s.svc.Board(ctx, s.scope)
	if err != nil {
		return printer.Failure("board", err)
	}
	if boardJSON {
		return printer.FormatJSON(os.Stdout, state)
	}

	printer.FormatBoard(os.Stdout, s.svc.Topology(), state, s.scope.String())
	if len(state.Queue) > 0 {
		fmt.Println()
		printer.FormatQueue(os.Stdout, s.svc.Topology(), state.Queue)
	}
	return nil
}
