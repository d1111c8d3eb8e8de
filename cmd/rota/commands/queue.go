package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/dyluth/rota/internal/breakqueue"
	"github.com/dyluth/rota/internal/printer"
	"github.com/dyluth/rota/pkg/rotation"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and edit the break queue",
	Long: `Inspect and edit the per-section break queues.

Personnel wait in the queue of the section they will return to. Vacant entry
positions of a section are refilled from the front of its queue on every
rotation. Queue positions are counted from 0, as shown by 'rota queue list'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show every section queue",
	Args:  cobra.NoArgs,
	RunE:  runQueueList,
}

var queueAddCmd = &cobra.Command{
	Use:   "add <personnel> <section>",
	Short: "Append personnel to a section queue",
	Long: `Append personnel to the tail of a section queue. Anyone already queued or
currently seated is left where they are.`,
	Args: cobra.ExactArgs(2),
	RunE: runQueueAdd,
}

var queueMoveCmd = &cobra.Command{
	Use:   "move <personnel> <from-section> <from-index> <to-section> <to-index>",
	Short: "Move a queued person to another queue position",
	Long: `Move a queued person. The origin must name where they currently wait; the
destination index is clamped to the destination queue.

Example:
  # Move G3 from position 2 of section A to the front of section B
  rota queue move G3 A 2 B 0`,
	Args: cobra.ExactArgs(5),
	RunE: runQueueMove,
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove <personnel>",
	Short: "Take personnel off the break queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueRemove,
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty every section queue",
	Args:  cobra.NoArgs,
	RunE:  runQueueClear,
}

func init() {
	queueCmd.AddCommand(queueListCmd, queueAddCmd, queueMoveCmd, queueRemoveCmd, queueClearCmd)
	rootCmd.AddCommand(queueCmd)
}

func runQueueList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	state, err := s.svc.Board(ctx, s.scope)
	if err != nil {
		return printer.Failure("queue list", err)
	}
	printer.FormatQueue(os.Stdout, s.svc.Topology(), state.Queue)
	return nil
}

func runQueueAdd(cmd *cobra.Command, args []string) error {
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
	personnel, err := ids.lookup("queue_add", args[0])
	if err != nil {
		return printer.Failure("queue add", err)
	}

	state, err := s.svc.Enqueue(ctx, s.scope, personnel, args[1])
	if err != nil {
		return printer.Failure("queue add", err)
	}
	if state.Assignments.IsSeated(personnel) {
		pos, _ := state.Assignments.PositionOf(personnel)
		printer.Warning("%s is seated at %s and was not queued\n", personnel, pos)
	} else {
		printer.Success("%s queued for section %s\n", personnel, queuedSection(state, personnel))
	}
	printer.FormatQueue(os.Stdout, s.svc.Topology(), state.Queue)
	return nil
}

func runQueueMove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	from, err := parseLocation(args[1], args[2])
	if err != nil {
		return printer.Error("invalid origin", err.Error(), nil)
	}
	to, err := parseLocation(args[3], args[4])
	if err != nil {
		return printer.Error("invalid destination", err.Error(), nil)
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	state, err := s.svc.MoveQueued(ctx, s.scope, args[0], from, to)
	if err != nil {
		return printer.Failure("queue move", err)
	}
	printer.Success("Moved %s to section %s\n", args[0], to.Section)
	printer.FormatQueue(os.Stdout, s.svc.Topology(), state.Queue)
	return nil
}

func runQueueRemove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	state, err := s.svc.RemoveQueued(ctx, s.scope, args[0])
	if err != nil {
		return printer.Failure("queue remove", err)
	}
	printer.Success("%s is off the break queue\n", args[0])
	printer.FormatQueue(os.Stdout, s.svc.Topology(), state.Queue)
	return nil
}

func runQueueClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.svc.ClearQueue(ctx, s.scope); err != nil {
		return printer.Failure("queue clear", err)
	}
	printer.Success("Break queue cleared for %s\n", s.scope)
	return nil
}

// parseLocation parses a section id and a 0-based queue index.
func parseLocation(section, index string) (breakqueue.Location, error) {
	i, err := strconv.Atoi(index)
	if err != nil || i < 0 {
		return breakqueue.Location{}, fmt.Errorf("queue index must be a non-negative integer, got %q", index)
	}
	return breakqueue.Location{Section: section, Index: i}, nil
}

func queuedSection(state *rotation.State, personnel string) string {
	if e, ok := state.Breaks[personnel]; ok {
		return e.ReturnToSection
	}
	return "-"
}
