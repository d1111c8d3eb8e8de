package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/rota/internal/breakqueue"
	"github.com/dyluth/rota/pkg/rotation"
)

// queueMutation edits the queue of a loaded state. It reports whether anything changed.
type queueMutation func(state *rotation.State, q *breakqueue.Queue) (bool, error)

// mutateQueue runs a read-modify-write of the break queue under the revision guard, retrying on
// conflict. Unchanged queues are not written.
func (s *Service) mutateQueue(ctx context.Context, scope rotation.Key, op string, fn queueMutation) (*rotation.State, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	var result *rotation.State
	err := s.retry(ctx, scope, op, true, func() error {
		state, err := s.store.Get(ctx, scope)
		if err != nil {
			return err
		}
		state.Assignments.Normalize(s.topo.AllPositions())

		q, dropped := breakqueue.FromEntries(s.topo.AllSections(), state.Queue)
		for _, id := range dropped {
			s.reportAnomalies(scope, op, []error{rotation.NewInvariantError(op, "personnel %s queued more than once", id)})
		}

		changed, err := fn(state, q)
		if err != nil {
			return err
		}
		if !changed && len(dropped) == 0 {
			result = state
			return nil
		}

		next := state.Clone()
		next.Queue = q.Entries()
		stored, err := s.store.Put(ctx, scope, next, rotation.PutOptions{
			TTL:         s.ttl(scope),
			ExpectedRev: rotation.Rev(state.Rev),
		})
		if err != nil {
			if rotation.IsOptimisticConflict(err) {
				s.logEvent(scope, "conflict_detected", map[string]interface{}{
					"operation":    op,
					"expected_rev": state.Rev,
				})
			}
			return err
		}
		result = stored
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", strings.ReplaceAll(op, "_", " "), err)
	}

	s.logEvent(scope, "queue_updated", map[string]interface{}{
		"operation":    op,
		"queue_length": len(result.Queue),
		"rev":          result.Rev,
	})
	return result, nil
}

// Enqueue appends personnel to the tail of section. Already queued or seated personnel are left
// where they are.
func (s *Service) Enqueue(ctx context.Context, scope rotation.Key, personnel, section string) (*rotation.State, error) {
	personnel = strings.TrimSpace(personnel)
	if personnel == "" {
		return nil, rotation.NewValidationError("enqueue", "personnel id is required")
	}
	if !s.topo.HasSection(section) {
		return nil, rotation.NewValidationError("enqueue", "unknown section %q", section)
	}

	return s.mutateQueue(ctx, scope, "enqueue", func(state *rotation.State, q *breakqueue.Queue) (bool, error) {
		return q.Enqueue(personnel, section, state.Tick, state.Assignments), nil
	})
}

// MoveQueued relocates personnel from (from.Section, from.Index) to (to.Section, to.Index).
func (s *Service) MoveQueued(ctx context.Context, scope rotation.Key, personnel string, from, to breakqueue.Location) (*rotation.State, error) {
	if !s.topo.HasSection(to.Section) {
		return nil, rotation.NewValidationError("move", "unknown section %q", to.Section)
	}

	return s.mutateQueue(ctx, scope, "move_queued", func(_ *rotation.State, q *breakqueue.Queue) (bool, error) {
		if err := q.MoveWithinQueue(personnel, from, to); err != nil {
			return false, err
		}
		return true, nil
	})
}

// RemoveQueued deletes personnel from whichever section queue holds them.
func (s *Service) RemoveQueued(ctx context.Context, scope rotation.Key, personnel string) (*rotation.State, error) {
	return s.mutateQueue(ctx, scope, "remove_queued", func(_ *rotation.State, q *breakqueue.Queue) (bool, error) {
		return q.Remove(personnel), nil
	})
}

// ClearQueue empties every section queue.
func (s *Service) ClearQueue(ctx context.Context, scope rotation.Key) (*rotation.State, error) {
	return s.mutateQueue(ctx, scope, "clear_queue", func(_ *rotation.State, q *breakqueue.Queue) (bool, error) {
		if q.Total() == 0 {
			return false, nil
		}
		q.ClearAll()
		return true, nil
	})
}
