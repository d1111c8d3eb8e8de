package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dyluth/rota/internal/breakqueue"
	"github.com/dyluth/rota/internal/engine"
	"github.com/dyluth/rota/pkg/rotation"
)

// SeatRequest changes the occupant of one position.
type SeatRequest struct {
	Position  string
	Personnel string // Empty unseats the position

	// ExpectedRev makes the write fail with OptimisticConflict unless the stored revision matches.
	// Without it the service reads the current revision and retries on conflict.
	ExpectedRev *int64
}

// Seat applies a single-seat update under the revision guard. Seating someone clears any other
// position they held and removes them from the break queue. A displaced occupant goes off duty.
func (s *Service) Seat(ctx context.Context, scope rotation.Key, req SeatRequest, now time.Time) (*rotation.State, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if !s.topo.Has(req.Position) {
		return nil, rotation.NewValidationError("seat", "unknown position %q", req.Position)
	}
	personnel := strings.TrimSpace(req.Personnel)

	el, err := s.eligibility(ctx)
	if err != nil {
		return nil, err
	}

	var (
		stored    *rotation.State
		displaced string
	)
	err = s.retry(ctx, scope, "seat", req.ExpectedRev == nil, func() error {
		state, err := s.store.Get(ctx, scope)
		if err != nil {
			return err
		}
		state.Assignments.Normalize(s.topo.AllPositions())

		expected := state.Rev
		if req.ExpectedRev != nil {
			expected = *req.ExpectedRev
		}

		next := state.Clone()
		a := next.Assignments
		displaced = ""
		if prev := a[req.Position]; prev != personnel {
			displaced = prev
		}

		if personnel != "" {
			a.Unseat(personnel)
			q, _ := breakqueue.FromEntries(s.topo.AllSections(), next.Queue)
			q.Remove(personnel)
			next.Queue = q.Entries()
		}
		a[req.Position] = personnel

		next.Conflicts = engine.Check(s.topo, a, now, el)
		markChanged(next, state.Assignments, a, now.UnixMilli())

		stored, err = s.store.Put(ctx, scope, next, rotation.PutOptions{
			TTL:         s.ttl(scope),
			ExpectedRev: &expected,
		})
		if rotation.IsOptimisticConflict(err) {
			s.logEvent(scope, "conflict_detected", map[string]interface{}{
				"operation":    "seat",
				"position_id":  req.Position,
				"expected_rev": expected,
			})
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update seat %s: %w", req.Position, err)
	}

	s.logEvent(scope, "seat_updated", map[string]interface{}{
		"position_id":  req.Position,
		"personnel_id": personnel,
		"displaced":    displaced,
		"rev":          stored.Rev,
	})
	return stored, nil
}
