package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/rota/internal/breakqueue"
	"github.com/dyluth/rota/internal/engine"
	"github.com/dyluth/rota/pkg/rotation"
)

// FrameOutcome describes a persisted full frame.
type FrameOutcome struct {
	State          *rotation.State     `json:"state"`
	Period         rotation.Period     `json:"period"`
	Conflicts      []rotation.Conflict `json:"conflicts"`
	RotatedOff     []engine.Departure  `json:"rotated_off"`
	Cleared        []engine.Departure  `json:"cleared"`
	Refilled       []engine.Refill     `json:"refilled"`
	FrameTimestamp string              `json:"frame_timestamp"`
	FrameID        string              `json:"frame_id"`
}

// FrameView is the board reconstructed from historical frame rows.
type FrameView struct {
	Assignment rotation.Assignment `json:"assignment"`
	Timestamp  string              `json:"timestamp"` // Greatest timestamp among the selected rows
	Rows       int                 `json:"rows"`      // Historical rows considered
}

// Board returns the current state, with every configured position present.
func (s *Service) Board(ctx context.Context, scope rotation.Key) (*rotation.State, error) {
	state, err := s.load(ctx, scope, "board")
	if err != nil {
		return nil, fmt.Errorf("failed to load board: %w", err)
	}
	return state, nil
}

// FrameBoard rebuilds the board from historical frame rows: per position, the row with the
// greatest timestamp wins.
func (s *Service) FrameBoard(ctx context.Context, scope rotation.Key) (*FrameView, error) {
	var rows []rotation.FrameRow
	err := s.retry(ctx, scope, "frame_board", false, func() error {
		var err error
		rows, err = s.store.ListFrameRows(ctx, scope, "")
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list frame rows: %w", err)
	}

	latest := rotation.LatestBoard(rows)
	view := &FrameView{
		Assignment: rotation.BoardAssignment(latest),
		Rows:       len(rows),
	}
	view.Assignment.Normalize(s.topo.AllPositions())
	for _, row := range latest {
		if row.Timestamp > view.Timestamp {
			view.Timestamp = row.Timestamp
		}
	}
	return view, nil
}

// Rotate advances the scope by one tick and persists the result as a full frame.
// The state and the frame rows are written in one transaction. The state is last-writer-wins
// against a concurrent rotate or populate, but each frame keeps its own rows.
func (s *Service) Rotate(ctx context.Context, scope rotation.Key, now time.Time) (*FrameOutcome, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	el, err := s.eligibility(ctx)
	if err != nil {
		return nil, err
	}

	state, err := s.load(ctx, scope, "rotate")
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	tick := state.Tick + 1
	res := engine.Tick(s.topo, engine.TickInput{
		Assignment:  state.Assignments,
		Queue:       state.Queue,
		Now:         now,
		Policy:      s.policy,
		TickNo:      tick,
		Eligibility: el,
	})
	s.reportAnomalies(scope, "rotate", res.Anomalies)

	next := state.Clone()
	next.Assignments = res.Assignment
	next.Queue = res.Queue
	next.Conflicts = res.Conflicts
	next.Period = res.Period
	next.Tick = tick
	markChanged(next, state.Assignments, res.Assignment, now.UnixMilli())

	out, err := s.writeFrame(ctx, scope, "rotate", next, now)
	if err != nil {
		return nil, err
	}
	out.Period = res.Period
	out.RotatedOff = res.RotatedOff
	out.Cleared = res.Cleared
	out.Refilled = res.Refilled

	s.logEvent(scope, "rotation_applied", map[string]interface{}{
		"tick":            tick,
		"period":          res.Period,
		"rotated_off":     len(res.RotatedOff),
		"cleared":         len(res.Cleared),
		"refilled":        len(res.Refilled),
		"conflicts":       len(res.Conflicts),
		"queue_length":    len(res.Queue),
		"frame_timestamp": out.FrameTimestamp,
		"rev":             out.State.Rev,
	})
	return out, nil
}

// Populate replaces the whole assignment as a full frame. Unknown position ids and double-booked
// personnel are rejected. Newly seated personnel leave the break queue.
func (s *Service) Populate(ctx context.Context, scope rotation.Key, assignment rotation.Assignment, now time.Time) (*FrameOutcome, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	wanted := rotation.NewAssignment(s.topo.AllPositions())
	seatedAt := make(map[string]string)
	for _, pos := range assignment.Positions() {
		if !s.topo.Has(pos) {
			return nil, rotation.NewValidationError("populate", "unknown position %q", pos)
		}
		id := assignment[pos]
		if id == "" {
			continue
		}
		if other, ok := seatedAt[id]; ok {
			return nil, rotation.NewValidationError("populate", "personnel %s assigned to both %s and %s", id, other, pos)
		}
		seatedAt[id] = pos
		wanted[pos] = id
	}

	el, err := s.eligibility(ctx)
	if err != nil {
		return nil, err
	}

	state, err := s.load(ctx, scope, "populate")
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	q, dropped := breakqueue.FromEntries(s.topo.AllSections(), state.Queue)
	for _, id := range dropped {
		s.reportAnomalies(scope, "populate", []error{rotation.NewInvariantError("populate", "personnel %s queued more than once", id)})
	}
	q.RemoveSeated(wanted)

	next := state.Clone()
	next.Assignments = wanted
	next.Queue = q.Entries()
	next.Conflicts = engine.Check(s.topo, wanted, now, el)
	next.Period = s.policy.Period(now)
	markChanged(next, state.Assignments, wanted, now.UnixMilli())

	out, err := s.writeFrame(ctx, scope, "populate", next, now)
	if err != nil {
		return nil, err
	}
	out.Period = next.Period
	return out, nil
}

// writeFrame stores next without a revision guard together with its frame rows, in one
// transaction. The rows get a timestamp that sorts after every earlier frame of the scope. A failed
// attempt leaves nothing behind, so retrying it can never apply the same frame twice.
func (s *Service) writeFrame(ctx context.Context, scope rotation.Key, op string, next *rotation.State, now time.Time) (*FrameOutcome, error) {
	opts := rotation.FrameOptions{
		Now:     now,
		FrameID: s.newFrameID(),
		TTL:     s.ttl(scope),
	}

	var written *rotation.FrameWrite
	err := s.retry(ctx, scope, op, true, func() error {
		var err error
		written, err = s.store.PutFrame(ctx, scope, next, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store frame: %w", err)
	}

	return &FrameOutcome{
		State:          written.State,
		Conflicts:      written.State.Conflicts,
		RotatedOff:     []engine.Departure{},
		Cleared:        []engine.Departure{},
		Refilled:       []engine.Refill{},
		FrameTimestamp: written.Timestamp,
		FrameID:        opts.FrameID,
	}, nil
}
