package engine

import (
	"time"

	"github.com/dyluth/rota/internal/breakqueue"
	"github.com/dyluth/rota/internal/topology"
	"github.com/dyluth/rota/pkg/rotation"
)

// TickInput is the full input of one rotation tick.
type TickInput struct {
	Assignment rotation.Assignment
	Queue      []rotation.QueueEntry
	Now        time.Time
	Policy     Policy
	TickNo     int
	Eligibility
}

// Refill records a vacant entry position filled from its section's break queue.
type Refill struct {
	PositionID  string `json:"position_id"`
	PersonnelID string `json:"personnel_id"`
}

// TickResult is the next assignment and queue after one tick.
type TickResult struct {
	Assignment rotation.Assignment
	Queue      []rotation.QueueEntry
	Conflicts  []rotation.Conflict
	Period     rotation.Period
	RotatedOff []Departure
	Cleared    []Departure
	Refilled   []Refill
	Anomalies  []error
}

// Tick advances the assignment, sends everyone who left a position to the break queue of their
// section's break target, then refills vacant entry positions from the queue. In the restricted
// period only rest entry positions are refilled.
func Tick(topo *topology.Topology, in TickInput) TickResult {
	adv := Advance(topo, AdvanceInput{
		Assignment:  in.Assignment,
		Now:         in.Now,
		Policy:      in.Policy,
		Eligibility: in.Eligibility,
	})

	res := TickResult{
		Assignment: adv.Assignment,
		Period:     adv.Period,
		RotatedOff: adv.RotatedOff,
		Cleared:    adv.Cleared,
		Refilled:   []Refill{},
		Anomalies:  adv.Anomalies,
	}

	q, dropped := breakqueue.FromEntries(topo.AllSections(), in.Queue)
	for _, id := range dropped {
		res.Anomalies = append(res.Anomalies, rotation.NewInvariantError("tick", "personnel %s queued more than once; kept first entry", id))
	}
	for _, id := range q.RemoveSeated(res.Assignment) {
		res.Anomalies = append(res.Anomalies, rotation.NewInvariantError("tick", "personnel %s both seated and queued; dropped queue entry", id))
	}

	for _, group := range [][]Departure{adv.RotatedOff, adv.Cleared} {
		for _, d := range group {
			target := topo.BreakTarget(topo.SectionOf(d.PositionID))
			q.Enqueue(d.PersonnelID, target, in.TickNo, res.Assignment)
		}
	}

	accept := func(id string) bool {
		return in.Allowed == nil || in.Allowed[id]
	}
	for _, section := range topo.AllSections() {
		for _, pos := range topo.EntryPositions(section) {
			if res.Assignment[pos] != "" {
				continue
			}
			if res.Period == rotation.PeriodRestricted && !topo.IsRestPosition(pos) {
				continue
			}
			entry, ok := q.DequeueFirst(section, accept)
			if !ok {
				continue
			}
			res.Assignment[pos] = entry.PersonnelID
			res.Refilled = append(res.Refilled, Refill{PositionID: pos, PersonnelID: entry.PersonnelID})
		}
	}

	res.Queue = q.Entries()
	res.Conflicts = Check(topo, res.Assignment, in.Now, in.Eligibility)
	return res
}
