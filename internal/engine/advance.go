// Package engine advances seat assignments by one tick. Every function here is a pure,
// deterministic function of its inputs: the same topology, assignment and time always produce the
// same result, and nothing is read from or written to storage.
package engine

import (
	"time"

	"github.com/dyluth/rota/internal/topology"
	"github.com/dyluth/rota/pkg/rotation"
)

// Departure records a person leaving a position during a tick.
type Departure struct {
	PersonnelID string `json:"personnel_id"`
	PositionID  string `json:"position_id"`
}

// Eligibility is the personnel data consulted by the conflict check.
type Eligibility struct {
	// Birthdates maps personnel id to date of birth. Missing entries mean unknown.
	Birthdates map[string]time.Time

	// Allowed restricts who may be seated. Nil means everyone is allowed.
	Allowed map[string]bool
}

// AdvanceInput is the input of one propagation step.
type AdvanceInput struct {
	Assignment rotation.Assignment
	Now        time.Time
	Policy     Policy
	Eligibility
}

// AdvanceResult is the outcome of one propagation step.
type AdvanceResult struct {
	Assignment rotation.Assignment
	Conflicts  []rotation.Conflict
	Period     rotation.Period

	// RotatedOff lists occupants of ring termini, ordered by position id.
	RotatedOff []Departure

	// Cleared lists occupants removed by the restricted period, ordered by position id.
	Cleared []Departure

	// Anomalies are repaired invariant violations found in the input. They never abort the step.
	Anomalies []error
}

// Advance moves every occupant one hop along its ring, applies the period policy and checks
// eligibility. Positions unknown to the topology are ignored.
func Advance(topo *topology.Topology, in AdvanceInput) AdvanceResult {
	res := AdvanceResult{
		Assignment: rotation.NewAssignment(topo.AllPositions()),
		Period:     in.Policy.Period(in.Now),
	}

	current, anomalies := sanitize(topo, in.Assignment)
	res.Anomalies = anomalies

	for _, pos := range current.Occupied() {
		id := current[pos]
		next, ok := topo.NextPosition(pos)
		if !ok {
			res.RotatedOff = append(res.RotatedOff, Departure{PersonnelID: id, PositionID: pos})
			continue
		}
		if holder := res.Assignment[next]; holder != "" {
			// Unreachable with a validated topology (one incoming edge per position)
			res.Anomalies = append(res.Anomalies, rotation.NewInvariantError("advance",
				"%s and %s both propagate into %s", holder, id, next))
			res.RotatedOff = append(res.RotatedOff, Departure{PersonnelID: id, PositionID: pos})
			continue
		}
		res.Assignment[next] = id
	}

	if res.Period == rotation.PeriodRestricted {
		for _, pos := range res.Assignment.Occupied() {
			if topo.IsRestPosition(pos) {
				continue
			}
			res.Cleared = append(res.Cleared, Departure{PersonnelID: res.Assignment[pos], PositionID: pos})
			res.Assignment[pos] = ""
		}
	}

	res.Conflicts = Check(topo, res.Assignment, in.Now, in.Eligibility)
	return res
}

// sanitize drops unknown positions and repeated occupants. The first position in sorted id order
// keeps a double-booked occupant.
func sanitize(topo *topology.Topology, in rotation.Assignment) (rotation.Assignment, []error) {
	out := rotation.NewAssignment(topo.AllPositions())
	seen := make(map[string]string)
	var anomalies []error

	for _, pos := range in.Occupied() {
		if !topo.Has(pos) {
			continue
		}
		id := in[pos]
		if first, ok := seen[id]; ok {
			anomalies = append(anomalies, rotation.NewInvariantError("advance",
				"personnel %s seated at both %s and %s; kept %s", id, first, pos, first))
			continue
		}
		seen[id] = pos
		out[pos] = id
	}

	return out, anomalies
}

// Check reports eligibility conflicts for every occupied position of a, ordered by position id.
// Conflicts are advisory: the occupant is never removed.
func Check(topo *topology.Topology, a rotation.Assignment, now time.Time, el Eligibility) []rotation.Conflict {
	conflicts := []rotation.Conflict{}

	for _, pos := range a.Occupied() {
		p, ok := topo.Position(pos)
		if !ok {
			continue
		}
		id := a[pos]

		if p.MinAge > 0 {
			dob, known := el.Birthdates[id]
			switch {
			case !known:
				conflicts = append(conflicts, rotation.Conflict{PositionID: pos, PersonnelID: id, Reason: rotation.ReasonAgeUnknown})
			case AgeOn(dob, now) < p.MinAge:
				conflicts = append(conflicts, rotation.Conflict{PositionID: pos, PersonnelID: id, Reason: rotation.ReasonMinimumAge})
			}
		}

		if el.Allowed != nil && !el.Allowed[id] {
			conflicts = append(conflicts, rotation.Conflict{PositionID: pos, PersonnelID: id, Reason: rotation.ReasonNotAllowed})
		}
	}

	return conflicts
}

// AgeOn returns the age in whole years on the calendar date of now.
func AgeOn(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return years
}
