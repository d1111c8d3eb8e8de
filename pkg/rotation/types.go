package rotation

import (
	"sort"
	"strings"
)

// Assignment maps position id to personnel id. An empty string means the position is unassigned.
// Every known position is present; a personnel id appears in at most one position.
type Assignment map[string]string

// NewAssignment returns an assignment with every given position present and unassigned.
func NewAssignment(positions []string) Assignment {
	a := make(Assignment, len(positions))
	for _, id := range positions {
		a[id] = ""
	}
	return a
}

// Clone returns a copy of the assignment.
func (a Assignment) Clone() Assignment {
	out := make(Assignment, len(a))
	for pos, id := range a {
		out[pos] = id
	}
	return out
}

// Normalize adds every missing position as unassigned.
func (a Assignment) Normalize(positions []string) {
	for _, id := range positions {
		if _, ok := a[id]; !ok {
			a[id] = ""
		}
	}
}

// Positions returns all position ids in sorted order.
func (a Assignment) Positions() []string {
	out := make([]string, 0, len(a))
	for pos := range a {
		out = append(out, pos)
	}
	sort.Strings(out)
	return out
}

// Occupied returns the sorted ids of positions that hold someone.
func (a Assignment) Occupied() []string {
	out := make([]string, 0, len(a))
	for pos, id := range a {
		if id != "" {
			out = append(out, pos)
		}
	}
	sort.Strings(out)
	return out
}

// PositionOf returns the first position (in sorted order) holding personnelID.
func (a Assignment) PositionOf(personnelID string) (string, bool) {
	if personnelID == "" {
		return "", false
	}
	for _, pos := range a.Occupied() {
		if a[pos] == personnelID {
			return pos, true
		}
	}
	return "", false
}

// IsSeated reports whether personnelID holds any position.
func (a Assignment) IsSeated(personnelID string) bool {
	if personnelID == "" {
		return false
	}
	for _, id := range a {
		if id == personnelID {
			return true
		}
	}
	return false
}

// Unseat clears every position held by personnelID and returns the cleared position ids.
func (a Assignment) Unseat(personnelID string) []string {
	var cleared []string
	for _, pos := range a.Occupied() {
		if a[pos] == personnelID {
			a[pos] = ""
			cleared = append(cleared, pos)
		}
	}
	return cleared
}

// QueueEntry is one person waiting in a section's break queue.
type QueueEntry struct {
	PersonnelID     string `json:"personnel_id"`
	ReturnToSection string `json:"return_to_section"`
	EnteredTick     int    `json:"entered_tick"`
}

// ReasonCode identifies why a seat is flagged by the eligibility check.
type ReasonCode string

const (
	// ReasonMinimumAge flags an occupant younger than the position's minimum age
	ReasonMinimumAge ReasonCode = "minimum_age"

	// ReasonAgeUnknown flags an occupant of an age-restricted position with no date of birth on file
	ReasonAgeUnknown ReasonCode = "age_unknown"

	// ReasonNotAllowed flags an occupant missing from the allowed personnel set
	ReasonNotAllowed ReasonCode = "not_allowed"
)

// Conflict is an advisory eligibility finding. It never removes the occupant.
type Conflict struct {
	PositionID  string     `json:"position_id"`
	PersonnelID string     `json:"personnel_id"`
	Reason      ReasonCode `json:"reason"`
}

// Period is the time-of-day policy period that applied to a rotation.
type Period string

const (
	// PeriodPermissive keeps every position staffable
	PeriodPermissive Period = "permissive"

	// PeriodRestricted clears every position that is not a rest position
	PeriodRestricted Period = "restricted"
)

// State is one rotation frame: the unit of persistence.
type State struct {
	Assignments   Assignment            `json:"assignments"`
	Queue         []QueueEntry          `json:"queue"`  // Flat, section-grouped waiting order
	Breaks        map[string]QueueEntry `json:"breaks"` // personnel_id → entry, derived from Queue
	Conflicts     []Conflict            `json:"conflicts"`
	SeatUpdatedAt map[string]int64      `json:"seat_updated_at"` // position_id → unix ms of last change
	Period        Period                `json:"period,omitempty"`
	Tick          int                   `json:"tick"`
	Rev           int64                 `json:"rev"`
	UpdatedAtMs   int64                 `json:"updated_at_ms"`
	ExpiresAtMs   int64                 `json:"expires_at_ms,omitempty"` // Sandbox instances only
}

// NewState returns the default empty state every unseen key starts from.
func NewState() *State {
	return &State{
		Assignments:   Assignment{},
		Queue:         []QueueEntry{},
		Breaks:        map[string]QueueEntry{},
		Conflicts:     []Conflict{},
		SeatUpdatedAt: map[string]int64{},
	}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	out := *s
	out.Assignments = s.Assignments.Clone()
	out.Queue = append([]QueueEntry{}, s.Queue...)
	out.Conflicts = append([]Conflict{}, s.Conflicts...)
	out.Breaks = make(map[string]QueueEntry, len(s.Breaks))
	for id, e := range s.Breaks {
		out.Breaks[id] = e
	}
	out.SeatUpdatedAt = make(map[string]int64, len(s.SeatUpdatedAt))
	for pos, ms := range s.SeatUpdatedAt {
		out.SeatUpdatedAt[pos] = ms
	}
	return &out
}

// SyncBreaks rebuilds the breaks map from the queue.
func (s *State) SyncBreaks() {
	s.Breaks = make(map[string]QueueEntry, len(s.Queue))
	for _, e := range s.Queue {
		s.Breaks[e.PersonnelID] = e
	}
}

// Validate checks the state invariants: no double-booking, no duplicate queue entries,
// nobody both seated and queued.
func (s *State) Validate() error {
	seated := make(map[string]string)
	for _, pos := range s.Assignments.Occupied() {
		id := s.Assignments[pos]
		if other, ok := seated[id]; ok {
			return invariantf("validate", "personnel %s seated at both %s and %s", id, other, pos)
		}
		seated[id] = pos
	}

	queued := make(map[string]bool)
	for _, e := range s.Queue {
		if strings.TrimSpace(e.PersonnelID) == "" {
			return invariantf("validate", "queue entry with empty personnel id")
		}
		if queued[e.PersonnelID] {
			return invariantf("validate", "personnel %s queued more than once", e.PersonnelID)
		}
		if pos, ok := seated[e.PersonnelID]; ok {
			return invariantf("validate", "personnel %s both seated at %s and queued", e.PersonnelID, pos)
		}
		queued[e.PersonnelID] = true
	}

	return nil
}

// FrameRow is one historical per-position row of a persisted full frame.
type FrameRow struct {
	Timestamp   string `json:"timestamp"` // HH:MM:SS.mmm since local midnight
	PositionID  string `json:"position_id"`
	PersonnelID string `json:"personnel_id"`
	FrameID     string `json:"frame_id"`
	Tick        int    `json:"tick"`
}
