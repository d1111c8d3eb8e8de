// Package breakqueue maintains the per-section ordered waiting lists of personnel who rotated off
// a position. Lists are FIFO by default and explicitly reorderable. Across all sections each
// personnel id appears at most once, and never while seated.
package breakqueue

import (
	"fmt"

	"github.com/dyluth/rota/pkg/rotation"
)

// Seated reports whether a personnel id currently holds a position. rotation.Assignment satisfies it.
type Seated interface {
	IsSeated(personnelID string) bool
}

// Location addresses one entry: a section list and an index within it.
type Location struct {
	Section string
	Index   int
}

// Queue is an arena of section lists plus a section → slot index.
type Queue struct {
	sections []string
	lists    [][]rotation.QueueEntry
	slot     map[string]int
}

// New returns an empty queue with one list per section, in the given order.
func New(sections []string) *Queue {
	q := &Queue{slot: make(map[string]int, len(sections))}
	for _, s := range sections {
		q.ensure(s)
	}
	return q
}

// FromEntries builds a queue from the flat frame queue. Entries keep their relative order within
// each section. Sections not listed are appended in first-seen order. Repeated personnel ids are
// dropped (first occurrence wins) and returned so the caller can report the anomaly.
func FromEntries(sections []string, entries []rotation.QueueEntry) (*Queue, []string) {
	q := New(sections)
	seen := make(map[string]bool, len(entries))
	var dropped []string

	for _, e := range entries {
		if e.PersonnelID == "" {
			continue
		}
		if seen[e.PersonnelID] {
			dropped = append(dropped, e.PersonnelID)
			continue
		}
		seen[e.PersonnelID] = true
		i := q.ensure(e.ReturnToSection)
		q.lists[i] = append(q.lists[i], e)
	}

	return q, dropped
}

func (q *Queue) ensure(section string) int {
	if i, ok := q.slot[section]; ok {
		return i
	}
	q.sections = append(q.sections, section)
	q.lists = append(q.lists, nil)
	q.slot[section] = len(q.lists) - 1
	return len(q.lists) - 1
}

// Entries flattens the queue back into frame order: sections in order, entries in list order.
func (q *Queue) Entries() []rotation.QueueEntry {
	out := make([]rotation.QueueEntry, 0, q.Total())
	for _, list := range q.lists {
		out = append(out, list...)
	}
	return out
}

// Sections returns the section ids in arena order.
func (q *Queue) Sections() []string {
	return append([]string{}, q.sections...)
}

// Section returns a copy of one section's list.
func (q *Queue) Section(section string) []rotation.QueueEntry {
	i, ok := q.slot[section]
	if !ok {
		return []rotation.QueueEntry{}
	}
	return append([]rotation.QueueEntry{}, q.lists[i]...)
}

// Len returns the length of one section's list.
func (q *Queue) Len(section string) int {
	i, ok := q.slot[section]
	if !ok {
		return 0
	}
	return len(q.lists[i])
}

// Total returns the number of entries across all sections.
func (q *Queue) Total() int {
	n := 0
	for _, list := range q.lists {
		n += len(list)
	}
	return n
}

// Locate returns where personnelID is queued.
func (q *Queue) Locate(personnelID string) (Location, bool) {
	for i, list := range q.lists {
		for j, e := range list {
			if e.PersonnelID == personnelID {
				return Location{Section: q.sections[i], Index: j}, true
			}
		}
	}
	return Location{}, false
}

// Contains reports whether personnelID is queued in any section.
func (q *Queue) Contains(personnelID string) bool {
	_, ok := q.Locate(personnelID)
	return ok
}

// Enqueue appends personnelID to the tail of section. It is a no-op (returning false) when the id
// is empty, already queued anywhere, or currently seated.
func (q *Queue) Enqueue(personnelID, section string, tick int, seated Seated) bool {
	if personnelID == "" || q.Contains(personnelID) {
		return false
	}
	if seated != nil && seated.IsSeated(personnelID) {
		return false
	}

	i := q.ensure(section)
	q.lists[i] = append(q.lists[i], rotation.QueueEntry{
		PersonnelID:     personnelID,
		ReturnToSection: section,
		EnteredTick:     tick,
	})
	return true
}

// DequeueFront removes and returns the head of section.
func (q *Queue) DequeueFront(section string) (rotation.QueueEntry, bool) {
	return q.DequeueFirst(section, nil)
}

// DequeueFirst removes and returns the first entry of section accepted by accept (nil accepts all).
// Entries ahead of it stay in place.
func (q *Queue) DequeueFirst(section string, accept func(personnelID string) bool) (rotation.QueueEntry, bool) {
	i, ok := q.slot[section]
	if !ok {
		return rotation.QueueEntry{}, false
	}
	for j, e := range q.lists[i] {
		if accept != nil && !accept(e.PersonnelID) {
			continue
		}
		q.lists[i] = append(q.lists[i][:j:j], q.lists[i][j+1:]...)
		return e, true
	}
	return rotation.QueueEntry{}, false
}

// MoveWithinQueue relocates personnelID from (from.Section, from.Index) to to.Section at
// to.Index, clamped to the destination bounds. The entry must be at the stated origin.
func (q *Queue) MoveWithinQueue(personnelID string, from, to Location) error {
	fi, ok := q.slot[from.Section]
	if !ok {
		return rotation.NewValidationError("move", "unknown queue section %q", from.Section)
	}
	if from.Index < 0 || from.Index >= len(q.lists[fi]) || q.lists[fi][from.Index].PersonnelID != personnelID {
		return rotation.NewValidationError("move", "%s is not queued at %s[%d]", personnelID, from.Section, from.Index)
	}

	ti := q.ensure(to.Section)
	lists, err := Move(q.lists, fi, from.Index, ti, to.Index)
	if err != nil {
		return rotation.NewValidationError("move", "%v", err)
	}

	moved := lists[ti]
	for j := range moved {
		if moved[j].PersonnelID == personnelID {
			moved[j].ReturnToSection = to.Section
		}
	}
	q.lists = lists
	return nil
}

// Remove deletes personnelID from whichever list holds it. Returns false if it was not queued.
func (q *Queue) Remove(personnelID string) bool {
	loc, ok := q.Locate(personnelID)
	if !ok {
		return false
	}
	i := q.slot[loc.Section]
	q.lists[i] = append(q.lists[i][:loc.Index:loc.Index], q.lists[i][loc.Index+1:]...)
	return true
}

// RemoveSeated drops every queued id that is currently seated and returns them.
func (q *Queue) RemoveSeated(seated Seated) []string {
	var removed []string
	for i, list := range q.lists {
		kept := list[:0:0]
		for _, e := range list {
			if seated.IsSeated(e.PersonnelID) {
				removed = append(removed, e.PersonnelID)
				continue
			}
			kept = append(kept, e)
		}
		q.lists[i] = kept
	}
	return removed
}

// ClearAll empties every section list.
func (q *Queue) ClearAll() {
	for i := range q.lists {
		q.lists[i] = nil
	}
}

func (q *Queue) String() string {
	return fmt.Sprintf("breakqueue(%d sections, %d entries)", len(q.sections), q.Total())
}
