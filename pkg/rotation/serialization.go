package rotation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Serialization helpers for converting between State and its Redis hash
//
// Scalar fields are stored as individual hash fields; maps and lists are JSON-encoded into single
// fields. Reading is forgiving: any missing field takes its default so that partial or legacy
// records stay valid, which is what lets Get never report not-found.

const (
	fieldAssignments   = "assignments"
	fieldQueue         = "queue"
	fieldBreaks        = "breaks"
	fieldConflicts     = "conflicts"
	fieldSeatUpdatedAt = "seat_updated_at"
	fieldPeriod        = "period"
	fieldTick          = "tick"
	fieldRev           = "rev"
	fieldUpdatedAtMs   = "updated_at_ms"
	fieldExpiresAtMs   = "expires_at_ms"
)

// StateToHash converts a State to Redis hash format.
// The revision is not included: the store owns it.
func StateToHash(s *State) (map[string]interface{}, error) {
	assignmentsJSON, err := json.Marshal(s.Assignments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal assignments: %w", err)
	}

	queue := s.Queue
	if queue == nil {
		queue = []QueueEntry{}
	}
	queueJSON, err := json.Marshal(queue)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal queue: %w", err)
	}

	breaks := make(map[string]QueueEntry, len(queue))
	for _, e := range queue {
		breaks[e.PersonnelID] = e
	}
	breaksJSON, err := json.Marshal(breaks)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal breaks: %w", err)
	}

	conflicts := s.Conflicts
	if conflicts == nil {
		conflicts = []Conflict{}
	}
	conflictsJSON, err := json.Marshal(conflicts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conflicts: %w", err)
	}

	seatUpdatedAt := s.SeatUpdatedAt
	if seatUpdatedAt == nil {
		seatUpdatedAt = map[string]int64{}
	}
	seatJSON, err := json.Marshal(seatUpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal seat_updated_at: %w", err)
	}

	hash := map[string]interface{}{
		fieldAssignments:   string(assignmentsJSON),
		fieldQueue:         string(queueJSON),
		fieldBreaks:        string(breaksJSON),
		fieldConflicts:     string(conflictsJSON),
		fieldSeatUpdatedAt: string(seatJSON),
		fieldPeriod:        string(s.Period),
		fieldTick:          s.Tick,
		fieldUpdatedAtMs:   s.UpdatedAtMs,
		fieldExpiresAtMs:   s.ExpiresAtMs,
	}

	return hash, nil
}

// HashToState converts a Redis hash to a State, merging defaults for absent fields.
// An empty hash yields the default state. Fields that are present but not decodable are reported
// as invariant violations rather than silently discarded.
func HashToState(hash map[string]string) (*State, error) {
	s := NewState()

	if raw := hash[fieldAssignments]; raw != "" {
		// Legacy records wrote null for unassigned seats
		var assignments map[string]*string
		if err := json.Unmarshal([]byte(raw), &assignments); err != nil {
			return nil, invariantf("decode", "unreadable assignments field: %v", err)
		}
		for pos, id := range assignments {
			if id == nil {
				s.Assignments[pos] = ""
				continue
			}
			s.Assignments[pos] = strings.TrimSpace(*id)
		}
	}

	if raw := hash[fieldQueue]; raw != "" {
		var queue []QueueEntry
		if err := json.Unmarshal([]byte(raw), &queue); err != nil {
			return nil, invariantf("decode", "unreadable queue field: %v", err)
		}
		if queue != nil {
			s.Queue = queue
		}
	}

	var breaks map[string]QueueEntry
	if raw := hash[fieldBreaks]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &breaks); err != nil {
			return nil, invariantf("decode", "unreadable breaks field: %v", err)
		}
	}
	if _, hasQueue := hash[fieldQueue]; !hasQueue && len(breaks) > 0 {
		s.Queue = queueFromBreaks(breaks)
	}
	s.SyncBreaks()

	if raw := hash[fieldConflicts]; raw != "" {
		var conflicts []Conflict
		if err := json.Unmarshal([]byte(raw), &conflicts); err != nil {
			return nil, invariantf("decode", "unreadable conflicts field: %v", err)
		}
		if conflicts != nil {
			s.Conflicts = conflicts
		}
	}

	if raw := hash[fieldSeatUpdatedAt]; raw != "" {
		var seat map[string]int64
		if err := json.Unmarshal([]byte(raw), &seat); err != nil {
			return nil, invariantf("decode", "unreadable seat_updated_at field: %v", err)
		}
		if seat != nil {
			s.SeatUpdatedAt = seat
		}
	}

	s.Period = Period(hash[fieldPeriod])
	s.Tick, _ = strconv.Atoi(hash[fieldTick])
	s.Rev, _ = strconv.ParseInt(hash[fieldRev], 10, 64)
	s.UpdatedAtMs, _ = strconv.ParseInt(hash[fieldUpdatedAtMs], 10, 64)
	s.ExpiresAtMs, _ = strconv.ParseInt(hash[fieldExpiresAtMs], 10, 64)

	return s, nil
}

// queueFromBreaks rebuilds a flat queue from a legacy breaks-only record.
// Order: return section, then entered tick, then personnel id.
func queueFromBreaks(breaks map[string]QueueEntry) []QueueEntry {
	queue := make([]QueueEntry, 0, len(breaks))
	for id, e := range breaks {
		if e.PersonnelID == "" {
			e.PersonnelID = id
		}
		queue = append(queue, e)
	}
	sort.Slice(queue, func(i, j int) bool {
		a, b := queue[i], queue[j]
		if a.ReturnToSection != b.ReturnToSection {
			return a.ReturnToSection < b.ReturnToSection
		}
		if a.EnteredTick != b.EnteredTick {
			return a.EnteredTick < b.EnteredTick
		}
		return a.PersonnelID < b.PersonnelID
	})
	return queue
}
