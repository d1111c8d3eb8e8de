// Package repair cleans up historically malformed rotation records: free-text names or prefixed
// ids in seats and queues are canonicalized against the personnel directory, unresolvable
// references are dropped, and the one-seat and seated-xor-queued invariants are restored.
package repair

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/dyluth/rota/internal/directory"
	"github.com/dyluth/rota/internal/identity"
	"github.com/dyluth/rota/pkg/rotation"
)

// Options controls a repair run.
type Options struct {
	DryRun   bool          // Report without writing
	Prefixes []string      // Id prefixes stripped before lookup, e.g. "id:" or "#"
	TTL      time.Duration // Expiry to keep on sandbox records
}

// Change is one reference the repair touched.
type Change struct {
	Where  string `json:"where"` // Position id, or "queue:<section>"
	From   string `json:"from"`
	To     string `json:"to,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Report summarizes a repair run.
type Report struct {
	Scope      string   `json:"scope"`
	Resolved   []Change `json:"resolved"`
	Dropped    []Change `json:"dropped"`
	Duplicates []Change `json:"duplicates"`
	Written    bool     `json:"written"`
	Rev        int64    `json:"rev"`
}

// Changed reports whether the run found anything to fix.
func (r *Report) Changed() bool {
	return len(r.Resolved)+len(r.Dropped)+len(r.Duplicates) > 0
}

// Run repairs the record under key. The write is guarded by the revision that was read, so a
// concurrent update makes the run fail with OptimisticConflict instead of overwriting it.
func Run(ctx context.Context, store rotation.Store, key rotation.Key, dir directory.Directory, opts Options) (*Report, error) {
	people, err := dir.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list personnel: %w", err)
	}
	resolver := identity.NewResolver(directory.Candidates(people), opts.Prefixes)

	state, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	report := &Report{
		Scope:      key.String(),
		Resolved:   []Change{},
		Dropped:    []Change{},
		Duplicates: []Change{},
		Rev:        state.Rev,
	}
	next := state.Clone()

	resolve := func(where, ref string) (string, bool) {
		id, err := resolver.Resolve(ref)
		if err != nil {
			reason := "unknown"
			if identity.IsAmbiguousError(err) {
				reason = "ambiguous"
			}
			report.Dropped = append(report.Dropped, Change{Where: where, From: ref, Reason: reason})
			return "", false
		}
		if id != ref {
			report.Resolved = append(report.Resolved, Change{Where: where, From: ref, To: id})
		}
		return id, true
	}

	seated := make(map[string]string)
	for _, pos := range state.Assignments.Occupied() {
		id, ok := resolve(pos, state.Assignments[pos])
		if !ok {
			next.Assignments[pos] = ""
			continue
		}
		if first, dup := seated[id]; dup {
			report.Duplicates = append(report.Duplicates, Change{Where: pos, From: state.Assignments[pos], To: id, Reason: "also seated at " + first})
			next.Assignments[pos] = ""
			continue
		}
		seated[id] = pos
		next.Assignments[pos] = id
	}

	queued := make(map[string]bool)
	queue := make([]rotation.QueueEntry, 0, len(state.Queue))
	for _, e := range state.Queue {
		where := "queue:" + e.ReturnToSection
		id, ok := resolve(where, e.PersonnelID)
		if !ok {
			continue
		}
		if pos, isSeated := seated[id]; isSeated {
			report.Duplicates = append(report.Duplicates, Change{Where: where, From: e.PersonnelID, To: id, Reason: "seated at " + pos})
			continue
		}
		if queued[id] {
			report.Duplicates = append(report.Duplicates, Change{Where: where, From: e.PersonnelID, To: id, Reason: "queued twice"})
			continue
		}
		queued[id] = true
		e.PersonnelID = id
		queue = append(queue, e)
	}
	next.Queue = queue

	conflicts := make([]rotation.Conflict, 0, len(next.Conflicts))
	for _, c := range state.Conflicts {
		if next.Assignments[c.PositionID] == c.PersonnelID {
			conflicts = append(conflicts, c)
		}
	}
	next.Conflicts = conflicts

	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("repaired state still invalid: %w", err)
	}

	if !report.Changed() {
		log.Printf("[Repair] %s: nothing to repair", key)
		return report, nil
	}
	if opts.DryRun {
		log.Printf("[Repair] %s: dry run, %d resolved, %d dropped, %d duplicates", key,
			len(report.Resolved), len(report.Dropped), len(report.Duplicates))
		return report, nil
	}

	putOpts := rotation.PutOptions{ExpectedRev: rotation.Rev(state.Rev)}
	if key.IsSandbox() {
		putOpts.TTL = opts.TTL
	}
	stored, err := store.Put(ctx, key, next, putOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to write repaired state: %w", err)
	}

	report.Written = true
	report.Rev = stored.Rev
	logEvent(key, "repair_applied", map[string]interface{}{
		"resolved":   len(report.Resolved),
		"dropped":    len(report.Dropped),
		"duplicates": len(report.Duplicates),
		"rev":        stored.Rev,
	})
	return report, nil
}

// logEvent logs a structured event in JSON format.
func logEvent(key rotation.Key, eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "repair"
	data["event_type"] = eventType
	data["scope"] = key.String()

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Repair] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
