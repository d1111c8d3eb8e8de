package printer

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/rota/internal/topology"
	"github.com/dyluth/rota/pkg/rotation"
)

// FormatBoard writes the assignment of every position as a table grouped by section.
// Returns the number of occupied positions.
func FormatBoard(w io.Writer, topo *topology.Topology, state *rotation.State, scope string) int {
	fmt.Fprintf(w, "Board for %s (rev %d, tick %d", scope, state.Rev, state.Tick)
	if state.Period != "" {
		fmt.Fprintf(w, ", %s", state.Period)
	}
	fmt.Fprintf(w, "):\n\n")

	flagged := make(map[string][]string)
	for _, c := range state.Conflicts {
		flagged[c.PositionID] = append(flagged[c.PositionID], string(c.Reason))
	}

	fmt.Fprintf(w, "%-8s %-18s %-12s %-8s %s\n", "SEAT", "LABEL", "PERSONNEL", "CHANGED", "FLAGS")
	fmt.Fprintf(w, "%-8s %-18s %-12s %-8s %s\n", "--------", "------------------", "------------", "--------", "----------")

	occupied := 0
	for _, section := range topo.AllSections() {
		for _, pos := range topo.PositionsIn(section) {
			p, _ := topo.Position(pos)
			id := state.Assignments[pos]
			if id != "" {
				occupied++
			}

			flags := flagged[pos]
			if p.Rest {
				flags = append([]string{"rest"}, flags...)
			}
			fmt.Fprintf(w, "%-8s %-18s %-12s %-8s %s\n",
				pos,
				formatLabel(p.Label),
				dash(id),
				formatChanged(state.SeatUpdatedAt[pos]),
				dash(strings.Join(flags, ",")),
			)
		}
	}

	fmt.Fprintf(w, "\n%d of %d positions staffed, %d queued\n", occupied, len(topo.AllPositions()), len(state.Queue))
	return occupied
}

// FormatQueue writes the break queue per section. Returns the number of entries.
func FormatQueue(w io.Writer, topo *topology.Topology, queue []rotation.QueueEntry) int {
	if len(queue) == 0 {
		fmt.Fprintln(w, "Break queue is empty")
		return 0
	}

	bySection := make(map[string][]rotation.QueueEntry)
	var extra []string
	for _, e := range queue {
		if _, ok := bySection[e.ReturnToSection]; !ok && !topo.HasSection(e.ReturnToSection) {
			extra = append(extra, e.ReturnToSection)
		}
		bySection[e.ReturnToSection] = append(bySection[e.ReturnToSection], e)
	}

	for _, section := range append(topo.AllSections(), extra...) {
		entries := bySection[section]
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(w, "Section %s:\n", section)
		for i, e := range entries {
			fmt.Fprintf(w, "  %2d. %-12s (since tick %d)\n", i, e.PersonnelID, e.EnteredTick)
		}
	}
	return len(queue)
}

// FormatJSON writes v as pretty-printed JSON.
func FormatJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

// formatLabel truncates labels to 18 characters for table display.
func formatLabel(label string) string {
	if label == "" {
		return "-"
	}
	if len(label) > 18 {
		return label[:15] + "..."
	}
	return label
}

// formatChanged shows the wall-clock time a seat last changed, or "-" if never.
func formatChanged(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("15:04")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Faint prints de-emphasized text (used for frame metadata).
func Faint(format string, a ...any) {
	faint.Printf(format, a...)
}
