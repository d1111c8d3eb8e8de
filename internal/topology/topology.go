// Package topology models the static graph of positions: per-section rotation rings, section
// membership, rest positions and minimum-age requirements. It is pure and side-effect free.
package topology

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// positionIDPattern matches <section>.<index>
var positionIDPattern = regexp.MustCompile(`^([A-Za-z0-9_-]+)\.([0-9]+)$`)

// PositionSpec is the configured shape of one position.
type PositionSpec struct {
	ID     string `yaml:"id"`
	Label  string `yaml:"label"`
	Next   string `yaml:"next,omitempty"`    // Empty marks a ring terminus
	Rest   bool   `yaml:"rest,omitempty"`    // Exempt from restricted-period clearing
	Entry  bool   `yaml:"entry,omitempty"`   // Refilled from the section break queue when vacant
	MinAge int    `yaml:"min_age,omitempty"` // 0 = no requirement
}

// SectionSpec is the configured shape of one section.
type SectionSpec struct {
	ID        string         `yaml:"id"`
	BreakTo   string         `yaml:"break_to,omitempty"` // Break-queue section for personnel rotated off; defaults to ID
	Positions []PositionSpec `yaml:"positions"`
}

// Position is a validated position.
type Position struct {
	ID      string
	Label   string
	Section string
	Index   int
	Next    string
	Rest    bool
	Entry   bool
	MinAge  int
}

// Topology is an immutable, validated position graph.
type Topology struct {
	positions map[string]*Position
	order     []string            // position ids sorted by section order, then index
	sections  []string            // configured order
	members   map[string][]string // section → position ids in order
	breakTo   map[string]string
}

// New validates the section specs and builds a Topology.
func New(sections []SectionSpec) (*Topology, error) {
	if len(sections) == 0 {
		return nil, fmt.Errorf("topology must define at least one section")
	}

	t := &Topology{
		positions: make(map[string]*Position),
		members:   make(map[string][]string),
		breakTo:   make(map[string]string),
	}

	for _, sec := range sections {
		if sec.ID == "" {
			return nil, fmt.Errorf("section id is required")
		}
		if strings.ContainsAny(sec.ID, ".:|") {
			return nil, fmt.Errorf("section '%s': id cannot contain '.', ':' or '|'", sec.ID)
		}
		if _, dup := t.members[sec.ID]; dup {
			return nil, fmt.Errorf("duplicate section '%s'", sec.ID)
		}
		if len(sec.Positions) == 0 {
			return nil, fmt.Errorf("section '%s': no positions defined", sec.ID)
		}

		t.sections = append(t.sections, sec.ID)
		t.members[sec.ID] = nil

		for _, spec := range sec.Positions {
			m := positionIDPattern.FindStringSubmatch(spec.ID)
			if m == nil {
				return nil, fmt.Errorf("section '%s': invalid position id '%s' (expected <section>.<index>)", sec.ID, spec.ID)
			}
			if m[1] != sec.ID {
				return nil, fmt.Errorf("position '%s' is listed under section '%s' but its id names section '%s'", spec.ID, sec.ID, m[1])
			}
			if _, dup := t.positions[spec.ID]; dup {
				return nil, fmt.Errorf("duplicate position '%s'", spec.ID)
			}
			if spec.MinAge < 0 {
				return nil, fmt.Errorf("position '%s': min_age must be >= 0", spec.ID)
			}

			index, _ := strconv.Atoi(m[2])
			label := spec.Label
			if label == "" {
				label = spec.ID
			}

			t.positions[spec.ID] = &Position{
				ID:      spec.ID,
				Label:   label,
				Section: sec.ID,
				Index:   index,
				Next:    spec.Next,
				Rest:    spec.Rest,
				Entry:   spec.Entry,
				MinAge:  spec.MinAge,
			}
			t.members[sec.ID] = append(t.members[sec.ID], spec.ID)
		}

		t.breakTo[sec.ID] = sec.BreakTo
		if sec.BreakTo == "" {
			t.breakTo[sec.ID] = sec.ID
		}
	}

	if err := t.validateEdges(); err != nil {
		return nil, err
	}

	for _, sec := range t.sections {
		if _, ok := t.members[t.breakTo[sec]]; !ok {
			return nil, fmt.Errorf("section '%s': break_to names unknown section '%s'", sec, t.breakTo[sec])
		}
		ids := t.members[sec]
		sort.SliceStable(ids, func(i, j int) bool {
			return t.positions[ids[i]].Index < t.positions[ids[j]].Index
		})
		t.order = append(t.order, ids...)
	}

	return t, nil
}

// validateEdges checks every next pointer and that no position has two incoming edges,
// which is what keeps propagation from ever double-booking a seat.
func (t *Topology) validateEdges() error {
	incoming := make(map[string]string)
	for _, sec := range t.sections {
		for _, id := range t.members[sec] {
			p := t.positions[id]
			if p.Next == "" {
				continue
			}
			next, ok := t.positions[p.Next]
			if !ok {
				return fmt.Errorf("position '%s': next names unknown position '%s'", id, p.Next)
			}
			if next.Section != p.Section {
				return fmt.Errorf("position '%s': next '%s' is in another section", id, p.Next)
			}
			if p.Next == id {
				return fmt.Errorf("position '%s': next cannot point to itself", id)
			}
			if from, dup := incoming[p.Next]; dup {
				return fmt.Errorf("position '%s' has two incoming edges (from '%s' and '%s')", p.Next, from, id)
			}
			incoming[p.Next] = id
		}
	}
	return nil
}

// NextPosition returns the deterministic next hop of id, or false for a ring terminus or unknown id.
func (t *Topology) NextPosition(id string) (string, bool) {
	p, ok := t.positions[id]
	if !ok || p.Next == "" {
		return "", false
	}
	return p.Next, true
}

// SectionOf returns the section of a position id. Unknown ids fall back to the id prefix.
func (t *Topology) SectionOf(id string) string {
	if p, ok := t.positions[id]; ok {
		return p.Section
	}
	section, _, _ := strings.Cut(id, ".")
	return section
}

// IsRestPosition reports whether id is exempt from restricted-period clearing.
func (t *Topology) IsRestPosition(id string) bool {
	p, ok := t.positions[id]
	return ok && p.Rest
}

// Has reports whether id is a known position.
func (t *Topology) Has(id string) bool {
	_, ok := t.positions[id]
	return ok
}

// Position returns a copy of the position with the given id.
func (t *Topology) Position(id string) (Position, bool) {
	p, ok := t.positions[id]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// AllPositions returns every position id, grouped by section in configured order.
func (t *Topology) AllPositions() []string {
	return append([]string{}, t.order...)
}

// AllSections returns every section id in configured order.
func (t *Topology) AllSections() []string {
	return append([]string{}, t.sections...)
}

// HasSection reports whether section is configured.
func (t *Topology) HasSection(section string) bool {
	_, ok := t.members[section]
	return ok
}

// PositionsIn returns the position ids of a section ordered by index.
func (t *Topology) PositionsIn(section string) []string {
	return append([]string{}, t.members[section]...)
}

// EntryPositions returns the entry positions of a section ordered by index.
func (t *Topology) EntryPositions(section string) []string {
	var out []string
	for _, id := range t.members[section] {
		if t.positions[id].Entry {
			out = append(out, id)
		}
	}
	return out
}

// BreakTarget returns the break-queue section that receives personnel rotating off section.
func (t *Topology) BreakTarget(section string) string {
	if target, ok := t.breakTo[section]; ok {
		return target
	}
	return section
}
