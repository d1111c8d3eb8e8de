package directory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// rosterFile is the on-disk shape of a YAML roster.
type rosterFile struct {
	Personnel []rosterEntry `yaml:"personnel"`
}

type rosterEntry struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	DateOfBirth string `yaml:"dob,omitempty"`
	Active      *bool  `yaml:"active,omitempty"` // Defaults to true
}

// YAMLDirectory reads the roster from a YAML file on every call.
type YAMLDirectory struct {
	path string
}

// NewYAMLDirectory creates a directory backed by the file at path.
func NewYAMLDirectory(path string) *YAMLDirectory {
	return &YAMLDirectory{path: path}
}

// ListActive returns active personnel sorted by id.
func (d *YAMLDirectory) ListActive(ctx context.Context) ([]Person, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster: %w", err)
	}

	return parseRoster(data)
}

func parseRoster(data []byte) ([]Person, error) {
	var file rosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}

	seen := make(map[string]bool, len(file.Personnel))
	people := make([]Person, 0, len(file.Personnel))
	for i, entry := range file.Personnel {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			return nil, fmt.Errorf("roster entry %d: id is required", i)
		}
		if seen[id] {
			return nil, fmt.Errorf("roster entry %d: duplicate id %q", i, id)
		}
		seen[id] = true

		if entry.Active != nil && !*entry.Active {
			continue
		}

		dob, err := parseDate(entry.DateOfBirth)
		if err != nil {
			return nil, fmt.Errorf("roster entry %q: %w", id, err)
		}
		people = append(people, Person{ID: id, Name: strings.TrimSpace(entry.Name), DateOfBirth: dob})
	}

	sort.Slice(people, func(i, j int) bool { return people[i].ID < people[j].ID })
	return people, nil
}
