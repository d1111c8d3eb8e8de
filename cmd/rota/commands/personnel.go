package commands

import (
	"context"
	"strings"

	"github.com/dyluth/rota/internal/printer"
	"github.com/dyluth/rota/pkg/rotation"
)

// activeIDs is the set of personnel ids the directory currently lists as active.
type activeIDs map[string]struct{}

// activePersonnel reads the active roster. Operator commands place personnel by exact id only;
// name and prefix matching belongs to offline repair.
func (s *session) activePersonnel(ctx context.Context) (activeIDs, error) {
	people, err := s.dir.ListActive(ctx)
	if err != nil {
		return nil, printer.Error("failed to read personnel directory", err.Error(), nil)
	}
	ids := make(activeIDs, len(people))
	for _, p := range people {
		ids[p.ID] = struct{}{}
	}
	return ids, nil
}

// lookup returns ref as a personnel id if it is exactly one of the active ids.
func (ids activeIDs) lookup(op, ref string) (string, error) {
	id := strings.TrimSpace(ref)
	if id == "" {
		return "", rotation.NewValidationError(op, "personnel id is required")
	}
	if _, ok := ids[id]; !ok {
		return "", rotation.NewValidationError(op, "personnel %q is not an active personnel id", id)
	}
	return id, nil
}
