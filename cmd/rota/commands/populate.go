package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dyluth/rota/internal/printer"
	"github.com/dyluth/rota/internal/timespec"
	"github.com/dyluth/rota/pkg/rotation"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var populateAt string

// populateFile is the on-disk layout of a populate request.
//
//	assignments:
//	  A.1: G1
//	  B.1: "José Álvarez"
type populateFile struct {
	Assignments map[string]string `yaml:"assignments"`
}

var populateCmd = &cobra.Command{
	Use:   "populate <file.yml>",
	Short: "Replace the whole board from a file",
	Long: `Replace every seat at once from a YAML file mapping position ids to personnel.
Positions left out of the file become vacant. Personnel may be given by id or
by name; names are matched ignoring case and accents.

The write is recorded as a new frame and is last-writer-wins: a concurrent
rotate or populate on the same date can overwrite it.

Example file:
  assignments:
    A.1: G1
    A.2: "Zoë Smith"
    B.1: G3`,
	Args: cobra.ExactArgs(1),
	RunE: runPopulate,
}

func init() {
	populateCmd.Flags().StringVar(&populateAt, "at", "", "Time of the frame (HH:MM[:SS], RFC3339, or duration offset)")
	rootCmd.AddCommand(populateCmd)
}

func runPopulate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	refs, err := loadPopulateFile(args[0])
	if err != nil {
		return printer.Error("invalid populate file", err.Error(), nil)
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	at, err := timespec.ParseAt(populateAt, now(), s.scope.Date, s.cfg.Location())
	if err != nil {
		return printer.Error("invalid --at", err.Error(), nil)
	}

	ids, err := s.activePersonnel(ctx)
	if err != nil {
		return err
	}
	assignment, err := resolveAssignment(ids, refs)
	if err != nil {
		return printer.Failure("populate", err)
	}

	outcome, err := s.svc.Populate(ctx, s.scope, assignment, at)
	if err != nil {
		return printer.Failure("populate", err)
	}

	printer.Success("Populated %s (frame %s, rev %d)\n", s.scope, outcome.FrameTimestamp, outcome.State.Rev)
	for _, c := range outcome.Conflicts {
		printer.Warning("%s at %s: %s\n", c.PersonnelID, c.PositionID, c.Reason)
	}
	fmt.Println()
	printer.FormatBoard(os.Stdout, s.svc.Topology(), outcome.State, s.scope.String())
	return nil
}

// loadPopulateFile reads position → personnel references from path.
func loadPopulateFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var f populateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(f.Assignments) == 0 {
		return nil, fmt.Errorf("%s has no assignments", path)
	}

	refs := make(map[string]string, len(f.Assignments))
	for pos, ref := range f.Assignments {
		refs[strings.TrimSpace(pos)] = strings.TrimSpace(ref)
	}
	return refs, nil
}

// resolveAssignment checks every non-empty reference against the active personnel ids.
func resolveAssignment(ids activeIDs, refs map[string]string) (rotation.Assignment, error) {
	assignment := make(rotation.Assignment, len(refs))
	for pos, ref := range refs {
		if ref == "" {
			assignment[pos] = ""
			continue
		}
		id, err := ids.lookup("populate", ref)
		if err != nil {
			return nil, err
		}
		assignment[pos] = id
	}
	return assignment, nil
}
