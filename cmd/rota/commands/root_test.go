package commands

import (
	"bytes"
	"errors"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/dyluth/rota/internal/breakqueue"
	"github.com/dyluth/rota/pkg/rotation"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRootCommand_ShowsHelpWhenNoSubcommand tests that the root command
// shows help instead of silently succeeding when invoked without a subcommand
func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	assert.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "Usage:", "Help should be displayed")
	assert.Contains(t, output, "rota", "Help should show command name")
}

// TestRootCommand_RejectsUnknownFlags tests that unknown flags
// passed to the root command cause an error instead of being silently ignored
func TestRootCommand_RejectsUnknownFlags(t *testing.T) {
	testRoot := &cobra.Command{
		Use:   "rota",
		Short: "Test root command",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
	}
	testRoot.SetArgs([]string{"--unknown-flag", "value"})

	buf := new(bytes.Buffer)
	testRoot.SetOut(buf)
	testRoot.SetErr(buf)

	err := testRoot.Execute()

	assert.Error(t, err, "Unknown flags should cause an error")
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestRootCommand_RegistersCommands(t *testing.T) {
	for _, path := range [][]string{
		{"init"}, {"board"}, {"rotate"}, {"populate"}, {"seat"}, {"unseat"}, {"repair"},
		{"queue", "list"}, {"queue", "add"}, {"queue", "move"}, {"queue", "remove"}, {"queue", "clear"},
		{"sandbox", "new"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, "command %v", path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	for _, name := range []string{"config", "date", "sandbox"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "global flag --%s", name)
	}
	assert.Equal(t, "rota.yml", rootCmd.PersistentFlags().Lookup("config").DefValue)
}

func TestSetVersionInfo(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2026-06-01")
	assert.Equal(t, "1.2.3 (commit: abc123, built: 2026-06-01)", rootCmd.Version)
}

func TestSandboxNew_PrintsUsableName(t *testing.T) {
	buf := new(bytes.Buffer)
	sandboxNewCmd.SetOut(buf)

	require.NoError(t, sandboxNewCmd.RunE(sandboxNewCmd, nil))
	assert.Contains(t, buf.String(), "rota --sandbox ")
}

func TestLoadPopulateFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid", func(t *testing.T) {
		path := filepath.Join(dir, "ok.yml")
		require.NoError(t, os.WriteFile(path, []byte(`
assignments:
  A.1: G1
  " B.1 ": " José Álvarez "
  A.2: ""
`), 0644))

		refs, err := loadPopulateFile(path)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"A.1": "G1", "B.1": "José Álvarez", "A.2": ""}, refs)
	})

	t.Run("empty", func(t *testing.T) {
		path := filepath.Join(dir, "empty.yml")
		require.NoError(t, os.WriteFile(path, []byte("assignments: {}\n"), 0644))

		_, err := loadPopulateFile(path)
		assert.ErrorContains(t, err, "no assignments")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yml")
		require.NoError(t, os.WriteFile(path, []byte("assignments: [unclosed\n"), 0644))

		_, err := loadPopulateFile(path)
		assert.ErrorContains(t, err, "failed to parse")
	})

	t.Run("missing", func(t *testing.T) {
		_, err := loadPopulateFile(filepath.Join(dir, "nope.yml"))
		assert.ErrorContains(t, err, "failed to read")
	})
}

func TestResolveAssignment(t *testing.T) {
	ids := activeIDs{"G1": {}, "G2": {}, "G3": {}}

	t.Run("exact active ids", func(t *testing.T) {
		a, err := resolveAssignment(ids, map[string]string{
			"A.1": "G1",
			"A.2": " G2 ",
			"B.1": "",
		})
		require.NoError(t, err)
		assert.Equal(t, rotation.Assignment{"A.1": "G1", "A.2": "G2", "B.1": ""}, a)
	})

	for _, ref := range []string{"Ann Smith", "id:G1", "g1", "G", "G9"} {
		t.Run("rejects "+ref, func(t *testing.T) {
			_, err := resolveAssignment(ids, map[string]string{"A.1": ref})
			require.Error(t, err)
			assert.True(t, rotation.IsValidation(err))
			assert.Contains(t, rotation.UserMessage(err), "not an active personnel id")
		})
	}
}

func TestActiveIDsLookup(t *testing.T) {
	ids := activeIDs{"G1": {}}

	id, err := ids.lookup("seat", "G1")
	require.NoError(t, err)
	assert.Equal(t, "G1", id)

	_, err = ids.lookup("seat", "  ")
	assert.True(t, rotation.IsValidation(err))

	_, err = ids.lookup("queue_add", "Ann")
	assert.True(t, rotation.IsValidation(err))
}

func TestParseLocation(t *testing.T) {
	loc, err := parseLocation("B", "2")
	require.NoError(t, err)
	assert.Equal(t, breakqueue.Location{Section: "B", Index: 2}, loc)

	for _, bad := range []string{"-1", "x", ""} {
		_, err := parseLocation("B", bad)
		assert.Error(t, err, "index %q", bad)
	}
}

func TestSessionClose_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	var order []string
	s := &session{closers: []closer{
		{name: "storage client", close: func() error {
			order = append(order, "storage client")
			return errors.New("connection reset")
		}},
		{name: "personnel directory", close: func() error {
			order = append(order, "personnel directory")
			return nil
		}},
	}}
	s.Close()

	assert.Equal(t, []string{"personnel directory", "storage client"}, order)
	assert.Contains(t, buf.String(), "[Rota] Failed to close storage client: connection reset")
	assert.NotContains(t, buf.String(), "personnel directory")
}
