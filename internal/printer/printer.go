package printer

import (
	"fmt"
	"os"
	"strings"

	"github.com/dyluth/rota/pkg/rotation"
	"github.com/fatih/color"
)

func init() {
	// Force color output even when not connected to TTY
	// Users can disable with NO_COLOR environment variable
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// Success prints a success message in green with a checkmark prefix
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		green.Printf("✓ %s", msg)
	} else {
		green.Print(msg)
	}
}

// Info prints an informational message in the default color
func Info(format string, a ...any) {
	fmt.Printf(format, a...)
}

// Warning prints a warning message in yellow with a warning prefix
func Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		yellow.Printf("⚠️  %s", msg)
	} else {
		yellow.Print(msg)
	}
}

// Step prints a step message with emphasis
func Step(format string, a ...any) {
	cyan.Printf("→ %s", fmt.Sprintf(format, a...))
}

// Error prints a titled error with an explanation and suggestions to stderr and returns a simple
// error for Cobra
func Error(title string, explanation string, suggestions []string) error {
	red.Fprintf(os.Stderr, "%s\n\n", title)
	fmt.Fprintf(os.Stderr, "%s\n", explanation)

	if len(suggestions) > 0 {
		fmt.Fprintf(os.Stderr, "\n")
		if len(suggestions) == 1 {
			fmt.Fprintf(os.Stderr, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(os.Stderr, "Either:\n")
			for i, suggestion := range suggestions {
				fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, suggestion)
			}
		}
	}

	// Return simple error for Cobra (won't be printed due to SilenceErrors)
	return fmt.Errorf("%s", title)
}

// Failure reports err by taxonomy kind only. Storage internals never reach the terminal.
func Failure(action string, err error) error {
	kind := rotation.KindName(err)
	title := fmt.Sprintf("%s failed: %s", action, kind)
	return Error(title, rotation.UserMessage(err), Suggestions(err))
}

// Suggestions returns what the user can do about err.
func Suggestions(err error) []string {
	switch {
	case rotation.IsOptimisticConflict(err):
		return []string{"The board changed since you read it. Run 'rota board' and retry with the new --rev."}
	case rotation.IsStorageUnavailable(err):
		return []string{
			"Check that Redis is reachable at the configured redis_url",
			"Override the address with ROTA_REDIS_URL",
		}
	case rotation.IsValidation(err):
		return []string{"Check position ids and sections against rota.yml, and personnel ids against the active roster"}
	default:
		return nil
	}
}
