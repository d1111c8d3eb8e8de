package instance

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// SandboxNamePrefix is the prefix for generated sandbox instance names
	SandboxNamePrefix = "sandbox-"

	// MaxNameLength is the maximum length for an instance name (DNS-compatible)
	MaxNameLength = 63
)

var (
	// NamePattern is the regex pattern for valid instance names
	// Must be DNS-compatible: lowercase alphanumeric, hyphens allowed (but not at start/end)
	// Allows single character or multiple characters with optional hyphens in between
	NamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)
)

// ValidateName checks if a sandbox instance name is valid according to DNS naming rules.
// Instance names become part of Redis keys, so they must never contain ':'.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("instance name cannot be empty")
	}

	if len(name) > MaxNameLength {
		return fmt.Errorf("instance name too long: %d characters (max: %d)", len(name), MaxNameLength)
	}

	if !NamePattern.MatchString(name) {
		return fmt.Errorf("invalid instance name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}

	return nil
}

// GenerateSandboxName returns a fresh sandbox instance name of the form sandbox-<8 hex chars>.
// Each test session gets its own name and therefore its own storage key.
func GenerateSandboxName() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return SandboxNamePrefix + id[:8]
}
