package rotation

import (
	"fmt"
	"time"

	"github.com/dyluth/rota/internal/instance"
)

// Redis key pattern helpers
//
// A logical key is a date identifier plus an optional sandbox instance. Sandbox keys never
// collide with the canonical key for the same date, so concurrent test sessions need no locking.
//
// Canonical: rota:{date}:{entity}
// Sandbox:   rota:{date}:sandbox:{instance}:{entity}

// DateLayout is the layout of the date identifier in every key.
const DateLayout = "2006-01-02"

// Key identifies one rotation state record.
type Key struct {
	Date     string // YYYY-MM-DD
	Instance string // Empty for canonical state
}

// CanonicalKey returns the production key for a date.
func CanonicalKey(date string) Key {
	return Key{Date: date}
}

// SandboxKey returns the isolated key for a sandbox instance on a date.
func SandboxKey(date, instanceName string) Key {
	return Key{Date: date, Instance: instanceName}
}

// KeyFor returns the key for the calendar date of t. An empty instance yields the canonical key.
func KeyFor(t time.Time, instanceName string) Key {
	return Key{Date: t.Format(DateLayout), Instance: instanceName}
}

// IsSandbox reports whether the key addresses a sandbox instance.
func (k Key) IsSandbox() bool {
	return k.Instance != ""
}

// Validate checks the date format and instance name.
func (k Key) Validate() error {
	if _, err := time.Parse(DateLayout, k.Date); err != nil {
		return validationf("key", "invalid date %q (expected YYYY-MM-DD)", k.Date)
	}
	if k.IsSandbox() {
		if err := instance.ValidateName(k.Instance); err != nil {
			return validationf("key", "%v", err)
		}
	}
	return nil
}

// String returns the scope label used in logs.
func (k Key) String() string {
	if k.IsSandbox() {
		return fmt.Sprintf("%s/sandbox/%s", k.Date, k.Instance)
	}
	return k.Date
}

func keyPrefix(k Key) string {
	if k.IsSandbox() {
		return fmt.Sprintf("rota:%s:sandbox:%s", k.Date, k.Instance)
	}
	return fmt.Sprintf("rota:%s", k.Date)
}

// StateKey returns the Redis key for the current state hash.
// Pattern: rota:{date}[:sandbox:{instance}]:state
func StateKey(k Key) string {
	return keyPrefix(k) + ":state"
}

// FrameIndexKey returns the Redis key of the lexicographic ZSET indexing historical frame rows.
// Pattern: rota:{date}[:sandbox:{instance}]:frames
func FrameIndexKey(k Key) string {
	return keyPrefix(k) + ":frames"
}

// FrameRowsKey returns the Redis key of the hash holding historical frame row payloads.
// Pattern: rota:{date}[:sandbox:{instance}]:frame_rows
func FrameRowsKey(k Key) string {
	return keyPrefix(k) + ":frame_rows"
}
