// Package directory reads the personnel roster: who is active, their names and dates of birth.
// The roster is owned elsewhere; this package only lists it.
package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/rota/internal/identity"
)

// DateLayout is the format of dates of birth in every backend.
const DateLayout = "2006-01-02"

// Person is one active roster entry.
type Person struct {
	ID          string
	Name        string
	DateOfBirth time.Time // Zero when unknown
}

// HasDateOfBirth reports whether the date of birth is on file.
func (p Person) HasDateOfBirth() bool {
	return !p.DateOfBirth.IsZero()
}

// Directory lists active personnel.
type Directory interface {
	ListActive(ctx context.Context) ([]Person, error)
}

// Kinds of directory backend.
const (
	KindYAML   = "yaml"
	KindSQLite = "sqlite"
)

// Open returns the backend for kind reading from path. The returned close function releases any
// resources held by the backend.
func Open(kind, path string) (Directory, func() error, error) {
	switch kind {
	case KindYAML, "":
		return NewYAMLDirectory(path), func() error { return nil }, nil
	case KindSQLite:
		db, err := OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		return NewSQLiteDirectory(db), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown directory kind %q (expected %q or %q)", kind, KindYAML, KindSQLite)
	}
}

// Birthdates maps personnel id to known date of birth.
func Birthdates(people []Person) map[string]time.Time {
	out := make(map[string]time.Time, len(people))
	for _, p := range people {
		if p.HasDateOfBirth() {
			out[p.ID] = p.DateOfBirth
		}
	}
	return out
}

// Allowed returns the set of active personnel ids.
func Allowed(people []Person) map[string]bool {
	out := make(map[string]bool, len(people))
	for _, p := range people {
		out[p.ID] = true
	}
	return out
}

// Candidates converts the roster into identity resolver input.
func Candidates(people []Person) []identity.Person {
	out := make([]identity.Person, 0, len(people))
	for _, p := range people {
		out = append(out, identity.Person{ID: p.ID, Name: p.Name})
	}
	return out
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date of birth %q (expected YYYY-MM-DD)", raw)
	}
	return t, nil
}
