// Package identity resolves loosely formed personnel references (raw ids, prefixed ids, free-text
// names) to stable personnel ids. It is used by offline repair jobs, never on the request path.
package identity

import (
	"fmt"
	"sort"
	"strings"
)

// Person is the directory data the resolver indexes.
type Person struct {
	ID   string
	Name string
}

// NameIndex maps folded names to personnel ids. Names shared by more than one id are kept aside
// as ambiguous and never resolve.
type NameIndex struct {
	byName    map[string]string
	ambiguous map[string][]string
}

// NewNameIndex indexes people by folded name.
func NewNameIndex(people []Person) *NameIndex {
	ix := &NameIndex{
		byName:    make(map[string]string),
		ambiguous: make(map[string][]string),
	}

	for _, p := range people {
		name := Fold(p.Name)
		if name == "" || p.ID == "" {
			continue
		}
		if ids, ok := ix.ambiguous[name]; ok {
			ix.ambiguous[name] = append(ids, p.ID)
			continue
		}
		if existing, ok := ix.byName[name]; ok && existing != p.ID {
			delete(ix.byName, name)
			ix.ambiguous[name] = []string{existing, p.ID}
			continue
		}
		ix.byName[name] = p.ID
	}

	for name := range ix.ambiguous {
		sort.Strings(ix.ambiguous[name])
	}
	return ix
}

// Lookup returns the id registered under name after folding.
func (ix *NameIndex) Lookup(name string) (string, bool) {
	if ix == nil {
		return "", false
	}
	id, ok := ix.byName[Fold(name)]
	return id, ok
}

// Ambiguous returns the ids sharing name, or nil if the name is unique or unknown.
func (ix *NameIndex) Ambiguous(name string) []string {
	if ix == nil {
		return nil
	}
	return ix.ambiguous[Fold(name)]
}

// Canonicalize returns ref unchanged if it is already a known id, otherwise the id whose name
// matches ref after folding. It returns false when ref cannot be resolved.
func Canonicalize(ref string, known map[string]bool, names *NameIndex) (string, bool) {
	if known[ref] {
		return ref, true
	}
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return "", false
	}
	if known[trimmed] {
		return trimmed, true
	}
	return names.Lookup(trimmed)
}

// Resolver canonicalizes references against a fixed roster. Configured id prefixes (such as
// "id:" or "#") are stripped before a second lookup.
type Resolver struct {
	known    map[string]bool
	names    *NameIndex
	prefixes []string
}

// NewResolver builds a resolver over people.
func NewResolver(people []Person, prefixes []string) *Resolver {
	known := make(map[string]bool, len(people))
	for _, p := range people {
		if p.ID != "" {
			known[p.ID] = true
		}
	}
	return &Resolver{
		known:    known,
		names:    NewNameIndex(people),
		prefixes: append([]string{}, prefixes...),
	}
}

// Known reports whether id is on the roster.
func (r *Resolver) Known(id string) bool {
	return r.known[id]
}

// Resolve returns the personnel id for ref.
//
// Returns *NotFoundError if nothing matches, *AmbiguousError if ref names more than one person.
func (r *Resolver) Resolve(ref string) (string, error) {
	if id, ok := Canonicalize(ref, r.known, r.names); ok {
		return id, nil
	}

	trimmed := strings.TrimSpace(ref)
	for _, prefix := range r.prefixes {
		if prefix == "" || !strings.HasPrefix(trimmed, prefix) {
			continue
		}
		if id, ok := Canonicalize(strings.TrimPrefix(trimmed, prefix), r.known, r.names); ok {
			return id, nil
		}
	}

	if matches := r.names.Ambiguous(trimmed); len(matches) > 0 {
		return "", &AmbiguousError{Ref: ref, Matches: matches}
	}
	return "", &NotFoundError{Ref: ref}
}

// NotFoundError indicates no personnel matched the reference.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no personnel found matching '%s'", e.Ref)
}

// AmbiguousError indicates the reference names several personnel.
type AmbiguousError struct {
	Ref     string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous reference '%s' matches %d personnel", e.Ref, len(e.Matches))
}

// FormatAmbiguousError creates a user-friendly message listing the matching ids
// (up to 10, then "...and N more").
func FormatAmbiguousError(err *AmbiguousError) string {
	msg := fmt.Sprintf("ambiguous reference '%s' matches %d personnel:\n", err.Ref, len(err.Matches))

	displayCount := len(err.Matches)
	if displayCount > 10 {
		displayCount = 10
	}
	for i := 0; i < displayCount; i++ {
		msg += fmt.Sprintf("  %s\n", err.Matches[i])
	}
	if len(err.Matches) > 10 {
		msg += fmt.Sprintf("  ...and %d more\n", len(err.Matches)-10)
	}

	msg += "\nUse the personnel id to identify them."
	return msg
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
