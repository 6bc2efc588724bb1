// Package sanitize implements spec.md §4.4: projecting arbitrary tool
// names into a restricted alphabet, pure and deterministic. The style —
// a small pure string-transform plus a caller-owned bidirectional map —
// is grounded on the teacher's domain/service/sanitize.go, though that
// file solves a different problem (orphan tool_use cleanup); this is new
// logic built to spec.md's exact projection rule.
package sanitize

import "strings"

const maxNameLen = 64

// Name projects name into ^[A-Za-z0-9_-]+$, replacing each disallowed
// character with '_' and truncating to maxNameLen. Idempotent:
// Name(Name(x)) == Name(x).
func Name(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if isAllowed(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	if len(out) > maxNameLen {
		out = out[:maxNameLen]
	}
	if out == "" {
		out = "_"
	}
	return out
}

func isAllowed(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_' || r == '-':
		return true
	default:
		return false
	}
}

// NameMap is the bidirectional sanitized<->original map callers
// maintain per Run (spec.md §4.4).
type NameMap struct {
	toOriginal map[string]string
}

// NewNameMap creates an empty map.
func NewNameMap() *NameMap {
	return &NameMap{toOriginal: map[string]string{}}
}

// Add sanitizes original and records the mapping, returning the
// sanitized name. Last-writer-wins on collision, matching discovery's
// merge rule (spec.md §4.5).
func (m *NameMap) Add(original string) string {
	s := Name(original)
	m.toOriginal[s] = original
	return s
}

// Original resolves a sanitized name back to the original, "" if unknown.
func (m *NameMap) Original(sanitized string) string {
	return m.toOriginal[sanitized]
}
