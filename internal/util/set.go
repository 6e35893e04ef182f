package util

import (
	"sort"
	"strings"
)

// KeySet is a map[E]bool used as a membership set, adapted from the
// teacher's generic ISet/KeySet collections down to the operations this
// module's domain actually exercises: construction from a slice, add, and
// membership test. internal/stopctl uses one per token-id set (hard-stop
// tokens, healing tokens).
type KeySet[E comparable] map[E]bool

// NewKeySet returns an empty KeySet.
func NewKeySet[E comparable]() KeySet[E] {
	return KeySet[E]{}
}

// KeySetOf builds a KeySet containing every element of sl. Returns nil for a
// nil sl, mirroring the zero-value-means-empty convention the rest of this
// module uses for optional slices.
func KeySetOf[E comparable](sl []E) KeySet[E] {
	if sl == nil {
		return nil
	}
	s := NewKeySet[E]()
	for _, v := range sl {
		s.Add(v)
	}
	return s
}

// Add adds value to the set.
func (s KeySet[E]) Add(value E) {
	s[value] = true
}

// Has returns whether value is a member of the set.
func (s KeySet[E]) Has(value E) bool {
	return s[value]
}

// StringSet is a set of strings, used by cmd/llmaskctl's repl to track the
// distinct command verbs used in a session.
type StringSet map[string]bool

// NewStringSet returns an empty StringSet.
func NewStringSet() StringSet {
	return StringSet{}
}

// Add adds value to the set.
func (s StringSet) Add(value string) {
	s[value] = true
}

// StringOrdered renders the set's contents alphabetized, e.g. "{back, mask, push}".
func (s StringSet) StringOrdered() string {
	items := make([]string, 0, len(s))
	for k := range s {
		items = append(items, k)
	}
	sort.Strings(items)

	var sb strings.Builder
	sb.WriteRune('{')
	for i, it := range items {
		sb.WriteString(it)
		if i+1 < len(items) {
			sb.WriteString(", ")
		}
	}
	sb.WriteRune('}')
	return sb.String()
}
