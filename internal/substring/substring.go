// Package substring builds a minimal-size regex (as a regexir tree) that
// matches exactly the substrings of a concatenated sequence of chunks, via
// a suffix automaton (C7). This is a direct port of the suffix-automaton
// construction and regex-compilation algorithm in the original
// parser/src/substring.rs, adapted to build a regexir.Builder tree instead
// of a Rust grammar_builder expression, plus chunking helpers for chars,
// words, and (new in this port) grapheme clusters.
package substring

import "github.com/dekarrin/llmask/internal/regexir"

// state is one suffix-automaton node: len is the length of the longest
// string ending the equivalence class this state represents; link points
// to the suffix link (the next state obtained by removing the automaton's
// shortest distinguishing prefix); next maps an outgoing chunk label to the
// state reached by appending it.
type state struct {
	length int
	link   int // -1 for no link (the initial state)
	next   map[string]int
}

// automaton is the classical suffix automaton, built incrementally one
// chunk at a time. See https://cp-algorithms.com/string/suffix-automaton.html
// for the algorithm this follows.
type automaton struct {
	states []state
	last   int
}

func newAutomaton() *automaton {
	return &automaton{states: []state{{length: 0, link: -1, next: map[string]int{}}}, last: 0}
}

// fromChunks builds the suffix automaton over the concatenation of chunks,
// where each chunk is an atomic edge label (no regex match may split one).
func fromChunks(chunks []string) *automaton {
	a := newAutomaton()
	for _, c := range chunks {
		a.extend(c)
	}
	return a
}

func (a *automaton) extend(c string) {
	curIndex := len(a.states)
	a.states = append(a.states, state{length: a.states[a.last].length + 1, link: -1, next: map[string]int{}})

	p := a.last
	hasP := true
	for hasP {
		if _, ok := a.states[p].next[c]; ok {
			break
		}
		a.states[p].next[c] = curIndex
		if a.states[p].link == -1 {
			hasP = false
		} else {
			p = a.states[p].link
		}
	}

	if hasP {
		q := a.states[p].next[c]
		if a.states[p].length+1 == a.states[q].length {
			a.states[curIndex].link = q
		} else {
			cloneIndex := len(a.states)
			a.states = append(a.states, state{
				length: a.states[p].length + 1,
				link:   a.states[q].link,
				next:   cloneMap(a.states[q].next),
			})

			for {
				if a.states[p].next[c] == q {
					a.states[p].next[c] = cloneIndex
				} else {
					break
				}
				if a.states[p].link == -1 {
					break
				}
				p = a.states[p].link
			}
			a.states[q].link = cloneIndex
			a.states[curIndex].link = cloneIndex
		}
	} else {
		a.states[curIndex].link = 0
	}
	a.last = curIndex
}

// Compile builds a regexir node in b matching exactly the substrings
// obtainable by concatenating a contiguous range of chunks (and, within an
// individual chunk, nothing shorter than the whole chunk — chunk boundaries
// are atomic). Uses a worklist stack rather than recursion, since the
// automaton for a large passage can be deep.
func Compile(b *regexir.Builder, chunks []string) regexir.Id {
	sa := fromChunks(chunks)

	cache := make(map[int]regexir.Id)
	empty := b.Literal("")

	stack := []int{0}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]

		if _, done := cache[idx]; done {
			stack = stack[:len(stack)-1]
			continue
		}

		st := sa.states[idx]
		if len(st.next) == 0 {
			cache[idx] = empty
			stack = stack[:len(stack)-1]
			continue
		}

		allChildrenReady := true
		for _, child := range st.next {
			if _, ok := cache[child]; !ok {
				allChildrenReady = false
				stack = append(stack, child)
			}
		}
		if !allChildrenReady {
			continue
		}

		var options []regexir.Id
		for label, child := range st.next {
			lit := b.Literal(label)
			options = append(options, b.Concat([]regexir.Id{lit, cache[child]}))
		}
		options = append(options, empty)
		cache[idx] = b.Or(options)
		stack = stack[:len(stack)-1]
	}

	return cache[0]
}

func cloneMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ChunkIntoChars splits s into one chunk per UTF-8 codepoint, preserving
// byte-exact concatenation.
func ChunkIntoChars(s string) []string {
	var chunks []string
	start := 0
	for i := range s {
		if i > start {
			chunks = append(chunks, s[start:i])
			start = i
		}
	}
	if start < len(s) {
		chunks = append(chunks, s[start:])
	}
	return chunks
}

type tokenType int

const (
	tokenWhitespace tokenType = iota
	tokenWord
	tokenOther
)

func classify(r rune) tokenType {
	switch {
	case isSpace(r):
		return tokenWhitespace
	case isAlnumOrUnderscore(r):
		return tokenWord
	default:
		return tokenOther
	}
}

func isSpace(r rune) bool {
	return isUnicodeSpace(r)
}

// ChunkIntoWords splits s into runs of whitespace, word characters
// (alphanumeric or underscore), or other characters, classified per
// codepoint, matching the original chunk_into_words semantics exactly.
func ChunkIntoWords(s string) []string {
	if s == "" {
		return nil
	}
	runes := []rune(s)
	var chunks []string
	start := 0
	cur := classify(runes[0])
	for i := 1; i < len(runes); i++ {
		t := classify(runes[i])
		if t != cur {
			chunks = append(chunks, string(runes[start:i]))
			start = i
			cur = t
		}
	}
	chunks = append(chunks, string(runes[start:]))
	return chunks
}
