// Package regexir defines the small regex intermediate representation
// shared by the substring compiler (C7) and the regex-derivative grammar
// recognizer (part of C3): a handful of node kinds (empty, literal, byte
// class, concatenation, alternation, star) built through a Builder so
// that callers work with small integer Ids rather than passing trees by
// value, mirroring the node-interning style the original grammar_builder
// used for its RegexId/RegexBuilder pair.
package regexir

// Id indexes a node owned by a Builder.
type Id int

// Kind discriminates Node variants.
type Kind int

const (
	KindEmpty Kind = iota
	KindLiteral
	KindByteRange
	KindConcat
	KindOr
	KindStar
)

// Node is one IR node. Only the fields relevant to Kind are populated.
type Node struct {
	Kind    Kind
	Literal string  // KindLiteral
	Lo, Hi  byte    // KindByteRange, inclusive
	Kids    []Id    // KindConcat, KindOr: operands in order; KindStar: single element
}

// Builder interns Nodes and hands back small Ids, so that structurally
// identical subexpressions (e.g. the repeated empty-string branch the
// suffix-automaton compiler appends at every state) can share storage.
type Builder struct {
	nodes []Node
	// interned dedupes Empty and Literal nodes by a cheap string
	// signature; ByteRange, Concat, Or and Star nodes are always appended
	// as new nodes.
	interned map[string]Id
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{interned: make(map[string]Id)}
}

func (b *Builder) push(n Node, sig string) Id {
	if sig != "" {
		if id, ok := b.interned[sig]; ok {
			return id
		}
	}
	id := Id(len(b.nodes))
	b.nodes = append(b.nodes, n)
	if sig != "" {
		b.interned[sig] = id
	}
	return id
}

// Empty returns the node matching only the empty string.
func (b *Builder) Empty() Id {
	return b.push(Node{Kind: KindEmpty}, "E")
}

// Literal returns the node matching exactly s.
func (b *Builder) Literal(s string) Id {
	if s == "" {
		return b.Empty()
	}
	return b.push(Node{Kind: KindLiteral, Literal: s}, "L:"+s)
}

// ByteRange returns the node matching a single byte in [lo, hi].
func (b *Builder) ByteRange(lo, hi byte) Id {
	return b.push(Node{Kind: KindByteRange, Lo: lo, Hi: hi}, "")
}

// Concat returns the node matching the concatenation of parts in order.
// A single part is returned unwrapped; zero parts returns Empty.
func (b *Builder) Concat(parts []Id) Id {
	switch len(parts) {
	case 0:
		return b.Empty()
	case 1:
		return parts[0]
	}
	return b.push(Node{Kind: KindConcat, Kids: parts}, "")
}

// Or returns the node matching any one of options. A single option is
// returned unwrapped.
func (b *Builder) Or(options []Id) Id {
	if len(options) == 1 {
		return options[0]
	}
	return b.push(Node{Kind: KindOr, Kids: options}, "")
}

// Star returns the node matching zero or more repetitions of elem.
func (b *Builder) Star(elem Id) Id {
	return b.push(Node{Kind: KindStar, Kids: []Id{elem}}, "")
}

// Node returns the Node for id. Panics on out-of-range id, since ids are
// only ever handed out by this Builder.
func (b *Builder) Node(id Id) Node {
	return b.nodes[id]
}

// Len returns the number of interned nodes.
func (b *Builder) Len() int { return len(b.nodes) }
