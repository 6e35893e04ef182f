// Package regexderiv implements a byte-level regex-derivative recognizer
// over a regexir.Builder tree: repeatedly taking the Brzozowski derivative
// of the current node with respect to the next byte. It satisfies
// recognizer.Functional[regexir.Id], so it plugs directly into
// recognizer.Stack for use by the token trie's DFS.
//
// Derivatives are memoized per (node, byte) pair in a shared cache owned by
// the Engine, since the same derivative is often re-requested many times
// during one trie DFS (many vocabulary tokens share byte prefixes).
package regexderiv

import (
	"github.com/dekarrin/llmask/internal/recognizer"
	"github.com/dekarrin/llmask/internal/regexir"
)

// Engine owns the regexir.Builder and the memoized derivative table for one
// compiled regex. It is safe to share read-only across many recognizer
// instances derived from the same Engine, since TryAppend never mutates
// anything but an internal cache keyed purely by (node, byte) — callers
// never observe inconsistent results regardless of evaluation order.
type Engine struct {
	b     *regexir.Builder
	root  regexir.Id
	cache map[derivKey]regexir.Id
}

type derivKey struct {
	node regexir.Id
	b    byte
}

// NewEngine wraps a built regexir tree rooted at root.
func NewEngine(b *regexir.Builder, root regexir.Id) *Engine {
	return &Engine{b: b, root: root, cache: make(map[derivKey]regexir.Id)}
}

// Root returns the initial recognizer state (the compiled regex's root
// node id).
func (e *Engine) Root() regexir.Id { return e.root }

// IsNullable reports whether id's node matches the empty string, i.e.
// whether EOS (or the end of the constrained span) would be legal with the
// recognizer currently at id.
func (e *Engine) IsNullable(id regexir.Id) bool {
	return nullable(e.b, id)
}

func nullable(b *regexir.Builder, id regexir.Id) bool {
	n := b.Node(id)
	switch n.Kind {
	case regexir.KindEmpty:
		return true
	case regexir.KindLiteral:
		return n.Literal == ""
	case regexir.KindByteRange:
		return false
	case regexir.KindStar:
		return true
	case regexir.KindConcat:
		for _, k := range n.Kids {
			if !nullable(b, k) {
				return false
			}
		}
		return true
	case regexir.KindOr:
		for _, k := range n.Kids {
			if nullable(b, k) {
				return true
			}
		}
		return false
	}
	return false
}

// Derivative returns the node matching every string w such that byte+w is
// matched by id, i.e. the classic Brzozowski derivative D_byte(id).
func (e *Engine) Derivative(id regexir.Id, byt byte) regexir.Id {
	key := derivKey{id, byt}
	if cached, ok := e.cache[key]; ok {
		return cached
	}
	result := e.derive(id, byt)
	e.cache[key] = result
	return result
}

// Dead is the sentinel state meaning "matches nothing". Builder requires at
// least one option for Or to be meaningful, so a dead derivative is tracked
// via this distinguished value outside the builder rather than as a real
// node id. Exported so other packages adapting an Engine (e.g. the grammar
// facade) can recognize a dead state without deriving one themselves.
const Dead regexir.Id = -1

func (e *Engine) derive(id regexir.Id, byt byte) regexir.Id {
	if id == Dead {
		return Dead
	}
	n := e.b.Node(id)
	switch n.Kind {
	case regexir.KindEmpty:
		return Dead
	case regexir.KindLiteral:
		if len(n.Literal) == 0 || n.Literal[0] != byt {
			return Dead
		}
		return e.b.Literal(n.Literal[1:])
	case regexir.KindByteRange:
		if byt >= n.Lo && byt <= n.Hi {
			return e.b.Empty()
		}
		return Dead
	case regexir.KindStar:
		inner := n.Kids[0]
		d := e.derive(inner, byt)
		if d == Dead {
			return Dead
		}
		return e.b.Concat([]regexir.Id{d, id})
	case regexir.KindConcat:
		return e.deriveConcat(n.Kids, byt)
	case regexir.KindOr:
		var opts []regexir.Id
		for _, k := range n.Kids {
			d := e.derive(k, byt)
			if d != Dead {
				opts = append(opts, d)
			}
		}
		if len(opts) == 0 {
			return Dead
		}
		return e.b.Or(opts)
	}
	return Dead
}

// deriveConcat derives a sequence of concatenated nodes: D_c(x1 x2 ... xn) =
// D_c(x1) x2...xn, plus (if x1 is nullable) D_c(x2...xn).
func (e *Engine) deriveConcat(kids []regexir.Id, byt byte) regexir.Id {
	first, rest := kids[0], kids[1:]
	var opts []regexir.Id

	d1 := e.derive(first, byt)
	if d1 != Dead {
		opts = append(opts, e.b.Concat(append([]regexir.Id{d1}, rest...)))
	}
	if nullable(e.b, first) {
		if len(rest) == 0 {
			// first was nullable and there is nothing left to derive: the
			// whole concat only matched because of the empty tail, so this
			// branch contributes nothing further (equivalent to deriving
			// Empty, which is always dead).
		} else {
			d2 := e.deriveConcatOrLiteral(rest, byt)
			if d2 != Dead {
				opts = append(opts, d2)
			}
		}
	}
	if len(opts) == 0 {
		return Dead
	}
	if len(opts) == 1 {
		return opts[0]
	}
	return e.b.Or(opts)
}

func (e *Engine) deriveConcatOrLiteral(kids []regexir.Id, byt byte) regexir.Id {
	if len(kids) == 1 {
		return e.derive(kids[0], byt)
	}
	return e.deriveConcat(kids, byt)
}

// recognizerAdapter implements recognizer.Functional[regexir.Id] over an
// Engine, handling the dead-state sentinel and special-token gating (EOS is
// allowed exactly when the grammar is nullable, i.e. IsAccepting).
type recognizerAdapter struct {
	eng *Engine
}

// NewFunctional wraps eng as a recognizer.Functional[regexir.Id], suitable
// for recognizer.NewStack.
func NewFunctional(eng *Engine) recognizer.Functional[regexir.Id] {
	return recognizerAdapter{eng: eng}
}

func (a recognizerAdapter) Initial() regexir.Id { return a.eng.Root() }

func (a recognizerAdapter) TryAppend(state regexir.Id, b byte) (regexir.Id, bool) {
	d := a.eng.Derivative(state, b)
	if d == Dead {
		return state, false
	}
	return d, true
}

func (a recognizerAdapter) SpecialAllowed(state regexir.Id, _ recognizer.SpecialToken) bool {
	if state == Dead {
		return false
	}
	return a.eng.IsNullable(state)
}
