// Package grammar implements the grammar recognizer (C3): the facade that
// wraps a concrete grammar engine — regex-derivative (internal/regexderiv)
// for `regex`/`substring` surfaces, or the scannerless Earley chart in this
// package for `lark`/`json_schema`-derived CFG surfaces — as a single
// recognizer.Functional state machine plus the handful of grammar-level
// queries (IsAccepting, ForceBytes) the token parser (C4) needs that a bare
// Functional can't answer on its own.
//
// Text parsing of Lark or JSON Schema grammars into the CFG IR stays out of
// scope here: a host that wants those surfaces is expected to hand this
// package an already-compiled CFG, the same way a host that wants `regex`
// hands it a pattern string (parsed by internal/regexir.Parse).
package grammar

import "github.com/dekarrin/llmask/internal/recognizer"

// Engine is the state-transition contract every grammar surface implements:
// byte-at-a-time transition (inherited from recognizer.Functional) plus
// whether a given state is an accepting one, i.e. whether the grammar would
// be satisfied by stopping right there.
type Engine[S any] interface {
	recognizer.Functional[S]
	IsAccepting(state S) bool
}

// ScanVerdict classifies the result of offering a grammar engine one byte.
type ScanVerdict int

const (
	// ScanAccept means the byte was consumed and the resulting state is
	// itself accepting (the grammar could stop here).
	ScanAccept ScanVerdict = iota
	// ScanContinue means the byte was consumed but more bytes are required
	// before the grammar would accept.
	ScanContinue
	// ScanReject means the byte is not legal from the current state.
	ScanReject
)

// Scan offers eng one byte from state and classifies the result without
// requiring the caller to separately call TryAppend then IsAccepting.
func Scan[S any](eng Engine[S], state S, b byte) (next S, verdict ScanVerdict) {
	next, ok := eng.TryAppend(state, b)
	if !ok {
		var zero S
		return zero, ScanReject
	}
	if eng.IsAccepting(next) {
		return next, ScanAccept
	}
	return next, ScanContinue
}

// ForceBytes returns the longest sequence of bytes that every path through
// eng from state must take next, i.e. the bytes the token parser (C4) can
// commit to the host's output without waiting on the model — computed by
// walking forward exactly as long as the current state has precisely one
// live successor byte and is not itself accepting (stopping at an accepting
// state keeps EOS/backtrack legal; stopping at a branch point keeps every
// live continuation legal).
//
// This brute-forces the 256-byte alphabet at each step rather than asking
// the engine for its live byte set directly, trading a constant per-step
// factor for a single trait every Engine implementation must satisfy
// regardless of its internal representation (derivative-cache lookups for
// the regex engine, chart-column scans for the Earley engine).
func ForceBytes[S any](eng Engine[S], state S) []byte {
	var out []byte
	cur := state
	for {
		if eng.IsAccepting(cur) {
			return out
		}
		var onlyByte byte
		count := 0
		var onlyNext S
		for b := 0; b < 256; b++ {
			next, ok := eng.TryAppend(cur, byte(b))
			if ok {
				count++
				if count > 1 {
					break
				}
				onlyByte, onlyNext = byte(b), next
			}
		}
		if count != 1 {
			return out
		}
		out = append(out, onlyByte)
		cur = onlyNext
	}
}

// Recognizer adapts an Engine into a recognizer.Recognizer by composing it
// with a recognizer.Stack, and additionally exposes the grammar-level
// queries (IsAccepting) the stack alone doesn't carry. This is the type
// internal/parser drives directly during mid_process.
type Recognizer[S any] struct {
	eng   Engine[S]
	stack *recognizer.Stack[S]
}

// New wraps eng in a fresh Recognizer with stack capacity sized for the
// longest token the vocabulary exposes (see recognizer.NewStack).
func New[S any](eng Engine[S], stackCapacity int) *Recognizer[S] {
	return &Recognizer[S]{eng: eng, stack: recognizer.NewStack[S](eng, stackCapacity)}
}

// Stack returns the underlying recognizer.Stack, satisfying
// recognizer.Recognizer for direct use by internal/toktrie's DFS.
func (r *Recognizer[S]) Stack() *recognizer.Stack[S] { return r.stack }

// TryPushByte, PopBytes, Collapse, TrieFinished, SpecialAllowed delegate to
// the underlying stack, so *Recognizer[S] itself satisfies
// recognizer.Recognizer.
func (r *Recognizer[S]) TryPushByte(b byte) bool          { return r.stack.TryPushByte(b) }
func (r *Recognizer[S]) PopBytes(n int)                   { r.stack.PopBytes(n) }
func (r *Recognizer[S]) Collapse()                        { r.stack.Collapse() }
func (r *Recognizer[S]) TrieFinished()                    { r.stack.TrieFinished() }
func (r *Recognizer[S]) SpecialAllowed(tok recognizer.SpecialToken) bool {
	return r.stack.SpecialAllowed(tok)
}

// IsAccepting reports whether the recognizer's current (collapsed) state
// would satisfy the grammar if generation stopped right here.
func (r *Recognizer[S]) IsAccepting() bool {
	return r.eng.IsAccepting(r.stack.Top())
}

// ForceBytes returns the bytes the grammar forces next from the
// recognizer's current collapsed state (see the package-level ForceBytes).
func (r *Recognizer[S]) ForceBytes() []byte {
	return ForceBytes[S](r.eng, r.stack.Top())
}

// Engine exposes the underlying grammar engine, e.g. for a host that wants
// to inspect an Earley chart's accepted symbol directly.
func (r *Recognizer[S]) Engine() Engine[S] { return r.eng }

// Reset returns the recognizer to its initial state, discarding every
// pushed byte. Used by internal/parser's rollback, which re-derives grammar
// state by replaying committed history from scratch rather than maintaining
// incremental undo snapshots.
func (r *Recognizer[S]) Reset() { r.stack.Reset() }
