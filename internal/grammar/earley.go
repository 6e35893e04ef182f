package grammar

import (
	"fmt"

	"github.com/tidwall/btree"

	"github.com/dekarrin/llmask/internal/recognizer"
)

// Symbol is one element of a Rule's body: either a terminal byte range
// (IsTerminal true, matching any byte in [Lo, Hi]) or a reference to another
// rule's head by name.
type Symbol struct {
	IsTerminal  bool
	Lo, Hi      byte
	NonTerminal string
}

// Terminal returns a Symbol matching exactly the bytes in [lo, hi].
func Terminal(lo, hi byte) Symbol { return Symbol{IsTerminal: true, Lo: lo, Hi: hi} }

// Rule returns a Symbol referencing the rule named name.
func Rule(name string) Symbol { return Symbol{NonTerminal: name} }

func (s Symbol) matches(b byte) bool { return s.IsTerminal && b >= s.Lo && b <= s.Hi }

// GrammarRule is one production: Head -> Body (a sequence of Symbols, empty
// for an epsilon production).
type GrammarRule struct {
	Head string
	Body []Symbol
}

// CFG is a context-free grammar over bytes, compiled ahead of time by a host
// (see the package doc: Lark/JSON-Schema text parsing into this shape is out
// of scope here). Start names the rule the whole input must reduce to.
//
// This is the grammar IR the scannerless Earley engine in this file
// recognizes; it plays the same role for the `lark`/`json_schema` surfaces
// that a compiled regexir tree plays for `regex`/`substring`.
type CFG struct {
	Rules []GrammarRule
	Start string
}

// byHead indexes CFG.Rules by head name, for the predictor step.
func (g *CFG) byHead() map[string][]int {
	idx := make(map[string][]int)
	for i, r := range g.Rules {
		idx[r.Head] = append(idx[r.Head], i)
	}
	return idx
}

// item is one Earley item: "rule's dot-th symbol is next, and this
// derivation started at column origin". Packed into a uint64 so it can live
// as a btree.Map key without a custom comparator.
type item struct {
	rule   int
	dot    int
	origin int
}

// pack and unpack assume a grammar with fewer than 2^20 rules, productions
// shorter than 2^20 symbols, and inputs shorter than 2^20 bytes — generous
// limits for any grammar or token sequence this package will ever see in
// practice.
func (it item) pack() uint64 {
	return uint64(it.rule)<<40 | uint64(it.dot)<<20 | uint64(it.origin)
}

func unpack(k uint64) item {
	return item{rule: int(k >> 40), dot: int((k >> 20) & 0xfffff), origin: int(k & 0xfffff)}
}

// column is the ordered set of items valid at one position in the input,
// backed by a btree.Map so iteration during closure is deterministic.
type column = btree.Map[uint64, struct{}]

// earleyState is the Functional state for CFGEngine: the full chart built
// so far, one column per byte consumed (cols[0] is the seed column before
// any byte). Extending the state appends one column via a fresh slice
// (never mutating the slice an existing state holds), so two states that
// share a prefix of bytes safely share the backing columns without
// aliasing a mutation across them.
type earleyState struct {
	cols []*column
}

// CFGEngine recognizes a CFG via a scannerless, byte-at-a-time Earley
// parse: terminals are byte ranges rather than pre-lexed tokens, so there is
// no separate scanner phase — the predict/scan/complete closure runs fresh
// over every byte.
type CFGEngine struct {
	g       *CFG
	byHead  map[string][]int
	startRl []int
}

// NewCFGEngine builds a CFGEngine over g. It panics if g references a
// nonterminal with no matching rule, or if g.Start has no rule — both
// construction-time errors the host should catch immediately rather than
// have surface as a confusing mid-generation rejection.
func NewCFGEngine(g *CFG) *CFGEngine {
	byHead := g.byHead()
	if _, ok := byHead[g.Start]; !ok {
		panic(fmt.Sprintf("grammar: CFG start symbol %q has no rule", g.Start))
	}
	for _, r := range g.Rules {
		for _, s := range r.Body {
			if !s.IsTerminal {
				if _, ok := byHead[s.NonTerminal]; !ok {
					panic(fmt.Sprintf("grammar: rule %q references undefined nonterminal %q", r.Head, s.NonTerminal))
				}
			}
		}
	}
	return &CFGEngine{g: g, byHead: byHead, startRl: byHead[g.Start]}
}

func (e *CFGEngine) Initial() earleyState {
	col := &column{}
	for _, ri := range e.startRl {
		col.Set(item{rule: ri, dot: 0, origin: 0}.pack(), struct{}{})
	}
	cols := []*column{col}
	e.closure(cols, 0)
	return earleyState{cols: cols}
}

func (e *CFGEngine) TryAppend(state earleyState, b byte) (earleyState, bool) {
	cur := state.cols[len(state.cols)-1]
	pos := len(state.cols) - 1
	next := &column{}

	scanOK := false
	iter := cur.Iter()
	for ok := iter.First(); ok; ok = iter.Next() {
		it := unpack(iter.Key())
		body := e.g.Rules[it.rule].Body
		if it.dot >= len(body) {
			continue
		}
		sym := body[it.dot]
		if sym.IsTerminal && sym.matches(b) {
			next.Set(item{rule: it.rule, dot: it.dot + 1, origin: it.origin}.pack(), struct{}{})
			scanOK = true
		}
	}
	if !scanOK {
		return state, false
	}

	newCols := append([]*column{}, state.cols...)
	newCols = append(newCols, next)
	e.closure(newCols, pos+1)
	return earleyState{cols: newCols}, true
}

func (e *CFGEngine) SpecialAllowed(state earleyState, _ recognizer.SpecialToken) bool {
	return e.IsAccepting(state)
}

// IsAccepting reports whether the start rule is fully reduced (dot at the
// end of its body, origin 0) in the chart's final column.
func (e *CFGEngine) IsAccepting(state earleyState) bool {
	col := state.cols[len(state.cols)-1]
	for _, ri := range e.startRl {
		body := e.g.Rules[ri].Body
		key := item{rule: ri, dot: len(body), origin: 0}.pack()
		if _, ok := col.Get(key); ok {
			return true
		}
	}
	return false
}

// closure runs predict and complete against cols[pos] until no new items
// appear, the standard Earley fixpoint. cols[0:pos] must already be closed;
// completion looks an item's origin column up directly in cols, so it can
// reach across the whole chart built so far, not just the column being
// closed.
func (e *CFGEngine) closure(cols []*column, pos int) {
	col := cols[pos]
	for {
		added := false

		var items []item
		iter := col.Iter()
		for ok := iter.First(); ok; ok = iter.Next() {
			items = append(items, unpack(iter.Key()))
		}

		for _, it := range items {
			body := e.g.Rules[it.rule].Body
			if it.dot >= len(body) {
				// Completer: `it` is a finished rule spanning [origin, pos].
				// Advance every item in column `origin` whose next symbol is
				// it's head, depositing the advanced item into this column
				// with that item's own origin (not pos).
				head := e.g.Rules[it.rule].Head
				originCol := cols[it.origin]
				oiter := originCol.Iter()
				for ok := oiter.First(); ok; ok = oiter.Next() {
					waiting := unpack(oiter.Key())
					wbody := e.g.Rules[waiting.rule].Body
					if waiting.dot >= len(wbody) || wbody[waiting.dot].IsTerminal {
						continue
					}
					if wbody[waiting.dot].NonTerminal != head {
						continue
					}
					key := item{rule: waiting.rule, dot: waiting.dot + 1, origin: waiting.origin}.pack()
					if _, ok := col.Get(key); !ok {
						col.Set(key, struct{}{})
						added = true
					}
				}
				continue
			}
			sym := body[it.dot]
			if !sym.IsTerminal {
				for _, ri := range e.byHead[sym.NonTerminal] {
					key := item{rule: ri, dot: 0, origin: pos}.pack()
					if _, ok := col.Get(key); !ok {
						col.Set(key, struct{}{})
						added = true
					}
				}
			}
		}

		if !added {
			break
		}
	}
}
