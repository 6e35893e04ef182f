package grammar

import (
	"github.com/dekarrin/llmask/internal/recognizer"
	"github.com/dekarrin/llmask/internal/regexderiv"
	"github.com/dekarrin/llmask/internal/regexir"
)

// regexEngine adapts a regexderiv.Engine into grammar.Engine[regexir.Id],
// the only method a bare regexderiv.Engine is missing being IsAccepting
// (which is exactly regexderiv's IsNullable).
type regexEngine struct {
	eng *regexderiv.Engine
}

func (e regexEngine) Initial() regexir.Id { return e.eng.Root() }

func (e regexEngine) TryAppend(state regexir.Id, b byte) (regexir.Id, bool) {
	next := e.eng.Derivative(state, b)
	if next == regexderiv.Dead {
		return state, false
	}
	return next, true
}

func (e regexEngine) SpecialAllowed(state regexir.Id, _ recognizer.SpecialToken) bool {
	return e.eng.IsNullable(state)
}

func (e regexEngine) IsAccepting(state regexir.Id) bool {
	return e.eng.IsNullable(state)
}

// NewRegex compiles pattern (see regexir.Parse for the supported flavor)
// and wraps it as a Recognizer ready for the token trie, sized for tokens up
// to maxTokenLen bytes long.
func NewRegex(pattern string, maxTokenLen int) (*Recognizer[regexir.Id], error) {
	b, root, err := regexir.Parse(pattern)
	if err != nil {
		return nil, err
	}
	eng := regexderiv.NewEngine(b, root)
	return New[regexir.Id](regexEngine{eng: eng}, maxTokenLen), nil
}

// NewSubstring wraps an already-compiled substring regexir tree (see
// internal/substring.Compile) as a Recognizer, for the `substring` grammar
// surface.
func NewSubstring(b *regexir.Builder, root regexir.Id, maxTokenLen int) *Recognizer[regexir.Id] {
	eng := regexderiv.NewEngine(b, root)
	return New[regexir.Id](regexEngine{eng: eng}, maxTokenLen)
}
