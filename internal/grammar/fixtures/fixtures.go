// Package fixtures loads toy vocabularies and grammar definitions from YAML
// documents, the sample-suite format cmd/llmaskctl reads for its mask, repl,
// and serve subcommands rather than wiring a hand-fed Go literal into every
// entry point. Mirrors the teacher's preference for data-driven fixtures
// over code-generated ones, generalized from tqw's manifest-plus-resource
// split to a single self-contained document since a toy vocabulary is small
// enough not to need the split.
package fixtures

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dekarrin/llmask/internal/grammar"
	"github.com/dekarrin/llmask/internal/parser"
	"github.com/dekarrin/llmask/internal/regexir"
	"github.com/dekarrin/llmask/internal/substring"
	"github.com/dekarrin/llmask/internal/vocab"
)

// VocabDoc is the YAML shape of a toy vocabulary: one token string per
// entry, plus which index is the EOS token. Tokens are decoded as UTF-8
// text; a fixture needing raw non-UTF-8 bytes isn't expressible here.
type VocabDoc struct {
	Tokens  []string `yaml:"tokens"`
	EOS     int      `yaml:"eos_token"`
	Special []int    `yaml:"special_tokens"`
}

// SymbolDoc is one element of a RuleDoc's body: exactly one of Terminal or
// Rule must be set.
type SymbolDoc struct {
	Terminal *TerminalDoc `yaml:"terminal,omitempty"`
	Rule     string       `yaml:"rule,omitempty"`
}

// TerminalDoc is an inclusive byte range, or a single literal byte when Hi
// is omitted (defaults to Lo).
type TerminalDoc struct {
	Lo byte  `yaml:"lo"`
	Hi *byte `yaml:"hi,omitempty"`
}

// RuleDoc is one CFG production.
type RuleDoc struct {
	Head string      `yaml:"head"`
	Body []SymbolDoc `yaml:"body"`
}

// SubstringDoc parameterizes the C7 substring surface: a passage chunked
// into atomic units (chars, words, or graphemes) and compiled via
// internal/substring.Compile into a suffix-automaton regex matching any
// substring of the passage that respects chunk boundaries.
type SubstringDoc struct {
	Passage string `yaml:"passage"`
	ChunkBy string `yaml:"chunk_by,omitempty"` // "char" (default), "word", or "grapheme"
}

// GrammarDoc selects and parameterizes one of the grammar surfaces this
// module compiles ahead of time: a regex pattern (Kind "regex", compiled by
// internal/regexir via grammar.NewRegex), a context-free grammar (Kind
// "cfg", compiled into a grammar.CFG for the Earley engine), or a substring
// constraint (Kind "substring", compiled by internal/substring and wrapped
// with grammar.NewSubstring).
type GrammarDoc struct {
	Kind      string       `yaml:"kind"`
	Pattern   string       `yaml:"pattern,omitempty"`
	Start     string       `yaml:"start,omitempty"`
	Rules     []RuleDoc    `yaml:"rules,omitempty"`
	Substring SubstringDoc `yaml:"substring,omitempty"`
}

// Doc is a complete fixture: a toy vocabulary paired with the grammar to
// constrain it.
type Doc struct {
	Vocab   VocabDoc   `yaml:"vocab"`
	Grammar GrammarDoc `yaml:"grammar"`
}

// Load reads and parses a fixture document from path.
func Load(path string) (Doc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Doc{}, fmt.Errorf("fixtures: read %s: %w", path, err)
	}
	var doc Doc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Doc{}, fmt.Errorf("fixtures: parse %s: %w", path, err)
	}
	return doc, nil
}

// BuildVocabulary compiles d's vocabulary section into a *vocab.Vocabulary.
func (d Doc) BuildVocabulary() (*vocab.Vocabulary, error) {
	if d.Vocab.EOS < 0 || d.Vocab.EOS >= len(d.Vocab.Tokens) {
		return nil, fmt.Errorf("fixtures: eos_token %d out of range for %d tokens", d.Vocab.EOS, len(d.Vocab.Tokens))
	}
	tokens := make([][]byte, len(d.Vocab.Tokens))
	for i, s := range d.Vocab.Tokens {
		tokens[i] = []byte(s)
	}
	special := make([]vocab.Token, len(d.Vocab.Special))
	for i, s := range d.Vocab.Special {
		special[i] = vocab.Token(s)
	}
	info := vocab.Info{VocabSize: uint32(len(tokens)), EOSToken: vocab.Token(d.Vocab.EOS)}
	return vocab.New(info, tokens, special), nil
}

// BuildRecognizer compiles d's grammar section into a parser.GrammarRecognizer,
// sized for a trie with the given maximum token length.
func (d Doc) BuildRecognizer(maxTokenLen int) (parser.GrammarRecognizer, error) {
	switch d.Grammar.Kind {
	case "regex":
		rec, err := grammar.NewRegex(d.Grammar.Pattern, maxTokenLen)
		if err != nil {
			return nil, err
		}
		return rec, nil
	case "cfg":
		cfg, err := d.buildCFG()
		if err != nil {
			return nil, err
		}
		return grammar.New(grammar.NewCFGEngine(cfg), maxTokenLen), nil
	case "substring":
		chunks, err := d.chunkPassage()
		if err != nil {
			return nil, err
		}
		b := regexir.NewBuilder()
		root := substring.Compile(b, chunks)
		return grammar.NewSubstring(b, root, maxTokenLen), nil
	default:
		return nil, fmt.Errorf("fixtures: unknown grammar kind %q (want \"regex\", \"cfg\", or \"substring\")", d.Grammar.Kind)
	}
}

func (d Doc) chunkPassage() ([]string, error) {
	if d.Grammar.Substring.Passage == "" {
		return nil, fmt.Errorf("fixtures: substring grammar requires a non-empty passage")
	}
	switch d.Grammar.Substring.ChunkBy {
	case "", "char":
		return substring.ChunkIntoChars(d.Grammar.Substring.Passage), nil
	case "word":
		return substring.ChunkIntoWords(d.Grammar.Substring.Passage), nil
	case "grapheme":
		return substring.ChunkIntoGraphemes(d.Grammar.Substring.Passage), nil
	default:
		return nil, fmt.Errorf("fixtures: unknown chunk_by %q (want \"char\", \"word\", or \"grapheme\")", d.Grammar.Substring.ChunkBy)
	}
}

func (d Doc) buildCFG() (*grammar.CFG, error) {
	if d.Grammar.Start == "" {
		return nil, fmt.Errorf("fixtures: cfg grammar requires a start rule")
	}
	cfg := &grammar.CFG{Start: d.Grammar.Start}
	for _, rd := range d.Grammar.Rules {
		body := make([]grammar.Symbol, 0, len(rd.Body))
		for _, sd := range rd.Body {
			switch {
			case sd.Terminal != nil:
				hi := sd.Terminal.Lo
				if sd.Terminal.Hi != nil {
					hi = *sd.Terminal.Hi
				}
				body = append(body, grammar.Terminal(sd.Terminal.Lo, hi))
			case sd.Rule != "":
				body = append(body, grammar.Rule(sd.Rule))
			default:
				return nil, fmt.Errorf("fixtures: rule %q has a body symbol with neither terminal nor rule set", rd.Head)
			}
		}
		cfg.Rules = append(cfg.Rules, grammar.GrammarRule{Head: rd.Head, Body: body})
	}
	return cfg, nil
}
