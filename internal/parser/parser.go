// Package parser implements the token parser (C4): the coupling state
// machine that bridges the byte-level grammar recognizer (C3, wrapped as a
// grammar.Recognizer) and the token-level LLM interface, reconciling the
// model's sampled tokens against the canonical tokenization of
// grammar-forced bytes.
package parser

import (
	"fmt"

	"github.com/dekarrin/llmask/internal/config"
	"github.com/dekarrin/llmask/internal/llog"
	"github.com/dekarrin/llmask/internal/mmerr"
	"github.com/dekarrin/llmask/internal/recognizer"
	"github.com/dekarrin/llmask/internal/toktrie"
	"github.com/dekarrin/llmask/internal/vocab"
)

// StopReason is why generation is no longer advancing.
type StopReason int

const (
	NotStopped StopReason = iota
	EosTriggered
	NoExtensionPossible
	MaxTokensReached
	InternalError
)

func (r StopReason) String() string {
	switch r {
	case NotStopped:
		return "not_stopped"
	case EosTriggered:
		return "eos_triggered"
	case NoExtensionPossible:
		return "no_extension_possible"
	case MaxTokensReached:
		return "max_tokens_reached"
	case InternalError:
		return "internal_error"
	default:
		return fmt.Sprintf("StopReason(%d)", int(r))
	}
}

// Sample is a step result instructing the host to sample under Mask.
type Sample struct {
	Mask        toktrie.TokenSet
	Temperature float64
}

// Splice is a step result instructing the host to truncate its already
// generated output by Backtrack tokens, then append FFTokens.
type Splice struct {
	Backtrack uint32
	FFTokens  []vocab.Token
}

// Stop is a step result instructing the host to terminate generation.
type Stop struct {
	Reason StopReason
}

// StepResult is one of Sample, Splice, or Stop.
type StepResult interface{ isStepResult() }

func (Sample) isStepResult() {}
func (Splice) isStepResult() {}
func (Stop) isStepResult()   {}

// GrammarRecognizer is what TokenParser needs from C3: byte-level
// transition (via recognizer.Recognizer) plus the grammar-level queries
// mid_process needs. grammar.Recognizer[S] for any S satisfies this.
type GrammarRecognizer interface {
	recognizer.Recognizer
	IsAccepting() bool
	ForceBytes() []byte
	Reset()
}

// Tokenizer is the host-supplied canonical tokenizer: given raw bytes, the
// sequence of tokens the model's real tokenizer would produce for them.
type Tokenizer interface {
	Tokenize(bytes []byte) []vocab.Token
}

// TokenizerFunc adapts a function to Tokenizer.
type TokenizerFunc func([]byte) []vocab.Token

func (f TokenizerFunc) Tokenize(b []byte) []vocab.Token { return f(b) }

// TokenParser is the per-session coupling state machine described above.
// It is not safe for concurrent use — a matcher facade (internal/matcher)
// is expected to serialize access to one of these per session.
type TokenParser struct {
	trie      *toktrie.Trie
	vocab     *vocab.Vocabulary
	rec       GrammarRecognizer
	tokenizer Tokenizer
	caps      config.InferenceCapabilities
	limits    config.ParserLimits
	log       *llog.Logger

	llmTokens  []vocab.Token
	stopReason StopReason
	maxTokens  int // 0 means unbounded
}

// New builds a TokenParser over an already-constructed grammar recognizer.
// tokenizer may be nil for a non-canonical tokenizer host (ComputeFFTokens
// then always returns nil, per spec.md §4.4: "[] for non-canonical
// tokenizers").
func New(trie *toktrie.Trie, v *vocab.Vocabulary, rec GrammarRecognizer, tokenizer Tokenizer, caps config.InferenceCapabilities, limits config.ParserLimits, log *llog.Logger) *TokenParser {
	if log == nil {
		log = llog.Discard()
	}
	return &TokenParser{
		trie: trie, vocab: v, rec: rec, tokenizer: tokenizer,
		caps: caps, limits: limits.FillDefaults(), log: log,
	}
}

// SetMaxTokens bounds total committed tokens; 0 (the default) means
// unbounded.
func (p *TokenParser) SetMaxTokens(n int) { p.maxTokens = n }

// StopReason reports why generation stopped, or NotStopped.
func (p *TokenParser) StopReason() StopReason { return p.stopReason }

// LLMTokens returns the tokens committed so far (read-only view — callers
// must not mutate the returned slice).
func (p *TokenParser) LLMTokens() []vocab.Token { return p.llmTokens }

// ForceBytes returns the raw bytes the grammar forces from the current
// state. Safe to call regardless of whether a canonical tokenizer is
// configured.
func (p *TokenParser) ForceBytes() []byte {
	return p.rec.ForceBytes()
}

// ComputeFFTokens returns the canonical tokenization of ForceBytes(), chopped
// to a stable prefix, or nil if no canonical tokenizer was configured or
// nothing is currently forced.
func (p *TokenParser) ComputeFFTokens() []vocab.Token {
	if p.tokenizer == nil {
		return nil
	}
	forced := p.rec.ForceBytes()
	if len(forced) == 0 {
		return nil
	}
	stable, _ := p.chop(p.tokenizer.Tokenize(forced))
	return stable
}

// IsAccepting reports whether the grammar is currently satisfied, i.e.
// whether EOS would be a legal next token.
func (p *TokenParser) IsAccepting() bool {
	return p.rec.IsAccepting()
}

// ValidateToken reports whether pushing t's bytes would succeed from the
// current grammar state, without mutating it.
func (p *TokenParser) ValidateToken(t vocab.Token) bool {
	bytes := p.vocab.Bytes(t)
	pushed := 0
	ok := true
	for _, b := range bytes {
		if !p.rec.TryPushByte(b) {
			ok = false
			break
		}
		pushed++
	}
	p.rec.PopBytes(pushed)
	return ok
}

// ValidateTokensRaw returns the length of the longest prefix of ts that
// would be accepted from the current grammar state, without mutating it.
func (p *TokenParser) ValidateTokensRaw(ts []vocab.Token) int {
	pushed := 0
	accepted := 0
	for _, t := range ts {
		ok := true
		for _, b := range p.vocab.Bytes(t) {
			if !p.rec.TryPushByte(b) {
				ok = false
				break
			}
			pushed++
		}
		if !ok {
			p.rec.PopBytes(pushed)
			return accepted
		}
		accepted++
	}
	p.rec.PopBytes(pushed)
	return accepted
}

// ConsumeToken commits t: appends it to the committed history and advances
// the grammar. Returns a KindRejection error (see internal/mmerr) without
// mutating any state if t is not currently grammar-legal; in matcher mode
// backtrack is always 0 on success.
func (p *TokenParser) ConsumeToken(t vocab.Token) (backtrack int, err error) {
	bytes := p.vocab.Bytes(t)
	pushed := 0
	for _, b := range bytes {
		if !p.rec.TryPushByte(b) {
			p.rec.PopBytes(pushed)
			return 0, mmerr.Rejectionf("parser: token %d rejected by grammar at byte offset %d", t, pushed)
		}
		pushed++
	}
	p.rec.Collapse()
	p.llmTokens = append(p.llmTokens, t)
	return 0, nil
}

// Rollback truncates the committed history by n tokens and rewinds the
// grammar to match, by resetting to the initial state and replaying what
// remains — the cheapest correct approach the spec allows for a small n.
func (p *TokenParser) Rollback(n int) error {
	if n < 0 || n > len(p.llmTokens) {
		return mmerr.Invariantf("parser: rollback(%d) exceeds committed history of %d tokens", n, len(p.llmTokens))
	}
	p.llmTokens = p.llmTokens[:len(p.llmTokens)-n]
	p.rec.Reset()
	for _, t := range p.llmTokens {
		for _, b := range p.vocab.Bytes(t) {
			if !p.rec.TryPushByte(b) {
				return mmerr.WrapInvariant(
					fmt.Errorf("byte rejected replaying token %d", t),
					"parser: grammar rejected previously-committed history while replaying for rollback",
				)
			}
		}
		p.rec.Collapse()
	}
	return nil
}

// CheckStop sets stopReason to NoExtensionPossible if, from the current
// state, no byte and no special token would be accepted and the grammar is
// not already accepting (an accepting state can legitimately stop via EOS,
// which is not itself a deadlock).
func (p *TokenParser) CheckStop() {
	if p.rec.IsAccepting() {
		return
	}
	for b := 0; b < 256; b++ {
		if p.rec.TryPushByte(byte(b)) {
			p.rec.PopBytes(1)
			return
		}
	}
	for _, tok := range p.trie.SpecialTokens() {
		if p.rec.SpecialAllowed(recognizer.SpecialToken(tok)) {
			return
		}
	}
	p.stopReason = NoExtensionPossible
}

// MidProcess is the per-step coupling algorithm (spec.md §4.4): replay
// newTokens, detect any retroactive retokenization the host's token split
// missed, and otherwise propose the next forced tokens or a sampling mask.
func (p *TokenParser) MidProcess(newTokens []vocab.Token) (StepResult, error) {
	for _, t := range newTokens {
		if t == p.vocab.EOS() {
			p.stopReason = EosTriggered
			return Stop{Reason: EosTriggered}, nil
		}
	}

	if p.maxTokens > 0 && len(p.llmTokens)+len(newTokens) >= p.maxTokens {
		p.stopReason = MaxTokensReached
	}

	for _, t := range newTokens {
		if _, err := p.ConsumeToken(t); err != nil {
			return nil, err
		}
	}
	if p.stopReason == MaxTokensReached {
		return Stop{Reason: MaxTokensReached}, nil
	}

	forced := p.rec.ForceBytes()

	if p.tokenizer != nil && len(forced) > 0 {
		if backtrack, ff, found := p.findRetokenization(forced); found {
			if backtrack > 0 && !p.caps.Backtrack {
				p.stopReason = InternalError
				return nil, mmerr.Invariantf(
					"parser: grammar requires retokenizing the last %d committed token(s) but the host declared backtrack_ok=false",
					backtrack,
				)
			}
			ff = p.throttleFF(ff)
			return Splice{Backtrack: uint32(backtrack), FFTokens: ff}, nil
		}
	}

	if p.tokenizer != nil && len(forced) > 0 {
		grmTokens := p.tokenizer.Tokenize(forced)
		stable, _ := p.chop(grmTokens)
		if len(stable) > 0 {
			return Splice{Backtrack: 0, FFTokens: p.throttleFF(stable)}, nil
		}
	}

	set := p.trie.AllocTokenSet()
	if err := p.trie.ComputeBiasExt(p.rec, set, forced); err != nil {
		p.stopReason = InternalError
		return nil, mmerr.WrapInvariant(err, "parser: forced bytes rejected by their own recognizer while computing mask")
	}
	return Sample{Mask: set, Temperature: 1.0}, nil
}

// throttleFF enforces the degraded-host fast-forward rule: if the host
// can't accept more than one fast-forwarded token per step, hold the rest
// back — the next MidProcess call recomputes the same forced continuation
// one token shorter once the host catches up, so nothing needs to be
// stashed here.
func (p *TokenParser) throttleFF(ff []vocab.Token) []vocab.Token {
	if !p.caps.FFTokens && len(ff) > 1 {
		return ff[:1]
	}
	return ff
}

// findRetokenization looks at the maximal tail of committed tokens whose
// total byte length fits in one vocabulary token, and checks whether the
// canonical tokenizer would have grouped that tail (plus the newly forced
// bytes) differently than the host actually did. If so, the host's token
// boundary choice needs to be corrected via a backtrack+splice.
func (p *TokenParser) findRetokenization(forced []byte) (backtrack int, ffTokens []vocab.Token, found bool) {
	tail := p.trailingWindow()
	if len(tail) == 0 {
		return 0, nil, false
	}
	tailBytes := vocab.Decode(p.vocab, tail)
	extended := append(append([]byte{}, tailBytes...), forced...)
	canon := p.tokenizer.Tokenize(extended)

	if tokensEqualPrefix(canon, tail, len(tail)) {
		return 0, nil, false
	}

	stable, _ := p.chop(canon)
	return len(tail), stable, true
}

func tokensEqualPrefix(a, b []vocab.Token, n int) bool {
	if len(a) < n || len(b) < n {
		return false
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// trailingWindow returns the maximal suffix of llmTokens whose total byte
// length does not exceed the vocabulary's longest token — the only span a
// single canonical token could possibly re-absorb.
func (p *TokenParser) trailingWindow() []vocab.Token {
	max := p.trie.MaxTokenLen()
	total := 0
	start := len(p.llmTokens)
	for start > 0 {
		tlen := len(p.vocab.Bytes(p.llmTokens[start-1]))
		if total+tlen > max {
			break
		}
		total += tlen
		start--
	}
	return p.llmTokens[start:]
}

// chop implements the boundary-chop step (spec.md §4.4 step 4): walk tokens
// right-to-left, accumulating bytes into a candidate suffix, and keep
// chopping as long as the suffix stays within max_token_len and the trie
// reports some vocabulary token could still extend it into something
// longer (i.e. its tokenization is still ambiguous pending more bytes). The
// returned chopBytes is the accumulated suffix of the final chop point.
func (p *TokenParser) chop(tokens []vocab.Token) (stable []vocab.Token, chopBytes []byte) {
	maxLen := p.trie.MaxTokenLen()
	chopIdx := len(tokens)
	var suff []byte
	for i := len(tokens) - 1; i >= 0; i-- {
		cand := append(append([]byte{}, p.vocab.Bytes(tokens[i])...), suff...)
		if len(cand) > maxLen {
			break
		}
		if !p.trie.HasExtensions(cand) {
			break
		}
		suff = cand
		chopIdx = i
	}
	return tokens[:chopIdx], suff
}
