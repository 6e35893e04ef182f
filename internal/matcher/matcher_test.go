package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dekarrin/llmask/internal/config"
	"github.com/dekarrin/llmask/internal/grammar"
	"github.com/dekarrin/llmask/internal/parser"
	"github.com/dekarrin/llmask/internal/recognizer"
	"github.com/dekarrin/llmask/internal/toktrie"
	"github.com/dekarrin/llmask/internal/vocab"
)

func digitVocab() (*vocab.Vocabulary, map[byte]vocab.Token) {
	tokens := make([][]byte, 0, 11)
	byDigit := make(map[byte]vocab.Token, 10)
	for d := byte('0'); d <= '9'; d++ {
		byDigit[d] = vocab.Token(len(tokens))
		tokens = append(tokens, []byte{d})
	}
	eos := vocab.Token(len(tokens))
	tokens = append(tokens, []byte{})
	v := vocab.New(vocab.Info{VocabSize: uint32(len(tokens)), EOSToken: eos}, tokens, nil)
	return v, byDigit
}

func newDigitMatcher(t *testing.T) (*Matcher, map[byte]vocab.Token) {
	t.Helper()
	v, byDigit := digitVocab()
	trie := toktrie.New(v)
	rec, err := grammar.NewRegex(`[0-9]{3}`, trie.MaxTokenLen())
	require.NoError(t, err)
	tok := parser.TokenizerFunc(trie.GreedyTokenize)
	tp := parser.New(trie, v, rec, tok, config.InferenceCapabilities{}, config.ParserLimits{}, nil)
	return New(tp, trie, v, nil), byDigit
}

func Test_Matcher_ComputeMask_and_ConsumeTokens(t *testing.T) {
	m, digit := newDigitMatcher(t)

	set, err := m.ComputeMask()
	require.NoError(t, err)
	assert.True(t, set.IsSet(digit['7']))

	require.NoError(t, m.ConsumeTokens([]vocab.Token{digit['4'], digit['2']}))

	accepting, err := m.IsAccepting()
	require.NoError(t, err)
	assert.False(t, accepting)

	require.NoError(t, m.ConsumeTokens([]vocab.Token{digit['9']}))
	accepting, err = m.IsAccepting()
	require.NoError(t, err)
	assert.True(t, accepting)
}

func Test_Matcher_ConsumeTokens_rejection_does_not_quarantine(t *testing.T) {
	m, digit := newDigitMatcher(t)
	require.NoError(t, m.ConsumeTokens([]vocab.Token{digit['4'], digit['2'], digit['9']}))

	// Grammar is now fully satisfied at 3 digits; a fourth digit is a
	// recoverable rejection, not an internal invariant failure.
	err := m.ConsumeTokens([]vocab.Token{digit['1']})
	assert.Error(t, err)
	assert.False(t, m.IsError(), "a grammar rejection must not quarantine the matcher")

	// the matcher is still usable afterward
	set, err := m.ComputeMask()
	require.NoError(t, err)
	_ = set
}

func Test_Matcher_TryConsumeTokens_reports_accepted_count(t *testing.T) {
	m, digit := newDigitMatcher(t)

	n, err := m.TryConsumeTokens([]vocab.Token{digit['1'], digit['2'], digit['3'], digit['4']})
	require.NoError(t, err)
	assert.Equal(t, 3, n, "fourth digit exceeds {3}")
}

func Test_Matcher_Rollback(t *testing.T) {
	m, digit := newDigitMatcher(t)
	require.NoError(t, m.ConsumeTokens([]vocab.Token{digit['4'], digit['2']}))
	require.NoError(t, m.Rollback(1))

	n, err := m.ValidateTokensRaw([]vocab.Token{digit['1'], digit['2'], digit['3']})
	require.NoError(t, err)
	assert.Equal(t, 2, n, "after rolling back to one committed digit, two more should validate")
}

func Test_Matcher_ComputeLogitBias_and_ComputeBitmask(t *testing.T) {
	m, digit := newDigitMatcher(t)

	bias, err := m.ComputeLogitBias()
	require.NoError(t, err)
	assert.Equal(t, byte(200), bias[digit['5']], "permitted digit should carry the additive boost")
	assert.Equal(t, byte(0), bias[len(bias)-1], "EOS should be unboosted with no digits committed")

	words, err := m.ComputeBitmask()
	require.NoError(t, err)
	assert.NotEmpty(t, words)
}

// panicOnFF is a GrammarRecognizer that panics when asked to push 0xFF,
// used to exercise the matcher's panic-quarantine boundary (S6).
type panicOnFF struct {
	pushed int
}

func (p *panicOnFF) TryPushByte(b byte) bool {
	if b == 0xFF {
		panic("simulated grammar panic on scan(0xFF)")
	}
	p.pushed++
	return true
}
func (p *panicOnFF) PopBytes(n int) { p.pushed -= n }
func (p *panicOnFF) Collapse()      {}
func (p *panicOnFF) TrieFinished()  {}
func (p *panicOnFF) SpecialAllowed(recognizer.SpecialToken) bool {
	return true
}
func (p *panicOnFF) IsAccepting() bool  { return false }
func (p *panicOnFF) ForceBytes() []byte { return nil }
func (p *panicOnFF) Reset()             { p.pushed = 0 }

func Test_Matcher_S6_panic_quarantine(t *testing.T) {
	names := []string{"\xff"}
	tokens := [][]byte{[]byte(names[0]), {}}
	v := vocab.New(vocab.Info{VocabSize: 2, EOSToken: 1}, tokens, nil)
	trie := toktrie.New(v)

	tp := parser.New(trie, v, &panicOnFF{}, nil, config.InferenceCapabilities{}, config.ParserLimits{}, nil)
	m := New(tp, trie, v, nil)

	err := m.ConsumeTokens([]vocab.Token{0})
	assert.Error(t, err)
	assert.True(t, m.IsError())
	assert.NotEmpty(t, m.GetError())

	// subsequent calls return immediately without attempting more work
	_, err = m.ComputeMask()
	assert.Error(t, err)
}
