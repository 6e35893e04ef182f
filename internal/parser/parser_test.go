package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dekarrin/llmask/internal/config"
	"github.com/dekarrin/llmask/internal/grammar"
	"github.com/dekarrin/llmask/internal/toktrie"
	"github.com/dekarrin/llmask/internal/vocab"
)

// digitVocab builds a small vocabulary of the ten digit bytes plus EOS, for
// exercising the [0-9]{3} scenario.
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

func newDigitParser(t *testing.T) (*TokenParser, map[byte]vocab.Token) {
	t.Helper()
	v, byDigit := digitVocab()
	trie := toktrie.New(v)
	rec, err := grammar.NewRegex(`[0-9]{3}`, trie.MaxTokenLen())
	require.NoError(t, err)
	tok := TokenizerFunc(trie.GreedyTokenize)
	p := New(trie, v, rec, tok, config.InferenceCapabilities{}, config.ParserLimits{}, nil)
	return p, byDigit
}

func Test_MidProcess_S1_regex_digit_mask_narrows(t *testing.T) {
	p, digit := newDigitParser(t)

	// No tokens committed yet: all ten digits legal, nothing forced.
	res, err := p.MidProcess(nil)
	require.NoError(t, err)
	sample, ok := res.(Sample)
	require.True(t, ok, "expected Sample, got %#v", res)
	for d := byte('0'); d <= '9'; d++ {
		assert.True(t, sample.Mask.IsSet(digit[d]), "digit %q should be legal", d)
	}

	_, err = p.ConsumeToken(digit['4'])
	require.NoError(t, err)
	_, err = p.ConsumeToken(digit['2'])
	require.NoError(t, err)

	res, err = p.MidProcess(nil)
	require.NoError(t, err)
	sample, ok = res.(Sample)
	require.True(t, ok)
	assert.True(t, sample.Mask.IsSet(digit['9']), "third digit still open")

	_, err = p.ConsumeToken(digit['9'])
	require.NoError(t, err)

	assert.True(t, p.rec.IsAccepting())
	res, err = p.MidProcess(nil)
	require.NoError(t, err)
	_, ok = res.(Sample)
	require.True(t, ok, "grammar satisfied but EOS not forced: still a Sample")
}

// helloVocab builds a vocabulary for the literal-"hello" scenarios: S2's
// host tokenizes whole words (only a single "hello" token plus loose
// letters), while S3's host over-splits into "he"/"l" fragments alongside
// the canonical pieces.
func helloVocab() (*vocab.Vocabulary, map[string]vocab.Token) {
	names := []string{"hello", "he", "hel", "l", "llo", "lo"}
	tokens := make([][]byte, 0, len(names)+1)
	byName := make(map[string]vocab.Token, len(names))
	for _, n := range names {
		byName[n] = vocab.Token(len(tokens))
		tokens = append(tokens, []byte(n))
	}
	eos := vocab.Token(len(tokens))
	tokens = append(tokens, []byte{})
	v := vocab.New(vocab.Info{VocabSize: uint32(len(tokens)), EOSToken: eos}, tokens, nil)
	return v, byName
}

func newHelloParser(t *testing.T) (*TokenParser, map[string]vocab.Token, *toktrie.Trie) {
	t.Helper()
	v, byName := helloVocab()
	trie := toktrie.New(v)
	rec, err := grammar.NewRegex(`hello`, trie.MaxTokenLen())
	require.NoError(t, err)
	tok := TokenizerFunc(trie.GreedyTokenize)
	p := New(trie, v, rec, tok, config.InferenceCapabilities{FFTokens: true, Backtrack: true}, config.ParserLimits{}, nil)
	return p, byName, trie
}

func Test_MidProcess_S2_fastforward_whole_literal(t *testing.T) {
	p, byName, _ := newHelloParser(t)

	res, err := p.MidProcess(nil)
	require.NoError(t, err)
	splice, ok := res.(Splice)
	require.True(t, ok, "expected Splice, got %#v", res)
	assert.Equal(t, uint32(0), splice.Backtrack)
	require.Len(t, splice.FFTokens, 1)
	assert.Equal(t, byName["hello"], splice.FFTokens[0])
}

func Test_MidProcess_S3_retokenization_backtrack_and_splice(t *testing.T) {
	p, byName, _ := newHelloParser(t)

	// Host over-split "hello" into "he" + "l" rather than fast-forwarding
	// the single canonical token.
	_, err := p.ConsumeToken(byName["he"])
	require.NoError(t, err)
	_, err = p.ConsumeToken(byName["l"])
	require.NoError(t, err)

	res, err := p.MidProcess(nil)
	require.NoError(t, err)
	splice, ok := res.(Splice)
	require.True(t, ok, "expected Splice, got %#v", res)
	assert.Equal(t, uint32(2), splice.Backtrack)
	require.Len(t, splice.FFTokens, 1)
	assert.Equal(t, byName["hello"], splice.FFTokens[0])
}

func Test_MidProcess_S3_requires_backtrack_capability(t *testing.T) {
	v, byName := helloVocab()
	trie := toktrie.New(v)
	rec, err := grammar.NewRegex(`hello`, trie.MaxTokenLen())
	require.NoError(t, err)
	tok := TokenizerFunc(trie.GreedyTokenize)
	// Backtrack left false: the host declared it can't undo committed
	// tokens, so a required backtrack must surface as a fatal error.
	p := New(trie, v, rec, tok, config.InferenceCapabilities{FFTokens: true}, config.ParserLimits{}, nil)

	_, err = p.ConsumeToken(byName["he"])
	require.NoError(t, err)
	_, err = p.ConsumeToken(byName["l"])
	require.NoError(t, err)

	_, err = p.MidProcess(nil)
	assert.Error(t, err)
	assert.Equal(t, InternalError, p.StopReason())
}

func Test_ConsumeToken_rejects_illegal_token(t *testing.T) {
	p, byName, _ := newHelloParser(t)

	// "l" first byte 'l' doesn't match the grammar's required leading 'h'.
	_, err := p.ConsumeToken(byName["l"])
	require.Error(t, err)
	assert.Empty(t, p.LLMTokens(), "rejected token must not be committed")
}

func Test_ConsumeToken_Rollback_roundtrip(t *testing.T) {
	p, digit := newDigitParser(t)

	_, err := p.ConsumeToken(digit['4'])
	require.NoError(t, err)
	_, err = p.ConsumeToken(digit['2'])
	require.NoError(t, err)
	require.Len(t, p.LLMTokens(), 2)

	require.NoError(t, p.Rollback(1))
	assert.Len(t, p.LLMTokens(), 1)
	assert.Equal(t, digit['4'], p.LLMTokens()[0])

	// Grammar state rewound along with history: a second digit is legal
	// again (we're back to having committed only one of three).
	res, err := p.MidProcess(nil)
	require.NoError(t, err)
	sample, ok := res.(Sample)
	require.True(t, ok)
	assert.True(t, sample.Mask.IsSet(digit['9']))
}

func Test_ValidateToken_and_ValidateTokensRaw(t *testing.T) {
	p, digit := newDigitParser(t)

	assert.True(t, p.ValidateToken(digit['5']))

	n := p.ValidateTokensRaw([]vocab.Token{digit['1'], digit['2'], digit['3']})
	assert.Equal(t, 3, n)

	// A grammar-illegal continuation should validate fewer than supplied.
	n = p.ValidateTokensRaw([]vocab.Token{digit['1'], digit['2'], digit['3'], digit['4']})
	assert.Equal(t, 3, n, "fourth digit exceeds {3}, shouldn't validate")

	// ValidateToken/ValidateTokensRaw must not mutate state.
	assert.Len(t, p.LLMTokens(), 0)
}

func Test_CheckStop_no_extension_possible(t *testing.T) {
	p, digit := newDigitParser(t)
	_, err := p.ConsumeToken(digit['1'])
	require.NoError(t, err)
	_, err = p.ConsumeToken(digit['2'])
	require.NoError(t, err)
	_, err = p.ConsumeToken(digit['3'])
	require.NoError(t, err)

	p.CheckStop()
	assert.Equal(t, NotStopped, p.StopReason(), "accepting state isn't a deadlock by itself")
}

func Test_MidProcess_EOS_stops(t *testing.T) {
	p, digit := newDigitParser(t)
	_, err := p.ConsumeToken(digit['1'])
	require.NoError(t, err)
	_, err = p.ConsumeToken(digit['2'])
	require.NoError(t, err)
	_, err = p.ConsumeToken(digit['3'])
	require.NoError(t, err)

	v, _ := digitVocab()
	res, err := p.MidProcess([]vocab.Token{v.EOS()})
	require.NoError(t, err)
	stop, ok := res.(Stop)
	require.True(t, ok)
	assert.Equal(t, EosTriggered, stop.Reason)
	assert.Equal(t, EosTriggered, p.StopReason())
}
