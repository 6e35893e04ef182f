package stopctl

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dekarrin/llmask/internal/vocab"
)

// wordVocab tokenizes a handful of whole words/fragments as single tokens,
// enough to replay S5's "hi there<|end|>more" stream one token at a time.
func wordVocab() (*vocab.Vocabulary, map[string]vocab.Token) {
	names := []string{"hi ", "there", "<|end|>", "more", "HEAL"}
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

func Test_Controller_S5_stop_regex_truncates_stream(t *testing.T) {
	v, byName := wordVocab()
	re := regexp.MustCompile(`<\|end\|>`)
	c := New(v, Config{StopRegex: re})

	var out []byte

	emit, stopped := c.Consume(byName["hi "])
	out = append(out, emit...)
	assert.False(t, stopped)

	emit, stopped = c.Consume(byName["there"])
	out = append(out, emit...)
	assert.False(t, stopped)

	emit, stopped = c.Consume(byName["<|end|>"])
	out = append(out, emit...)
	require.True(t, stopped)

	// "more" must never reach the output: the stream already stopped.
	emit, stopped = c.Consume(byName["more"])
	assert.Nil(t, emit)
	assert.True(t, stopped)

	assert.Equal(t, "hi there", string(out))
	assert.True(t, c.Stopped())
}

func Test_Controller_hard_stop_token(t *testing.T) {
	v, byName := wordVocab()
	c := New(v, Config{StopTokens: []vocab.Token{byName["<|end|>"]}})

	emit, stopped := c.Consume(byName["hi "])
	assert.Equal(t, "hi ", string(emit), "no stop regex configured: nothing to hold back for")
	assert.False(t, stopped)

	emit, stopped = c.Consume(byName["<|end|>"])
	assert.True(t, stopped)
	assert.Empty(t, emit, "the stop token's own bytes never reach the output")
}

func Test_Controller_healing_tokens_stripped(t *testing.T) {
	v, byName := wordVocab()
	re := regexp.MustCompile(`<\|end\|>`)
	c := New(v, Config{StopRegex: re, HealingTokens: []vocab.Token{byName["HEAL"]}})

	emit, stopped := c.Consume(byName["HEAL"])
	assert.Nil(t, emit)
	assert.False(t, stopped)

	emit, stopped = c.Consume(byName["<|end|>"])
	assert.True(t, stopped)
	assert.Empty(t, emit, "the regex match itself is excluded from output, same as a hard-stop token")
}

func Test_Controller_Flush_on_eos_without_stop(t *testing.T) {
	v, byName := wordVocab()
	re := regexp.MustCompile(`<\|end\|>`)
	c := New(v, Config{StopRegex: re})

	_, stopped := c.Consume(byName["hi "])
	require.False(t, stopped)

	rest := c.Flush()
	assert.Contains(t, string(rest), "hi")
}
