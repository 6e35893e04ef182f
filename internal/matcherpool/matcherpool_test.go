package matcherpool

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dekarrin/llmask/internal/config"
	"github.com/dekarrin/llmask/internal/grammar"
	"github.com/dekarrin/llmask/internal/matcher"
	"github.com/dekarrin/llmask/internal/parser"
	"github.com/dekarrin/llmask/internal/toktrie"
	"github.com/dekarrin/llmask/internal/vocab"
)

func digitMatcher(t *testing.T, pattern string) (*matcher.Matcher, *vocab.Vocabulary) {
	t.Helper()
	tokens := make([][]byte, 0, 11)
	for d := byte('0'); d <= '9'; d++ {
		tokens = append(tokens, []byte{d})
	}
	eos := vocab.Token(len(tokens))
	tokens = append(tokens, []byte{})
	v := vocab.New(vocab.Info{VocabSize: uint32(len(tokens)), EOSToken: eos}, tokens, nil)
	trie := toktrie.New(v)
	rec, err := grammar.NewRegex(pattern, trie.MaxTokenLen())
	require.NoError(t, err)
	tok := parser.TokenizerFunc(trie.GreedyTokenize)
	tp := parser.New(trie, v, rec, tok, config.InferenceCapabilities{}, config.ParserLimits{}, nil)
	return matcher.New(tp, trie, v, nil), v
}

func Test_ComputeMasks_writes_disjoint_slices(t *testing.T) {
	m1, v := digitMatcher(t, `[0-9]{3}`)
	m2, _ := digitMatcher(t, `[0-4]{3}`)

	require.NoError(t, m1.ConsumeTokens([]vocab.Token{0, 1})) // "0","1" committed
	require.NoError(t, m2.ConsumeTokens([]vocab.Token{0, 1}))

	maskBytes := MaskBytes(v.Size())
	buf := make([]byte, maskBytes*2)

	require.NoError(t, ComputeMasks(context.Background(), []*matcher.Matcher{m1, m2}, maskBytes, buf))

	words1 := readWords(buf[:maskBytes])
	words2 := readWords(buf[maskBytes:])

	assert.True(t, bitSet(words1, 9), "m1 (0-9){3} should still allow digit 9 as the third digit")
	assert.False(t, bitSet(words2, 9), "m2 (0-4){3} should forbid digit 9")
	assert.True(t, bitSet(words2, 4))
}

func Test_ComputeMasks_rejects_wrong_buffer_size(t *testing.T) {
	m1, v := digitMatcher(t, `[0-9]{3}`)
	maskBytes := MaskBytes(v.Size())

	err := ComputeMasks(context.Background(), []*matcher.Matcher{m1}, maskBytes, make([]byte, maskBytes+1))
	assert.Error(t, err)
}

func Test_ComputeMasks_rejects_nil_buffer(t *testing.T) {
	m1, v := digitMatcher(t, `[0-9]{3}`)
	maskBytes := MaskBytes(v.Size())
	_ = v

	err := ComputeMasks(context.Background(), []*matcher.Matcher{m1}, maskBytes, nil)
	assert.Error(t, err)
}

func readWords(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out
}

func bitSet(words []uint32, tok int) bool {
	return words[tok/32]&(1<<(tok%32)) != 0
}
