package grammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NewRegex_basic(t *testing.T) {
	rec, err := NewRegex(`fo+ba[rz]`, 16)
	require.NoError(t, err)

	for _, b := range []byte("fooba") {
		require.True(t, rec.TryPushByte(b))
	}
	assert.False(t, rec.IsAccepting())
	require.True(t, rec.TryPushByte('r'))
	assert.True(t, rec.IsAccepting())
}

func Test_NewRegex_ForceBytes(t *testing.T) {
	rec, err := NewRegex(`hello`, 16)
	require.NoError(t, err)

	assert.Equal(t, []byte("hello"), rec.ForceBytes())
	require.True(t, rec.TryPushByte('h'))
	assert.Equal(t, []byte("ello"), rec.ForceBytes())
}

func Test_NewRegex_rejects_wrong_byte(t *testing.T) {
	rec, err := NewRegex(`[0-9]{3}`, 16)
	require.NoError(t, err)

	assert.True(t, rec.TryPushByte('4'))
	assert.False(t, rec.TryPushByte('x'))
}

func Test_NewRegex_quantifiers(t *testing.T) {
	rec, err := NewRegex(`ab?c+`, 16)
	require.NoError(t, err)

	require.True(t, rec.TryPushByte('a'))
	require.True(t, rec.TryPushByte('c'))
	assert.True(t, rec.IsAccepting())
	require.True(t, rec.TryPushByte('c'))
	assert.True(t, rec.IsAccepting())
}

// balancedParens builds a CFG for S -> '(' S ')' S | ε, a minimal
// self-recursive grammar good for exercising the Earley completer across
// non-adjacent chart columns.
func balancedParens() *CFG {
	return &CFG{
		Start: "S",
		Rules: []GrammarRule{
			{Head: "S", Body: []Symbol{Terminal('(', '('), Rule("S"), Terminal(')', ')'), Rule("S")}},
			{Head: "S", Body: nil},
		},
	}
}

func Test_CFGEngine_balanced_parens(t *testing.T) {
	eng := NewCFGEngine(balancedParens())
	rec := New[earleyState](eng, 16)

	assert.True(t, rec.IsAccepting(), "empty string is balanced")

	for _, b := range []byte("()") {
		require.True(t, rec.TryPushByte(b))
	}
	assert.True(t, rec.IsAccepting())

	for _, b := range []byte("(()") {
		require.True(t, rec.TryPushByte(b))
	}
	assert.False(t, rec.IsAccepting(), "one paren still unclosed")
	require.True(t, rec.TryPushByte(')'))
	assert.True(t, rec.IsAccepting())
}

func Test_CFGEngine_rejects_leading_close_paren(t *testing.T) {
	eng := NewCFGEngine(balancedParens())
	rec := New[earleyState](eng, 16)

	assert.False(t, rec.TryPushByte(')'), "a lone ')' can never start a balanced string")
}

func Test_CFGEngine_construction_panics_on_undefined_nonterminal(t *testing.T) {
	bad := &CFG{
		Start: "S",
		Rules: []GrammarRule{
			{Head: "S", Body: []Symbol{Rule("Missing")}},
		},
	}
	assert.Panics(t, func() { NewCFGEngine(bad) })
}
