package recognizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capRecognizer is a Functional[int] that accepts bytes only while state <
// limit, where state counts bytes pushed. Used to exercise Stack push/pop.
type capRecognizer struct{ limit int }

func (c capRecognizer) Initial() int { return 0 }

func (c capRecognizer) TryAppend(state int, _ byte) (int, bool) {
	if state >= c.limit {
		return state, false
	}
	return state + 1, true
}

func (c capRecognizer) SpecialAllowed(state int, _ SpecialToken) bool {
	return state == c.limit
}

func Test_Stack_push_pop_roundtrip(t *testing.T) {
	s := NewStack[int](capRecognizer{limit: 3}, 10)

	require.True(t, s.TryPushByte('a'))
	require.True(t, s.TryPushByte('b'))
	require.True(t, s.TryPushByte('c'))
	assert.False(t, s.TryPushByte('d'))
	assert.Equal(t, 3, s.Top())

	s.PopBytes(3)
	assert.Equal(t, 0, s.Top())
	s.TrieFinished() // must not panic
}

func Test_Stack_Collapse_moves_base(t *testing.T) {
	s := NewStack[int](capRecognizer{limit: 3}, 10)

	require.True(t, s.TryPushByte('a'))
	require.True(t, s.TryPushByte('b'))
	s.Collapse()
	assert.Equal(t, 2, s.Top())

	require.True(t, s.TryPushByte('c'))
	assert.Equal(t, 3, s.Top())
}

func Test_Stack_SpecialAllowed(t *testing.T) {
	s := NewStack[int](capRecognizer{limit: 1}, 10)
	assert.False(t, s.SpecialAllowed(0))

	require.True(t, s.TryPushByte('x'))
	assert.True(t, s.SpecialAllowed(0))
}

func Test_AnythingGoes(t *testing.T) {
	s := NewStack[struct{}](AnythingGoes{}, 10)
	for _, b := range []byte("any bytes at all \x00\xff") {
		require.True(t, s.TryPushByte(b))
	}
	assert.True(t, s.SpecialAllowed(0))
}
