package util

import "strings"

// stringBuilderOp is one recorded mutation, applied lazily so Undo can
// simply rewind the cursor rather than maintaining its own inverse.
type stringBuilderOp struct {
	text string
}

// UndoableStringBuilder wraps strings.Builder and provides an additional
// 'Undo' function which undoes the prior mutation. Trimmed from the
// teacher's version down to the one write form and the undo cursor
// cmd/llmaskctl's repl actually drives: every token consumed is one
// WriteString, and Undo steps back exactly one committed token in lockstep
// with a matcher Rollback.
//
// Note that to accomplish this it more or less saves a complete copy of every
// operation and lazily applies them only when needed.
type UndoableStringBuilder struct {
	cache      *strings.Builder // set to nil to invalidate cache
	pendingOps []stringBuilderOp
	cur        int // undo cursor
}

// String returns the accumulated string.
//
// This will force evaluation of all pending operations if it hasn't been
// applied yet or if there have been mutation functions called on the
// UndoableStringBuilder since the last time pending operations were applied.
func (usb *UndoableStringBuilder) String() string {
	usb.apply()
	return usb.cache.String()
}

// WriteString appends the contents of s to b's buffer.
//
// This is an undoable operation.
func (usb *UndoableStringBuilder) WriteString(s string) {
	usb.addOp(stringBuilderOp{text: s})
}

// Undo reverts the previous operation.
//
// Undo can be called multiple times to undo as many operations as are desired.
// If called when there are no further operations to undo, this function has no
// effect.
func (usb *UndoableStringBuilder) Undo() {
	usb.cur--
	if usb.cur < 0 {
		usb.cur = 0
	}
}

func (usb *UndoableStringBuilder) addOp(op stringBuilderOp) {
	usb.cache = nil // invalidate cache

	// set pending ops to remove any ops we have undone, by adding an op they
	// are no longer re-doable.
	if usb.pendingOps != nil && usb.cur < len(usb.pendingOps) {
		usb.pendingOps = usb.pendingOps[:usb.cur]
	}

	usb.pendingOps = append(usb.pendingOps, op)

	// advance the cursor so it points to the current end after the append
	usb.cur++
}

func (usb *UndoableStringBuilder) apply() {
	// dont apply operations if the cache is not invalid
	if usb.cache != nil {
		return
	}

	sb := strings.Builder{}

	for i := range usb.pendingOps {
		// only go up to the current undo pointer
		if i >= usb.cur {
			break
		}
		sb.WriteString(usb.pendingOps[i].text)
	}

	usb.cache = &sb
}
