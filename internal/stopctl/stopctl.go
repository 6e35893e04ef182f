// Package stopctl implements the stop controller (C6): the independent
// streaming state machine that decides when generation output should stop
// being forwarded to the host, and trims the last few bytes a safe margin
// behind whatever the stop regex might still match.
//
// This is deliberately built on the standard library's regexp rather than
// one of the grammar engines elsewhere in this module: the stop regex here
// runs over already-decoded output text as a simple membership test, not as
// a byte-at-a-time constraint a token mask has to respect, so there is
// nothing for a derivative/Earley engine to buy here that regexp.Regexp
// doesn't already give for free.
package stopctl

import (
	"regexp"

	"github.com/dekarrin/llmask/internal/util"
	"github.com/dekarrin/llmask/internal/vocab"
)

// defaultLookback is how many trailing bytes Controller holds back awaiting
// a possible regex match when no more specific value is configured. A
// streaming regex engine could compute the exact "could this byte sequence
// still be a match prefix" answer; regexp.Regexp exposes no such API, so
// this package takes the pragmatic approach of holding back a fixed window
// and re-testing the whole buffer each step (see the package doc and
// DESIGN.md for why this tradeoff was made instead of hand-rolling a partial
// match automaton).
const defaultLookback = 64

// Config configures a Controller.
type Config struct {
	// StopTokens are token ids whose emission hard-stops the stream; neither
	// the token's own bytes nor anything after it reach the output.
	StopTokens []vocab.Token

	// StopRegex, if non-nil, is matched against the whole decoded buffer on
	// every step; a match truncates output at the match's start.
	StopRegex *regexp.Regexp

	// HealingTokens are stripped entirely from the visible stream before
	// matching — used for tokenizer-specific filler tokens a host
	// resynthesizes itself and that should never participate in stop
	// detection.
	HealingTokens []vocab.Token

	// Lookback overrides defaultLookback. Zero means use the default.
	Lookback int
}

// Controller is the per-stream stop state machine. Not safe for concurrent
// use.
type Controller struct {
	v        *vocab.Vocabulary
	stopTok  util.KeySet[vocab.Token]
	healing  util.KeySet[vocab.Token]
	re       *regexp.Regexp
	lookback int

	buf     []byte
	stopped bool
}

// New builds a Controller over v using cfg.
func New(v *vocab.Vocabulary, cfg Config) *Controller {
	stopTok := util.KeySetOf(cfg.StopTokens)
	if stopTok == nil {
		stopTok = util.NewKeySet[vocab.Token]()
	}
	healing := util.KeySetOf(cfg.HealingTokens)
	if healing == nil {
		healing = util.NewKeySet[vocab.Token]()
	}
	lookback := cfg.Lookback
	if lookback == 0 {
		lookback = defaultLookback
	}
	return &Controller{v: v, stopTok: stopTok, healing: healing, re: cfg.StopRegex, lookback: lookback}
}

// Stopped reports whether the stream has already terminated.
func (c *Controller) Stopped() bool { return c.stopped }

// Consume feeds one newly committed token through the controller and
// returns the bytes now safe to forward to the host, plus whether this
// token caused the stream to stop. Once Stopped() is true, further calls
// return (nil, true) without examining t.
func (c *Controller) Consume(t vocab.Token) (emit []byte, stopped bool) {
	if c.stopped {
		return nil, true
	}
	if c.healing.Has(t) {
		return nil, false
	}

	// A hard-stop token's own bytes never reach the output, matching the
	// stop-regex branch below which also excludes the matched text itself.
	if c.stopTok.Has(t) {
		emit = c.buf
		c.buf = nil
		c.stopped = true
		return emit, true
	}

	c.buf = append(c.buf, c.v.Bytes(t)...)

	if c.re != nil {
		if loc := c.re.FindIndex(c.buf); loc != nil {
			emit = c.buf[:loc[0]]
			c.buf = nil
			c.stopped = true
			return emit, true
		}
	}

	holdback := c.lookback
	if c.re == nil {
		holdback = 0
	}
	if holdback > len(c.buf) {
		holdback = len(c.buf)
	}
	cut := len(c.buf) - holdback
	emit = c.buf[:cut]
	c.buf = c.buf[cut:]
	return emit, false
}

// Flush returns and clears whatever is still held back in the lookback
// window, for a host that reaches EOS without ever triggering a stop
// condition.
func (c *Controller) Flush() []byte {
	out := c.buf
	c.buf = nil
	return out
}
