// Package matcher implements the matcher facade (C5): the error-quarantining
// wrapper a host actually drives. Every public operation that touches the
// underlying token parser runs under a panic catcher, mirroring the
// teacher's server/api.panicTo500 pattern — a caught panic here permanently
// moves the matcher to its Error state instead of crashing the host process,
// since the grammar stack underneath, while designed to be correct, is not
// allowed to take the host down with it.
package matcher

import (
	"fmt"
	"runtime/debug"

	"github.com/dekarrin/llmask/internal/llog"
	"github.com/dekarrin/llmask/internal/mmerr"
	"github.com/dekarrin/llmask/internal/parser"
	"github.com/dekarrin/llmask/internal/toktrie"
	"github.com/dekarrin/llmask/internal/vocab"
)

// Matcher is the facade a host drives directly. It wraps a *parser.TokenParser
// in one of two states: normal operation, or permanently quarantined after an
// internal panic. Not safe for concurrent use by multiple goroutines — see
// internal/matcherpool for driving many independent Matchers in parallel.
type Matcher struct {
	inner *parser.TokenParser
	trie  *toktrie.Trie
	v     *vocab.Vocabulary
	log   *llog.Logger

	errored bool
	errMsg  string
}

// New builds a Matcher around an already-constructed token parser.
func New(inner *parser.TokenParser, trie *toktrie.Trie, v *vocab.Vocabulary, log *llog.Logger) *Matcher {
	if log == nil {
		log = llog.Discard()
	}
	return &Matcher{inner: inner, trie: trie, v: v, log: log}
}

// IsError reports whether this matcher has been permanently quarantined by a
// prior internal panic.
func (m *Matcher) IsError() bool { return m.errored }

// GetError returns the message the matcher was quarantined with, or "" if
// IsError is false.
func (m *Matcher) GetError() string { return m.errMsg }

// quarantine transitions the matcher to its terminal Error state. Called
// both by the panic catcher and directly wherever an operation surfaces an
// mmerr.KindInvariant error, since an invariant violation is exactly as
// fatal to the instance whether it arrived as a panic or a returned error.
func (m *Matcher) quarantine(msg string) {
	m.errored = true
	m.errMsg = msg
	m.log.Warn("matcher quarantined", "reason", msg)
}

// guard wraps fn in the panic-catching quarantine boundary and runs it only
// if the matcher isn't already errored. Every mutating or computing public
// method funnels through this.
func (m *Matcher) guard(fn func() error) (err error) {
	if m.errored {
		return mmerr.Invariant("matcher: operation attempted on a quarantined matcher", m.errMsg)
	}
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("panic: %v\n%s", r, debug.Stack())
			m.quarantine(msg)
			err = mmerr.Invariant("matcher: internal panic, instance quarantined", msg)
		}
	}()
	err = fn()
	if err != nil && mmerr.IsInvariant(err) {
		m.quarantine(err.Error())
	}
	return err
}

// ConsumeTokens commits each token in ts in order via the underlying parser,
// stopping at the first rejection. A rejection is a recoverable grammar
// error (spec.md §7): the matcher itself is not quarantined by it, unlike an
// invariant violation.
func (m *Matcher) ConsumeTokens(ts []vocab.Token) error {
	return m.guard(func() error {
		for _, t := range ts {
			if _, err := m.inner.ConsumeToken(t); err != nil {
				return err
			}
		}
		return nil
	})
}

// TryConsumeTokens is ConsumeTokens but reports how many of ts were
// successfully committed before a rejection (or all of them), rather than
// treating the rejection as an error to the caller — useful for a host that
// wants to probe how far a candidate continuation gets.
func (m *Matcher) TryConsumeTokens(ts []vocab.Token) (accepted int, err error) {
	err = m.guard(func() error {
		for _, t := range ts {
			if _, cerr := m.inner.ConsumeToken(t); cerr != nil {
				return nil
			}
			accepted++
		}
		return nil
	})
	return accepted, err
}

// Rollback truncates committed history by n tokens.
func (m *Matcher) Rollback(n int) error {
	return m.guard(func() error {
		return m.inner.Rollback(n)
	})
}

// ValidateToken is the non-mutating check: would pushing t's bytes succeed
// from the current state?
func (m *Matcher) ValidateToken(t vocab.Token) (ok bool, err error) {
	err = m.guard(func() error {
		ok = m.inner.ValidateToken(t)
		return nil
	})
	return ok, err
}

// ValidateTokensRaw returns the length of the longest prefix of ts that
// would be accepted from the current state.
func (m *Matcher) ValidateTokensRaw(ts []vocab.Token) (n int, err error) {
	err = m.guard(func() error {
		n = m.inner.ValidateTokensRaw(ts)
		return nil
	})
	return n, err
}

// ComputeFFTokens returns the canonical tokenization of the grammar's
// currently forced bytes, chopped to a stable prefix — [] if no canonical
// tokenizer is configured or nothing is forced.
func (m *Matcher) ComputeFFTokens() (tokens []vocab.Token, err error) {
	err = m.guard(func() error {
		tokens = m.inner.ComputeFFTokens()
		return nil
	})
	return tokens, err
}

// ComputeFFBytes returns the raw bytes the grammar forces from the current
// state, safe to call regardless of tokenizer configuration.
func (m *Matcher) ComputeFFBytes() (bytes []byte, err error) {
	err = m.guard(func() error {
		bytes = m.inner.ForceBytes()
		return nil
	})
	return bytes, err
}

// Step is the sum type returned by ComputeStep: exactly one of Sample,
// Splice, or Stop (re-exported from internal/parser so a host driving
// Matcher doesn't need to import it directly).
type Step = parser.StepResult

// ComputeStep runs one mid_process iteration: replays newTokens, then
// returns the next sample mask, a fast-forward/backtrack splice, or a stop
// signal.
func (m *Matcher) ComputeStep(newTokens []vocab.Token) (step Step, err error) {
	err = m.guard(func() error {
		var innerErr error
		step, innerErr = m.inner.MidProcess(newTokens)
		return innerErr
	})
	return step, err
}

// ComputeMask is ComputeStep's narrow form for a host that only ever wants
// the sampling mask for the current state (no fast-forward negotiation):
// equivalent to calling ComputeStep(nil) and requiring a Sample result.
func (m *Matcher) ComputeMask() (set toktrie.TokenSet, err error) {
	err = m.guard(func() error {
		step, innerErr := m.inner.MidProcess(nil)
		if innerErr != nil {
			return innerErr
		}
		switch s := step.(type) {
		case parser.Sample:
			set = s.Mask
			return nil
		case parser.Stop:
			return mmerr.Rejectionf("matcher: compute_mask called on a stopped matcher (reason=%s)", s.Reason)
		case parser.Splice:
			return mmerr.Rejectionf("matcher: compute_mask called while a fast-forward/splice is pending; call ComputeStep instead")
		default:
			return mmerr.Invariantf("matcher: mid_process returned an unrecognized step type %T", step)
		}
	})
	return set, err
}

// ComputeMaskOrEOS is ComputeMask, but on any error returns a mask with only
// EOS set rather than propagating the error. Nothing in this module calls
// it: the debug introspection server (cmd/llmaskctl serve) uses ComputeMask
// and reports its error to the client.
func (m *Matcher) ComputeMaskOrEOS() toktrie.TokenSet {
	set, err := m.ComputeMask()
	if err == nil {
		return set
	}
	eosOnly := m.trie.AllocTokenSet()
	eosOnly.Set(m.trie.EOSToken())
	return eosOnly
}

// logitBiasBoost is the coarse additive bias compute_logit_bias adds at
// permitted positions, matching the original llmatcher.rs encoding: a flat
// boost large enough to dominate any realistic logit rather than an exact
// -Inf exclusion, for hosts whose sampler only accepts an additive bias
// array and not a hard mask.
const logitBiasBoost = 200

// ComputeLogitBias encodes the current mask as a dense []byte of length
// vocab_size: logitBiasBoost where the token is permitted, 0 everywhere
// else. This is the coarse encoding for hosts that only support additive
// logit biasing rather than a hard sampling mask; ComputeBitmask is the
// exact encoding for hosts that do.
func (m *Matcher) ComputeLogitBias() (bias []byte, err error) {
	set, err := m.ComputeMask()
	if err != nil {
		return nil, err
	}
	bias = make([]byte, m.v.Size())
	for tok := 0; tok < m.v.Size(); tok++ {
		if set.IsSet(vocab.Token(tok)) {
			bias[tok] = logitBiasBoost
		}
	}
	return bias, nil
}

// ComputeBitmask encodes the current mask as the packed 32-bit-word bitmask
// format spec.md §5 describes for the parallel batch buffer: ceil(vocab_size
// / 32) words, one bit per token.
func (m *Matcher) ComputeBitmask() (words []uint32, err error) {
	set, err := m.ComputeMask()
	if err != nil {
		return nil, err
	}
	return append([]uint32(nil), set.Words()...), nil
}

// IsAccepting reports whether the grammar is currently satisfied (EOS would
// be legal).
func (m *Matcher) IsAccepting() (ok bool, err error) {
	err = m.guard(func() error {
		ok = m.inner.IsAccepting()
		return nil
	})
	return ok, err
}

// IsStopped reports whether generation has already terminated for any
// reason, including quarantine.
func (m *Matcher) IsStopped() bool {
	if m.errored {
		return true
	}
	return m.inner.StopReason() != parser.NotStopped
}

// StopReason reports why generation stopped, InternalError if the matcher is
// quarantined, or NotStopped otherwise.
func (m *Matcher) StopReason() parser.StopReason {
	if m.errored {
		return parser.InternalError
	}
	return m.inner.StopReason()
}
