// Package mmerr categorizes the errors a matcher can produce so that callers
// can branch on propagation policy without string-matching messages.
//
// Three categories exist, mirroring the three ways a grammar-constrained
// decoding session can go wrong: the grammar or tokenizer was malformed
// before a single byte was scanned (Construction), the matcher's internal
// bookkeeping caught itself in an inconsistent state (Invariant, always
// fatal to the instance), or the host asked the matcher to do something the
// grammar does not currently allow (Rejection, recoverable at the host
// level).
package mmerr

import "fmt"

// Kind classifies an error by propagation policy.
type Kind int

const (
	// KindConstruction marks a failure discovered while building a matcher
	// or grammar recognizer: bad grammar text, malformed tokenizer input, or
	// a limit exceeded at build time. The instance is never created.
	KindConstruction Kind = iota

	// KindInvariant marks an internal invariant violation: trie stack depth
	// mismatch, a forced byte rejected on reapply, a limit exceeded at
	// runtime. Always fatal to the owning instance.
	KindInvariant

	// KindRejection marks a token or byte the grammar forbids being handed
	// to a mutating operation. Recoverable: the host should not retry with
	// the same input, but the matcher itself remains usable.
	KindRejection
)

func (k Kind) String() string {
	switch k {
	case KindConstruction:
		return "construction"
	case KindInvariant:
		return "invariant"
	case KindRejection:
		return "rejection"
	default:
		return fmt.Sprintf("mmerr.Kind(%d)", int(k))
	}
}

// matcherError is an error tagged with a Kind and optionally wrapping a
// lower-level cause.
type matcherError struct {
	kind   Kind
	msg    string
	detail string
	wrap   error
}

func (e *matcherError) Error() string {
	return e.msg
}

// Detail returns additional diagnostic text beyond the primary message, for
// logging. Empty if there is none.
func (e *matcherError) Detail() string {
	return e.detail
}

// Unwrap gives the error that this wraps, if any.
func (e *matcherError) Unwrap() error {
	return e.wrap
}

// Kind reports the propagation category of this error.
func (e *matcherError) Kind() Kind {
	return e.kind
}

// Construction returns a construction-time error: the grammar or tokenizer
// input was malformed, or a build-time ParserLimits bound was exceeded.
func Construction(msg string, detail string) error {
	return &matcherError{kind: KindConstruction, msg: msg, detail: detail}
}

// Constructionf is Construction with a formatted message.
func Constructionf(format string, a ...interface{}) error {
	return Construction(fmt.Sprintf(format, a...), "")
}

// Invariant returns a runtime invariant-violation error. Callers that
// receive this from a matcher operation must treat the matcher as
// permanently broken.
func Invariant(msg string, detail string) error {
	return &matcherError{kind: KindInvariant, msg: msg, detail: detail}
}

// Invariantf is Invariant with a formatted message.
func Invariantf(format string, a ...interface{}) error {
	return Invariant(fmt.Sprintf(format, a...), "")
}

// WrapInvariant wraps an underlying error as an invariant violation.
func WrapInvariant(wrapped error, msg string) error {
	return &matcherError{kind: KindInvariant, msg: msg, wrap: wrapped}
}

// Rejection returns a recoverable grammar-rejection error: the host
// committed a token or byte the grammar currently forbids.
func Rejection(msg string, detail string) error {
	return &matcherError{kind: KindRejection, msg: msg, detail: detail}
}

// Rejectionf is Rejection with a formatted message.
func Rejectionf(format string, a ...interface{}) error {
	return Rejection(fmt.Sprintf(format, a...), "")
}

// KindOf reports the Kind of err if it (or something it wraps) is a matcher
// error produced by this package, and ok=false otherwise.
func KindOf(err error) (k Kind, ok bool) {
	type kinder interface{ Kind() Kind }
	for err != nil {
		if ke, is := err.(kinder); is {
			return ke.Kind(), true
		}
		u, is := err.(interface{ Unwrap() error })
		if !is {
			break
		}
		err = u.Unwrap()
	}
	return 0, false
}

// IsInvariant reports whether err is (or wraps) a KindInvariant error.
func IsInvariant(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindInvariant
}

// IsRejection reports whether err is (or wraps) a KindRejection error.
func IsRejection(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindRejection
}
