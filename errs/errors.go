// Package errs defines the error taxonomy shared by every NDTS component.
//
// Errors are classified by Kind so callers can branch on the failure class
// without parsing messages. Sentinel errors cover the conditions components
// check for with errors.Is; richer context is attached by wrapping with %w,
// which preserves both the sentinel identity and the kind.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the machine-facing classification of an error.
type Kind uint8

const (
	KindUnknown      Kind = iota
	KindSyntax            // SQL parse or tokenization failure.
	KindNotFound          // Table, column, partition, or index not registered.
	KindTypeMismatch      // Incompatible value type or coercion failure.
	KindOutOfBounds       // Row or column index past current length.
	KindUnsupported       // Feature not implemented.
	KindCorrupt           // Bad magic, version, CRC, or inconsistent block descriptor.
	KindIo                // File, mmap, open, read, or write failure.
	KindBufferFull        // Encoder cannot fit output within its declared bound.
	KindInvariant         // Internal inconsistency.
)

func (k Kind) String() string {
	switch k {
	case KindSyntax:
		return "syntax"
	case KindNotFound:
		return "not found"
	case KindTypeMismatch:
		return "type mismatch"
	case KindOutOfBounds:
		return "out of bounds"
	case KindUnsupported:
		return "unsupported"
	case KindCorrupt:
		return "corrupt"
	case KindIo:
		return "io"
	case KindBufferFull:
		return "buffer full"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Error is a kinded error. It wraps an optional cause.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}

	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Is matches any *Error of the same kind, so sentinel errors below act as
// kind classes for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.kind == e.kind && (t.msg == "" || t.msg == e.msg)
}

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

// New creates a kinded error with a message.
func New(kind Kind, msg string) error {
	return &Error{kind: kind, msg: msg}
}

// Newf creates a kinded error with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an existing error. It returns nil when
// err is nil so call sites can wrap unconditionally.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}

	return &Error{kind: kind, msg: msg, err: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), err: err}
}

// KindOf extracts the Kind of err, walking the wrap chain.
// Errors produced outside this package report KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}

	return KindUnknown
}

// Kind-class sentinels. errors.Is(err, ErrCorrupt) is true for every error
// of KindCorrupt regardless of message.
var (
	ErrSyntax       = &Error{kind: KindSyntax}
	ErrNotFound     = &Error{kind: KindNotFound}
	ErrTypeMismatch = &Error{kind: KindTypeMismatch}
	ErrOutOfBounds  = &Error{kind: KindOutOfBounds}
	ErrUnsupported  = &Error{kind: KindUnsupported}
	ErrCorrupt      = &Error{kind: KindCorrupt}
	ErrIo           = &Error{kind: KindIo}
	ErrBufferFull   = &Error{kind: KindBufferFull}
	ErrInvariant    = &Error{kind: KindInvariant}
)

// Condition sentinels checked with errors.Is at specific call sites.
var (
	ErrInvalidMagicNumber  = New(KindCorrupt, "invalid magic number")
	ErrInvalidVersion      = New(KindCorrupt, "unsupported format version")
	ErrInvalidHeaderSize   = New(KindCorrupt, "invalid header size")
	ErrChecksumMismatch    = New(KindCorrupt, "block checksum mismatch")
	ErrTruncatedPayload    = New(KindCorrupt, "truncated payload")
	ErrInvalidBlockSize    = New(KindCorrupt, "inconsistent block descriptor")
	ErrColumnCountMismatch = New(KindTypeMismatch, "row arity does not match schema")
	ErrPoolClosed          = New(KindIo, "reader pool is closed")
)
