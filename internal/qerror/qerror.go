// Package qerror implements the error taxonomy from SPEC_FULL.md §7:
// every failure the pipeline can produce is one of a fixed set of kinds,
// each carrying a detail string safe to return to a client and a separate
// obfuscated form safe to write to logs.
package qerror

import (
	"errors"
	"fmt"

	"aggsearch/internal/obs"
)

// Kind enumerates the error taxonomy.
type Kind uint8

const (
	ParseArgs Kind = iota
	Syntax
	NoIndex
	NoField
	NoFunction
	BadType
	BadValue
	Timeout
	Limit
	NoCursor
	Internal
)

func (k Kind) String() string {
	switch k {
	case ParseArgs:
		return "ParseArgs"
	case Syntax:
		return "Syntax"
	case NoIndex:
		return "NoIndex"
	case NoField:
		return "NoField"
	case NoFunction:
		return "NoFunction"
	case BadType:
		return "BadType"
	case BadValue:
		return "BadValue"
	case Timeout:
		return "Timeout"
	case Limit:
		return "Limit"
	case NoCursor:
		return "NoCursor"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error is the pipeline's structured error type. Detail must never contain
// allocator addresses or pointers; Obfuscated() strips anything that looks
// like one, for logs that might otherwise be more verbose than the
// client-visible message.
type Error struct {
	Kind   Kind
	Detail string
	Pos    int // byte offset into the offending input, -1 if not applicable
	cause  error
}

func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail, Pos: -1}
}

func NewAt(kind Kind, detail string, pos int) *Error {
	return &Error{Kind: kind, Detail: detail, Pos: pos}
}

func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Pos: -1, cause: cause}
}

func (e *Error) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("%s: %s (at %d)", e.Kind, e.Detail, e.Pos)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }

// Obfuscated renders a log-safe form of the error: same shape, with any
// pointer-looking substrings in Detail scrubbed.
func (e *Error) Obfuscated() string {
	return fmt.Sprintf("%s: %s", e.Kind, obs.ObfuscatePointers(e.Detail))
}

// Is supports errors.Is comparison by Kind, ignoring Detail/Pos.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind
	}
	return false
}

// As extracts the Kind from any error produced by this package, returning
// false for plain errors (which the caller should treat as Internal).
func As(err error) (*Error, bool) {
	var qe *Error
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}
