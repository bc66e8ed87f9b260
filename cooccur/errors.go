package cooccur

import "fmt"

// Kind classifies a fatal error per the pipeline's error-handling design:
// IO for required-file failures, Parse for malformed vocab/batch payloads,
// Config for invalid flag combinations or a colliding scratch dir, and
// Invariant for assertions the implementation itself must never violate
// (the open-file cap, a cell written with no records).
type Kind int

const (
	// Other is the zero value; used when no finer Kind applies.
	Other Kind = iota
	IO
	Parse
	Config
	Invariant
)

func (k Kind) String() string {
	switch k {
	case IO:
		return "IO"
	case Parse:
		return "Parse"
	case Config:
		return "Config"
	case Invariant:
		return "Invariant"
	default:
		return "Other"
	}
}

// Error is a Kind-tagged, wrappable error. errors.As recovers the Kind,
// and Error() puts the Kind name first in the message. cmd/cooc-pmi
// reports every failure through the same log.Panicf, whatever its Kind.
// Library code should prefer wrapping an existing error with E over constructing
// bare fmt.Errorf values whenever the failure belongs to one of the four
// kinds above.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs an *Error of the given kind. err may be nil.
func E(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}
