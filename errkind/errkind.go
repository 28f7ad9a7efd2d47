// Package errkind defines the error taxonomy shared across opnetd's
// components. Every cross-component error is a *Error carrying one of
// the Kind values below, so callers can branch with errors.Is/As instead
// of string matching, and nothing is ever thrown across the thread bus.
package errkind

import (
	"errors"
	"fmt"
)

// Kind identifies the broad class of an error. The specific condition
// within a kind (e.g. which Parse failure) is carried in the wrapped
// error text, not as a separate type, so new conditions never require a
// taxonomy change.
type Kind uint8

const (
	// KindUpstream covers base-chain RPC/ZMQ failures.
	KindUpstream Kind = iota
	// KindParse covers transaction-scoped decode failures.
	KindParse
	// KindExecution covers contract frame failures.
	KindExecution
	// KindStorage covers the storage engine's failure taxonomy.
	KindStorage
	// KindMempool covers admission rejections.
	KindMempool
	// KindConsensus covers lockdown conditions.
	KindConsensus
	// KindTimeout covers expired bus deadlines.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindUpstream:
		return "upstream"
	case KindParse:
		return "parse"
	case KindExecution:
		return "execution"
	case KindStorage:
		return "storage"
	case KindMempool:
		return "mempool"
	case KindConsensus:
		return "consensus"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned across every component
// boundary. Fatal distinguishes conditions that must halt the pipeline
// (Corruption, fatal Upstream, Consensus lockdown) from ones a caller
// may retry or otherwise recover from.
type Error struct {
	Kind    Kind
	Code    string
	Fatal   bool
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s(%s): %v", e.Kind, e.Code, e.Wrapped)
	}
	return fmt.Sprintf("%s(%s)", e.Kind, e.Code)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is lets errors.Is(err, errkind.New(KindStorage, "Conflict", false, nil))
// match on Kind+Code alone, ignoring Wrapped and Fatal.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind && (other.Code == "" || other.Code == e.Code)
}

// New builds an Error. Code is a short taxonomy label such as
// "MalformedWitness" or "OutOfGas"; it is not meant to be parsed, only
// compared and logged.
func New(kind Kind, code string, fatal bool, wrapped error) *Error {
	return &Error{Kind: kind, Code: code, Fatal: fatal, Wrapped: wrapped}
}

// IsFatal reports whether err (or any error it wraps) is a fatal
// *Error. A plain error that isn't a *Error is never considered fatal
// by this helper — callers that can panic-to-Corruption should wrap
// explicitly via New(KindStorage, "Corruption", true, err).
func IsFatal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Fatal
	}
	return false
}

// KindOf extracts the Kind of err, returning ok=false if err does not
// wrap an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Sentinel values for errors.Is comparisons on a common Kind and Code
// pair, e.g. errors.Is(err, ErrNotFound) matches a KindStorage error
// with Code "NotFound".
var (
	ErrNotFound = &Error{Kind: KindStorage, Code: "NotFound"}
	ErrConflict = &Error{Kind: KindStorage, Code: "Conflict"}
	ErrTimeout  = &Error{Kind: KindTimeout, Code: "Timeout"}
)
