// Package cmn holds configuration, error taxonomy, unit parsing, and ID
// generation shared across the simulator's components.
package cmn

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrKind is the closed taxonomy of error kinds surfaced to callers (spec §6/§7).
type ErrKind string

const (
	KindNoRoute           ErrKind = "no_route"
	KindNoSpace           ErrKind = "no_space"
	KindOOM               ErrKind = "oom"
	KindDiskOffline       ErrKind = "disk_offline"
	KindNodeOffline       ErrKind = "node_offline"
	KindChecksumMismatch  ErrKind = "checksum_mismatch"
	KindRouteLost         ErrKind = "route_lost"
	KindReplicaSyncFailed ErrKind = "replica_sync_failed"
	KindUnknownNode       ErrKind = "unknown_node"
	KindDuplicateNode     ErrKind = "duplicate_node"
	KindInvalidArgument   ErrKind = "invalid_argument"
)

// Error is the concrete error type returned by every public operation that
// can fail for a reason in the taxonomy above.
type Error struct {
	Kind    ErrKind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewErr builds a new Error with no underlying cause (see WrapErr for one
// that wraps a cause).
func NewErr(op string, kind ErrKind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Message: msg}
}

// WrapErr builds an Error around an existing cause, preserving it via
// pkg/errors.Wrap so callers can still errors.Cause() down to the original.
func WrapErr(op string, kind ErrKind, cause error, msg string) *Error {
	return &Error{Op: op, Kind: kind, Message: msg, Cause: errors.Wrap(cause, msg)}
}

// IsErr reports whether err is a *cmn.Error of the given kind.
func IsErr(err error, kind ErrKind) bool {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}

// Assert panics with msg if cond is false. Reserved for internal invariant
// violations that should never occur (spec §7): these are not part of the
// recoverable taxonomy above.
func Assert(cond bool, msg string) {
	if !cond {
		panic("cloudsim: assertion failed: " + msg)
	}
}
