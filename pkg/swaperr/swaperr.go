// Package swaperr carries typed failures between the swap execution
// components. Every error crossing a package boundary inside the core is an
// *Error with a normalized reason code, so the orchestrator's retry decision
// never has to inspect raw provider errors.
package swaperr

import (
	"context"
	"errors"
	"fmt"

	"omniswap/pkg/types"
)

// Error wraps an underlying cause with a normalized failure reason. The
// custody provider nests real failure reasons inside wrapper errors, so
// Cause chains can be several levels deep; RootCause digs them out.
type Error struct {
	Reason types.FailureReason
	Msg    string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a typed error with no underlying cause.
func New(reason types.FailureReason, format string, args ...any) *Error {
	return &Error{Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a reason and message to an underlying cause. If the cause
// is already a typed error with a known reason, that reason is preserved.
func Wrap(reason types.FailureReason, cause error, format string, args ...any) *Error {
	if inner := AsError(cause); inner != nil && inner.Reason != types.ReasonUnknown && inner.Reason != types.ReasonNone {
		reason = inner.Reason
	}
	return &Error{Reason: reason, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// AsError returns err as a *Error if any error in its chain is one.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// ReasonOf extracts the normalized failure reason from an error chain,
// defaulting to ReasonUnknown for unclassified errors.
func ReasonOf(err error) types.FailureReason {
	if err == nil {
		return types.ReasonNone
	}
	if e := AsError(err); e != nil && e.Reason != types.ReasonNone {
		return e.Reason
	}
	return types.ReasonUnknown
}

// RootCause unwraps err to its deepest underlying error. Provider SDKs
// return wrapper errors whose useful detail sits at the bottom of the
// chain.
func RootCause(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return nil
}

// IsCanceled reports whether the error chain stems from context
// cancellation. A cancelled fetch is not a failure and must never be
// surfaced as one.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
