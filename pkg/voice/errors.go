package voice

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes capability-layer failures.
type ErrorKind string

const (
	// ErrUnsupported means the platform lacks the capability entirely.
	// Detected once at startup; dependent entry points become no-ops.
	ErrUnsupported ErrorKind = "unsupported_capability"
	// ErrStartFailed means a capture session could not begin. The state
	// machine stays in its prior state and the user may retry.
	ErrStartFailed ErrorKind = "start_failed"
	// ErrListener means the capture engine failed mid-session.
	ErrListener ErrorKind = "listener_error"
	// ErrSynthesis means speech output failed. Non-fatal, swallowed at
	// the controller boundary.
	ErrSynthesis ErrorKind = "synthesis_failed"
)

// Error is a capability-layer error. Controllers catch these at their
// boundary and surface only boolean outcomes to callers.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, msg, e.Kind)
	}
	return fmt.Sprintf("%s (%s)", msg, e.Kind)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// NewUnsupportedError reports a missing capability.
func NewUnsupportedError(op string) *Error {
	return &Error{Kind: ErrUnsupported, Op: op, Message: "capability not available"}
}

// NewStartError reports a capture session that failed to begin.
func NewStartError(op string, err error) *Error {
	return &Error{Kind: ErrStartFailed, Op: op, Message: "failed to start", Err: err}
}

// NewListenerError reports a mid-session capture failure.
func NewListenerError(op string, err error) *Error {
	return &Error{Kind: ErrListener, Op: op, Err: err}
}

// NewSynthesisError reports a speech output failure.
func NewSynthesisError(op string, err error) *Error {
	return &Error{Kind: ErrSynthesis, Op: op, Err: err}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind == kind
	}
	return false
}
