package snapd

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes client errors.
type ErrorKind int

const (
	// KindFailed is a generic daemon-reported failure or an unexpected envelope.
	KindFailed ErrorKind = iota
	// KindConnectionFailed indicates the socket could not be created or connected.
	KindConnectionFailed
	// KindWriteFailed indicates the request bytes could not be written.
	KindWriteFailed
	// KindReadFailed covers closed connections, unparseable headers or
	// framing, unknown encodings and desynchronized responses.
	KindReadFailed
	// KindBadRequest indicates the daemon rejected the request (HTTP 400).
	KindBadRequest
	// KindCancelled indicates the caller cancelled the request.
	KindCancelled
	// KindAuthDataRequired indicates the operation needs login.
	KindAuthDataRequired
	// KindAuthDataInvalid indicates the supplied credentials were rejected.
	KindAuthDataInvalid
	// KindTwoFactorRequired indicates a one-time password is needed.
	KindTwoFactorRequired
	// KindTwoFactorInvalid indicates the one-time password was rejected.
	KindTwoFactorInvalid
	// KindPermissionDenied indicates the caller lacks permission.
	KindPermissionDenied
)

var kindNames = map[ErrorKind]string{
	KindFailed:            "failed",
	KindConnectionFailed:  "connection failed",
	KindWriteFailed:       "write failed",
	KindReadFailed:        "read failed",
	KindBadRequest:        "bad request",
	KindCancelled:         "cancelled",
	KindAuthDataRequired:  "auth data required",
	KindAuthDataInvalid:   "auth data invalid",
	KindTwoFactorRequired: "two-factor required",
	KindTwoFactorInvalid:  "two-factor invalid",
	KindPermissionDenied:  "permission denied",
}

// String returns the human-readable name of the kind.
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the error type returned for every failed request.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrFailed            = &Error{Kind: KindFailed}
	ErrConnectionFailed  = &Error{Kind: KindConnectionFailed}
	ErrWriteFailed       = &Error{Kind: KindWriteFailed}
	ErrReadFailed        = &Error{Kind: KindReadFailed}
	ErrBadRequest        = &Error{Kind: KindBadRequest}
	ErrCancelled         = &Error{Kind: KindCancelled}
	ErrAuthDataRequired  = &Error{Kind: KindAuthDataRequired}
	ErrAuthDataInvalid   = &Error{Kind: KindAuthDataInvalid}
	ErrTwoFactorRequired = &Error{Kind: KindTwoFactorRequired}
	ErrTwoFactorInvalid  = &Error{Kind: KindTwoFactorInvalid}
	ErrPermissionDenied  = &Error{Kind: KindPermissionDenied}
)

// ErrClosed is returned for requests submitted to, or pending on, a closed client.
var ErrClosed = errors.New("snapd client closed")

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

func newError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// cancelledError builds the error reported for a cancelled request. It
// unwraps to the context error so errors.Is(err, context.Canceled) holds.
func cancelledError(cause error) *Error {
	return &Error{Kind: KindCancelled, Message: "operation was cancelled", Err: cause}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
