package protocol

import (
	"errors"
	"strings"
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNotAuthorized        = errors.New("not authorized")
	ErrAccessDenied         = errors.New("access denied")
	ErrWriteDisabled        = errors.New("write operations are disabled")
	ErrDeleteDisabled       = errors.New("delete operations are disabled")
	ErrTooLarge             = errors.New("file too large")
	ErrProtocolDecode       = errors.New("invalid message")
	ErrUnknownOperation     = errors.New("unknown operation")
	ErrConnectionClosed     = errors.New("connection closed")
	ErrNotConnected         = errors.New("not connected")
	ErrAlreadyConnecting    = errors.New("already connecting")
)

// wireErrors are the errors a server may put on the wire.
var wireErrors = []error{
	ErrAuthenticationFailed,
	ErrNotAuthorized,
	ErrAccessDenied,
	ErrWriteDisabled,
	ErrDeleteDisabled,
	ErrTooLarge,
	ErrProtocolDecode,
	ErrUnknownOperation,
}

// RemoteError is an error reported by the peer. Message is the text exactly as
// received; when it names a known failure, errors.Is matches the sentinel.
type RemoteError struct {
	Message string
	kind    error
}

func (e *RemoteError) Error() string { return e.Message }

func (e *RemoteError) Unwrap() error { return e.kind }

// FromMessage turns an error text received over the wire back into an error.
func FromMessage(msg string) error {
	re := &RemoteError{Message: msg}
	for _, known := range wireErrors {
		s := known.Error()
		if msg == s || strings.HasPrefix(msg, s+":") {
			re.kind = known
			break
		}
	}
	return re
}
