package websocket

import (
	"context"

	"remotefs/protocol"
)

// Dispatcher executes decoded requests on behalf of a session.
type Dispatcher interface {
	// Capabilities is read once, when a Handler is built.
	Capabilities() protocol.Capabilities
	Dispatch(ctx context.Context, req protocol.Request, sess *Session) (any, error)
}

// AuthenticateFunc decides whether a freshly accepted session may proceed.
type AuthenticateFunc func(sess *Session) bool
