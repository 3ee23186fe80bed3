package client

import "remotefs/protocol"

// Listener observes connection lifecycle events. Methods are called from the
// client's own goroutines and must not block for long.
type Listener interface {
	OnConnect(caps protocol.Capabilities)
	// OnDisconnect receives the transport error, or nil after Disconnect.
	OnDisconnect(err error)
	// OnError receives connection-level errors that belong to no pending request.
	OnError(err error)
}

// ListenerFuncs adapts plain functions to a Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Connect    func(caps protocol.Capabilities)
	Disconnect func(err error)
	Error      func(err error)
}

func (l ListenerFuncs) OnConnect(caps protocol.Capabilities) {
	if l.Connect != nil {
		l.Connect(caps)
	}
}

func (l ListenerFuncs) OnDisconnect(err error) {
	if l.Disconnect != nil {
		l.Disconnect(err)
	}
}

func (l ListenerFuncs) OnError(err error) {
	if l.Error != nil {
		l.Error(err)
	}
}
