package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is the server side record of one live connection. Authentication and
// authorization hooks inspect it; Set lets an authenticate hook attach identity.
type Session struct {
	ID          string
	Request     *http.Request
	RemoteAddr  string
	ConnectedAt time.Time

	conn   *Conn
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	values map[string]any
}

func newSession(conn *Conn, r *http.Request) *Session {
	ctx, cancel := context.WithCancel(r.Context())
	return &Session{
		ID:          uuid.NewString(),
		Request:     r,
		RemoteAddr:  r.RemoteAddr,
		ConnectedAt: time.Now(),
		conn:        conn,
		ctx:         ctx,
		cancel:      cancel,
		values:      make(map[string]any),
	}
}

// NewSession returns a session for r that is not bound to a connection, for
// driving a Dispatcher or hooks directly.
func NewSession(r *http.Request) *Session {
	return newSession(nil, r)
}

// Context is cancelled as soon as the connection stops reading.
func (s *Session) Context() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Session) Set(key string, v any) {
	s.mu.Lock()
	s.values[key] = v
	s.mu.Unlock()
}

func (s *Session) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}
