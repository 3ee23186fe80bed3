package websocket

import (
	"errors"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"remotefs/metrics"
	"remotefs/protocol"
)

type Options struct {
	// Authenticate runs once per connection before capabilities are pushed.
	// Nil admits every connection.
	Authenticate AuthenticateFunc
	// IdleTimeout drops connections that send nothing for this long. Zero disables it.
	IdleTimeout time.Duration
	CheckOrigin func(r *http.Request) bool
	Logger      *zap.Logger
}

// Handler accepts WebSocket connections and serves the file protocol on each of
// them. Each Handler owns its capabilities and its set of live sessions.
type Handler struct {
	dispatcher Dispatcher
	caps       protocol.Capabilities
	opts       Options
	upgrader   *ws.Upgrader
	log        *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewHandler(d Dispatcher, opts Options) *Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		dispatcher: d,
		caps:       d.Capabilities(),
		opts:       opts,
		upgrader:   newUpgrader(opts.CheckOrigin),
		log:        log.Named("ws"),
		sessions:   make(map[string]*Session),
	}
}

func (h *Handler) Capabilities() protocol.Capabilities {
	return h.caps
}

// ServeHTTP upgrades the request and blocks until the connection ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := NewConn(h.upgrader, w, r, h.log)
	if err != nil {
		return
	}
	h.serve(conn, r)
}

func (h *Handler) serve(conn *Conn, r *http.Request) {
	sess := newSession(conn, r)
	defer sess.cancel()
	log := h.log.With(zap.String("session", sess.ID), zap.String("remote", sess.RemoteAddr))

	if h.opts.Authenticate != nil && !h.opts.Authenticate(sess) {
		log.Info("authentication failed")
		metrics.RecordAuthFailure()
		_ = conn.WriteJSON(protocol.ConnError(protocol.ErrAuthenticationFailed))
		_ = conn.CloseWith(ws.ClosePolicyViolation, protocol.ErrAuthenticationFailed.Error())
		return
	}

	h.register(sess)
	defer h.deregister(sess)

	if err := conn.WriteJSON(protocol.Connected(h.caps)); err != nil {
		log.Warn("failed to push capabilities", zap.Error(err))
		_ = conn.Close()
		return
	}
	log.Info("session active")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for frame := range conn.Frames {
			if conn.IsClosed() {
				continue
			}
			h.handleFrame(sess, frame, log)
		}
	}()

	err := conn.StartDispatch(h.opts.IdleTimeout)
	// Abort the request in flight; its result has nowhere to go.
	sess.cancel()
	<-done

	if ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
		log.Info("session closed")
	} else {
		log.Info("session closed", zap.Error(err))
	}
}

func (h *Handler) handleFrame(sess *Session, frame []byte, log *zap.Logger) {
	req, err := protocol.DecodeRequest(frame)
	if err != nil {
		var unknown *protocol.UnknownOperationError
		if errors.As(err, &unknown) {
			_ = sess.conn.WriteJSON(protocol.Failure(unknown.RequestID, err))
			return
		}
		log.Debug("dropping malformed frame", zap.Error(err))
		_ = sess.conn.WriteJSON(protocol.ConnError(err))
		return
	}

	data, err := h.dispatcher.Dispatch(sess.Context(), req, sess)
	if err != nil {
		_ = sess.conn.WriteJSON(protocol.Failure(req.ID(), err))
		return
	}
	_ = sess.conn.WriteJSON(protocol.Success(req.ID(), data))
}

func (h *Handler) register(sess *Session) {
	h.mu.Lock()
	h.sessions[sess.ID] = sess
	n := len(h.sessions)
	h.mu.Unlock()
	metrics.SetActiveSessions(n)
}

func (h *Handler) deregister(sess *Session) {
	h.mu.Lock()
	delete(h.sessions, sess.ID)
	n := len(h.sessions)
	h.mu.Unlock()
	metrics.SetActiveSessions(n)
}

// SessionCount returns the number of live sessions.
func (h *Handler) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// CloseAll closes every registered session.
func (h *Handler) CloseAll() error {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	var result error
	for _, s := range sessions {
		if err := s.conn.CloseWith(ws.CloseGoingAway, "server shutting down"); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}
