package fs

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"remotefs/metrics"
	"remotefs/pathutil"
	"remotefs/protocol"
	ws "remotefs/websocket"
)

// DefaultMaxFileSize bounds read and write payloads when no limit is configured.
const DefaultMaxFileSize int64 = 10 << 20

// AuthorizeFunc decides whether sess may run op on path. path is the request's
// primary path as sent by the client.
type AuthorizeFunc func(op protocol.Op, path string, sess *ws.Session) bool

type Options struct {
	// AllowedPaths defaults to the home directory of the user running the server.
	AllowedPaths []string
	AllowWrite   bool
	AllowDelete  bool
	// MaxFileSize defaults to DefaultMaxFileSize.
	MaxFileSize int64
	Authorize   AuthorizeFunc
	// FS defaults to the local file system.
	FS     FileSystem
	Logger *zap.Logger
}

// FSService is the operation dispatcher: it authorizes, checks permissions,
// validates paths and then executes one request against its FileSystem.
type FSService struct {
	fs        FileSystem
	validator *pathutil.Validator
	caps      protocol.Capabilities
	authorize AuthorizeFunc

	log *zap.Logger
}

var _ ws.Dispatcher = (*FSService)(nil)

func NewFSService(opts Options) (*FSService, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("fs")

	roots := opts.AllowedPaths
	if len(roots) == 0 {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine home directory: %w", err)
		}
		roots = []string{home}
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	fsys := opts.FS
	if fsys == nil {
		fsys = NewLocalFileSystem(log)
	}

	validator, err := pathutil.NewValidator(roots, fsys)
	if err != nil {
		return nil, err
	}

	return &FSService{
		fs:        fsys,
		validator: validator,
		caps: protocol.Capabilities{
			AllowedPaths: validator.Roots(),
			AllowWrite:   opts.AllowWrite,
			AllowDelete:  opts.AllowDelete,
			MaxFileSize:  maxSize,
		},
		authorize: opts.Authorize,
		log:       log,
	}, nil
}

// Capabilities implements websocket.Dispatcher.
func (s *FSService) Capabilities() protocol.Capabilities {
	caps := s.caps
	caps.AllowedPaths = append([]string(nil), s.caps.AllowedPaths...)
	return caps
}

// Dispatch implements websocket.Dispatcher.
func (s *FSService) Dispatch(ctx context.Context, req protocol.Request, sess *ws.Session) (any, error) {
	start := time.Now()
	data, err := s.dispatch(ctx, req, sess)
	metrics.ObserveRequest(req.Op(), err, time.Since(start))

	if err != nil {
		s.log.Debug("request failed",
			zap.String("op", string(req.Op())),
			zap.Uint64("id", req.ID()),
			zap.Error(err))
	}
	return data, err
}

func (s *FSService) dispatch(ctx context.Context, req protocol.Request, sess *ws.Session) (any, error) {
	op := req.Op()
	paths := req.Paths()

	if s.authorize != nil && !s.authorize(op, paths[0], sess) {
		return nil, fmt.Errorf("%w: %s %s", protocol.ErrNotAuthorized, op, paths[0])
	}

	if op.Mutating() && !s.caps.AllowWrite {
		return nil, protocol.ErrWriteDisabled
	}
	if op == protocol.OpDelete && !s.caps.AllowDelete {
		return nil, protocol.ErrDeleteDisabled
	}

	resolved := make([]string, len(paths))
	for i, p := range paths {
		r, err := s.validator.Validate(p)
		if err != nil {
			return nil, err
		}
		resolved[i] = r
	}

	return req.WithPaths(resolved).Apply(ctx, &executor{s})
}
