package protocol

import (
	"context"
	"encoding/json"
	"fmt"
)

const DefaultSearchLimit = 100

// Request is one client request. The set of implementations is closed: it is
// exactly the request types declared in this file.
type Request interface {
	Op() Op
	ID() uint64
	// Paths returns every path-bearing field, primary path first.
	Paths() []string
	// WithPaths returns a copy whose path-bearing fields are replaced, in Paths order.
	WithPaths(paths []string) Request
	// Apply invokes the Operations method matching the request type.
	Apply(ctx context.Context, ops Operations) (any, error)
	setHeader(h Header)
}

// Operations executes each request type. Adding a request type without a matching
// method here fails to compile.
type Operations interface {
	List(ctx context.Context, r *ListRequest) (any, error)
	Stat(ctx context.Context, r *StatRequest) (any, error)
	Read(ctx context.Context, r *ReadRequest) (any, error)
	Write(ctx context.Context, r *WriteRequest) (any, error)
	Mkdir(ctx context.Context, r *MkdirRequest) (any, error)
	Delete(ctx context.Context, r *DeleteRequest) (any, error)
	Rename(ctx context.Context, r *RenameRequest) (any, error)
	Copy(ctx context.Context, r *CopyRequest) (any, error)
	Exists(ctx context.Context, r *ExistsRequest) (any, error)
	Search(ctx context.Context, r *SearchRequest) (any, error)
}

// Header carries the fields common to all requests.
type Header struct {
	Type      Op     `json:"type"`
	RequestID uint64 `json:"requestId"`
}

func (h Header) ID() uint64 { return h.RequestID }

func (h *Header) setHeader(nh Header) { *h = nh }

type ListRequest struct {
	Header
	Path string `json:"path"`
}

type StatRequest struct {
	Header
	Path string `json:"path"`
}

type ReadRequest struct {
	Header
	Path     string `json:"path"`
	Encoding string `json:"encoding,omitempty"`
}

type WriteRequest struct {
	Header
	Path     string `json:"path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding,omitempty"`
}

type MkdirRequest struct {
	Header
	Path string `json:"path"`
}

type DeleteRequest struct {
	Header
	Path string `json:"path"`
}

type RenameRequest struct {
	Header
	OldPath string `json:"oldPath"`
	NewPath string `json:"newPath"`
}

type CopyRequest struct {
	Header
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

type ExistsRequest struct {
	Header
	Path string `json:"path"`
}

// SearchRequest matches entry names below Path against Pattern, case-insensitively.
type SearchRequest struct {
	Header
	Path       string `json:"path"`
	Pattern    string `json:"pattern"`
	Recursive  *bool  `json:"recursive,omitempty"`
	MaxResults int    `json:"maxResults,omitempty"`
}

// IsRecursive defaults to true when the field is absent.
func (r *SearchRequest) IsRecursive() bool {
	return r.Recursive == nil || *r.Recursive
}

func (r *SearchRequest) Limit() int {
	if r.MaxResults <= 0 {
		return DefaultSearchLimit
	}
	return r.MaxResults
}

func (*ListRequest) Op() Op   { return OpList }
func (*StatRequest) Op() Op   { return OpStat }
func (*ReadRequest) Op() Op   { return OpRead }
func (*WriteRequest) Op() Op  { return OpWrite }
func (*MkdirRequest) Op() Op  { return OpMkdir }
func (*DeleteRequest) Op() Op { return OpDelete }
func (*RenameRequest) Op() Op { return OpRename }
func (*CopyRequest) Op() Op   { return OpCopy }
func (*ExistsRequest) Op() Op { return OpExists }
func (*SearchRequest) Op() Op { return OpSearch }

func (r *ListRequest) Paths() []string   { return []string{r.Path} }
func (r *StatRequest) Paths() []string   { return []string{r.Path} }
func (r *ReadRequest) Paths() []string   { return []string{r.Path} }
func (r *WriteRequest) Paths() []string  { return []string{r.Path} }
func (r *MkdirRequest) Paths() []string  { return []string{r.Path} }
func (r *DeleteRequest) Paths() []string { return []string{r.Path} }
func (r *RenameRequest) Paths() []string { return []string{r.OldPath, r.NewPath} }
func (r *CopyRequest) Paths() []string   { return []string{r.Source, r.Destination} }
func (r *ExistsRequest) Paths() []string { return []string{r.Path} }
func (r *SearchRequest) Paths() []string { return []string{r.Path} }

func (r *ListRequest) WithPaths(p []string) Request   { c := *r; c.Path = p[0]; return &c }
func (r *StatRequest) WithPaths(p []string) Request   { c := *r; c.Path = p[0]; return &c }
func (r *ReadRequest) WithPaths(p []string) Request   { c := *r; c.Path = p[0]; return &c }
func (r *WriteRequest) WithPaths(p []string) Request  { c := *r; c.Path = p[0]; return &c }
func (r *MkdirRequest) WithPaths(p []string) Request  { c := *r; c.Path = p[0]; return &c }
func (r *DeleteRequest) WithPaths(p []string) Request { c := *r; c.Path = p[0]; return &c }
func (r *ExistsRequest) WithPaths(p []string) Request { c := *r; c.Path = p[0]; return &c }
func (r *SearchRequest) WithPaths(p []string) Request { c := *r; c.Path = p[0]; return &c }

func (r *RenameRequest) WithPaths(p []string) Request {
	c := *r
	c.OldPath, c.NewPath = p[0], p[1]
	return &c
}

func (r *CopyRequest) WithPaths(p []string) Request {
	c := *r
	c.Source, c.Destination = p[0], p[1]
	return &c
}

func (r *ListRequest) Apply(ctx context.Context, o Operations) (any, error)   { return o.List(ctx, r) }
func (r *StatRequest) Apply(ctx context.Context, o Operations) (any, error)   { return o.Stat(ctx, r) }
func (r *ReadRequest) Apply(ctx context.Context, o Operations) (any, error)   { return o.Read(ctx, r) }
func (r *WriteRequest) Apply(ctx context.Context, o Operations) (any, error)  { return o.Write(ctx, r) }
func (r *MkdirRequest) Apply(ctx context.Context, o Operations) (any, error)  { return o.Mkdir(ctx, r) }
func (r *DeleteRequest) Apply(ctx context.Context, o Operations) (any, error) { return o.Delete(ctx, r) }
func (r *RenameRequest) Apply(ctx context.Context, o Operations) (any, error) { return o.Rename(ctx, r) }
func (r *CopyRequest) Apply(ctx context.Context, o Operations) (any, error)   { return o.Copy(ctx, r) }
func (r *ExistsRequest) Apply(ctx context.Context, o Operations) (any, error) { return o.Exists(ctx, r) }
func (r *SearchRequest) Apply(ctx context.Context, o Operations) (any, error) { return o.Search(ctx, r) }

// newRequest returns an empty request for op, or nil when op is unknown.
func newRequest(op Op) Request {
	switch op {
	case OpList:
		return &ListRequest{}
	case OpStat:
		return &StatRequest{}
	case OpRead:
		return &ReadRequest{}
	case OpWrite:
		return &WriteRequest{}
	case OpMkdir:
		return &MkdirRequest{}
	case OpDelete:
		return &DeleteRequest{}
	case OpRename:
		return &RenameRequest{}
	case OpCopy:
		return &CopyRequest{}
	case OpExists:
		return &ExistsRequest{}
	case OpSearch:
		return &SearchRequest{}
	}
	return nil
}

// UnknownOperationError is returned by DecodeRequest for a well formed frame whose
// type is not an operation. The request id is still usable for a reply.
type UnknownOperationError struct {
	RequestID uint64
	Type      Op
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownOperation, e.Type)
}

func (e *UnknownOperationError) Unwrap() error { return ErrUnknownOperation }

// DecodeRequest parses one client frame.
func DecodeRequest(data []byte) (Request, error) {
	var h Header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocolDecode, err)
	}
	if h.RequestID == 0 {
		return nil, fmt.Errorf("%w: missing requestId", ErrProtocolDecode)
	}

	req := newRequest(h.Type)
	if req == nil {
		return nil, &UnknownOperationError{RequestID: h.RequestID, Type: h.Type}
	}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocolDecode, err)
	}
	return req, nil
}

// EncodeRequest stamps req with its type and id and serializes it.
func EncodeRequest(id uint64, req Request) ([]byte, error) {
	req.setHeader(Header{Type: req.Op(), RequestID: id})
	return json.Marshal(req)
}

// DecodeEnvelope parses one server frame.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocolDecode, err)
	}
	switch env.Type {
	case TypeConnected:
		if env.Config == nil {
			return nil, fmt.Errorf("%w: connected message without config", ErrProtocolDecode)
		}
	case TypeResult, TypeError:
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", ErrProtocolDecode, env.Type)
	}
	return &env, nil
}
