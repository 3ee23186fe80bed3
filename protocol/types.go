// Package protocol defines the messages exchanged between a remote file system server
// and its clients. Every WebSocket text frame carries exactly one JSON message.
package protocol

import (
	"encoding/json"
	"time"
)

// Op identifies a file operation.
type Op string

const (
	OpList   Op = "list"
	OpStat   Op = "stat"
	OpRead   Op = "read"
	OpWrite  Op = "write"
	OpMkdir  Op = "mkdir"
	OpDelete Op = "delete"
	OpRename Op = "rename"
	OpCopy   Op = "copy"
	OpExists Op = "exists"
	OpSearch Op = "search"
)

// Ops lists every operation the protocol knows about.
var Ops = []Op{OpList, OpStat, OpRead, OpWrite, OpMkdir, OpDelete, OpRename, OpCopy, OpExists, OpSearch}

// Mutating reports whether the operation requires write permission.
func (o Op) Mutating() bool {
	switch o {
	case OpWrite, OpMkdir, OpRename, OpCopy:
		return true
	}
	return false
}

// MessageType tags server to client messages.
type MessageType string

const (
	TypeConnected MessageType = "connected"
	TypeResult    MessageType = "result"
	TypeError     MessageType = "error"
)

// DirectoryEntry is a snapshot of one file system node.
type DirectoryEntry struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	IsDirectory bool      `json:"isDirectory"`
	IsFile      bool      `json:"isFile"`
	Size        int64     `json:"size"`
	ModifiedAt  time.Time `json:"modifiedAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Capabilities are the permissions and limits a connection operates under.
type Capabilities struct {
	AllowedPaths []string `json:"allowedPaths"`
	AllowWrite   bool     `json:"allowWrite"`
	AllowDelete  bool     `json:"allowDelete"`
	MaxFileSize  int64    `json:"maxFileSize"`
}

// ConnectedMessage is pushed once, before anything else, after a connection is accepted.
type ConnectedMessage struct {
	Type   MessageType  `json:"type"`
	Config Capabilities `json:"config"`
}

// ResultMessage answers exactly one request.
type ResultMessage struct {
	Type      MessageType `json:"type"`
	RequestID uint64      `json:"requestId"`
	Success   bool        `json:"success"`
	Data      any         `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// ErrorMessage reports a connection level failure that is not tied to a request.
type ErrorMessage struct {
	Type  MessageType `json:"type"`
	Error string      `json:"error"`
}

// Envelope is the client side view of any server message.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Config    *Capabilities   `json:"config,omitempty"`
	RequestID uint64          `json:"requestId,omitempty"`
	Success   bool            `json:"success,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func Connected(caps Capabilities) *ConnectedMessage {
	return &ConnectedMessage{Type: TypeConnected, Config: caps}
}

func Success(id uint64, data any) *ResultMessage {
	return &ResultMessage{Type: TypeResult, RequestID: id, Success: true, Data: data}
}

func Failure(id uint64, err error) *ResultMessage {
	return &ResultMessage{Type: TypeResult, RequestID: id, Error: err.Error()}
}

func ConnError(err error) *ErrorMessage {
	return &ErrorMessage{Type: TypeError, Error: err.Error()}
}

// ReadResult is returned by read.
type ReadResult struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	Size     int64  `json:"size"`
}

// WriteResult is returned by write.
type WriteResult struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// PathResult is returned by mkdir and delete.
type PathResult struct {
	Path string `json:"path"`
}

// RenameResult is returned by rename.
type RenameResult struct {
	OldPath string `json:"oldPath"`
	NewPath string `json:"newPath"`
}

// CopyResult is returned by copy.
type CopyResult struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// ExistsResult is returned by exists.
type ExistsResult struct {
	Exists bool `json:"exists"`
}
