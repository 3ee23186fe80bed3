package client

import (
	"context"

	"remotefs/protocol"
)

func (c *Client) ListDirectory(ctx context.Context, path string) ([]protocol.DirectoryEntry, error) {
	var entries []protocol.DirectoryEntry
	if err := c.do(ctx, &protocol.ListRequest{Path: path}, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) GetStats(ctx context.Context, path string) (*protocol.DirectoryEntry, error) {
	var entry protocol.DirectoryEntry
	if err := c.do(ctx, &protocol.StatRequest{Path: path}, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ReadFile returns the file content in the given encoding; empty means utf8.
func (c *Client) ReadFile(ctx context.Context, path, encoding string) (*protocol.ReadResult, error) {
	var res protocol.ReadResult
	if err := c.do(ctx, &protocol.ReadRequest{Path: path, Encoding: encoding}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// WriteFile creates or overwrites path. content must already be in encoding.
func (c *Client) WriteFile(ctx context.Context, path, content, encoding string) (*protocol.WriteResult, error) {
	var res protocol.WriteResult
	req := &protocol.WriteRequest{Path: path, Content: content, Encoding: encoding}
	if err := c.do(ctx, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) CreateDirectory(ctx context.Context, path string) (*protocol.PathResult, error) {
	var res protocol.PathResult
	if err := c.do(ctx, &protocol.MkdirRequest{Path: path}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) DeleteItem(ctx context.Context, path string) (*protocol.PathResult, error) {
	var res protocol.PathResult
	if err := c.do(ctx, &protocol.DeleteRequest{Path: path}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Rename(ctx context.Context, oldPath, newPath string) (*protocol.RenameResult, error) {
	var res protocol.RenameResult
	if err := c.do(ctx, &protocol.RenameRequest{OldPath: oldPath, NewPath: newPath}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Copy(ctx context.Context, source, destination string) (*protocol.CopyResult, error) {
	var res protocol.CopyResult
	if err := c.do(ctx, &protocol.CopyRequest{Source: source, Destination: destination}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Exists(ctx context.Context, path string) (bool, error) {
	var res protocol.ExistsResult
	if err := c.do(ctx, &protocol.ExistsRequest{Path: path}, &res); err != nil {
		return false, err
	}
	return res.Exists, nil
}

type SearchOption func(*protocol.SearchRequest)

// NonRecursive limits a search to the immediate children of the directory.
func NonRecursive() SearchOption {
	return func(r *protocol.SearchRequest) {
		recursive := false
		r.Recursive = &recursive
	}
}

func MaxResults(n int) SearchOption {
	return func(r *protocol.SearchRequest) {
		r.MaxResults = n
	}
}

// Search matches entry names below dir against pattern, case-insensitively.
// Patterns containing *, ? or [ are globs; anything else matches as a substring.
func (c *Client) Search(ctx context.Context, dir, pattern string, opts ...SearchOption) ([]protocol.DirectoryEntry, error) {
	req := &protocol.SearchRequest{Path: dir, Pattern: pattern}
	for _, opt := range opts {
		opt(req)
	}

	var entries []protocol.DirectoryEntry
	if err := c.do(ctx, req, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
