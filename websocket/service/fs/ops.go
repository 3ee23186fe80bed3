package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"remotefs/metrics"
	"remotefs/pathutil"
	"remotefs/protocol"
)

// executor runs requests whose paths have already been validated.
type executor struct {
	*FSService
}

var _ protocol.Operations = (*executor)(nil)

func (e *executor) List(_ context.Context, r *protocol.ListRequest) (any, error) {
	infos, err := e.fs.ReadDir(r.Path)
	if err != nil {
		return nil, err
	}

	entries := make([]protocol.DirectoryEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, newEntry(filepath.Join(r.Path, info.Name()), info))
	}
	sortEntries(entries)
	return entries, nil
}

// sortEntries orders directories first, then by name.
func sortEntries(entries []protocol.DirectoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDirectory != entries[j].IsDirectory {
			return entries[i].IsDirectory
		}
		return entries[i].Name < entries[j].Name
	})
}

func (e *executor) Stat(_ context.Context, r *protocol.StatRequest) (any, error) {
	info, err := e.fs.Stat(r.Path)
	if err != nil {
		return nil, err
	}
	return newEntry(r.Path, info), nil
}

func (e *executor) Read(_ context.Context, r *protocol.ReadRequest) (any, error) {
	enc, err := protocol.NormalizeEncoding(r.Encoding)
	if err != nil {
		return nil, err
	}

	info, err := e.fs.Stat(r.Path)
	if err != nil {
		return nil, err
	}
	if info.Size() > e.caps.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", protocol.ErrTooLarge, info.Size(), e.caps.MaxFileSize)
	}

	f, err := e.fs.Open(r.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// The file may have grown since the stat.
	data, err := io.ReadAll(io.LimitReader(f, e.caps.MaxFileSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > e.caps.MaxFileSize {
		return nil, fmt.Errorf("%w: exceeds limit of %d bytes", protocol.ErrTooLarge, e.caps.MaxFileSize)
	}

	content, err := protocol.EncodeContent(data, enc)
	if err != nil {
		return nil, err
	}
	metrics.RecordBytesRead(int64(len(data)))

	return &protocol.ReadResult{
		Content:  content,
		Encoding: enc,
		Size:     int64(len(data)),
	}, nil
}

func (e *executor) Write(_ context.Context, r *protocol.WriteRequest) (any, error) {
	data, err := protocol.DecodeContent(r.Content, r.Encoding)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > e.caps.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", protocol.ErrTooLarge, len(data), e.caps.MaxFileSize)
	}

	f, err := e.fs.Create(r.Path)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	metrics.RecordBytesWritten(int64(len(data)))

	size := int64(len(data))
	if info, err := e.fs.Stat(r.Path); err == nil {
		size = info.Size()
	}
	return &protocol.WriteResult{Path: r.Path, Size: size}, nil
}

func (e *executor) Mkdir(_ context.Context, r *protocol.MkdirRequest) (any, error) {
	if err := e.fs.MkdirAll(r.Path); err != nil {
		return nil, err
	}
	return &protocol.PathResult{Path: r.Path}, nil
}

func (e *executor) Delete(_ context.Context, r *protocol.DeleteRequest) (any, error) {
	// RemoveAll succeeds on a missing path; report it instead.
	if _, err := e.fs.Stat(r.Path); err != nil {
		return nil, err
	}
	if err := e.fs.RemoveAll(r.Path); err != nil {
		return nil, err
	}
	return &protocol.PathResult{Path: r.Path}, nil
}

func (e *executor) Rename(_ context.Context, r *protocol.RenameRequest) (any, error) {
	if err := e.fs.Rename(r.OldPath, r.NewPath); err != nil {
		return nil, err
	}
	return &protocol.RenameResult{OldPath: r.OldPath, NewPath: r.NewPath}, nil
}

func (e *executor) Copy(ctx context.Context, r *protocol.CopyRequest) (any, error) {
	if r.Source == r.Destination {
		return nil, fmt.Errorf("source and destination are the same: %s", r.Source)
	}
	if pathutil.Within(r.Destination, r.Source) {
		return nil, fmt.Errorf("cannot copy %s into itself", r.Source)
	}
	if err := e.copyTree(ctx, r.Source, r.Destination, make(map[string]bool)); err != nil {
		return nil, err
	}
	return &protocol.CopyResult{Source: r.Source, Destination: r.Destination}, nil
}

func (e *executor) copyTree(ctx context.Context, src, dst string, visited map[string]bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// Children on either side may be links; they must not lead out of the allowed paths.
	if _, err := e.validator.Validate(src); err != nil {
		return err
	}
	if _, err := e.validator.Validate(dst); err != nil {
		return err
	}

	info, err := e.fs.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return e.copyFile(src, dst)
	}
	if real, err := e.fs.Resolve(src); err == nil {
		if visited[real] {
			return fmt.Errorf("directory cycle at %s", src)
		}
		visited[real] = true
	}

	if err := e.fs.MkdirAll(dst); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	children, err := e.fs.ReadDir(src)
	if err != nil {
		return fmt.Errorf("failed to read source directory: %w", err)
	}
	for _, child := range children {
		if err := e.copyTree(ctx, filepath.Join(src, child.Name()), filepath.Join(dst, child.Name()), visited); err != nil {
			return err
		}
	}
	return nil
}

func (e *executor) copyFile(src, dst string) error {
	in, err := e.fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	out, err := e.fs.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	return out.Close()
}

func (e *executor) Exists(_ context.Context, r *protocol.ExistsRequest) (any, error) {
	_, err := e.fs.Stat(r.Path)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return &protocol.ExistsResult{Exists: false}, nil
		}
		return nil, err
	}
	return &protocol.ExistsResult{Exists: true}, nil
}

func (e *executor) Search(ctx context.Context, r *protocol.SearchRequest) (any, error) {
	match, err := newMatcher(r.Pattern)
	if err != nil {
		return nil, err
	}

	s := &search{
		executor:  e,
		match:     match,
		recursive: r.IsRecursive(),
		limit:     r.Limit(),
		results:   make([]protocol.DirectoryEntry, 0),
		visited:   make(map[string]bool),
	}
	if err := s.walk(ctx, r.Path); err != nil {
		return nil, err
	}
	return s.results, nil
}

type search struct {
	*executor
	match     func(name string) bool
	recursive bool
	limit     int
	results   []protocol.DirectoryEntry
	visited   map[string]bool
}

func (s *search) done() bool {
	return len(s.results) >= s.limit
}

func (s *search) walk(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if real, err := s.fs.Resolve(dir); err == nil {
		if s.visited[real] {
			return nil
		}
		s.visited[real] = true
	}

	infos, err := s.fs.ReadDir(dir)
	if err != nil {
		s.log.Debug("search skipping directory", zap.String("path", dir), zap.Error(err))
		return nil
	}

	for _, info := range infos {
		if s.done() {
			return nil
		}
		p := filepath.Join(dir, info.Name())
		if s.match(info.Name()) {
			s.results = append(s.results, newEntry(p, info))
		}
		if s.recursive && info.IsDir() {
			if _, err := s.validator.Validate(p); err != nil {
				continue
			}
			if err := s.walk(ctx, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// newMatcher matches names case-insensitively: as a glob when the pattern has
// wildcards, as a substring otherwise.
func newMatcher(pattern string) (func(string) bool, error) {
	lower := strings.ToLower(pattern)
	if !strings.ContainsAny(lower, "*?[") {
		return func(name string) bool {
			return strings.Contains(strings.ToLower(name), lower)
		}, nil
	}
	if _, err := path.Match(lower, ""); err != nil {
		return nil, fmt.Errorf("invalid search pattern %q: %w", pattern, err)
	}
	return func(name string) bool {
		ok, _ := path.Match(lower, strings.ToLower(name))
		return ok
	}, nil
}
