package fs

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"remotefs/protocol"
)

// FileSystem is the storage the dispatcher operates on. Both local and remote
// implementations conform to it. Paths are absolute and already validated.
type FileSystem interface {
	Stat(path string) (os.FileInfo, error)

	// ReadDir returns the immediate children of path. Children that cannot be
	// stat'ed are left out.
	ReadDir(path string) ([]os.FileInfo, error)

	Open(path string) (io.ReadCloser, error)

	// Create creates path, or truncates it when it already exists.
	Create(path string) (io.WriteCloser, error)

	MkdirAll(path string) error

	// RemoveAll removes path and, for a directory, everything below it.
	RemoveAll(path string) error

	Rename(oldPath, newPath string) error

	// Resolve resolves symbolic links in an existing path. It fails with an error
	// matching fs.ErrNotExist when path does not exist.
	Resolve(path string) (string, error)

	// Lstat is Stat without following a final symbolic link.
	Lstat(path string) (os.FileInfo, error)
	Readlink(path string) (string, error)
}

// birthTimer is implemented by file infos that know their creation time.
type birthTimer interface {
	BirthTime() time.Time
}

func newEntry(path string, info os.FileInfo) protocol.DirectoryEntry {
	created := info.ModTime()
	if bt, ok := info.(birthTimer); ok {
		created = bt.BirthTime()
	}
	return protocol.DirectoryEntry{
		Name:        filepath.Base(path),
		Path:        path,
		IsDirectory: info.IsDir(),
		IsFile:      info.Mode().IsRegular(),
		Size:        info.Size(),
		ModifiedAt:  info.ModTime(),
		CreatedAt:   created,
	}
}
