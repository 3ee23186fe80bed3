package fs

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// LocalFileSystem serves files from the host's own file system.
type LocalFileSystem struct {
	log *zap.Logger
}

func NewLocalFileSystem(log *zap.Logger) *LocalFileSystem {
	if log == nil {
		log = zap.NewNop()
	}
	return &LocalFileSystem{log: log}
}

type localFileInfo struct {
	os.FileInfo
	birth time.Time
}

func (i localFileInfo) BirthTime() time.Time { return i.birth }

// Stat implements FileSystem.
func (l *LocalFileSystem) Stat(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return localFileInfo{FileInfo: info, birth: birthTime(path, info)}, nil
}

// ReadDir implements FileSystem.
func (l *LocalFileSystem) ReadDir(dirPath string) ([]os.FileInfo, error) {
	dirEntries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}

	infos := make([]os.FileInfo, 0, len(dirEntries))
	for _, dirEntry := range dirEntries {
		info, err := l.Stat(filepath.Join(dirPath, dirEntry.Name()))
		if err != nil {
			l.log.Debug("skipping entry", zap.String("name", dirEntry.Name()), zap.Error(err))
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Open implements FileSystem.
func (l *LocalFileSystem) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Create implements FileSystem.
func (l *LocalFileSystem) Create(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}

// MkdirAll implements FileSystem.
func (l *LocalFileSystem) MkdirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}

// RemoveAll implements FileSystem.
func (l *LocalFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// Rename implements FileSystem.
func (l *LocalFileSystem) Rename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

// Lstat implements FileSystem.
func (l *LocalFileSystem) Lstat(path string) (os.FileInfo, error) {
	return os.Lstat(path)
}

// Readlink implements FileSystem.
func (l *LocalFileSystem) Readlink(path string) (string, error) {
	return os.Readlink(path)
}

// Resolve implements FileSystem.
func (l *LocalFileSystem) Resolve(path string) (string, error) {
	return filepath.EvalSymlinks(path)
}
