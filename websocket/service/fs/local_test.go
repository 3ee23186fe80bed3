package fs

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFileSystem(t *testing.T) {
	tmpDir := t.TempDir()
	fs := NewLocalFileSystem(nil)

	t.Run("Create and ReadDir", func(t *testing.T) {
		require.NoError(t, fs.MkdirAll(filepath.Join(tmpDir, "testdir", "nested")))

		w, err := fs.Create(filepath.Join(tmpDir, "testfile.txt"))
		require.NoError(t, err)
		_, err = w.Write([]byte("test content"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		infos, err := fs.ReadDir(tmpDir)
		require.NoError(t, err)
		assert.Len(t, infos, 2)

		var foundDir, foundFile bool
		for _, info := range infos {
			if info.Name() == "testdir" {
				assert.True(t, info.IsDir())
				foundDir = true
			}
			if info.Name() == "testfile.txt" {
				assert.False(t, info.IsDir())
				assert.Equal(t, int64(12), info.Size())
				foundFile = true
			}
		}
		assert.True(t, foundDir, "Directory not found")
		assert.True(t, foundFile, "File not found")
	})

	t.Run("Create truncates", func(t *testing.T) {
		p := filepath.Join(tmpDir, "trunc.txt")
		require.NoError(t, os.WriteFile(p, []byte("a long original"), 0o644))

		w, err := fs.Create(p)
		require.NoError(t, err)
		_, err = w.Write([]byte("short"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		r, err := fs.Open(p)
		require.NoError(t, err)
		defer r.Close()
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "short", string(data))
	})

	t.Run("ReadDir skips dangling links", func(t *testing.T) {
		dir := filepath.Join(tmpDir, "links")
		require.NoError(t, os.Mkdir(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "real.txt"), nil, 0o644))
		require.NoError(t, os.Symlink(filepath.Join(dir, "gone"), filepath.Join(dir, "dangling")))

		infos, err := fs.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, "real.txt", infos[0].Name())
	})

	t.Run("Rename", func(t *testing.T) {
		oldPath := filepath.Join(tmpDir, "oldname.txt")
		content := []byte("rename test")
		require.NoError(t, os.WriteFile(oldPath, content, 0o644))

		newPath := filepath.Join(tmpDir, "newname.txt")
		require.NoError(t, fs.Rename(oldPath, newPath))

		_, err := os.Stat(oldPath)
		assert.True(t, os.IsNotExist(err))

		newContent, err := os.ReadFile(newPath)
		require.NoError(t, err)
		assert.Equal(t, content, newContent)
	})

	t.Run("RemoveAll", func(t *testing.T) {
		dir := filepath.Join(tmpDir, "todelete")
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "f"), []byte("x"), 0o644))

		require.NoError(t, fs.RemoveAll(dir))
		_, err := os.Stat(dir)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("Resolve", func(t *testing.T) {
		_, err := fs.Resolve(filepath.Join(tmpDir, "missing"))
		assert.True(t, os.IsNotExist(err))

		info, err := fs.Stat(tmpDir)
		require.NoError(t, err)
		assert.False(t, newEntry(tmpDir, info).CreatedAt.IsZero())
	})

	t.Run("Lstat and Readlink", func(t *testing.T) {
		link := filepath.Join(tmpDir, "dangling")
		require.NoError(t, os.Symlink("nowhere.txt", link))

		_, err := fs.Resolve(link)
		assert.True(t, os.IsNotExist(err))

		info, err := fs.Lstat(link)
		require.NoError(t, err)
		assert.NotZero(t, info.Mode()&os.ModeSymlink)

		target, err := fs.Readlink(link)
		require.NoError(t, err)
		assert.Equal(t, "nowhere.txt", target)
	})
}
