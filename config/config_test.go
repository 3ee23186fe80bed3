package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	home, err := homedir.Dir()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, []string{home}, cfg.AllowedPaths)
	assert.False(t, cfg.AllowWrite)
	assert.False(t, cfg.AllowDelete)
	assert.Equal(t, ByteSize(10<<20), cfg.MaxFileSize)
	assert.Equal(t, time.Duration(0), cfg.IdleTimeout)
	assert.Equal(t, "local", cfg.Backend.Type)
	assert.Equal(t, 22, cfg.Backend.SFTP.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
listen: "127.0.0.1:9000"
allowed_paths:
  - /data
  - /srv/share
allow_write: true
max_file_size: 1MiB
idle_timeout: 5m
auth:
  jwt_secret: s3cret
log:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, []string{"/data", "/srv/share"}, cfg.AllowedPaths)
	assert.True(t, cfg.AllowWrite)
	assert.False(t, cfg.AllowDelete)
	assert.Equal(t, ByteSize(1<<20), cfg.MaxFileSize)
	assert.Equal(t, "1MiB", cfg.MaxFileSize.String())
	assert.Equal(t, 5*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("REMOTEFS_ALLOWED_PATHS", "/a,/b")
	t.Setenv("REMOTEFS_ALLOW_DELETE", "true")
	t.Setenv("REMOTEFS_MAX_FILE_SIZE", "2048")
	t.Setenv("REMOTEFS_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, "allow_delete: false\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"/a", "/b"}, cfg.AllowedPaths)
	assert.True(t, cfg.AllowDelete)
	assert.Equal(t, ByteSize(2048), cfg.MaxFileSize)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_ExpandsHome(t *testing.T) {
	home, err := homedir.Dir()
	require.NoError(t, err)

	cfg, err := Load(writeConfig(t, "allowed_paths: [\"~/shared\"]\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(home, "shared")}, cfg.AllowedPaths)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad size", "max_file_size: lots\n"},
		{"zero size", "max_file_size: 0\n"},
		{"bad backend", "backend:\n  type: ftp\n"},
		{"sftp without host", "backend:\n  type: sftp\n  sftp:\n    password: x\n"},
		{"sftp without credentials", "backend:\n  type: sftp\n  sftp:\n    host: example.com\n"},
		{"invalid yaml", "listen: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_SFTP(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
backend:
  type: sftp
  sftp:
    host: files.example.com
    port: 2222
    user: svc
    key_file: /etc/remotefs/id_ed25519
`))
	require.NoError(t, err)

	assert.True(t, cfg.Backend.SFTP.Enabled)
	assert.Equal(t, "files.example.com:2222", cfg.Backend.SFTP.Addr())
	assert.Equal(t, "/etc/remotefs/id_ed25519", cfg.Backend.SFTP.KeyFile)
}
