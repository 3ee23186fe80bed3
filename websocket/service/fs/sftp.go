package fs

import (
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path"
	"strings"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SFTPOptions describes how to reach a remote host whose files are served.
type SFTPOptions struct {
	Addr     string
	User     string
	Password string
	KeyFile  string
	// KnownHosts is an OpenSSH known_hosts file. When empty the host key is not verified.
	KnownHosts string
}

// SFTPFileSystem serves files from a remote host over SFTP.
type SFTPFileSystem struct {
	*sftp.Client
	sshClient *ssh.Client
	log       *zap.Logger
}

// DialSFTP connects to the remote host and opens an SFTP session on it.
func DialSFTP(opts SFTPOptions, log *zap.Logger) (*SFTPFileSystem, error) {
	if log == nil {
		log = zap.NewNop()
	}

	config := &ssh.ClientConfig{User: opts.User}
	if opts.KeyFile != "" {
		key, err := os.ReadFile(opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key file: %w", err)
		}
		config.Auth = append(config.Auth, ssh.PublicKeys(signer))
	}
	if opts.Password != "" {
		config.Auth = append(config.Auth, ssh.Password(opts.Password))
	}
	if len(config.Auth) == 0 {
		return nil, errors.New("no authentication method provided")
	}

	if opts.KnownHosts != "" {
		cb, err := knownhosts.New(opts.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
		config.HostKeyCallback = cb
	} else {
		log.Warn("sftp host key is not verified", zap.String("addr", opts.Addr))
		config.HostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	sshClient, err := ssh.Dial("tcp", opts.Addr, config)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ssh: %w", err)
	}

	fs, err := NewSFTPFileSystem(sshClient, log)
	if err != nil {
		sshClient.Close()
		return nil, err
	}
	return fs, nil
}

// NewSFTPFileSystem opens an SFTP session on an established SSH connection.
func NewSFTPFileSystem(sshClient *ssh.Client, log *zap.Logger) (*SFTPFileSystem, error) {
	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create sftp client: %w", err)
	}
	fs := wrapSFTP(sftpClient, log)
	fs.sshClient = sshClient
	return fs, nil
}

func wrapSFTP(client *sftp.Client, log *zap.Logger) *SFTPFileSystem {
	if log == nil {
		log = zap.NewNop()
	}
	return &SFTPFileSystem{Client: client, log: log}
}

// Stat implements FileSystem.
func (s *SFTPFileSystem) Stat(p string) (os.FileInfo, error) {
	return s.Client.Stat(p)
}

// ReadDir implements FileSystem.
func (s *SFTPFileSystem) ReadDir(p string) ([]os.FileInfo, error) {
	files, err := s.Client.ReadDir(p)
	if err != nil {
		return nil, err
	}

	infos := make([]os.FileInfo, 0, len(files))
	for _, file := range files {
		if file.Mode()&os.ModeSymlink == 0 {
			infos = append(infos, file)
			continue
		}
		// Listings report links themselves; stat the target like the local backend does.
		info, err := s.Client.Stat(path.Join(p, file.Name()))
		if err != nil {
			s.log.Debug("skipping entry", zap.String("name", file.Name()), zap.Error(err))
			continue
		}
		infos = append(infos, renamedInfo{FileInfo: info, name: file.Name()})
	}
	return infos, nil
}

// Open implements FileSystem.
func (s *SFTPFileSystem) Open(p string) (io.ReadCloser, error) {
	return s.Client.Open(p)
}

// Create implements FileSystem.
func (s *SFTPFileSystem) Create(p string) (io.WriteCloser, error) {
	return s.Client.Create(p)
}

// MkdirAll implements FileSystem.
func (s *SFTPFileSystem) MkdirAll(p string) error {
	return s.Client.MkdirAll(p)
}

// RemoveAll implements FileSystem.
func (s *SFTPFileSystem) RemoveAll(p string) error {
	return s.Client.RemoveAll(p)
}

// Rename implements FileSystem.
func (s *SFTPFileSystem) Rename(oldPath, newPath string) error {
	return s.Client.Rename(oldPath, newPath)
}

// Lstat implements FileSystem.
func (s *SFTPFileSystem) Lstat(p string) (os.FileInfo, error) {
	return s.Client.Lstat(p)
}

// Readlink implements FileSystem.
func (s *SFTPFileSystem) Readlink(p string) (string, error) {
	return s.Client.ReadLink(p)
}

// maxLinkHops bounds symlink chains followed by Resolve.
const maxLinkHops = 40

// Resolve implements FileSystem. Links are followed one component at a time since
// servers differ in whether realpath resolves them.
func (s *SFTPFileSystem) Resolve(p string) (string, error) {
	hops := 0
	return s.resolve(path.Clean(p), &hops)
}

func (s *SFTPFileSystem) resolve(p string, hops *int) (string, error) {
	cur := "/"
	for _, part := range strings.Split(strings.TrimPrefix(p, "/"), "/") {
		if part == "" {
			continue
		}
		next := path.Join(cur, part)

		info, err := s.Client.Lstat(next)
		if err != nil {
			if os.IsNotExist(err) {
				return "", iofs.ErrNotExist
			}
			return "", err
		}
		if info.Mode()&os.ModeSymlink == 0 {
			cur = next
			continue
		}

		*hops++
		if *hops > maxLinkHops {
			return "", fmt.Errorf("too many links resolving %s", p)
		}
		target, err := s.Client.ReadLink(next)
		if err != nil {
			return "", err
		}
		if !path.IsAbs(target) {
			target = path.Join(cur, target)
		}
		if cur, err = s.resolve(path.Clean(target), hops); err != nil {
			return "", err
		}
	}
	return cur, nil
}

// Close ends the SFTP session and the SSH connection under it.
func (s *SFTPFileSystem) Close() error {
	err := s.Client.Close()
	if s.sshClient != nil {
		if cerr := s.sshClient.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

type renamedInfo struct {
	os.FileInfo
	name string
}

func (i renamedInfo) Name() string { return i.name }
