package fsio

import (
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTPConfig carries the credentials for the sftp:// backend. Host and user
// may also come from the path authority (sftp://user@host/...).
type SFTPConfig struct {
	// User is the SSH user name.
	User string

	// Password authenticates when no key is configured.
	Password string

	// KeyFile is a path to a PEM private key; it wins over Password.
	KeyFile string

	// Timeout bounds the TCP dial, default 15s.
	Timeout time.Duration

	// HostKeyCallback verifies the server key; defaults to
	// ssh.InsecureIgnoreHostKey, which is acceptable for lab topologies
	// only and should be overridden for anything shared.
	HostKeyCallback ssh.HostKeyCallback
}

// SFTPFS serves sftp:// paths over SSH. Connections are cached per host.
type SFTPFS struct {
	config SFTPConfig

	mu      sync.Mutex
	clients map[string]*sftp.Client
}

// NewSFTPFS returns the sftp backend.
func NewSFTPFS(config SFTPConfig) *SFTPFS {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.HostKeyCallback == nil {
		config.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec
	}
	return &SFTPFS{config: config, clients: make(map[string]*sftp.Client)}
}

func (s *SFTPFS) auth() ([]ssh.AuthMethod, error) {
	if s.config.KeyFile != "" {
		pem, err := os.ReadFile(s.config.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	if s.config.Password != "" {
		return []ssh.AuthMethod{ssh.Password(s.config.Password)}, nil
	}
	return nil, fmt.Errorf("sftp: no key file or password configured")
}

// client returns a cached or freshly dialed sftp client for the path's host.
func (s *SFTPFS) client(p Path) (*sftp.Client, error) {
	user, host := s.config.User, p.Host
	if u, h, ok := strings.Cut(p.Host, "@"); ok {
		user, host = u, h
	}
	if host == "" {
		return nil, fmt.Errorf("sftp path %q has no host", p.String())
	}
	if !strings.Contains(host, ":") {
		host = net.JoinHostPort(host, "22")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[host]; ok {
		return c, nil
	}

	auth, err := s.auth()
	if err != nil {
		return nil, err
	}
	conn, err := ssh.Dial("tcp", host, &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: s.config.HostKeyCallback,
		Timeout:         s.config.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", host, err)
	}
	c, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open sftp session on %s: %w", host, err)
	}
	s.clients[host] = c
	return c, nil
}

// ReadBytes implements FileSystem.
func (s *SFTPFS) ReadBytes(p Path) ([]byte, error) {
	c, err := s.client(p)
	if err != nil {
		return nil, err
	}
	f, err := c.Open(p.Path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	defer f.Close()
	var buf strings.Builder
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// WriteBytes implements FileSystem.
func (s *SFTPFS) WriteBytes(p Path, content []byte) error {
	c, err := s.client(p)
	if err != nil {
		return err
	}
	if err := c.MkdirAll(Path{Path: p.Path}.Parent().Path); err != nil {
		return err
	}
	f, err := c.Create(p.Path)
	if err != nil {
		return fmt.Errorf("%s: %w", p, err)
	}
	defer f.Close()
	_, err = f.Write(content)
	return err
}

// Exists implements FileSystem.
func (s *SFTPFS) Exists(p Path) (bool, error) {
	c, err := s.client(p)
	if err != nil {
		return false, err
	}
	if _, err := c.Stat(p.Path); err != nil {
		return false, nil
	}
	return true, nil
}

// List implements FileSystem.
func (s *SFTPFS) List(p Path) ([]Entry, error) {
	c, err := s.client(p)
	if err != nil {
		return nil, err
	}
	infos, err := c.ReadDir(p.Path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	entries := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, Entry{Name: fi.Name(), Dir: fi.IsDir()})
	}
	return entries, nil
}

// MkdirAll implements FileSystem.
func (s *SFTPFS) MkdirAll(p Path) error {
	c, err := s.client(p)
	if err != nil {
		return err
	}
	return c.MkdirAll(p.Path)
}

// Close shuts down all cached connections.
func (s *SFTPFS) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for host, c := range s.clients {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
		delete(s.clients, host)
	}
	return first
}
