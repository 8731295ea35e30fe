package fsio

import (
	"errors"
	"fmt"
)

// ErrReadOnly is returned by write operations on read-only backends.
var ErrReadOnly = errors.New("filesystem is read-only")

// ErrNotExist is returned when a path does not exist.
var ErrNotExist = errors.New("path does not exist")

// Entry is one child of a directory listing.
type Entry struct {
	// Name is the entry's base name.
	Name string

	// Dir reports whether the entry is a directory.
	Dir bool
}

// FileSystem is the contract every protocol backend implements.
type FileSystem interface {
	// ReadBytes returns the file content.
	ReadBytes(p Path) ([]byte, error)

	// WriteBytes stores content, creating parent directories as needed.
	// Read-only backends return ErrReadOnly.
	WriteBytes(p Path, content []byte) error

	// Exists reports whether the path refers to a file or directory.
	Exists(p Path) (bool, error)

	// List returns the children of a directory.
	List(p Path) ([]Entry, error)

	// MkdirAll creates the directory and its parents. Creation is
	// idempotent: existing directories are not an error.
	MkdirAll(p Path) error
}

// Router multiplexes filesystem operations across protocol backends and
// enforces the copy support matrix.
type Router struct {
	backends map[string]FileSystem
}

// NewRouter returns a router with the default backend set: disk, separate
// in-memory trees for mem:// and temp://, and bundled resources. git and sftp
// backends are optional and attached by the caller when configured.
func NewRouter() *Router {
	r := &Router{backends: make(map[string]FileSystem)}
	r.Mount(ProtoFile, NewDiskFS())
	r.Mount(ProtoMem, NewMemoryFS())
	r.Mount(ProtoTemp, NewMemoryFS())
	r.Mount(ProtoRes, NewResourceFS())
	return r
}

// Mount attaches a backend for a protocol, replacing any existing one.
func (r *Router) Mount(protocol string, fs FileSystem) {
	r.backends[protocol] = fs
}

func (r *Router) backend(p Path) (FileSystem, error) {
	fs, ok := r.backends[p.Protocol]
	if !ok {
		return nil, fmt.Errorf("no filesystem mounted for protocol %q (%s)", p.Protocol, p)
	}
	return fs, nil
}

// ReadBytes reads a file through the protocol backend.
func (r *Router) ReadBytes(p Path) ([]byte, error) {
	fs, err := r.backend(p)
	if err != nil {
		return nil, err
	}
	return fs.ReadBytes(p)
}

// ReadText reads a file as UTF-8 text.
func (r *Router) ReadText(p Path) (string, error) {
	b, err := r.ReadBytes(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteBytes writes a file through the protocol backend.
func (r *Router) WriteBytes(p Path, content []byte) error {
	fs, err := r.backend(p)
	if err != nil {
		return err
	}
	return fs.WriteBytes(p, content)
}

// WriteText writes UTF-8 text.
func (r *Router) WriteText(p Path, content string) error {
	return r.WriteBytes(p, []byte(content))
}

// Exists reports path existence through the protocol backend.
func (r *Router) Exists(p Path) (bool, error) {
	fs, err := r.backend(p)
	if err != nil {
		return false, err
	}
	return fs.Exists(p)
}

// List lists a directory through the protocol backend.
func (r *Router) List(p Path) ([]Entry, error) {
	fs, err := r.backend(p)
	if err != nil {
		return nil, err
	}
	return fs.List(p)
}

// MkdirAll creates a directory tree through the protocol backend.
func (r *Router) MkdirAll(p Path) error {
	fs, err := r.backend(p)
	if err != nil {
		return err
	}
	return fs.MkdirAll(p)
}

// canCopy implements the declared support matrix: a copy is supported unless
// both endpoints are remote. Remote-to-remote transfers must stage through a
// local or in-memory path.
func canCopy(src, dst Path) error {
	if src.IsRemote() && dst.IsRemote() {
		return fmt.Errorf("copy from %s:// to %s:// is not supported, stage through a local path", src.Protocol, dst.Protocol)
	}
	return nil
}

// Copy copies one file between (possibly different) protocol backends.
func (r *Router) Copy(src, dst Path) error {
	if err := canCopy(src, dst); err != nil {
		return err
	}
	content, err := r.ReadBytes(src)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := r.WriteBytes(dst, content); err != nil {
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return nil
}

// CopyTree recursively copies a directory between protocol backends.
func (r *Router) CopyTree(src, dst Path) error {
	if err := canCopy(src, dst); err != nil {
		return err
	}
	entries, err := r.List(src)
	if err != nil {
		return fmt.Errorf("copy tree %s: %w", src, err)
	}
	if err := r.MkdirAll(dst); err != nil {
		return err
	}
	for _, e := range entries {
		s, d := src.Join(e.Name), dst.Join(e.Name)
		if e.Dir {
			if err := r.CopyTree(s, d); err != nil {
				return err
			}
			continue
		}
		if err := r.Copy(s, d); err != nil {
			return err
		}
	}
	return nil
}
