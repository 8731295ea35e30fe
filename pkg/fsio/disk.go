package fsio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DiskFS serves file:// paths from the local filesystem.
type DiskFS struct{}

// NewDiskFS returns the local disk backend.
func NewDiskFS() *DiskFS {
	return &DiskFS{}
}

func (d *DiskFS) native(p Path) string {
	return filepath.FromSlash(p.Path)
}

// ReadBytes implements FileSystem.
func (d *DiskFS) ReadBytes(p Path) ([]byte, error) {
	b, err := os.ReadFile(d.native(p))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", p, ErrNotExist)
	}
	return b, err
}

// WriteBytes implements FileSystem.
func (d *DiskFS) WriteBytes(p Path, content []byte) error {
	native := d.native(p)
	if err := os.MkdirAll(filepath.Dir(native), 0o755); err != nil {
		return err
	}
	return os.WriteFile(native, content, 0o644)
}

// Exists implements FileSystem.
func (d *DiskFS) Exists(p Path) (bool, error) {
	_, err := os.Stat(d.native(p))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// List implements FileSystem.
func (d *DiskFS) List(p Path) ([]Entry, error) {
	des, err := os.ReadDir(d.native(p))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", p, ErrNotExist)
	}
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(des))
	for _, de := range des {
		entries = append(entries, Entry{Name: de.Name(), Dir: de.IsDir()})
	}
	return entries, nil
}

// MkdirAll implements FileSystem.
func (d *DiskFS) MkdirAll(p Path) error {
	return os.MkdirAll(d.native(p), 0o755)
}
