package fsio

import (
	"embed"
	"fmt"
	"io/fs"
	gopath "path"
	"strings"
)

//go:embed resources
var bundled embed.FS

// ResourceFS serves the read-only res:// namespace from resources compiled
// into the binary.
type ResourceFS struct {
	root fs.FS
}

// NewResourceFS returns the bundled resource backend.
func NewResourceFS() *ResourceFS {
	sub, err := fs.Sub(bundled, "resources")
	if err != nil {
		// The subtree is compiled in; failure here is a build defect.
		panic(fmt.Sprintf("fsio: bundled resources missing: %v", err))
	}
	return &ResourceFS{root: sub}
}

func resKey(p Path) string {
	key := gopath.Clean(strings.TrimPrefix(p.Path, "/"))
	if key == "" || key == "." {
		return "."
	}
	return key
}

// ReadBytes implements FileSystem.
func (r *ResourceFS) ReadBytes(p Path) ([]byte, error) {
	b, err := fs.ReadFile(r.root, resKey(p))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, ErrNotExist)
	}
	return b, nil
}

// WriteBytes implements FileSystem.
func (r *ResourceFS) WriteBytes(Path, []byte) error {
	return fmt.Errorf("res://: %w", ErrReadOnly)
}

// Exists implements FileSystem.
func (r *ResourceFS) Exists(p Path) (bool, error) {
	if _, err := fs.Stat(r.root, resKey(p)); err != nil {
		return false, nil
	}
	return true, nil
}

// List implements FileSystem.
func (r *ResourceFS) List(p Path) ([]Entry, error) {
	des, err := fs.ReadDir(r.root, resKey(p))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, ErrNotExist)
	}
	entries := make([]Entry, 0, len(des))
	for _, de := range des {
		entries = append(entries, Entry{Name: de.Name(), Dir: de.IsDir()})
	}
	return entries, nil
}

// MkdirAll implements FileSystem.
func (r *ResourceFS) MkdirAll(Path) error {
	return fmt.Errorf("res://: %w", ErrReadOnly)
}
