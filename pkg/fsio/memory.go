package fsio

import (
	"fmt"
	gopath "path"
	"sort"
	"strings"
	"sync"
)

// MemoryFS is an in-memory tree backing the mem:// and temp:// namespaces.
// It is safe for concurrent use.
type MemoryFS struct {
	mu    sync.RWMutex
	files map[string][]byte   // normalized path -> content
	dirs  map[string]struct{} // explicitly created directories
}

// NewMemoryFS returns an empty in-memory filesystem.
func NewMemoryFS() *MemoryFS {
	return &MemoryFS{
		files: make(map[string][]byte),
		dirs:  map[string]struct{}{"/": {}},
	}
}

func memKey(p Path) string {
	return gopath.Clean("/" + p.Path)
}

// ReadBytes implements FileSystem.
func (m *MemoryFS) ReadBytes(p Path) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.files[memKey(p)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, ErrNotExist)
	}
	out := make([]byte, len(content))
	copy(out, content)
	return out, nil
}

// WriteBytes implements FileSystem.
func (m *MemoryFS) WriteBytes(p Path, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memKey(p)
	stored := make([]byte, len(content))
	copy(stored, content)
	m.files[key] = stored
	for dir := gopath.Dir(key); ; dir = gopath.Dir(dir) {
		m.dirs[dir] = struct{}{}
		if dir == "/" {
			break
		}
	}
	return nil
}

// Exists implements FileSystem.
func (m *MemoryFS) Exists(p Path) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := memKey(p)
	if _, ok := m.files[key]; ok {
		return true, nil
	}
	_, ok := m.dirs[key]
	return ok, nil
}

// List implements FileSystem.
func (m *MemoryFS) List(p Path) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := memKey(p)
	if _, ok := m.dirs[key]; !ok {
		return nil, fmt.Errorf("%s: %w", p, ErrNotExist)
	}
	prefix := key
	if prefix != "/" {
		prefix += "/"
	}
	children := make(map[string]bool)
	for f := range m.files {
		if rest, ok := strings.CutPrefix(f, prefix); ok {
			name, _, isDir := strings.Cut(rest, "/")
			children[name] = children[name] || isDir
		}
	}
	for d := range m.dirs {
		if rest, ok := strings.CutPrefix(d, prefix); ok && rest != "" {
			name, _, _ := strings.Cut(rest, "/")
			children[name] = true
		}
	}
	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	sort.Strings(names)
	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		entries = append(entries, Entry{Name: name, Dir: children[name]})
	}
	return entries, nil
}

// MkdirAll implements FileSystem.
func (m *MemoryFS) MkdirAll(p Path) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for dir := memKey(p); ; dir = gopath.Dir(dir) {
		m.dirs[dir] = struct{}{}
		if dir == "/" {
			break
		}
	}
	return nil
}

// Reset drops all files and directories, used to wipe temp:// between runs.
func (m *MemoryFS) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = make(map[string][]byte)
	m.dirs = map[string]struct{}{"/": {}}
}
