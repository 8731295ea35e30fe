package fsio

import (
	"fmt"
	"os"
	"os/exec"
	gopath "path"
	"strings"
	"sync"
)

// GitFS serves the read-only git:// namespace. A path of the form
//
//	git://host/owner/repo/sub/dir/file#ref
//
// is read from a shallow clone of https://host/owner/repo at the given ref
// (default branch when no ref is given). Clones are cached per repo+ref for
// the lifetime of the process.
type GitFS struct {
	mu     sync.Mutex
	clones map[string]string // repo+ref -> local checkout dir
}

// NewGitFS returns the git backend.
func NewGitFS() *GitFS {
	return &GitFS{clones: make(map[string]string)}
}

// splitRepo separates the owner/repo prefix from the in-repo path.
func splitRepo(p Path) (repoURL, rel string, err error) {
	parts := strings.Split(strings.TrimPrefix(p.Path, "/"), "/")
	if p.Host == "" || len(parts) < 2 {
		return "", "", fmt.Errorf("git path %q must be git://host/owner/repo/...", p.String())
	}
	repoURL = "https://" + p.Host + "/" + parts[0] + "/" + parts[1]
	rel = gopath.Join(parts[2:]...)
	return repoURL, rel, nil
}

func (g *GitFS) checkout(p Path) (string, string, error) {
	repoURL, rel, err := splitRepo(p)
	if err != nil {
		return "", "", err
	}
	key := repoURL + "#" + p.Ref

	g.mu.Lock()
	defer g.mu.Unlock()
	if dir, ok := g.clones[key]; ok {
		return dir, rel, nil
	}

	dir, err := os.MkdirTemp("", "dnsb-git-*")
	if err != nil {
		return "", "", err
	}
	args := []string{"clone", "--quiet", "--depth", "1"}
	if p.Ref != "" {
		args = append(args, "--branch", p.Ref)
	}
	args = append(args, repoURL, dir)
	cmd := exec.Command("git", args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	if out, err := cmd.CombinedOutput(); err != nil {
		_ = os.RemoveAll(dir)
		return "", "", fmt.Errorf("clone %s: %v: %s", repoURL, err, strings.TrimSpace(string(out)))
	}
	g.clones[key] = dir
	return dir, rel, nil
}

func (g *GitFS) localPath(p Path) (Path, error) {
	dir, rel, err := g.checkout(p)
	if err != nil {
		return Path{}, err
	}
	return Path{Protocol: ProtoFile, Path: gopath.Join(dir, rel)}, nil
}

// ReadBytes implements FileSystem.
func (g *GitFS) ReadBytes(p Path) ([]byte, error) {
	local, err := g.localPath(p)
	if err != nil {
		return nil, err
	}
	return NewDiskFS().ReadBytes(local)
}

// WriteBytes implements FileSystem.
func (g *GitFS) WriteBytes(Path, []byte) error {
	return fmt.Errorf("git://: %w", ErrReadOnly)
}

// Exists implements FileSystem.
func (g *GitFS) Exists(p Path) (bool, error) {
	local, err := g.localPath(p)
	if err != nil {
		return false, err
	}
	return NewDiskFS().Exists(local)
}

// List implements FileSystem.
func (g *GitFS) List(p Path) ([]Entry, error) {
	local, err := g.localPath(p)
	if err != nil {
		return nil, err
	}
	return NewDiskFS().List(local)
}

// MkdirAll implements FileSystem.
func (g *GitFS) MkdirAll(Path) error {
	return fmt.Errorf("git://: %w", ErrReadOnly)
}

// Cleanup removes all cached checkouts.
func (g *GitFS) Cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key, dir := range g.clones {
		_ = os.RemoveAll(dir)
		delete(g.clones, key)
	}
}
