package fsio

import (
	"fmt"
	"net/url"
	gopath "path"
	"path/filepath"
	"strings"
)

// Known path protocols.
const (
	ProtoFile = "file"
	ProtoMem  = "mem"
	ProtoTemp = "temp"
	ProtoRes  = "res"
	ProtoGit  = "git"
	ProtoSFTP = "sftp"
)

var knownProtocols = map[string]struct{}{
	ProtoFile: {},
	ProtoMem:  {},
	ProtoTemp: {},
	ProtoRes:  {},
	ProtoGit:  {},
	ProtoSFTP: {},
}

// Path is a canonical descriptor for a file location under one protocol.
type Path struct {
	// Protocol is one of the Proto* constants.
	Protocol string

	// Host is the authority component, empty for local protocols.
	// For sftp it may carry user@host[:port].
	Host string

	// Path is the slash-separated path component.
	Path string

	// Ref is the fragment component; git uses it as the ref to check out.
	Ref string
}

// Parse resolves a URI-like string into a Path. Strings without a known
// scheme are treated as local file paths; Windows-style separators are
// normalized to slashes.
func Parse(raw string) (Path, error) {
	if raw == "" {
		return Path{}, fmt.Errorf("empty path")
	}
	if i := strings.Index(raw, "://"); i > 0 {
		scheme := raw[:i]
		if _, ok := knownProtocols[scheme]; !ok {
			return Path{}, fmt.Errorf("unknown path protocol %q in %q", scheme, raw)
		}
		u, err := url.Parse(raw)
		if err != nil {
			return Path{}, fmt.Errorf("parse %q: %w", raw, err)
		}
		p := Path{Protocol: scheme, Host: u.Host, Path: u.Path, Ref: u.Fragment}
		if u.User != nil && u.User.String() != "" {
			p.Host = u.User.String() + "@" + u.Host
		}
		if p.Path == "" {
			p.Path = "/"
		}
		return p, nil
	}
	return Path{Protocol: ProtoFile, Path: filepath.ToSlash(raw)}, nil
}

// Resolve parses raw and, for relative local file paths, anchors them to
// baseDir. Non-file protocols and absolute paths are returned as parsed.
func Resolve(raw, baseDir string) (Path, error) {
	p, err := Parse(raw)
	if err != nil {
		return Path{}, err
	}
	if p.Protocol == ProtoFile && !gopath.IsAbs(p.Path) && baseDir != "" {
		p.Path = gopath.Join(filepath.ToSlash(baseDir), p.Path)
	}
	return p, nil
}

// String renders the canonical URI form; plain file paths render bare.
func (p Path) String() string {
	if p.Protocol == ProtoFile || p.Protocol == "" {
		return p.Path
	}
	s := p.Protocol + "://" + p.Host + p.Path
	if p.Ref != "" {
		s += "#" + p.Ref
	}
	return s
}

// Join appends path elements, keeping protocol, host and ref.
func (p Path) Join(elems ...string) Path {
	parts := append([]string{p.Path}, elems...)
	p.Path = gopath.Join(parts...)
	return p
}

// Parent returns the containing directory.
func (p Path) Parent() Path {
	p.Path = gopath.Dir(p.Path)
	return p
}

// Base returns the final path element.
func (p Path) Base() string {
	return gopath.Base(p.Path)
}

// IsRemote reports whether the path refers to a remote system.
func (p Path) IsRemote() bool {
	return p.Protocol == ProtoGit || p.Protocol == ProtoSFTP
}

// IsLocal reports whether the path is served from this process.
func (p Path) IsLocal() bool {
	return !p.IsRemote()
}
