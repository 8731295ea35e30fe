package config

import (
	"fmt"
	"strings"

	"github.com/kie-chi/dnsbuilder/pkg/fsio"
)

// Loader reads configuration documents through the filesystem layer and
// performs include merging and comprehension expansion.
type Loader struct {
	fs *fsio.Router
}

// NewLoader returns a loader reading through fs.
func NewLoader(fs *fsio.Router) *Loader {
	return &Loader{fs: fs}
}

// Load reads the document at uri, merges its include chain and returns the
// validated Document. Includes are merged in declaration order, each layer
// overriding the previous one, with the including document always on top.
func (l *Loader) Load(uri string) (*Document, error) {
	raw, err := l.loadTree(uri, fsio.Path{}, nil)
	if err != nil {
		return nil, err
	}
	raw.Delete(KeyInclude)

	if builds, ok := raw.Get(KeyBuilds); ok {
		expanded, err := ExpandBuilds(builds)
		if err != nil {
			return nil, err
		}
		raw.Set(KeyBuilds, expanded)
	}
	return NewDocument(raw)
}

// loadTree reads one file and folds its includes underneath it. The trail
// tracks the include chain for cycle reporting.
func (l *Loader) loadTree(uri string, from fsio.Path, trail []string) (*Value, error) {
	p, err := resolveInclude(uri, from)
	if err != nil {
		return nil, err
	}
	canonical := p.String()
	for _, seen := range trail {
		if seen == canonical {
			return nil, fmt.Errorf("include cycle: %s", strings.Join(append(trail, canonical), " -> "))
		}
	}
	trail = append(trail, canonical)

	text, err := l.fs.ReadText(p)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", canonical, err)
	}
	doc, err := FromYAML([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", canonical, err)
	}
	if doc.Kind() != KindMapping {
		return nil, fmt.Errorf("load %s: document must be a mapping, got %s", canonical, doc.Kind())
	}

	includes, ok := doc.Get(KeyInclude)
	if !ok || includes.IsNull() {
		return doc, nil
	}

	var uris []string
	switch includes.Kind() {
	case KindScalar:
		uris = []string{includes.Text()}
	case KindSequence:
		for _, e := range includes.Elems() {
			if e.Kind() != KindScalar {
				return nil, fmt.Errorf("load %s: include entries must be strings", canonical)
			}
			uris = append(uris, e.Text())
		}
	default:
		return nil, fmt.Errorf("load %s: 'include' must be a string or a sequence of strings", canonical)
	}

	base := Mapping()
	for _, inc := range uris {
		layer, err := l.loadTree(inc, p, trail)
		if err != nil {
			return nil, err
		}
		layer.Delete(KeyInclude)
		base = Merge(base, layer)
	}
	doc.Delete(KeyInclude)
	return Merge(base, doc), nil
}

// resolveInclude anchors a relative include to the including document so a
// mem:// or git:// document pulls relative includes from its own tree.
func resolveInclude(uri string, from fsio.Path) (fsio.Path, error) {
	p, err := fsio.Parse(uri)
	if err != nil {
		return fsio.Path{}, err
	}
	if strings.Contains(uri, "://") || strings.HasPrefix(p.Path, "/") {
		return p, nil
	}
	if from.Protocol == "" {
		return p, nil
	}
	return from.Parent().Join(p.Path), nil
}
