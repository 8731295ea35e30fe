package builder

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kie-chi/dnsbuilder/pkg/config"
)

// Placeholder markers recognized inside configuration values. They use the
// same ${...} syntax as variables but are consumed by later stages instead of
// being substituted.
const (
	// RequiredMarker flags a value the user must supply. It survives
	// substitution untouched and fails validation if still present.
	RequiredMarker = "${required}"

	// OriginMarker prefixes a volume source that is resolved relative to the
	// configuration document instead of the output directory.
	OriginMarker = "${origin}"

	// UnresolvedSentinel is the value an unresolvable variable collapses to.
	UnresolvedSentinel = "none"
)

// aliasMap normalizes accepted spellings of path segments to their canonical
// form before variable lookup.
var aliasMap = map[string]string{
	"svc":     "services",
	"service": "services",
	"proj":    "project",
	"addr":    "address",
}

// canonicalSegment returns the canonical spelling of one dotted-path segment.
func canonicalSegment(seg string) string {
	if c, ok := aliasMap[seg]; ok {
		return c
	}
	return seg
}

// canonicalPath normalizes every segment of a dotted variable path.
func canonicalPath(path string) string {
	segs := strings.Split(path, ".")
	for i, s := range segs {
		segs[i] = canonicalSegment(s)
	}
	return strings.Join(segs, ".")
}

// BuildPlan is the complete result of one compile run. It is deterministic
// for a given document, environment and label source, and carries everything
// the artifact writer needs.
type BuildPlan struct {
	// RunID uniquely identifies the compile run.
	RunID string `json:"run_id"`

	// Project is the project name from the document header.
	Project string `json:"project"`

	// Subnet is the IPv4 subnet services were allocated from.
	Subnet string `json:"subnet"`

	// Order lists service names in declaration order.
	Order []string `json:"order"`

	// Services maps service name to its compiled plan.
	Services map[string]*ServicePlan `json:"services"`

	// Images maps image name to its resolved model, for every image some
	// service references.
	Images map[string]*Image `json:"images"`
}

// Service returns the plan for a named service, or nil.
func (p *BuildPlan) Service(name string) *ServicePlan {
	return p.Services[name]
}

// ServicePlan is the compiled form of one service.
type ServicePlan struct {
	// Name is the service name.
	Name string `json:"name"`

	// Definition is the fully resolved and substituted definition mapping.
	Definition *config.Value `json:"-"`

	// Image is the resolved image model, nil for abstract definitions that
	// never materialize into a container.
	Image *Image `json:"image,omitempty"`

	// Address is the IPv4 address allocated to the service.
	Address string `json:"address"`

	// Fragments are the configuration fragments compiled from behavior
	// statements, in statement order.
	Fragments []Fragment `json:"fragments,omitempty"`

	// Files are generated auxiliary files such as root hint files.
	Files []GeneratedFile `json:"files,omitempty"`

	// Zones holds the authoritative records compiled from master statements.
	Zones *ZoneRecordSet `json:"zones,omitempty"`

	// Volumes are the parsed volume placements.
	Volumes []VolumePlacement `json:"volumes,omitempty"`
}

// Fragment is one block of DNS server configuration destined for the
// generated include file.
type Fragment struct {
	// Section is where the fragment belongs in the target format. Bind
	// ignores sections; unbound distinguishes "server" options from
	// "toplevel" blocks.
	Section string `json:"section"`

	// Text is the fragment body, without trailing blank line.
	Text string `json:"text"`
}

// Fragment sections.
const (
	SectionServer   = "server"
	SectionToplevel = "toplevel"
)

// GeneratedFile is an auxiliary file produced during behavior compilation.
type GeneratedFile struct {
	// Name is the file name under the service's generated content directory.
	Name string `json:"name"`

	// ContainerPath is the absolute path the file is mounted at inside the
	// container.
	ContainerPath string `json:"container_path"`

	// Content is the file body.
	Content string `json:"content"`
}

// VolumePlacement is one parsed volume entry.
type VolumePlacement struct {
	// Source is the host-side source, relative to the service content
	// directory unless Origin is set.
	Source string `json:"source"`

	// Target is the absolute container path.
	Target string `json:"target"`

	// Mode is the mount mode suffix ("ro", "rw"), empty when omitted.
	Mode string `json:"mode,omitempty"`

	// Origin marks a source resolved relative to the configuration document.
	Origin bool `json:"origin,omitempty"`

	// Resource marks a source read from the bundled configuration resources.
	Resource bool `json:"resource,omitempty"`
}

// ParseVolume splits a volume string of the form "src:dst[:mode]".
// Sources prefixed with the origin marker or "resource:" are tagged and the
// prefix stripped.
func ParseVolume(s string) (VolumePlacement, error) {
	var v VolumePlacement
	src := s
	if strings.HasPrefix(src, OriginMarker) {
		v.Origin = true
		src = strings.TrimPrefix(src, OriginMarker)
		src = strings.TrimPrefix(src, "/")
	}
	if strings.HasPrefix(src, "resource:") {
		v.Resource = true
		src = strings.TrimPrefix(src, "resource:")
	}
	parts := strings.Split(src, ":")
	switch len(parts) {
	case 2:
		v.Source, v.Target = parts[0], parts[1]
	case 3:
		v.Source, v.Target, v.Mode = parts[0], parts[1], parts[2]
	default:
		return VolumePlacement{}, NewConfigError("volume must be src:dst or src:dst:mode, got "+s, nil)
	}
	if v.Source == "" || v.Target == "" {
		return VolumePlacement{}, NewConfigError("volume has empty source or target: "+s, nil)
	}
	if !strings.HasPrefix(v.Target, "/") {
		return VolumePlacement{}, NewConfigError("volume target must be absolute: "+s, nil)
	}
	return v, nil
}

// LabelSource produces owner labels for synthesized glue records. The
// default source appends a random component so repeated targets in one zone
// never collide; tests substitute a deterministic source.
type LabelSource interface {
	// Label returns a new label for the given target service, without any
	// zone qualification.
	Label(target string) string
}

// RandomLabels returns the default label source backed by random UUIDs.
func RandomLabels() LabelSource {
	return randomLabels{}
}

type randomLabels struct{}

func (randomLabels) Label(target string) string {
	return target + "-" + uuid.NewString()[:8]
}

// SequentialLabels returns a deterministic label source for tests. It is
// safe for concurrent use.
func SequentialLabels() LabelSource {
	return &sequentialLabels{}
}

type sequentialLabels struct {
	mu sync.Mutex
	n  int
}

func (s *sequentialLabels) Label(target string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-ns%d", target, s.n)
}
