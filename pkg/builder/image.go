package builder

import (
	"github.com/kie-chi/dnsbuilder/pkg/config"
)

// Internal image software names. Any other software value means the image is
// external and must carry an explicit base.
const (
	SoftwareBind    = "bind"
	SoftwareUnbound = "unbound"
	SoftwarePython  = "python"
)

// imageDefaults carries the built-in build parameters per internal software.
type imageDefaults struct {
	from    string
	version string
	deps    []string
	utils   []string
}

var softwareDefaults = map[string]imageDefaults{
	SoftwareBind: {
		from:    "ubuntu:22.04",
		version: "9.18.30",
		deps: []string{
			"build-essential", "libssl-dev", "libuv1-dev", "libcap-dev",
			"pkg-config", "python3", "python3-pip", "python3-ply",
		},
		utils: []string{"dnsutils", "iproute2", "vim"},
	},
	SoftwareUnbound: {
		from:    "ubuntu:22.04",
		version: "1.19.3",
		deps: []string{
			"build-essential", "libssl-dev", "libexpat1-dev", "bison", "flex",
		},
		utils: []string{"dnsutils", "iproute2", "vim"},
	},
	SoftwarePython: {
		from:    "python:3.11-slim",
		version: "3.11",
		deps:    []string{},
		utils:   []string{"iproute2", "vim"},
	},
}

// Image is the resolved model of a container image definition.
type Image struct {
	// Name is the image name from the images collection.
	Name string `json:"name"`

	// Software identifies the DNS software for internal images, empty for
	// external ones.
	Software string `json:"software,omitempty"`

	// Version is the software version to build, internal images only.
	Version string `json:"version,omitempty"`

	// From is the base image reference.
	From string `json:"from"`

	// Dependencies are the build-time packages installed before compiling
	// the software.
	Dependencies []string `json:"dependencies,omitempty"`

	// Utils are convenience packages installed into the final image.
	Utils []string `json:"utils,omitempty"`

	// Internal reports whether the image is built from source by the
	// generated Dockerfile rather than pulled as-is.
	Internal bool `json:"internal"`

	// Definition is the resolved raw definition, kept for passthrough keys.
	Definition *config.Value `json:"-"`
}

// NewImage lifts a resolved image definition into an Image model.
func NewImage(name string, def *config.Value) (*Image, error) {
	img := &Image{Name: name, Definition: def}

	software := stringKey(def, "software")
	from := stringKey(def, "from")

	if software == "" && from == "" {
		return nil, NewConfigError("image "+name+" needs either software or from", nil)
	}

	if software != "" {
		d, ok := softwareDefaults[software]
		if !ok {
			return nil, NewConfigError("image "+name+" has unsupported software "+software, nil)
		}
		img.Internal = true
		img.Software = software
		img.Version = stringKey(def, "version")
		if img.Version == "" {
			img.Version = d.version
		}
		img.From = from
		if img.From == "" {
			img.From = d.from
		}
		img.Dependencies = append(img.Dependencies, d.deps...)
		img.Utils = append(img.Utils, d.utils...)
	} else {
		img.From = from
	}

	img.Dependencies = appendStrings(img.Dependencies, def, "dependency")
	img.Utils = appendStrings(img.Utils, def, "util")
	return img, nil
}

// Reference returns the image reference to use in a compose descriptor when
// the image is external, empty for internal images that build locally.
func (i *Image) Reference() string {
	if i.Internal {
		return ""
	}
	return i.From
}

func stringKey(m *config.Value, key string) string {
	v, ok := m.Get(key)
	if !ok || v.Kind() != config.KindScalar {
		return ""
	}
	return v.Text()
}

// appendStrings extends dst with the scalar elements of a sequence key,
// skipping values already present.
func appendStrings(dst []string, m *config.Value, key string) []string {
	v, ok := m.Get(key)
	if !ok || v.Kind() != config.KindSequence {
		return dst
	}
	seen := make(map[string]struct{}, len(dst))
	for _, s := range dst {
		seen[s] = struct{}{}
	}
	for _, e := range v.Elems() {
		s := e.Text()
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		dst = append(dst, s)
	}
	return dst
}
