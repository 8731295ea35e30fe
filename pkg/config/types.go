package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Reserved top-level document keys.
const (
	KeyName    = "name"
	KeyInet    = "inet"
	KeyImages  = "images"
	KeyBuilds  = "builds"
	KeyInclude = "include"
	KeyAuto    = "auto"
	KeyMirror  = "mirror"
)

// Reserved definition keys consumed by the compiler rather than passed through
// to the rendered service.
var ReservedBuildKeys = map[string]struct{}{
	"image":    {},
	"volumes":  {},
	"cap_add":  {},
	"address":  {},
	"ref":      {},
	"mixins":   {},
	"behavior": {},
	"build":    {},
	"mounts":   {},
	"auto":     {},
}

// Document is the fully merged and validated configuration tree for one
// compile run.
type Document struct {
	// Name is the project name, used for output directories and container
	// name prefixes.
	Name string

	// Inet is the IPv4 subnet services are allocated addresses from.
	Inet string

	// Images maps image name to its raw definition mapping.
	Images *Value

	// Builds maps service name to its raw definition mapping.
	Builds *Value

	// Auto holds the project-level hook scripts, if any.
	Auto *Value

	// Mirror holds package mirror overrides applied to internal images.
	Mirror *Value

	// Raw is the merged tree the document was lifted from. The build cache
	// digests its canonical projection to detect unchanged inputs.
	Raw *Value
}

// header mirrors the scalar document fields for tag-based validation.
type header struct {
	Name string `validate:"required"`
	Inet string `validate:"required,cidr"`
}

var validate = validator.New()

// NewDocument validates a raw merged tree and lifts it into a Document.
// The raw tree must already have includes merged and comprehensions expanded.
func NewDocument(raw *Value) (*Document, error) {
	if raw.Kind() != KindMapping {
		return nil, fmt.Errorf("configuration document must be a mapping, got %s", raw.Kind())
	}
	if err := ValidateSchema(raw); err != nil {
		return nil, err
	}

	doc := &Document{
		Name:   scalarField(raw, KeyName),
		Inet:   scalarField(raw, KeyInet),
		Images: mappingField(raw, KeyImages),
		Builds: mappingField(raw, KeyBuilds),
		Raw:    raw,
	}
	if v, ok := raw.Get(KeyAuto); ok {
		doc.Auto = v
	}
	if v, ok := raw.Get(KeyMirror); ok {
		doc.Mirror = v
	}

	if err := validate.Struct(header{Name: doc.Name, Inet: doc.Inet}); err != nil {
		return nil, fmt.Errorf("invalid document header: %w", err)
	}
	if err := checkDefinitionNames("image", doc.Images); err != nil {
		return nil, err
	}
	if err := checkDefinitionNames("build", doc.Builds); err != nil {
		return nil, err
	}
	return doc, nil
}

func scalarField(m *Value, key string) string {
	v, ok := m.Get(key)
	if !ok || v.Kind() != KindScalar {
		return ""
	}
	return v.Text()
}

func mappingField(m *Value, key string) *Value {
	v, ok := m.Get(key)
	if !ok || v.Kind() != KindMapping {
		return Mapping()
	}
	return v
}

func checkDefinitionNames(collection string, defs *Value) error {
	for _, name := range defs.Keys() {
		if strings.Contains(name, ":") {
			return fmt.Errorf("%s name %q must not contain ':'", collection, name)
		}
		d, _ := defs.Get(name)
		if d.Kind() != KindMapping {
			return fmt.Errorf("%s %q must be a mapping, got %s", collection, name, d.Kind())
		}
	}
	return nil
}
