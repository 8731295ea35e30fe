package builder

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/kie-chi/dnsbuilder/pkg/config"
)

//go:embed templates/builds.yml
var builtinTemplatesYAML []byte

var (
	builtinOnce      sync.Once
	builtinTemplates map[string]*config.Value
	builtinErr       error
)

// loadBuiltinTemplates parses the embedded role templates into a flat
// "software:role" keyed map.
func loadBuiltinTemplates() (map[string]*config.Value, error) {
	builtinOnce.Do(func() {
		root, err := config.FromYAML(builtinTemplatesYAML)
		if err != nil {
			builtinErr = NewInternalError("parse builtin templates", err)
			return
		}
		builtinTemplates = make(map[string]*config.Value)
		for _, software := range root.Keys() {
			roles, _ := root.Get(software)
			for _, role := range roles.Keys() {
				tpl, _ := roles.Get(role)
				builtinTemplates[software+":"+role] = tpl
			}
		}
	})
	return builtinTemplates, builtinErr
}

// refState tracks the traversal color of a definition.
type refState uint8

const (
	stateUnvisited refState = iota // white
	stateResolving                 // gray, on the current path
	stateResolved                  // black, memoized
)

// Resolver flattens ref and mixin chains within one definition collection.
// Results are memoized, so shared ancestors resolve once per run. A Resolver
// is not safe for concurrent use; resolve all definitions before fanning out.
type Resolver struct {
	collection string
	defs       *config.Value
	images     map[string]*Image

	state    map[string]refState
	stack    []string
	resolved map[string]*config.Value
}

// NewImageResolver returns a resolver for the images collection. Image
// definitions may reference sibling images but have no role templates.
func NewImageResolver(images *config.Value) *Resolver {
	return newResolver("image", images, nil)
}

// NewBuildResolver returns a resolver for the builds collection. Build
// definitions may reference siblings or builtin "std:<role>" templates, whose
// software prefix comes from the resolved image of the referencing service.
func NewBuildResolver(builds *config.Value, images map[string]*Image) *Resolver {
	return newResolver("build", builds, images)
}

func newResolver(collection string, defs *config.Value, images map[string]*Image) *Resolver {
	return &Resolver{
		collection: collection,
		defs:       defs,
		images:     images,
		state:      make(map[string]refState),
		resolved:   make(map[string]*config.Value),
	}
}

// Resolve returns the flattened definition for name. The result is a fresh
// deep copy with ref and mixins keys stripped.
func (r *Resolver) Resolve(name string) (*config.Value, error) {
	switch r.state[name] {
	case stateResolved:
		return r.resolved[name].Clone(), nil
	case stateResolving:
		return nil, NewCycleError("circular reference detected: "+r.cyclePath(name), nil)
	}

	def, ok := r.defs.Get(name)
	if !ok {
		return nil, NewReferenceError(fmt.Sprintf("unknown %s %q", r.collection, name), nil)
	}
	if def.Kind() != config.KindMapping {
		return nil, NewConfigError(fmt.Sprintf("%s %q must be a mapping", r.collection, name), nil)
	}

	r.state[name] = stateResolving
	r.stack = append(r.stack, name)

	result, err := r.resolveDef(name, def)

	r.stack = r.stack[:len(r.stack)-1]
	if err != nil {
		r.state[name] = stateUnvisited
		return nil, err
	}
	r.state[name] = stateResolved
	r.resolved[name] = result
	return result.Clone(), nil
}

// resolveDef layers the ref base, then each mixin in declaration order, then
// the definition's own fields on top.
func (r *Resolver) resolveDef(name string, def *config.Value) (*config.Value, error) {
	base := config.Mapping()

	if ref, ok := def.Get("ref"); ok {
		if ref.Kind() != config.KindScalar {
			return nil, NewConfigError(fmt.Sprintf("%s %q: ref must be a scalar", r.collection, name), nil)
		}
		parent, err := r.resolveRef(name, def, ref.Text())
		if err != nil {
			return nil, err
		}
		base = parent
	}

	if mixins, ok := def.Get("mixins"); ok {
		if mixins.Kind() != config.KindSequence {
			return nil, NewConfigError(fmt.Sprintf("%s %q: mixins must be a sequence", r.collection, name), nil)
		}
		for _, m := range mixins.Elems() {
			if m.Kind() != config.KindScalar {
				return nil, NewConfigError(fmt.Sprintf("%s %q: mixin entries must be scalars", r.collection, name), nil)
			}
			layer, err := r.resolveRef(name, def, m.Text())
			if err != nil {
				return nil, err
			}
			base = config.Merge(base, layer)
		}
	}

	own := def.Clone()
	own.Delete("ref")
	own.Delete("mixins")
	return config.Merge(base, own), nil
}

// resolveRef resolves one reference target. Three forms exist: an explicit
// builtin "<software>:<role>" template, a "std:<role>" template whose software
// comes from the owner's image, or a sibling definition.
func (r *Resolver) resolveRef(owner string, def *config.Value, ref string) (*config.Value, error) {
	role, isStd := strings.CutPrefix(ref, "std:")
	if !isStd {
		if r.collection == "build" && strings.Contains(ref, ":") {
			templates, err := loadBuiltinTemplates()
			if err != nil {
				return nil, err
			}
			tpl, ok := templates[ref]
			if !ok {
				return nil, NewReferenceError(fmt.Sprintf("no builtin template %q for %s %q", ref, r.collection, owner), nil)
			}
			return tpl.Clone(), nil
		}
		return r.Resolve(ref)
	}

	if r.images == nil {
		return nil, NewReferenceError(fmt.Sprintf("%s %q: std role templates are not available for %ss", r.collection, owner, r.collection), nil)
	}
	imageName := stringKey(def, "image")
	if imageName == "" {
		return nil, NewReferenceError(fmt.Sprintf("build %q references %q but declares no image", owner, ref), nil)
	}
	img, ok := r.images[imageName]
	if !ok {
		return nil, NewReferenceError(fmt.Sprintf("build %q uses unknown image %q", owner, imageName), nil)
	}
	if img.Software == "" {
		return nil, NewReferenceError(fmt.Sprintf("build %q references %q but image %q has no software", owner, ref, imageName), nil)
	}

	templates, err := loadBuiltinTemplates()
	if err != nil {
		return nil, err
	}
	tpl, ok := templates[img.Software+":"+role]
	if !ok {
		return nil, NewReferenceError(fmt.Sprintf("no builtin template %s:%s for build %q", img.Software, role, owner), nil)
	}
	return tpl.Clone(), nil
}

// cyclePath formats the reference cycle ending at name.
func (r *Resolver) cyclePath(name string) string {
	start := 0
	for i, n := range r.stack {
		if n == name {
			start = i
			break
		}
	}
	cycle := append(append([]string{}, r.stack[start:]...), name)
	return strings.Join(cycle, " -> ")
}
