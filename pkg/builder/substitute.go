package builder

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/kie-chi/dnsbuilder/pkg/config"
	"github.com/kie-chi/dnsbuilder/pkg/telemetry"
)

// varPattern matches the innermost ${...} occurrences, so nested expressions
// resolve inside-out across passes.
var varPattern = regexp.MustCompile(`\$\{([^{}]+)\}`)

// maxSubstitutionPasses bounds the resolve loop for self-referential values.
const maxSubstitutionPasses = 10

// SubstitutionContext carries everything variable lookup can see for one
// service.
type SubstitutionContext struct {
	// Service is the current service name.
	Service string

	// Project and Inet are the document header fields.
	Project string
	Inet    string

	// Self is the resolved definition of the current service.
	Self *config.Value

	// Builds maps every service name to its resolved definition.
	Builds map[string]*config.Value

	// Images maps image name to its resolved model.
	Images map[string]*Image

	// Addresses maps service name to its allocated IPv4 address.
	Addresses map[string]string

	// Env looks up an environment variable. Defaults to os.LookupEnv.
	Env func(string) (string, bool)

	// Logger receives unresolved-variable and convergence warnings.
	Logger *telemetry.Logger
}

// Substitutor resolves ${...} variables in one service's definition.
type Substitutor struct {
	ctx    SubstitutionContext
	vars   map[string]string
	passes int
}

// NewSubstitutor precomputes the flat self-scope variable map.
func NewSubstitutor(ctx SubstitutionContext) *Substitutor {
	if ctx.Env == nil {
		ctx.Env = os.LookupEnv
	}
	if ctx.Logger == nil {
		ctx.Logger = telemetry.NewDefaultLogger().WithService(ctx.Service)
	}

	vars := map[string]string{
		"name":         ctx.Service,
		"ip":           ctx.Addresses[ctx.Service],
		"address":      ctx.Addresses[ctx.Service],
		"project.name": ctx.Project,
		"project.inet": ctx.Inet,
	}
	if imageName := stringKey(ctx.Self, "image"); imageName != "" {
		if img, ok := ctx.Images[imageName]; ok {
			vars["image.name"] = img.Name
			vars["image.software"] = img.Software
			vars["image.version"] = img.Version
		}
	}
	return &Substitutor{ctx: ctx, vars: vars}
}

// Passes reports how many resolve passes the last Apply took.
func (s *Substitutor) Passes() int {
	return s.passes
}

// Apply substitutes every string scalar in the definition and returns the
// substituted copy.
func (s *Substitutor) Apply() (*config.Value, error) {
	out, err := s.applyValue(s.ctx.Self)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Substitutor) applyValue(v *config.Value) (*config.Value, error) {
	switch v.Kind() {
	case config.KindScalar:
		str, ok := v.Scalar().(string)
		if !ok {
			return v.Clone(), nil
		}
		resolved, err := s.Resolve(str)
		if err != nil {
			return nil, err
		}
		return config.String(resolved), nil
	case config.KindSequence:
		out := config.Sequence()
		for _, e := range v.Elems() {
			r, err := s.applyValue(e)
			if err != nil {
				return nil, err
			}
			out.Append(r)
		}
		return out, nil
	case config.KindMapping:
		out := config.Mapping()
		for _, k := range v.Keys() {
			e, _ := v.Get(k)
			r, err := s.applyValue(e)
			if err != nil {
				return nil, err
			}
			out.Set(k, r)
		}
		return out, nil
	default:
		return v.Clone(), nil
	}
}

// Resolve substitutes variables in a single string until it reaches a fixed
// point or the pass cap.
func (s *Substitutor) Resolve(text string) (string, error) {
	current := text
	for pass := 1; pass <= maxSubstitutionPasses; pass++ {
		var resolveErr error
		next := varPattern.ReplaceAllStringFunc(current, func(match string) string {
			if resolveErr != nil {
				return match
			}
			key := match[2 : len(match)-1]
			value, keep, err := s.lookup(key)
			if err != nil {
				resolveErr = err
				return match
			}
			if keep {
				return match
			}
			return value
		})
		if resolveErr != nil {
			return "", resolveErr
		}
		if pass > s.passes {
			s.passes = pass
		}
		if next == current {
			return next, nil
		}
		current = next
	}
	if varPattern.MatchString(current) {
		s.ctx.Logger.Warnf("value %q did not converge after %d substitution passes", text, maxSubstitutionPasses)
	}
	return current, nil
}

// lookup resolves one variable key. keep reports that the expression is a
// placeholder marker that must survive substitution verbatim.
func (s *Substitutor) lookup(key string) (value string, keep bool, err error) {
	switch key {
	case "required", "origin":
		return "", true, nil
	}

	if name, ok := strings.CutPrefix(key, "env."); ok {
		name, fallback, hasFallback := strings.Cut(name, ":")
		if v, set := s.ctx.Env(name); set {
			return v, false, nil
		}
		if hasFallback {
			return fallback, false, nil
		}
		s.warnUnresolved(key)
		return UnresolvedSentinel, false, nil
	}

	path, fallback, hasFallback := strings.Cut(key, ":")
	path = canonicalPath(path)

	if v, ok := s.vars[path]; ok {
		return v, false, nil
	}

	v, found, err := s.lookupPath(path)
	if err != nil {
		return "", false, err
	}
	if found {
		return v, false, nil
	}
	if hasFallback {
		return fallback, false, nil
	}
	s.warnUnresolved(key)
	return UnresolvedSentinel, false, nil
}

// lookupPath resolves a canonical dotted path against the cross-service or
// self scope.
func (s *Substitutor) lookupPath(path string) (string, bool, error) {
	if rest, ok := strings.CutPrefix(path, "services."); ok {
		svc, prop, hasProp := strings.Cut(rest, ".")
		if !hasProp {
			return "", false, NewSubstitutionError(fmt.Sprintf("variable services.%s needs a property", svc), nil).WithService(s.ctx.Service)
		}
		def, known := s.ctx.Builds[svc]
		if !known {
			return "", false, nil
		}
		switch {
		case prop == "ip" || prop == "address":
			addr, ok := s.ctx.Addresses[svc]
			return addr, ok, nil
		case prop == "name":
			return svc, true, nil
		case strings.HasPrefix(prop, "image."):
			imageName := stringKey(def, "image")
			img, ok := s.ctx.Images[imageName]
			if !ok {
				return "", false, nil
			}
			switch strings.TrimPrefix(prop, "image.") {
			case "name":
				return img.Name, true, nil
			case "software":
				return img.Software, true, nil
			case "version":
				return img.Version, true, nil
			default:
				return "", false, nil
			}
		default:
			return s.scalarAt(def, prop)
		}
	}
	return s.scalarAt(s.ctx.Self, path)
}

// scalarAt walks a dotted path through mappings and requires a scalar leaf.
func (s *Substitutor) scalarAt(root *config.Value, path string) (string, bool, error) {
	current := root
	for _, seg := range strings.Split(path, ".") {
		if current.Kind() != config.KindMapping {
			return "", false, nil
		}
		next, ok := current.Get(seg)
		if !ok {
			return "", false, nil
		}
		current = next
	}
	if current.Kind() != config.KindScalar {
		return "", false, NewSubstitutionError(
			fmt.Sprintf("variable %s resolved to a %s, expected a scalar", path, current.Kind()), nil,
		).WithService(s.ctx.Service)
	}
	return current.Text(), true, nil
}

func (s *Substitutor) warnUnresolved(key string) {
	s.ctx.Logger.Warnf("variable ${%s} is unresolved, using %q", key, UnresolvedSentinel)
}
