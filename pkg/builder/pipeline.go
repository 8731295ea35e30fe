package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kie-chi/dnsbuilder/pkg/config"
	"github.com/kie-chi/dnsbuilder/pkg/telemetry"
)

// Hook phases.
const (
	PhaseSetup    = "setup"
	PhaseModify   = "modify"
	PhaseValidate = "validate"
)

// ScriptRunner executes hook scripts. The setup phase sees the whole
// document, the modify and validate phases see one service's definition.
type ScriptRunner interface {
	// RunSetup runs a setup script against the raw document tree and returns
	// the replacement tree.
	RunSetup(ctx context.Context, script string, doc *config.Value) (*config.Value, error)

	// RunModify runs a modify script against one service definition and
	// returns the replacement definition.
	RunModify(ctx context.Context, script, service string, def *config.Value) (*config.Value, error)

	// RunValidate runs a validation script against one compiled service
	// definition. A non-nil error rejects the plan.
	RunValidate(ctx context.Context, script, service string, def *config.Value) error
}

// Pipeline compiles a configuration document into a BuildPlan. Stages run in
// a fixed order; any failure aborts the run without a partial plan.
type Pipeline struct {
	doc    *config.Document
	hooks  ScriptRunner
	tel    *telemetry.Telemetry
	labels LabelSource
	env    func(string) (string, bool)
	now    func() time.Time
	log    *telemetry.Logger
	runID  string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithHooks installs a hook script runner.
func WithHooks(r ScriptRunner) Option {
	return func(p *Pipeline) { p.hooks = r }
}

// WithTelemetry wires tracing and metrics into the run.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(p *Pipeline) {
		p.tel = t
		if t != nil && t.Logger != nil {
			p.log = t.Logger
		}
	}
}

// WithLabels overrides the glue label source.
func WithLabels(l LabelSource) Option {
	return func(p *Pipeline) { p.labels = l }
}

// WithEnv overrides environment variable lookup.
func WithEnv(env func(string) (string, bool)) Option {
	return func(p *Pipeline) { p.env = env }
}

// WithClock overrides the time source used for zone serials.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithRunID fixes the run identifier instead of generating one, letting
// callers correlate the plan with their own run records.
func WithRunID(id string) Option {
	return func(p *Pipeline) { p.runID = id }
}

// NewPipeline prepares a pipeline for one document.
func NewPipeline(doc *config.Document, opts ...Option) *Pipeline {
	p := &Pipeline{
		doc:    doc,
		labels: RandomLabels(),
		env:    os.LookupEnv,
		now:    time.Now,
		log:    telemetry.NewDefaultLogger(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run executes every stage and returns the compiled plan.
func (p *Pipeline) Run(ctx context.Context) (*BuildPlan, error) {
	runID := p.runID
	if runID == "" {
		runID = uuid.NewString()[:8]
	}
	log := p.log.WithRunID(runID)

	if p.tel != nil {
		sctx, span := p.tel.Tracer.StartCompileSpan(ctx, runID, p.doc.Name)
		defer span.End()
		ctx = sctx
		p.tel.Metrics.RecordCompileStarted("build")
	}
	started := time.Now()

	plan, err := p.run(ctx, runID, log)
	if p.tel != nil {
		status := "success"
		if err != nil {
			status = "failure"
			p.tel.Metrics.RecordError(string(KindOf(err)))
		}
		p.tel.Metrics.RecordCompileCompleted(status, time.Since(started))
	}
	if err != nil {
		log.WithError(err).Error("compile failed")
		return nil, err
	}
	log.Infof("compiled %d services", len(plan.Order))
	return plan, nil
}

func (p *Pipeline) run(ctx context.Context, runID string, log *telemetry.Logger) (*BuildPlan, error) {
	doc := p.doc

	// Project-level setup hooks may rewrite the whole document.
	if scripts := scriptList(doc.Auto, PhaseSetup); len(scripts) > 0 {
		var err error
		doc, err = p.stageSetup(ctx, doc, scripts, log)
		if err != nil {
			return nil, err
		}
	}

	images, err := p.stageImages(ctx, doc, log)
	if err != nil {
		return nil, err
	}

	defs, order, err := p.stageResolution(ctx, doc, images, log)
	if err != nil {
		return nil, err
	}

	planner, addresses, err := p.stageNetwork(ctx, doc, defs, order, log)
	if err != nil {
		return nil, err
	}

	if err := p.stageSubstitution(ctx, doc, defs, order, images, addresses, log); err != nil {
		return nil, err
	}

	if err := p.stageModifyHooks(ctx, doc, defs, order, log); err != nil {
		return nil, err
	}

	services, err := p.stageServices(ctx, defs, order, images, addresses, log)
	if err != nil {
		return nil, err
	}

	if err := p.stageValidation(ctx, doc, services, order, log); err != nil {
		return nil, err
	}

	return &BuildPlan{
		RunID:    runID,
		Project:  doc.Name,
		Subnet:   planner.Subnet(),
		Order:    order,
		Services: services,
		Images:   images,
	}, nil
}

// stage wraps one pipeline stage with tracing and duration metrics.
func (p *Pipeline) stage(ctx context.Context, name string, log *telemetry.Logger, fn func(context.Context, *telemetry.Logger) error) error {
	slog := log.WithStage(name)
	started := time.Now()
	if p.tel != nil {
		sctx, span := p.tel.Tracer.StartStageSpan(ctx, name)
		defer span.End()
		ctx = sctx
	}
	err := fn(ctx, slog)
	if p.tel != nil {
		p.tel.Metrics.RecordStage(name, time.Since(started))
	}
	if err != nil {
		return err
	}
	slog.Debug("stage complete")
	return nil
}

func (p *Pipeline) stageSetup(ctx context.Context, doc *config.Document, scripts []string, log *telemetry.Logger) (*config.Document, error) {
	if p.hooks == nil {
		return nil, NewHookError("setup hooks configured but no script runner is available", nil)
	}
	out := doc
	err := p.stage(ctx, "setup-hooks", log, func(ctx context.Context, slog *telemetry.Logger) error {
		tree := assembleDocument(doc)
		for _, script := range scripts {
			next, err := p.hooks.RunSetup(ctx, script, tree)
			p.recordHook(PhaseSetup, err)
			if err != nil {
				return NewHookError("setup hook failed", err)
			}
			if next != nil {
				tree = next
			}
		}
		lifted, err := config.NewDocument(tree)
		if err != nil {
			return NewHookError("setup hook produced an invalid document", err)
		}
		out = lifted
		return nil
	})
	return out, err
}

func (p *Pipeline) stageImages(ctx context.Context, doc *config.Document, log *telemetry.Logger) (map[string]*Image, error) {
	images := make(map[string]*Image)
	err := p.stage(ctx, "images", log, func(ctx context.Context, slog *telemetry.Logger) error {
		resolver := NewImageResolver(doc.Images)
		for _, name := range doc.Images.Keys() {
			def, err := resolver.Resolve(name)
			if err != nil {
				return err
			}
			img, err := NewImage(name, def)
			if err != nil {
				return err
			}
			images[name] = img
			slog.WithImage(img.Name, img.Software).Debug("image resolved")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}

// stageResolution flattens every build definition and returns the concrete
// services in declaration order. Definitions without an image key are
// abstract bases that only exist as reference targets.
func (p *Pipeline) stageResolution(ctx context.Context, doc *config.Document, images map[string]*Image, log *telemetry.Logger) (map[string]*config.Value, []string, error) {
	defs := make(map[string]*config.Value)
	var order []string
	err := p.stage(ctx, "resolution", log, func(ctx context.Context, slog *telemetry.Logger) error {
		resolver := NewBuildResolver(doc.Builds, images)
		for _, name := range doc.Builds.Keys() {
			def, err := resolver.Resolve(name)
			if err != nil {
				return err
			}
			imageName := stringKey(def, "image")
			if imageName == "" {
				slog.WithService(name).Debug("abstract definition, skipped")
				continue
			}
			if _, ok := images[imageName]; !ok {
				return NewReferenceError(fmt.Sprintf("service %q uses unknown image %q", name, imageName), nil).WithService(name)
			}
			defs[name] = def
			order = append(order, name)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return defs, order, nil
}

func (p *Pipeline) stageNetwork(ctx context.Context, doc *config.Document, defs map[string]*config.Value, order []string, log *telemetry.Logger) (*NetworkPlanner, map[string]string, error) {
	var planner *NetworkPlanner
	addresses := make(map[string]string)
	err := p.stage(ctx, "network", log, func(ctx context.Context, slog *telemetry.Logger) error {
		var err error
		planner, err = NewNetworkPlanner(doc.Inet)
		if err != nil {
			return err
		}
		// Statics first so dynamic allocation never collides with them.
		for _, name := range order {
			addr := stringKey(defs[name], "address")
			if addr == "" {
				continue
			}
			if strings.Contains(addr, "${") {
				return NewConfigError("static address must be a literal, got "+addr, nil).WithService(name)
			}
			if err := planner.Reserve(name, addr); err != nil {
				return err
			}
			addresses[name] = addr
		}
		for _, name := range order {
			if _, ok := addresses[name]; ok {
				continue
			}
			addr, err := planner.Allocate(name)
			if err != nil {
				return err
			}
			addresses[name] = addr
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return planner, addresses, nil
}

func (p *Pipeline) stageSubstitution(ctx context.Context, doc *config.Document, defs map[string]*config.Value, order []string, images map[string]*Image, addresses map[string]string, log *telemetry.Logger) error {
	return p.stage(ctx, "substitution", log, func(ctx context.Context, slog *telemetry.Logger) error {
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			errs []error
			out  = make(map[string]*config.Value, len(order))
		)
		for _, name := range order {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				sub := NewSubstitutor(SubstitutionContext{
					Service:   name,
					Project:   doc.Name,
					Inet:      doc.Inet,
					Self:      defs[name],
					Builds:    defs,
					Images:    images,
					Addresses: addresses,
					Env:       p.env,
					Logger:    slog.WithService(name),
				})
				resolved, err := sub.Apply()
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				out[name] = resolved
				if p.tel != nil {
					p.tel.Metrics.RecordSubstitutionPasses(name, sub.Passes())
				}
			}(name)
		}
		wg.Wait()
		if len(errs) > 0 {
			return firstError(errs)
		}
		for name, def := range out {
			defs[name] = def
		}
		return nil
	})
}

func (p *Pipeline) stageModifyHooks(ctx context.Context, doc *config.Document, defs map[string]*config.Value, order []string, log *telemetry.Logger) error {
	projectScripts := scriptList(doc.Auto, PhaseModify)
	needed := len(projectScripts) > 0
	for _, name := range order {
		if len(serviceScripts(defs[name], PhaseModify)) > 0 {
			needed = true
		}
	}
	if !needed {
		return nil
	}
	if p.hooks == nil {
		return NewHookError("modify hooks configured but no script runner is available", nil)
	}

	return p.stage(ctx, "modify-hooks", log, func(ctx context.Context, slog *telemetry.Logger) error {
		for _, name := range order {
			scripts := append(append([]string{}, projectScripts...), serviceScripts(defs[name], PhaseModify)...)
			for _, script := range scripts {
				next, err := p.hooks.RunModify(ctx, script, name, defs[name])
				p.recordHook(PhaseModify, err)
				if err != nil {
					return NewHookError("modify hook failed", err).WithService(name)
				}
				if next != nil {
					if next.Kind() != config.KindMapping {
						return NewHookError("modify hook must return a mapping", nil).WithService(name)
					}
					defs[name] = next
				}
			}
		}
		return nil
	})
}

// stageServices compiles behavior and volumes into per-service plans.
func (p *Pipeline) stageServices(ctx context.Context, defs map[string]*config.Value, order []string, images map[string]*Image, addresses map[string]string, log *telemetry.Logger) (map[string]*ServicePlan, error) {
	services := make(map[string]*ServicePlan, len(order))
	err := p.stage(ctx, "behavior", log, func(ctx context.Context, slog *telemetry.Logger) error {
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			errs []error
		)
		for _, name := range order {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				plan, err := p.compileService(ctx, name, defs[name], images, addresses, slog)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					if p.tel != nil {
						p.tel.Metrics.RecordServiceCompiled(plan.softwareLabel(), "failure")
					}
					return
				}
				services[name] = plan
				if p.tel != nil {
					p.tel.Metrics.RecordServiceCompiled(plan.softwareLabel(), "success")
				}
			}(name)
		}
		wg.Wait()
		if len(errs) > 0 {
			return firstError(errs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return services, nil
}

// softwareLabel returns the plan's software for metrics labels, tolerating a
// partially built plan.
func (s *ServicePlan) softwareLabel() string {
	if s == nil || s.Image == nil {
		return "unknown"
	}
	if s.Image.Software == "" {
		return "external"
	}
	return s.Image.Software
}

func (p *Pipeline) compileService(ctx context.Context, name string, def *config.Value, images map[string]*Image, addresses map[string]string, log *telemetry.Logger) (*ServicePlan, error) {
	img := images[stringKey(def, "image")]
	plan := &ServicePlan{
		Name:       name,
		Definition: def,
		Image:      img,
		Address:    addresses[name],
	}

	if p.tel != nil {
		_, span := p.tel.Tracer.StartServiceSpan(ctx, name, plan.softwareLabel())
		defer span.End()
	}

	if text := behaviorText(def); text != "" {
		compiler := NewBehaviorCompiler(name, img.Software, addresses, p.labels, log.WithService(name))
		result, err := compiler.Compile(text)
		if err != nil {
			return plan, err
		}
		plan.Fragments = result.Fragments
		plan.Files = result.Files
		plan.Zones = result.Zones
		if p.tel != nil {
			for _, zone := range result.Zones.Zones() {
				p.tel.Metrics.RecordZoneRendered("master")
				for _, r := range result.Zones.Records(zone) {
					p.tel.Metrics.RecordRecordEmitted(r.Type)
				}
			}
		}
	}

	if volumes, ok := def.Get("volumes"); ok {
		if volumes.Kind() != config.KindSequence {
			return plan, NewConfigError("volumes must be a sequence", nil).WithService(name)
		}
		for _, e := range volumes.Elems() {
			raw := e.Text()
			if strings.Contains(raw, RequiredMarker) {
				return plan, NewRequiredError("volume has an unfilled required value: "+raw, nil).WithService(name)
			}
			v, err := ParseVolume(raw)
			if err != nil {
				var be *BuildError
				if errors.As(err, &be) {
					be.WithService(name)
				}
				return plan, err
			}
			plan.Volumes = append(plan.Volumes, v)
		}
	}
	return plan, nil
}

func (p *Pipeline) stageValidation(ctx context.Context, doc *config.Document, services map[string]*ServicePlan, order []string, log *telemetry.Logger) error {
	return p.stage(ctx, "validation", log, func(ctx context.Context, slog *telemetry.Logger) error {
		for _, name := range order {
			if paths := requiredViolations(services[name].Definition); len(paths) > 0 {
				return NewRequiredError("required values missing: "+strings.Join(paths, ", "), nil).WithService(name)
			}
		}

		projectScripts := scriptList(doc.Auto, PhaseValidate)
		for _, name := range order {
			scripts := append(append([]string{}, projectScripts...), serviceScripts(services[name].Definition, PhaseValidate)...)
			if len(scripts) == 0 {
				continue
			}
			if p.hooks == nil {
				return NewHookError("validate hooks configured but no script runner is available", nil).WithService(name)
			}
			for _, script := range scripts {
				err := p.hooks.RunValidate(ctx, script, name, services[name].Definition)
				p.recordHook(PhaseValidate, err)
				if err != nil {
					return NewHookError("validation rejected the plan", err).WithService(name)
				}
			}
		}
		return nil
	})
}

func (p *Pipeline) recordHook(phase string, err error) {
	if p.tel == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	p.tel.Metrics.RecordHookInvocation(phase, status)
}

// assembleDocument reconstructs the raw tree a setup hook operates on.
func assembleDocument(doc *config.Document) *config.Value {
	tree := config.Mapping()
	tree.Set(config.KeyName, config.String(doc.Name))
	tree.Set(config.KeyInet, config.String(doc.Inet))
	if doc.Images.Len() > 0 {
		tree.Set(config.KeyImages, doc.Images.Clone())
	}
	tree.Set(config.KeyBuilds, doc.Builds.Clone())
	if doc.Auto != nil {
		tree.Set(config.KeyAuto, doc.Auto.Clone())
	}
	if doc.Mirror != nil {
		tree.Set(config.KeyMirror, doc.Mirror.Clone())
	}
	return tree
}

// scriptList extracts phase scripts from an auto mapping. A scalar is one
// script, a sequence is several.
func scriptList(auto *config.Value, phase string) []string {
	if auto == nil || auto.Kind() != config.KindMapping {
		return nil
	}
	entry, ok := auto.Get(phase)
	if !ok {
		return nil
	}
	switch entry.Kind() {
	case config.KindScalar:
		return []string{entry.Text()}
	case config.KindSequence:
		out := make([]string, 0, entry.Len())
		for _, e := range entry.Elems() {
			out = append(out, e.Text())
		}
		return out
	default:
		return nil
	}
}

// serviceScripts extracts phase scripts from a service's auto key.
func serviceScripts(def *config.Value, phase string) []string {
	auto, ok := def.Get("auto")
	if !ok {
		return nil
	}
	return scriptList(auto, phase)
}

// behaviorText flattens a behavior value into statement lines.
func behaviorText(def *config.Value) string {
	b, ok := def.Get("behavior")
	if !ok {
		return ""
	}
	switch b.Kind() {
	case config.KindScalar:
		return b.Text()
	case config.KindSequence:
		lines := make([]string, 0, b.Len())
		for _, e := range b.Elems() {
			lines = append(lines, e.Text())
		}
		return strings.Join(lines, "\n")
	default:
		return ""
	}
}

// requiredViolations lists the dotted paths of values still carrying the
// required marker after substitution.
func requiredViolations(v *config.Value) []string {
	var paths []string
	walkRequired(v, "", &paths)
	sort.Strings(paths)
	return paths
}

func walkRequired(v *config.Value, path string, paths *[]string) {
	switch v.Kind() {
	case config.KindScalar:
		if s, ok := v.Scalar().(string); ok && strings.Contains(s, RequiredMarker) {
			*paths = append(*paths, path)
		}
	case config.KindSequence:
		for i, e := range v.Elems() {
			walkRequired(e, fmt.Sprintf("%s[%d]", path, i), paths)
		}
	case config.KindMapping:
		for _, k := range v.Keys() {
			e, _ := v.Get(k)
			child := k
			if path != "" {
				child = path + "." + k
			}
			walkRequired(e, child, paths)
		}
	}
}

// firstError returns the error from the lowest-named service so parallel
// stages fail deterministically.
func firstError(errs []error) error {
	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	return errs[0]
}
