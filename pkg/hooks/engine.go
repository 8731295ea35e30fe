package hooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/kie-chi/dnsbuilder/pkg/config"
	"github.com/kie-chi/dnsbuilder/pkg/fsio"
	"github.com/kie-chi/dnsbuilder/pkg/telemetry"
)

// defaultTimeout bounds one script execution.
const defaultTimeout = 30 * time.Second

// Engine executes hook scripts. It implements builder.ScriptRunner.
type Engine struct {
	fs      *fsio.Router
	timeout time.Duration
	log     *telemetry.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTimeout overrides the per-script execution timeout.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.timeout = d }
}

// WithLogger routes script print output and diagnostics.
func WithLogger(log *telemetry.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// NewEngine creates a hook engine. fs resolves script URIs and may be nil
// when only inline scripts are used.
func NewEngine(fs *fsio.Router, opts ...EngineOption) *Engine {
	e := &Engine{
		fs:      fs,
		timeout: defaultTimeout,
		log:     telemetry.NewDefaultLogger(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// RunSetup executes a setup script against the whole document tree. The
// script sees the tree as the config global and replaces it by assigning
// result, or by mutating config in place.
func (e *Engine) RunSetup(ctx context.Context, script string, doc *config.Value) (*config.Value, error) {
	return e.runConfigScript(ctx, script, doc, "")
}

// RunModify executes a modify script against one service definition.
func (e *Engine) RunModify(ctx context.Context, script, service string, def *config.Value) (*config.Value, error) {
	return e.runConfigScript(ctx, script, def, service)
}

// RunValidate executes a validation script against one compiled definition.
// A falsy result rejects the plan; an optional message global names the
// reason.
func (e *Engine) RunValidate(ctx context.Context, script, service string, def *config.Value) error {
	globals, _, err := e.run(ctx, script, def, service)
	if err != nil {
		return err
	}
	result, ok := globals["result"]
	if !ok {
		return nil
	}
	if bool(result.Truth()) {
		return nil
	}
	if msg, ok := globals["message"]; ok {
		if str, ok := msg.(starlark.String); ok {
			return fmt.Errorf("validation failed: %s", string(str))
		}
	}
	return fmt.Errorf("validation failed")
}

// runConfigScript executes a script and extracts its replacement config:
// the result global when assigned, the possibly-mutated config otherwise.
func (e *Engine) runConfigScript(ctx context.Context, script string, cfg *config.Value, service string) (*config.Value, error) {
	globals, configDict, err := e.run(ctx, script, cfg, service)
	if err != nil {
		return nil, err
	}

	out := starlark.Value(configDict)
	if result, ok := globals["result"]; ok && result != starlark.None {
		out = result
	}
	goVal, err := fromStarlarkValue(out)
	if err != nil {
		return nil, fmt.Errorf("convert script result: %w", err)
	}
	replaced, err := config.FromGo(goVal)
	if err != nil {
		return nil, fmt.Errorf("convert script result: %w", err)
	}
	return replaced, nil
}

// run loads and executes one script with config (and service_name when
// given) predeclared, under the engine timeout.
func (e *Engine) run(ctx context.Context, script string, cfg *config.Value, service string) (starlark.StringDict, *starlark.Dict, error) {
	source, err := e.loadScript(script)
	if err != nil {
		return nil, nil, err
	}

	configVal, err := toStarlarkValue(cfg.ToGo())
	if err != nil {
		return nil, nil, fmt.Errorf("convert config for script: %w", err)
	}
	configDict, ok := configVal.(*starlark.Dict)
	if !ok {
		return nil, nil, fmt.Errorf("script config must be a mapping")
	}

	predeclared := starlark.StringDict{
		"struct": starlarkstruct.Default,
		"config": configDict,
	}
	if service != "" {
		predeclared["service_name"] = starlark.String(service)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type execResult struct {
		globals starlark.StringDict
		err     error
	}
	done := make(chan execResult, 1)
	go func() {
		thread := &starlark.Thread{
			Name: "dnsb-hook",
			Print: func(_ *starlark.Thread, msg string) {
				e.log.WithField("script", "hook").Debug(msg)
			},
		}
		globals, err := starlark.ExecFile(thread, "hook.star", source, predeclared)
		done <- execResult{globals, err}
	}()

	select {
	case <-runCtx.Done():
		return nil, nil, fmt.Errorf("script execution timeout after %v", e.timeout)
	case r := <-done:
		if r.err != nil {
			return nil, nil, fmt.Errorf("script execution failed: %w", r.err)
		}
		return r.globals, configDict, nil
	}
}

// loadScript distinguishes inline scripts from script URIs. Anything with a
// protocol and no newlines is loaded through the router.
func (e *Engine) loadScript(script string) (string, error) {
	if strings.Contains(script, "\n") || !strings.Contains(script, "://") {
		return script, nil
	}
	if e.fs == nil {
		return "", fmt.Errorf("script %q needs a filesystem router", script)
	}
	p, err := fsio.Parse(script)
	if err != nil {
		return "", fmt.Errorf("parse script uri: %w", err)
	}
	source, err := e.fs.ReadText(p)
	if err != nil {
		return "", fmt.Errorf("load script %s: %w", script, err)
	}
	return source, nil
}
