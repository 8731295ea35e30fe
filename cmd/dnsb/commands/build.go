package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kie-chi/dnsbuilder/pkg/artifact"
	"github.com/kie-chi/dnsbuilder/pkg/builder"
	"github.com/kie-chi/dnsbuilder/pkg/cache"
	"github.com/kie-chi/dnsbuilder/pkg/fsio"
	"github.com/kie-chi/dnsbuilder/pkg/policy"
	"github.com/kie-chi/dnsbuilder/pkg/telemetry"
)

// defaultCacheDB is where the incremental build cache lives unless
// overridden.
const defaultCacheDB = ".dnsb/cache.db"

type buildOptions struct {
	configPath  string
	outDir      string
	cacheDB     string
	noCache     bool
	force       bool
	policyPaths []string
}

func newBuildCommand() *cobra.Command {
	var opts buildOptions

	cmd := &cobra.Command{
		Use:   "build <config>",
		Short: "Compile a topology and write its artifacts",
		Long: `Compile the configuration document into a build plan and write the output
tree: one directory per service with Dockerfile and contents, plus the
docker-compose.yml descriptor.

Unchanged configurations are skipped: the document digest is looked up in
the build cache and, when the output tree already exists, nothing is
rewritten. Use --force to rebuild anyway.`,
		Example: `  # Compile topology.yaml into ./output/<project>/
  dnsb build topology.yaml

  # Compile into a different directory with custom policies
  dnsb build topology.yaml --out /tmp/lab --policy ./policies

  # Rebuild even if the configuration is unchanged
  dnsb build topology.yaml --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.configPath = args[0]
			tel, err := newTelemetry(false)
			if err != nil {
				return err
			}
			defer tel.Shutdown(cmd.Context())
			return runBuild(cmd.Context(), tel, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "output", "output directory")
	cmd.Flags().StringVar(&opts.cacheDB, "cache-db", defaultCacheDB, "build cache database path")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the build cache")
	cmd.Flags().BoolVar(&opts.force, "force", false, "rebuild even when the configuration is unchanged")
	cmd.Flags().StringSliceVar(&opts.policyPaths, "policy", nil, "additional policy files or directories (.rego, .json)")

	return cmd
}

func runBuild(ctx context.Context, tel *telemetry.Telemetry, opts buildOptions) error {
	fs := newRouter()

	doc, err := loadDocument(fs, opts.configPath)
	if err != nil {
		return err
	}
	digest := cache.Digest(doc.Raw)

	store := openStore(ctx, opts)
	if store != nil {
		defer store.Close()
	}

	out, err := fsio.Parse(opts.outDir)
	if err != nil {
		return fmt.Errorf("invalid output directory: %w", err)
	}
	writer := artifact.NewWriter(fs,
		artifact.WithOutput(out),
		artifact.WithBaseDir(baseDirOf(opts.configPath)),
		artifact.WithMirror(doc.Mirror),
		artifact.WithWriterLogger(tel.Logger.NewComponentLogger("artifact")),
	)

	if store != nil && !opts.force {
		if _, hit, err := store.GetPlan(ctx, digest); err == nil && hit {
			if ok, _ := fs.Exists(writer.ProjectDir(doc.Name)); ok {
				tel.Metrics.RecordCacheHit()
				log.Info().Str("project", doc.Name).Str("digest", digest[:12]).
					Msg("Configuration unchanged, output is up to date")
				return nil
			}
		}
		tel.Metrics.RecordCacheMiss()
	}

	runID := uuid.NewString()[:8]
	if store != nil {
		run := &cache.Run{
			ID:        runID,
			Project:   doc.Name,
			Digest:    digest,
			Status:    cache.RunStatusRunning,
			StartedAt: time.Now().UTC(),
		}
		if err := store.CreateRun(ctx, run); err != nil {
			log.Warn().Err(err).Msg("Failed to record run, continuing without cache")
			store.Close()
			store = nil
		}
	}

	plan, err := compile(ctx, fs, doc, tel, builder.WithRunID(runID))
	if err != nil {
		failRun(ctx, store, runID, err)
		return err
	}

	if err := enforcePolicies(ctx, plan, opts.policyPaths); err != nil {
		failRun(ctx, store, runID, err)
		return err
	}

	if err := writer.Write(ctx, plan); err != nil {
		failRun(ctx, store, runID, err)
		return err
	}

	if store != nil {
		if err := store.PutPlan(ctx, digest, plan); err != nil {
			log.Warn().Err(err).Msg("Failed to cache plan")
		}
		if err := store.CompleteRun(ctx, runID, cache.RunStatusCompleted, nil); err != nil {
			log.Warn().Err(err).Msg("Failed to complete run record")
		}
	}

	log.Info().Str("project", plan.Project).Int("services", len(plan.Order)).
		Str("out", writer.ProjectDir(plan.Project).String()).
		Msg("Build complete")
	return nil
}

// openStore opens the build cache, or returns nil when caching is disabled
// or the store cannot be opened. A broken cache never blocks a build.
func openStore(ctx context.Context, opts buildOptions) *cache.Store {
	if opts.noCache {
		return nil
	}
	store, err := cache.NewStore(cache.Config{Path: opts.cacheDB})
	if err != nil {
		log.Warn().Err(err).Msg("Build cache disabled")
		return nil
	}
	if err := store.Init(ctx); err != nil {
		log.Warn().Err(err).Msg("Build cache disabled")
		return nil
	}
	if err := store.Migrate(ctx); err != nil {
		log.Warn().Err(err).Msg("Build cache disabled")
		store.Close()
		return nil
	}
	return store
}

func failRun(ctx context.Context, store *cache.Store, runID string, cause error) {
	if store == nil {
		return
	}
	msg := cause.Error()
	if err := store.CompleteRun(ctx, runID, cache.RunStatusFailed, &msg); err != nil {
		log.Warn().Err(err).Msg("Failed to record run failure")
	}
}

// enforcePolicies evaluates the built-in and user-supplied rego policies
// against the plan and rejects it on any blocking violation.
func enforcePolicies(ctx context.Context, plan *builder.BuildPlan, paths []string) error {
	engine, err := policy.NewEngine(log.Logger)
	if err != nil {
		return fmt.Errorf("failed to start policy engine: %w", err)
	}
	if len(paths) > 0 {
		if err := engine.LoadPolicies(ctx, paths); err != nil {
			return err
		}
	}
	res, err := engine.EvaluatePlan(ctx, plan)
	if err != nil {
		return err
	}
	for _, warning := range res.Warnings {
		log.Warn().Msg(warning)
	}
	for _, v := range res.Violations {
		if v.Severity == policy.SeverityError || v.Severity == policy.SeverityCritical {
			log.Error().Str("policy", v.Policy).Str("service", v.Service).Msg(v.Message)
		} else {
			log.Warn().Str("policy", v.Policy).Str("service", v.Service).Msg(v.Message)
		}
	}
	if !res.Allowed {
		return fmt.Errorf("plan rejected by %d policy violation(s)", len(res.Violations))
	}
	return nil
}
