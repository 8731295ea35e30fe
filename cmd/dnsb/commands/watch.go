package commands

import (
	"context"
	gopath "path"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kie-chi/dnsbuilder/pkg/telemetry"
)

// watchDebounce coalesces editor write bursts into one rebuild.
const watchDebounce = 500 * time.Millisecond

func newWatchCommand() *cobra.Command {
	var (
		opts    buildOptions
		metrics bool
	)

	cmd := &cobra.Command{
		Use:   "watch <config>",
		Short: "Rebuild whenever the configuration changes",
		Long: `Compile once, then watch the configuration document's directory and
rebuild on every change to a YAML file. The build cache keeps no-op
rebuilds cheap. Runs until interrupted.`,
		Example: `  # Rebuild on save
  dnsb watch topology.yaml

  # Expose prometheus compile metrics while watching
  dnsb watch topology.yaml --metrics`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.configPath = args[0]
			tel, err := newTelemetry(metrics)
			if err != nil {
				return err
			}
			defer tel.Shutdown(cmd.Context())

			if metrics {
				if err := tel.StartMetricsServer(); err != nil {
					return err
				}
			}
			return runWatch(cmd.Context(), tel, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "output", "output directory")
	cmd.Flags().StringVar(&opts.cacheDB, "cache-db", defaultCacheDB, "build cache database path")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the build cache")
	cmd.Flags().StringSliceVar(&opts.policyPaths, "policy", nil, "additional policy files or directories (.rego, .json)")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "expose prometheus metrics while watching")

	return cmd
}

func runWatch(ctx context.Context, tel *telemetry.Telemetry, opts buildOptions) error {
	// The first build must succeed before entering the loop so broken
	// configurations fail fast; subsequent failures only log.
	if err := runBuild(ctx, tel, opts); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := baseDirOf(opts.configPath)
	if dir == "" {
		dir = "."
	}
	if err := watcher.Add(filepath.FromSlash(dir)); err != nil {
		return err
	}
	log.Info().Str("dir", dir).Msg("Watching for configuration changes")

	var timer *time.Timer
	rebuild := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !watchRelevant(event.Name, opts.configPath) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case rebuild <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Watch error")

		case <-rebuild:
			log.Info().Msg("Configuration changed, rebuilding")
			if err := runBuild(ctx, tel, opts); err != nil {
				log.Error().Err(err).Msg("Rebuild failed")
			}
		}
	}
}

// watchRelevant reports whether a filesystem event concerns the watched
// document or a sibling YAML file an include might pull in.
func watchRelevant(name, configPath string) bool {
	base := gopath.Base(filepath.ToSlash(name))
	if base == gopath.Base(filepath.ToSlash(configPath)) {
		return true
	}
	ext := strings.ToLower(gopath.Ext(base))
	return ext == ".yaml" || ext == ".yml" || ext == ".star"
}
