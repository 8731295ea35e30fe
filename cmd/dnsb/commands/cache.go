package commands

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kie-chi/dnsbuilder/pkg/cache"
)

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the build cache",
	}
	cmd.AddCommand(newCacheListCommand())
	cmd.AddCommand(newCachePruneCommand())
	return cmd
}

func newCacheListCommand() *cobra.Command {
	var (
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded compile runs",
		Example: `  # Show the last 20 runs
  dnsb cache list

  # Show more history from a custom cache
  dnsb cache list --cache-db /tmp/cache.db --limit 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCacheStore(cmd, dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit, 0)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
				return nil
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-10s %-16s %-10s %-14s %s\n", "RUN", "PROJECT", "STATUS", "DIGEST", "STARTED")
			for _, run := range runs {
				fmt.Fprintf(w, "%-10s %-16s %-10s %-14s %s\n",
					run.ID, run.Project, run.Status, shortDigest(run.Digest),
					run.StartedAt.Local().Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "cache-db", defaultCacheDB, "build cache database path")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")

	return cmd
}

func newCachePruneCommand() *cobra.Command {
	var (
		dbPath string
		maxAge time.Duration
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove cached plans not used recently",
		Example: `  # Drop plans unused for 30 days
  dnsb cache prune

  # Aggressive prune
  dnsb cache prune --max-age 24h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCacheStore(cmd, dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			pruned, err := store.Prune(cmd.Context(), maxAge)
			if err != nil {
				return err
			}
			log.Info().Int64("pruned", pruned).Msg("Cache pruned")
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "cache-db", defaultCacheDB, "build cache database path")
	cmd.Flags().DurationVar(&maxAge, "max-age", 30*24*time.Hour, "drop plans unused for longer than this")

	return cmd
}

func openCacheStore(cmd *cobra.Command, dbPath string) (*cache.Store, error) {
	store, err := cache.NewStore(cache.Config{Path: dbPath})
	if err != nil {
		return nil, err
	}
	if err := store.Init(cmd.Context()); err != nil {
		return nil, err
	}
	if err := store.Migrate(cmd.Context()); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func shortDigest(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
