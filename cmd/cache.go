package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/accessops/idsync/pkg/diffcache"
	"github.com/accessops/idsync/pkg/source"
	syncsvc "github.com/accessops/idsync/pkg/sync"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	cacheCfgFile      string
	cacheDeletedHours int
)

//nolint:gochecknoglobals // Cobra commands are typically global
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Administer the differential cache store offline",
}

//nolint:gochecknoglobals // Cobra commands are typically global
var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print cache statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCache(cmd, func(ctx context.Context, cache *diffcache.Cache, _ string, _ source.Params) error {
			stats, err := cache.Stats(ctx)
			if err != nil {
				return err
			}

			return printJSON(stats)
		})
	},
}

//nolint:gochecknoglobals // Cobra commands are typically global
var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge deleted-row history past the retention window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCache(cmd, func(ctx context.Context, cache *diffcache.Cache, _ string, _ source.Params) error {
			purged, err := cache.CleanupExpired(ctx)
			if err != nil {
				return err
			}

			return printJSON(map[string]int64{"purged": purged})
		})
	},
}

//nolint:gochecknoglobals // Cobra commands are typically global
var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached state and compact the store",
	Long: `Removes every query entry, active row and deleted-row record, then
compacts the store file and verifies nothing remains. The next sync cycle
reprocesses the entire source.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCache(cmd, func(ctx context.Context, cache *diffcache.Cache, _ string, _ source.Params) error {
			if err := cache.Clear(ctx); err != nil {
				return err
			}

			return printJSON(map[string]bool{"cleared": true})
		})
	},
}

//nolint:gochecknoglobals // Cobra commands are typically global
var cacheDeletedCmd = &cobra.Command{
	Use:   "deleted",
	Short: "Show rows that disappeared from the source",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCache(cmd, func(ctx context.Context, cache *diffcache.Cache, query string, params source.Params) error {
			within := time.Duration(cacheDeletedHours) * time.Hour

			records, err := cache.GetDeletedRecords(ctx, query, params, within)
			if err != nil {
				return err
			}

			out := make([]map[string]any, 0, len(records))
			for _, record := range records {
				out = append(out, map[string]any{
					"row":        record.Row,
					"deleted_at": record.DeletedAt.UTC().Format(time.RFC3339),
				})
			}

			return printJSON(out)
		})
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)

	cacheCmd.PersistentFlags().StringVar(&cacheCfgFile, "config", "config.yaml", "config file (default is config.yaml)")
	cacheDeletedCmd.Flags().IntVar(&cacheDeletedHours, "hours", 24, "restrict to rows deleted within the last N hours (0 = all)")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheCleanupCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheDeletedCmd)
}

// withCache builds the cache from the daemon configuration and runs one
// administrative operation against it. The source handle stays lazy; admin
// operations never query the source database.
func withCache(cmd *cobra.Command, fn func(ctx context.Context, cache *diffcache.Cache, query string, params source.Params) error) error {
	cmd.SilenceUsage = true

	config, err := loadAppConfigFromFile(cacheCfgFile)
	if err != nil {
		return err
	}

	adapter, err := source.NewDBAdapter(&config.Source)
	if err != nil {
		return err
	}
	defer func() { _ = adapter.Close() }()

	executor, err := source.NewExecutor(logger, adapter)
	if err != nil {
		return err
	}

	cache, err := diffcache.New(logger, executor, &config.Cache)
	if err != nil {
		return err
	}

	query, err := syncsvc.RenderQuery(config.Sync.Query.SQL, config.Sync.Query.Vars)
	if err != nil {
		return err
	}

	return fn(context.Background(), cache, query, source.Params(config.Sync.Query.Params))
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(data))

	return nil
}
