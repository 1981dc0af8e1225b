package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"constellation/internal/artifacts"
	"constellation/internal/cache"
	"constellation/internal/config"
	"constellation/internal/fingerprint"
	"constellation/internal/runner"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the artifact cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCachePruneCommand(ctx))
	cacheCmd.AddCommand(newCachePurgeCommand(ctx))
	cacheCmd.AddCommand(newCacheExportCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show artifact cache usage by stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withCache(func(_ *artifacts.Store, manager *cache.Manager) error {
				stats, err := manager.Stats(cmd.Context())
				if err != nil {
					return err
				}
				printCacheStats(cmd.OutOrStdout(), cfg, stats.Store)
				return nil
			})
		},
	}
}

func printCacheStats(out io.Writer, cfg *config.Config, stats artifacts.Stats) {
	fmt.Fprintf(out, "Database: %s\n", cfg.Cache.DBPath)
	fmt.Fprintf(out, "Artifacts: %s\n", humanize.Comma(int64(stats.Count)))
	limit := "unlimited"
	if maxBytes := cfg.CacheMaxBytes(); maxBytes > 0 {
		limit = humanize.IBytes(uint64(maxBytes))
	}
	fmt.Fprintf(out, "Size:     %s / %s\n", humanize.IBytes(uint64(stats.TotalBytes)), limit)
	if stats.Count == 0 {
		return
	}
	fmt.Fprintf(out, "Oldest:   %s\n", humanize.Time(stats.Oldest))
	fmt.Fprintf(out, "Newest:   %s\n", humanize.Time(stats.Newest))

	spec := tableSpec{
		headers: []string{"Stage", "Artifacts", "Size", "Hits"},
		aligns:  []columnAlignment{alignLeft, alignRight, alignRight, alignRight},
		footer: []string{
			"Total",
			strconv.Itoa(stats.Count),
			humanize.IBytes(uint64(stats.TotalBytes)),
			strconv.FormatInt(stats.TotalHits, 10),
		},
	}
	for _, s := range stats.ByStage {
		spec.add(string(s.Stage), strconv.Itoa(s.Count), humanize.IBytes(uint64(s.Bytes)), strconv.FormatInt(s.Hits, 10))
	}
	fmt.Fprintln(out, spec.render())
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	var stageFlag string
	var languageFlag string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached artifacts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := artifacts.ListFilter{Language: strings.ToLower(strings.TrimSpace(languageFlag)), Limit: limit}
			if strings.TrimSpace(stageFlag) != "" {
				stage, err := fingerprint.ParseStage(stageFlag)
				if err != nil {
					return err
				}
				filter.Stage = stage
			}
			return ctx.withCache(func(store *artifacts.Store, _ *cache.Manager) error {
				entries, err := store.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No cached artifacts")
					return nil
				}
				spec := tableSpec{
					headers: []string{"Fingerprint", "Stage", "Language", "Size", "Created", "Hits"},
					aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight},
				}
				for _, e := range entries {
					lang := e.Language
					if lang == "" {
						lang = "-"
					}
					spec.add(e.Fingerprint.Short(), string(e.Stage), lang,
						humanize.IBytes(uint64(e.SizeBytes)), humanize.Time(e.CreatedAt), strconv.FormatInt(e.HitCount, 10))
				}
				fmt.Fprintln(out, spec.render())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&stageFlag, "stage", "", "Only list artifacts of this stage")
	cmd.Flags().StringVar(&languageFlag, "language", "", "Only list artifacts of this language")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows to show (0 for all)")
	return cmd
}

func newCachePruneCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration
	var maxSize string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Evict artifacts by age and size",
		Long: "Prune applies the age rule first, then evicts least recently used artifacts\n" +
			"until the cache fits the size budget. Flags default to the cache config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			policy := cache.Policy{MaxAge: cfg.CacheMaxAge(), MaxBytes: cfg.CacheMaxBytes()}
			if cmd.Flags().Changed("max-age") {
				policy.MaxAge = maxAge
			}
			if cmd.Flags().Changed("max-size") {
				size, err := humanize.ParseBytes(maxSize)
				if err != nil {
					return fmt.Errorf("parse --max-size: %w", err)
				}
				policy.MaxBytes = int64(size)
			}
			if !policy.Enabled() {
				fmt.Fprintln(cmd.OutOrStdout(), "No eviction policy configured; nothing to prune")
				return nil
			}
			return withMaintenanceLock(cfg, func() error {
				return ctx.withCache(func(_ *artifacts.Store, manager *cache.Manager) error {
					res, err := manager.ApplyPolicy(cmd.Context(), policy)
					if err != nil {
						return err
					}
					printEviction(cmd.OutOrStdout(), "Pruned", res)
					return nil
				})
			})
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Evict artifacts created longer ago than this (e.g. 720h)")
	cmd.Flags().StringVar(&maxSize, "max-size", "", "Shrink the cache to this size (e.g. 2GiB)")
	return cmd
}

func newCachePurgeCommand(ctx *commandContext) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove every cached artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return errors.New("purge removes every cached artifact; rerun with --yes to confirm")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return withMaintenanceLock(cfg, func() error {
				return ctx.withCache(func(_ *artifacts.Store, manager *cache.Manager) error {
					res, err := manager.Purge(cmd.Context())
					if err != nil {
						return err
					}
					printEviction(cmd.OutOrStdout(), "Purged", res)
					return nil
				})
			})
		},
	}

	cmd.Flags().BoolVar(&confirm, "yes", false, "Confirm removal of every artifact")
	return cmd
}

func newCacheExportCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <fingerprint>",
		Short: "Write a cached artifact's payload to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := config.ExpandPath(strings.TrimSpace(output))
			if err != nil {
				return err
			}
			if target == "" {
				return errors.New("--output is required")
			}
			return ctx.withCache(func(store *artifacts.Store, _ *cache.Manager) error {
				fp, err := resolveFingerprint(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				entry, err := runner.ExportArtifact(cmd.Context(), store, fp, target)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %s artifact %s (%s) to %s\n",
					entry.Stage, fp.Short(), humanize.IBytes(uint64(entry.SizeBytes)), target)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

// resolveFingerprint accepts a full fingerprint or a unique prefix such as the
// short form shown by "cache list".
func resolveFingerprint(ctx context.Context, store *artifacts.Store, value string) (fingerprint.Fingerprint, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "", errors.New("fingerprint is required")
	}
	entries, err := store.List(ctx, artifacts.ListFilter{})
	if err != nil {
		return "", err
	}
	var matches []fingerprint.Fingerprint
	for _, e := range entries {
		if strings.HasPrefix(string(e.Fingerprint), value) {
			matches = append(matches, e.Fingerprint)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no cached artifact matches %q", value)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("fingerprint prefix %q is ambiguous (%d matches)", value, len(matches))
	}
}

func withMaintenanceLock(cfg *config.Config, fn func() error) error {
	unlock, err := runner.AcquireLock(cfg)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

func printEviction(out io.Writer, verb string, res artifacts.EvictionResult) {
	if res.Removed == 0 {
		fmt.Fprintln(out, "No artifacts removed")
		return
	}
	fmt.Fprintf(out, "%s %s artifacts, freed %s\n", verb, humanize.Comma(int64(res.Removed)), humanize.IBytes(uint64(res.FreedBytes)))
}
