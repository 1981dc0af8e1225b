package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"constellation/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check the configuration file",
	}
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveInitTarget(targetPath)
			if err != nil {
				return err
			}
			if !overwrite {
				_, statErr := os.Stat(target)
				switch {
				case statErr == nil:
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				case !errors.Is(statErr, fs.ErrNotExist):
					return fmt.Errorf("check config path: %w", statErr)
				}
			}
			if err := config.CreateSample(target); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "API keys are read from CONSTELLATION_LLM_API_KEY (or OPENROUTER_API_KEY) and ELEVENLABS_API_KEY when the file leaves them empty.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func resolveInitTarget(flagValue string) (string, error) {
	if target := strings.TrimSpace(flagValue); target != "" {
		expanded, err := config.ExpandPath(target)
		if err != nil {
			return "", fmt.Errorf("resolve config path: %w", err)
		}
		return expanded, nil
	}
	path, err := config.DefaultConfigPath()
	if err != nil {
		return "", fmt.Errorf("determine default config path: %w", err)
	}
	return path, nil
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and summarize the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", ctx.configPath)
			if _, statErr := os.Stat(ctx.configPath); statErr != nil {
				fmt.Fprintln(out, "Config file not found; using defaults")
			}
			fmt.Fprintln(out, effectiveSettings(cfg).render())
			fmt.Fprintf(out, "LLM key set: %s\n", yesNo(cfg.LLM.APIKey != ""))
			fmt.Fprintf(out, "Speech key set: %s\n", yesNo(cfg.Speech.APIKey != ""))
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func effectiveSettings(cfg *config.Config) tableSpec {
	spec := tableSpec{headers: []string{"Setting", "Value"}}
	spec.add("Data directory", cfg.Paths.DataDir)
	spec.add("Artifact database", cfg.Cache.DBPath)
	spec.add("Episodes", cfg.Paths.OutputDir)
	spec.add("Cache max age", disabledOr(cfg.CacheMaxAge() > 0, cfg.CacheMaxAge().String()))
	spec.add("Cache max size", disabledOr(cfg.CacheMaxBytes() > 0, humanize.IBytes(uint64(cfg.CacheMaxBytes()))))
	spec.add("Concurrency", fmt.Sprint(cfg.Pipeline.Concurrency))
	spec.add("Tiers", strings.Join(cfg.TierNames(), ", "))

	languages := make([]string, 0, len(cfg.Languages))
	for name := range cfg.Languages {
		languages = append(languages, name)
	}
	slices.Sort(languages)
	spec.add("Languages", strings.Join(languages, ", "))
	spec.add("Budget per episode", formatLimit(cfg.Budget.MaxEpisodeUSD))
	spec.add("Budget per day", formatLimit(cfg.Budget.MaxDailyUSD))
	spec.add("Notifications", disabledOr(cfg.Notifications.NtfyTopic != "", cfg.Notifications.NtfyTopic))
	return spec
}

func disabledOr(enabled bool, value string) string {
	if !enabled {
		return "disabled"
	}
	return value
}
