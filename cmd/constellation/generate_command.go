package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"constellation/internal/config"
	"constellation/internal/episode"
	"constellation/internal/fingerprint"
	"constellation/internal/language"
	"constellation/internal/pipeline"
	"constellation/internal/runner"
	"constellation/internal/stages"
)

type generateFlags struct {
	topic          string
	language       string
	secondaries    []string
	episodeType    string
	costTier       string
	minutes        int
	episodeNumber  int
	noIntro        bool
	noOutro        bool
	transcriptOnly bool
	documents      []string
	researchSource string
	exportAudio    bool
	jsonOutput     bool
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var flags generateFlags

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an episode in one or more languages",
		Long: "Generate researches the topic, writes a two-host script in the primary language,\n" +
			"adapts it to each secondary language and synthesizes audio. Artifacts are cached,\n" +
			"so rerunning the same plan only pays for stages that failed or changed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			plan, err := buildPlan(cfg, flags)
			if err != nil {
				return err
			}
			result, runErr := runner.Generate(cmd.Context(), cfg, runner.Request{
				Plan:           plan,
				DocumentPaths:  flags.documents,
				ResearchSource: flags.researchSource,
				ExportAudio:    flags.exportAudio,
			}, runner.Options{})
			if result == nil {
				return runErr
			}
			if flags.jsonOutput {
				if err := writeJSON(cmd, result.Manifest); err != nil {
					return err
				}
				return runErr
			}
			printGenerateSummary(cmd.OutOrStdout(), result, shouldColorize(cmd.OutOrStdout()))
			return runErr
		},
	}

	cmd.Flags().StringVarP(&flags.topic, "topic", "t", "", "Episode topic")
	cmd.Flags().StringVarP(&flags.language, "language", "l", "", "Primary language (defaults to pipeline.default_language)")
	cmd.Flags().StringSliceVarP(&flags.secondaries, "secondary-languages", "s", nil, "Secondary languages, comma separated or repeated")
	cmd.Flags().StringVar(&flags.episodeType, "type", "", "Episode type: "+joinTypes())
	cmd.Flags().StringVar(&flags.costTier, "cost-tier", "", "Cost tier: economy, standard or premium")
	cmd.Flags().IntVar(&flags.minutes, "duration", 0, "Target length in minutes (defaults to the episode type)")
	cmd.Flags().IntVar(&flags.episodeNumber, "episode-number", 0, "Episode number mentioned in the intro")
	cmd.Flags().BoolVar(&flags.noIntro, "no-intro", false, "Skip the host introduction")
	cmd.Flags().BoolVar(&flags.noOutro, "no-outro", false, "Skip the closing segment")
	cmd.Flags().BoolVar(&flags.transcriptOnly, "transcript-only", false, "Stop after scripts; skip speech synthesis")
	cmd.Flags().StringArrayVar(&flags.documents, "document", nil, "Research document path (repeatable)")
	cmd.Flags().StringVar(&flags.researchSource, "research-source", runner.ResearchLLM, "Research source: llm or documents")
	cmd.Flags().BoolVar(&flags.exportAudio, "export-audio", false, "Write each completed language's audio to the output directory")
	cmd.Flags().BoolVar(&flags.jsonOutput, "json", false, "Print the manifest as JSON")
	_ = cmd.MarkFlagRequired("topic")

	return cmd
}

func buildPlan(cfg *config.Config, flags generateFlags) (pipeline.Plan, error) {
	primaryName := strings.TrimSpace(flags.language)
	if primaryName == "" {
		primaryName = cfg.Pipeline.DefaultLanguage
	}
	primary, err := language.Parse(primaryName)
	if err != nil {
		return pipeline.Plan{}, err
	}
	secondaries, err := language.ParseList(flags.secondaries)
	if err != nil {
		return pipeline.Plan{}, err
	}
	filtered := secondaries[:0]
	for _, lang := range secondaries {
		if lang != primary {
			filtered = append(filtered, lang)
		}
	}

	typeName := strings.TrimSpace(flags.episodeType)
	if typeName == "" {
		typeName = cfg.Pipeline.DefaultEpisodeType
	}
	episodeType, err := episode.Parse(typeName)
	if err != nil {
		return pipeline.Plan{}, err
	}

	tierName := strings.TrimSpace(flags.costTier)
	if tierName == "" {
		tierName = cfg.Pipeline.DefaultCostTier
	}
	tier, err := fingerprint.ParseCostTier(tierName)
	if err != nil {
		return pipeline.Plan{}, err
	}
	if flags.minutes < 0 {
		return pipeline.Plan{}, errors.New("--duration must not be negative")
	}

	return pipeline.Plan{
		Topic:              strings.TrimSpace(flags.topic),
		PrimaryLanguage:    primary,
		SecondaryLanguages: filtered,
		EpisodeType:        episodeType,
		CostTier:           tier,
		TargetMinutes:      flags.minutes,
		EpisodeNumber:      flags.episodeNumber,
		IncludeIntro:       !flags.noIntro,
		IncludeOutro:       !flags.noOutro,
		TranscriptOnly:     flags.transcriptOnly,
	}, nil
}

func printGenerateSummary(out io.Writer, result *runner.Result, colorize bool) {
	m := result.Manifest
	for _, line := range renderSectionHeader(stages.TitleTopic(m.Topic), colorize) {
		fmt.Fprintln(out, line)
	}

	failed := make(map[string]pipeline.Failure, len(m.Failures))
	for _, f := range m.Failures {
		failed[f.Language] = f
	}
	spec := tableSpec{headers: []string{"Language", "Status", "Artifact", "Detail"}}
	languages := append([]string{m.PrimaryLanguage}, m.SecondaryLanguages...)
	for _, name := range languages {
		lang := language.Language(name)
		key := pipeline.SynthesizeKey(lang)
		if m.TranscriptOnly {
			key = pipeline.TransformKey(lang)
			if name == m.PrimaryLanguage {
				key = "script"
			}
		}
		artifact := shortFingerprint(m.StageFingerprints[key])
		if f, ok := failed[name]; ok {
			spec.add(name, "failed", artifact, f.Stage+": "+f.Reason)
			continue
		}
		detail := ""
		if path, ok := result.AudioPaths[name]; ok {
			detail = path
		}
		spec.add(name, "done", artifact, detail)
	}
	fmt.Fprintln(out, spec.render())

	kind := statusOK
	switch m.Outcome {
	case pipeline.OutcomeSucceededWithCaveats:
		kind = statusWarn
	case pipeline.OutcomeFailed:
		kind = statusError
	}
	fmt.Fprintln(out, renderStatusLine("Outcome", kind, string(m.Outcome), colorize))
	fmt.Fprintln(out, renderStatusLine("Cache", statusInfo,
		fmt.Sprintf("%d hits, %d computed", result.Counters.Hits, result.Counters.Computes), colorize))
	fmt.Fprintln(out, renderStatusLine("Manifest", statusInfo, result.ManifestPath, colorize))
	if result.LogPath != "" {
		fmt.Fprintln(out, renderStatusLine("Run log", statusInfo, result.LogPath, colorize))
	}
}

func shortFingerprint(value string) string {
	if value == "" {
		return "-"
	}
	return fingerprint.Fingerprint(value).Short()
}

func joinTypes() string {
	types := episode.Types()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
