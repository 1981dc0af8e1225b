package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"constellation/internal/artifacts"
	"constellation/internal/cache"
	"constellation/internal/config"
	"constellation/internal/fileutil"
	"constellation/internal/fingerprint"
	"constellation/internal/language"
	"constellation/internal/logging"
	"constellation/internal/notifications"
	"constellation/internal/pipeline"
	"constellation/internal/preflight"
	"constellation/internal/services"
	"constellation/internal/services/llm"
	"constellation/internal/services/speech"
	"constellation/internal/stages"
	"constellation/internal/textutil"
)

const (
	// ResearchLLM researches the topic with the chat completion API.
	ResearchLLM = "llm"
	// ResearchDocuments extracts research from operator-supplied documents.
	ResearchDocuments = "documents"

	manifestSlugLength = 60
)

// Request describes one generation run.
type Request struct {
	Plan pipeline.Plan
	// DocumentPaths are read into Plan.Documents before the run starts.
	DocumentPaths []string
	// ResearchSource selects the research adapter. Empty means ResearchLLM.
	ResearchSource string
	// ExportAudio writes each completed language's audio next to the manifest.
	ExportAudio bool
}

// Options overrides runtime collaborators, mostly for tests.
type Options struct {
	// Logger replaces the logger built from configuration.
	Logger *slog.Logger
	// Adapters replaces any non-nil stage adapter.
	Adapters pipeline.Adapters
	// HTTPClient is used by the LLM and speech clients.
	HTTPClient *http.Client
	// Notifier replaces the ntfy service built from configuration.
	Notifier notifications.Service
	Clock    func() time.Time
	Sleep    pipeline.Sleeper
}

// Result summarizes a finished run.
type Result struct {
	RunID        string
	Manifest     *pipeline.Manifest
	ManifestPath string
	LogPath      string
	AudioPaths   map[string]string
	Counters     cache.Counters
}

// Generate executes a run. A partially failed run returns a nil error and a
// manifest with outcome succeeded_with_caveats. When the primary language
// fails the manifest is still written and returned alongside the error. A
// cancelled run returns the context error and writes no manifest.
func Generate(ctx context.Context, cfg *config.Config, req Request, opts Options) (result *Result, err error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	if failed := preflight.Failed(preflight.RunAll(ctx, cfg, preflight.Options{})); len(failed) > 0 {
		return nil, services.Wrap(services.ErrConfiguration, "runner", "preflight", failed[0].Name, errors.New(failed[0].Detail))
	}

	if err := requireCredentials(cfg, req); err != nil {
		return nil, err
	}

	unlock, err := AcquireLock(cfg)
	if err != nil {
		return nil, err
	}
	defer unlock()

	base := opts.Logger
	if base == nil {
		base, err = logging.NewFromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}

	runID := uuid.NewString()
	runLog, err := logging.OpenRunLog(base, cfg.Paths.LogDir, runID, opts.Clock())
	if err != nil {
		return nil, err
	}
	defer runLog.Close()
	logger := runLog.Logger
	if removed := logging.CleanupRunLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, runLog.Path); removed > 0 {
		logger.Debug("pruned run logs", logging.Int("removed", removed))
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg.Notifications)
	}
	startedAt := opts.Clock()
	defer func() {
		notifyOutcome(ctx, notifier, logger, req.Plan.Topic, result, err, opts.Clock().Sub(startedAt))
	}()

	plan := req.Plan
	documents, err := LoadDocuments(req.DocumentPaths)
	if err != nil {
		return nil, err
	}
	plan.Documents = append(plan.Documents, documents...)

	store, err := artifacts.Open(cfg)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "runner", "open store", cfg.Cache.DBPath, err)
	}
	defer store.Close()

	manager := cache.NewManager(store, fingerprint.NewBuilder(cfg.Templates.Namespace), logger)
	defer func() {
		if drainErr := manager.Drain(cfg.DrainTimeout()); drainErr != nil {
			logging.WarnWithContext(logger, "cache drain incomplete", "cache_drain",
				logging.Error(drainErr),
				logging.String(logging.FieldImpact, "in-flight artifacts may be recomputed next run"),
			)
		}
	}()

	if cfg.Cache.PruneOnRun {
		policy := cache.Policy{MaxAge: cfg.CacheMaxAge(), MaxBytes: cfg.CacheMaxBytes()}
		if _, err := manager.ApplyPolicy(ctx, policy); err != nil {
			return nil, err
		}
	}

	catalog, err := language.NewCatalog(cfg.Languages)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "runner", "languages", "", err)
	}
	adapters, err := buildAdapters(cfg, req, opts)
	if err != nil {
		return nil, err
	}

	pipelineOpts := pipeline.OptionsFromConfig(cfg)
	pipelineOpts.Clock = opts.Clock
	pipelineOpts.Sleep = opts.Sleep
	orchestrator, err := pipeline.New(manager, catalog, adapters, pipelineOpts, logger)
	if err != nil {
		return nil, err
	}

	runCtx := services.WithRunID(ctx, runID)
	logger.Info("generation started",
		logging.String("topic", plan.Topic),
		logging.String("primary_language", string(plan.PrimaryLanguage)),
		logging.Int("secondary_languages", len(plan.SecondaryLanguages)),
		logging.String("cost_tier", string(plan.CostTier)),
		logging.String("research_source", researchSource(req)),
		logging.String(logging.FieldEventType, "run_start"),
	)

	manifest, runErr := orchestrator.Run(runCtx, plan)
	if manifest == nil {
		if runErr == nil {
			runErr = errors.New("pipeline returned no manifest")
		}
		return nil, runErr
	}

	result = &Result{
		RunID:    runID,
		Manifest: manifest,
		LogPath:  runLog.Path,
		Counters: manager.Counters(),
	}

	slug := textutil.Slug(plan.Topic, manifestSlugLength)
	result.ManifestPath, err = WriteManifest(cfg.Paths.OutputDir, slug, manifest)
	if err != nil {
		return result, err
	}

	if req.ExportAudio && !manifest.TranscriptOnly {
		result.AudioPaths, err = exportAudio(ctx, store, cfg.Paths.OutputDir, slug, manifest)
		if err != nil {
			return result, err
		}
	}

	counters := result.Counters
	logger.Info("generation finished",
		logging.String("outcome", string(manifest.Outcome)),
		logging.String("manifest", result.ManifestPath),
		logging.Int64("cache_hits", counters.Hits),
		logging.Int64("cache_misses", counters.Misses),
		logging.Int("failed_languages", len(manifest.FailedLanguages)),
		logging.String(logging.FieldEventType, "run_complete"),
	)
	return result, runErr
}

func notifyOutcome(ctx context.Context, notifier notifications.Service, logger *slog.Logger, topic string, result *Result, runErr error, elapsed time.Duration) {
	if errors.Is(runErr, context.Canceled) {
		return
	}
	sendCtx := context.WithoutCancel(ctx)
	var err error
	if result == nil || result.Manifest == nil {
		err = notifier.NotifyRunFailed(sendCtx, topic, runErr)
	} else {
		m := result.Manifest
		err = notifier.NotifyRunCompleted(sendCtx, notifications.RunSummary{
			Topic:     m.Topic,
			Outcome:   string(m.Outcome),
			Completed: m.CompletedLanguages,
			Failed:    m.FailedLanguages,
			Duration:  elapsed,
			Manifest:  result.ManifestPath,
		})
	}
	if err != nil {
		logging.WarnWithContext(logger, "run notification failed", "notify",
			logging.Error(err),
			logging.String(logging.FieldImpact, "outcome was not pushed to ntfy"),
		)
	}
}

// AcquireLock takes the data directory lock shared by generation runs and
// cache maintenance. The returned func releases it.
func AcquireLock(cfg *config.Config) (func(), error) {
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another constellation run is already using %s", cfg.Paths.DataDir)
	}
	return func() { _ = lock.Unlock() }, nil
}

func requireCredentials(cfg *config.Config, req Request) error {
	if cfg.LLM.APIKey == "" {
		return services.Wrap(services.ErrConfiguration, "runner", "credentials",
			"llm api key missing (set llm.api_key or CONSTELLATION_LLM_API_KEY)", nil)
	}
	if cfg.Speech.APIKey == "" && !req.Plan.TranscriptOnly {
		return services.Wrap(services.ErrConfiguration, "runner", "credentials",
			"speech api key missing (set speech.api_key or ELEVENLABS_API_KEY)", nil)
	}
	return nil
}

// WriteManifest writes the manifest atomically to dir and returns its path.
func WriteManifest(dir, slug string, manifest *pipeline.Manifest) (string, error) {
	data, err := pipeline.MarshalManifest(manifest)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, pipeline.ManifestFileName(slug))
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

// LoadDocuments reads research documents from disk. Empty files are rejected.
func LoadDocuments(paths []string) ([]stages.Document, error) {
	docs := make([]stages.Document, 0, len(paths))
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		expanded, err := config.ExpandPath(path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(expanded)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "runner", "load document", path, err)
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			return nil, services.Wrap(services.ErrValidation, "runner", "load document", path+" is empty", nil)
		}
		docs = append(docs, stages.Document{Name: filepath.Base(expanded), Content: content})
	}
	return docs, nil
}

func researchSource(req Request) string {
	if strings.TrimSpace(req.ResearchSource) == "" {
		return ResearchLLM
	}
	return strings.ToLower(strings.TrimSpace(req.ResearchSource))
}

func buildAdapters(cfg *config.Config, req Request, opts Options) (pipeline.Adapters, error) {
	tiers, err := stages.NewTiers(cfg.Tiers)
	if err != nil {
		return pipeline.Adapters{}, services.Wrap(services.ErrConfiguration, "runner", "tiers", "", err)
	}

	var llmOpts []llm.Option
	var speechOpts []speech.Option
	if opts.HTTPClient != nil {
		llmOpts = append(llmOpts, llm.WithHTTPClient(opts.HTTPClient))
		speechOpts = append(speechOpts, speech.WithHTTPClient(opts.HTTPClient))
	}
	if cfg.LLM.RetryAttempts > 0 {
		llmOpts = append(llmOpts, llm.WithRetryMaxAttempts(cfg.LLM.RetryAttempts))
	}
	textClient := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	}, llmOpts...)
	speechClient := speech.NewClient(speech.Config{
		APIKey:         cfg.Speech.APIKey,
		BaseURL:        cfg.Speech.BaseURL,
		TimeoutSeconds: cfg.Speech.TimeoutSeconds,
		BitrateKbps:    cfg.Speech.BitrateKbps,
	}, speechOpts...)

	adapters := pipeline.Adapters{
		ScriptWriter: stages.NewLLMScriptWriter(textClient, tiers),
		Transformer:  stages.NewLLMTransformer(textClient, tiers),
		Synthesizer:  stages.NewSpeechSynthesizer(speechClient, tiers, cfg.Speech),
	}
	switch source := researchSource(req); source {
	case ResearchLLM:
		adapters.Researcher = stages.NewLLMResearcher(textClient, tiers)
	case ResearchDocuments:
		if len(req.DocumentPaths) == 0 && len(req.Plan.Documents) == 0 {
			return pipeline.Adapters{}, services.Wrap(services.ErrValidation, "runner", "research source", "documents research needs at least one document", nil)
		}
		adapters.Researcher = stages.NewDocumentResearcher()
	default:
		return pipeline.Adapters{}, services.Wrap(services.ErrValidation, "runner", "research source", fmt.Sprintf("unknown research source %q", source), nil)
	}

	if opts.Adapters.Researcher != nil {
		adapters.Researcher = opts.Adapters.Researcher
	}
	if opts.Adapters.ScriptWriter != nil {
		adapters.ScriptWriter = opts.Adapters.ScriptWriter
	}
	if opts.Adapters.Transformer != nil {
		adapters.Transformer = opts.Adapters.Transformer
	}
	if opts.Adapters.Synthesizer != nil {
		adapters.Synthesizer = opts.Adapters.Synthesizer
	}
	return adapters, nil
}
