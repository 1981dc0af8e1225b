package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"constellation/internal/cache"
	"constellation/internal/config"
	"constellation/internal/episode"
	"constellation/internal/fingerprint"
	"constellation/internal/language"
	"constellation/internal/logging"
	"constellation/internal/services"
	"constellation/internal/stageexec"
	"constellation/internal/stages"
)

// Cache is the get-or-compute surface the orchestrator drives.
// *cache.Manager satisfies it.
type Cache interface {
	Fingerprint(unit fingerprint.WorkUnit) fingerprint.Fingerprint
	GetOrCompute(ctx context.Context, unit fingerprint.WorkUnit, compute cache.ComputeFunc) (cache.Result, error)
	SpentSince(ctx context.Context, since time.Time) (float64, error)
}

// Adapters bundles the stage collaborators.
type Adapters struct {
	Researcher   stages.Researcher
	ScriptWriter stages.ScriptWriter
	Transformer  stages.Transformer
	Synthesizer  stages.Synthesizer
}

func (a Adapters) validate() error {
	switch {
	case a.Researcher == nil:
		return errors.New("researcher adapter is required")
	case a.ScriptWriter == nil:
		return errors.New("script writer adapter is required")
	case a.Transformer == nil:
		return errors.New("transformer adapter is required")
	case a.Synthesizer == nil:
		return errors.New("synthesizer adapter is required")
	}
	return nil
}

// Options tunes scheduling, retry and budget behaviour.
type Options struct {
	Templates   config.Templates
	Budget      config.Budget
	Speech      config.Speech
	Retry       RetryPolicy
	Concurrency int
	Clock       func() time.Time
	Sleep       Sleeper
}

// OptionsFromConfig derives orchestrator options from configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	base, maxDelay := cfg.RetryBackoff()
	return Options{
		Templates: cfg.Templates,
		Budget:    cfg.Budget,
		Speech:    cfg.Speech,
		Retry: RetryPolicy{
			MaxAttempts: cfg.Pipeline.MaxAttempts,
			BaseDelay:   base,
			MaxDelay:    maxDelay,
			CallTimeout: cfg.CallTimeout(),
		},
		Concurrency: cfg.Pipeline.Concurrency,
	}
}

// Orchestrator drives research, script, transform and synthesis through the cache.
type Orchestrator struct {
	cache    Cache
	catalog  *language.Catalog
	adapters Adapters
	opts     Options
	logger   *slog.Logger
}

// New constructs an orchestrator.
func New(c Cache, catalog *language.Catalog, adapters Adapters, opts Options, logger *slog.Logger) (*Orchestrator, error) {
	if c == nil {
		return nil, errors.New("cache is required")
	}
	if catalog == nil {
		return nil, errors.New("language catalog is required")
	}
	if err := adapters.validate(); err != nil {
		return nil, err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Orchestrator{
		cache:    c,
		catalog:  catalog,
		adapters: adapters,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
	}, nil
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	return o.opts.Sleep(ctx, d)
}

type stageResult struct {
	fingerprint fingerprint.Fingerprint
	digest      string
}

// run is the orchestrator's state for one plan. It is never persisted.
type run struct {
	o          *Orchestrator
	plan       Plan
	capability episode.Capability
	logger     *slog.Logger
	state      *stateMachine
	budget     *budgetGuard

	mu       sync.Mutex
	results  map[string]stageResult
	failures []Failure
}

// Run executes plan and returns its manifest. Research or script failures
// fail the run. Secondary branch failures are recorded and the run continues;
// use ManifestPartialFailure to surface them as an error. Store failures and
// fingerprint collisions abort every branch. A cancelled run returns ctx.Err()
// without a manifest.
func (o *Orchestrator) Run(ctx context.Context, plan Plan) (*Manifest, error) {
	if err := plan.Validate(o.catalog); err != nil {
		return nil, err
	}
	r := &run{
		o:          o,
		plan:       plan,
		capability: plan.EpisodeType.Capabilities(),
		logger:     logging.WithContext(ctx, o.logger),
		state:      newStateMachine(),
		results:    make(map[string]stageResult),
	}

	var dailyBase float64
	if o.opts.Budget.MaxDailyUSD > 0 {
		spent, err := o.cache.SpentSince(ctx, o.opts.Clock().Add(-24*time.Hour))
		if err != nil {
			return nil, err
		}
		dailyBase = spent
	}
	r.budget = newBudgetGuard(o.opts.Budget.MaxEpisodeUSD, o.opts.Budget.MaxDailyUSD, dailyBase)

	r.logger.Info("pipeline run started",
		logging.String("topic", plan.Topic),
		logging.String("episode_type", string(plan.EpisodeType)),
		logging.String("cost_tier", string(plan.CostTier)),
		logging.String("primary_language", string(plan.PrimaryLanguage)),
		logging.Int("secondary_count", len(plan.SecondaryLanguages)),
		logging.Bool("transcript_only", plan.TranscriptOnly),
		logging.String(logging.FieldEventType, "run_start"),
	)

	if err := r.state.advance(RunResearchPending); err != nil {
		return nil, err
	}
	research, err := r.research(ctx)
	if err != nil {
		return r.fail(ctx, fingerprint.StageResearch, err)
	}
	if err := r.state.advance(RunResearchDone); err != nil {
		return nil, err
	}

	if err := r.state.advance(RunScriptPending); err != nil {
		return nil, err
	}
	script, scriptDigest, err := r.script(ctx, research)
	if err != nil {
		return r.fail(ctx, fingerprint.StageDialogue, err)
	}
	if err := r.state.advance(RunScriptDone); err != nil {
		return nil, err
	}

	if err := r.branches(ctx, script, scriptDigest); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		m := r.manifest()
		r.partitionLanguages(m)
		m.Outcome = OutcomeFailed
		if stateErr := r.state.advance(RunFailed); stateErr != nil {
			return m, errors.Join(err, stateErr)
		}
		return m, err
	}
	if err := r.state.advance(RunAssembled); err != nil {
		return nil, err
	}
	return r.assemble()
}

func (r *run) fail(ctx context.Context, stage fingerprint.Stage, err error) (*Manifest, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if stateErr := r.state.advance(RunFailed); stateErr != nil {
		return nil, errors.Join(err, stateErr)
	}
	r.recordFailure(newFailure(r.plan.PrimaryLanguage, string(stage), err))
	m := r.manifest()
	r.partitionLanguages(m)
	m.Outcome = OutcomeFailed
	return m, fmt.Errorf("%s stage failed: %w", stage, err)
}

func (r *run) recordResult(key string, res cache.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[key] = stageResult{fingerprint: res.Fingerprint, digest: res.Digest}
}

func (r *run) recordFailure(f Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
}

type stageCall struct {
	key  string
	unit fingerprint.WorkUnit
	cost float64
	call func(ctx context.Context) ([]byte, error)
}

// execute resolves one stage through the cache. On a miss the compute reserves
// budget, then calls the adapter with retry; hits skip both.
func (r *run) execute(ctx context.Context, sc stageCall) (cache.Result, error) {
	ctx = services.WithRequestID(ctx, uuid.NewString())
	fp := r.o.cache.Fingerprint(sc.unit)
	var result cache.Result
	err := stageexec.Run(ctx, stageexec.Options{
		Logger:   r.o.logger,
		Stage:    string(sc.unit.Stage),
		Language: sc.unit.Language,
		Attrs: []slog.Attr{
			logging.String(logging.FieldFingerprint, fp.Short()),
			logging.String("stage_key", sc.key),
		},
	}, func(stageCtx context.Context, logger *slog.Logger) error {
		res, err := r.o.cache.GetOrCompute(stageCtx, sc.unit, r.compute(stageCtx, logger, sc))
		if err != nil {
			return err
		}
		logger.Debug("artifact ready",
			logging.Bool("cached", res.Cached),
			logging.Bool("shared", res.Shared),
			logging.Int("size_bytes", len(res.Payload)),
		)
		result = res
		return nil
	})
	if err != nil {
		return cache.Result{}, err
	}
	r.recordResult(sc.key, result)
	return result, nil
}

func (r *run) compute(ctx context.Context, logger *slog.Logger, sc stageCall) cache.ComputeFunc {
	return func(computeCtx context.Context) (cache.Output, error) {
		if err := r.budget.reserve(sc.unit.Stage, language.Language(sc.unit.Language), sc.cost); err != nil {
			return cache.Output{}, err
		}
		payload, err := r.o.withRetry(ctx, computeCtx, logger, sc.call)
		if err != nil {
			r.budget.release(sc.cost)
			return cache.Output{}, err
		}
		return cache.Output{Payload: payload, CostUSD: sc.cost}, nil
	}
}

func (r *run) unit(stage fingerprint.Stage, lang language.Language, inputs string, version int, params map[string]string) fingerprint.WorkUnit {
	return fingerprint.WorkUnit{
		Stage:           stage,
		Topic:           r.plan.Topic,
		Language:        string(lang),
		CostTier:        r.plan.CostTier,
		InputsDigest:    inputs,
		TemplateVersion: version,
		Params:          params,
	}
}

func (r *run) research(ctx context.Context) (stages.ResearchResult, error) {
	researcher := r.o.adapters.Researcher
	profile := researcher.Profile(r.plan.CostTier)
	docsDigest, err := fingerprint.DigestJSON(r.plan.Documents)
	if err != nil {
		return stages.ResearchResult{}, services.Wrap(services.ErrValidation, "research", "documents", "", err)
	}
	depth := r.capability.Depth
	req := stages.ResearchRequest{
		Topic:     r.plan.Topic,
		Language:  r.plan.PrimaryLanguage,
		Documents: r.plan.Documents,
		Depth:     depth,
		CostTier:  r.plan.CostTier,
	}
	res, err := r.execute(ctx, stageCall{
		key: stageKeyResearch,
		unit: r.unit(fingerprint.StageResearch, r.plan.PrimaryLanguage,
			fingerprint.DigestString(r.plan.Topic, string(depth), docsDigest),
			r.o.opts.Templates.Research,
			map[string]string{"model": profile.Model, "depth": string(depth)}),
		cost: profile.EstimatedCostUSD,
		call: func(ctx context.Context) ([]byte, error) {
			out, err := researcher.Research(ctx, req)
			if err != nil {
				return nil, err
			}
			return encodePayload("research", out)
		},
	})
	if err != nil {
		return stages.ResearchResult{}, err
	}
	var out stages.ResearchResult
	if err := decodePayload("research", res, &out); err != nil {
		return stages.ResearchResult{}, err
	}
	return out, nil
}

func (r *run) script(ctx context.Context, research stages.ResearchResult) (stages.Script, string, error) {
	writer := r.o.adapters.ScriptWriter
	profile := writer.Profile(r.plan.CostTier)
	primary, err := r.o.catalog.Lookup(r.plan.PrimaryLanguage)
	if err != nil {
		return stages.Script{}, "", services.Wrap(services.ErrConfiguration, "dialogue", "language", "", err)
	}
	researchDigest := r.digest(stageKeyResearch)
	req := stages.ScriptRequest{
		Topic:         r.plan.Topic,
		Research:      research,
		EpisodeType:   r.plan.EpisodeType,
		CostTier:      r.plan.CostTier,
		Language:      primary,
		TargetMinutes: r.plan.TargetMinutes,
		EpisodeNumber: r.plan.EpisodeNumber,
		IncludeIntro:  r.plan.IncludeIntro,
		IncludeOutro:  r.plan.IncludeOutro,
	}
	inputs := fingerprint.DigestString(
		researchDigest,
		string(r.plan.EpisodeType),
		strconv.Itoa(r.plan.TargetMinutes),
		strconv.Itoa(r.plan.EpisodeNumber),
		strconv.FormatBool(r.plan.IncludeIntro),
		strconv.FormatBool(r.plan.IncludeOutro),
		strings.Join(primary.HostNames(), ","),
	)
	res, err := r.execute(ctx, stageCall{
		key:  stageKeyScript,
		unit: r.unit(fingerprint.StageDialogue, r.plan.PrimaryLanguage, inputs, r.o.opts.Templates.Dialogue, map[string]string{"model": profile.Model}),
		cost: profile.EstimatedCostUSD,
		call: func(ctx context.Context) ([]byte, error) {
			out, err := writer.GenerateScript(ctx, req)
			if err != nil {
				return nil, err
			}
			return encodePayload("dialogue", out)
		},
	})
	if err != nil {
		return stages.Script{}, "", err
	}
	var out stages.Script
	if err := decodePayload("dialogue", res, &out); err != nil {
		return stages.Script{}, "", err
	}
	return out, res.Digest, nil
}

func (r *run) digest(key string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[key].digest
}

// branches runs the primary synthesis and every secondary transform and
// synthesis concurrently. Only fatal errors and cancellation are returned;
// other failures are recorded on the run.
func (r *run) branches(ctx context.Context, script stages.Script, scriptDigest string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.o.opts.Concurrency)

	for _, lang := range r.plan.Languages() {
		initial := BranchSynthesisPending
		switch {
		case lang != r.plan.PrimaryLanguage:
			initial = BranchTransformPending
		case r.plan.TranscriptOnly:
			initial = BranchScriptReady
		}
		if err := r.state.openBranch(lang, initial); err != nil {
			return err
		}
		if initial == BranchScriptReady {
			continue
		}
		g.Go(func() error {
			return r.branch(gctx, lang, script, scriptDigest)
		})
	}
	return g.Wait()
}

func (r *run) branch(ctx context.Context, lang language.Language, script stages.Script, scriptDigest string) error {
	profile, err := r.o.catalog.Lookup(lang)
	if err != nil {
		return r.branchFailed(lang, fingerprint.StageTransform,
			services.Wrap(services.ErrConfiguration, "transform", string(lang), "", err))
	}

	upstream, upstreamDigest := script, scriptDigest
	if lang != r.plan.PrimaryLanguage {
		adapted, digest, err := r.transform(ctx, profile, script, scriptDigest)
		if err != nil {
			return r.branchFailed(lang, fingerprint.StageTransform, err)
		}
		if err := r.state.advanceBranch(lang, BranchTransformDone); err != nil {
			return err
		}
		if r.plan.TranscriptOnly {
			return nil
		}
		if err := r.state.advanceBranch(lang, BranchSynthesisPending); err != nil {
			return err
		}
		upstream, upstreamDigest = adapted, digest
	}

	if err := r.synthesize(ctx, profile, upstream, upstreamDigest); err != nil {
		return r.branchFailed(lang, fingerprint.StageSynthesize, err)
	}
	return r.state.advanceBranch(lang, BranchSynthesisDone)
}

// branchFailed records a branch failure. Fatal errors and cancellation are
// returned so the group cancels the remaining branches.
func (r *run) branchFailed(lang language.Language, stage fingerprint.Stage, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if stateErr := r.state.advanceBranch(lang, BranchFailed); stateErr != nil {
		return errors.Join(err, stateErr)
	}
	r.recordFailure(newFailure(lang, string(stage), err))
	if services.IsFatal(err) {
		return err
	}
	return nil
}

func (r *run) transform(ctx context.Context, to language.Profile, script stages.Script, scriptDigest string) (stages.Script, string, error) {
	transformer := r.o.adapters.Transformer
	profile := transformer.Profile(r.plan.CostTier)
	from, err := r.o.catalog.Lookup(r.plan.PrimaryLanguage)
	if err != nil {
		return stages.Script{}, "", services.Wrap(services.ErrConfiguration, "transform", "language", "", err)
	}
	cultureDigest, err := fingerprint.DigestJSON(to.Culture)
	if err != nil {
		return stages.Script{}, "", services.Wrap(services.ErrValidation, "transform", "culture", "", err)
	}
	req := stages.TransformRequest{Script: script, From: from, To: to, CostTier: r.plan.CostTier}
	inputs := fingerprint.DigestString(scriptDigest, string(from.Language), cultureDigest, strings.Join(to.HostNames(), ","))
	res, err := r.execute(ctx, stageCall{
		key:  TransformKey(to.Language),
		unit: r.unit(fingerprint.StageTransform, to.Language, inputs, r.o.opts.Templates.Transform, map[string]string{"model": profile.Model}),
		cost: profile.EstimatedCostUSD,
		call: func(ctx context.Context) ([]byte, error) {
			out, err := transformer.Transform(ctx, req)
			if err != nil {
				return nil, err
			}
			return encodePayload("transform", out)
		},
	})
	if err != nil {
		return stages.Script{}, "", err
	}
	var out stages.Script
	if err := decodePayload("transform", res, &out); err != nil {
		return stages.Script{}, "", err
	}
	return out, res.Digest, nil
}

func (r *run) synthesize(ctx context.Context, lang language.Profile, script stages.Script, scriptDigest string) error {
	synth := r.o.adapters.Synthesizer
	profile := synth.Profile(r.plan.CostTier)
	req := stages.SynthesisRequest{Script: script, Language: lang, CostTier: r.plan.CostTier}
	settings := r.o.opts.Speech
	unit := r.unit(fingerprint.StageSynthesize, lang.Language, scriptDigest, r.o.opts.Templates.Synthesize, map[string]string{
		"model":            profile.Model,
		"stability":        strconv.FormatFloat(settings.Stability, 'f', 2, 64),
		"similarity_boost": strconv.FormatFloat(settings.SimilarityBoost, 'f', 2, 64),
		"style":            strconv.FormatFloat(settings.Style, 'f', 2, 64),
		"speaker_boost":    strconv.FormatBool(settings.SpeakerBoost),
		"bitrate_kbps":     strconv.Itoa(settings.BitrateKbps),
	})
	unit.VoiceID = strings.Join(lang.VoiceIDs(), ",")
	_, err := r.execute(ctx, stageCall{
		key:  SynthesizeKey(lang.Language),
		unit: unit,
		cost: profile.EstimatedCostUSD,
		call: func(ctx context.Context) ([]byte, error) {
			audio, err := synth.Synthesize(ctx, req)
			if err != nil {
				return nil, err
			}
			if len(audio.Bytes) == 0 {
				return nil, services.Wrap(services.ErrTransient, "synthesize", string(lang.Language), "adapter returned no audio", nil)
			}
			return audio.Bytes, nil
		},
	})
	return err
}

func (r *run) manifest() *Manifest {
	m := newManifest(r.plan)
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, res := range r.results {
		m.StageFingerprints[key] = string(res.fingerprint)
	}
	m.Failures = append(m.Failures, r.failures...)
	sortFailures(m.Failures, r.plan)
	m.AssembledAt = r.o.opts.Clock().UTC().Format(manifestTimeLayout)
	return m
}

// partitionLanguages lists every plan language, in plan order, as completed
// or failed. Branches that never reached a successful terminal state count as
// failed. It reports whether the primary language completed.
func (r *run) partitionLanguages(m *Manifest) bool {
	primaryDone := false
	for _, lang := range r.plan.Languages() {
		state, _ := r.state.Branch(lang)
		if branchComplete(state, r.plan.TranscriptOnly) {
			m.CompletedLanguages = append(m.CompletedLanguages, string(lang))
			if lang == r.plan.PrimaryLanguage {
				primaryDone = true
			}
			continue
		}
		m.FailedLanguages = append(m.FailedLanguages, string(lang))
	}
	return primaryDone
}

// assemble builds the manifest once every branch is terminal.
func (r *run) assemble() (*Manifest, error) {
	m := r.manifest()
	primaryDone := r.partitionLanguages(m)

	var err error
	switch {
	case !primaryDone || len(m.CompletedLanguages) == 0:
		m.Outcome = OutcomeFailed
		err = fmt.Errorf("primary language %s failed: %s", r.plan.PrimaryLanguage, r.primaryFailure(m))
	case len(m.FailedLanguages) > 0:
		m.Outcome = OutcomeSucceededWithCaveats
	default:
		m.Outcome = OutcomeSucceeded
	}

	r.logger.Info("pipeline run assembled",
		logging.String("outcome", string(m.Outcome)),
		logging.String("completed", strings.Join(m.CompletedLanguages, ",")),
		logging.String("failed", strings.Join(m.FailedLanguages, ",")),
		logging.Float64("estimated_spend_usd", r.budget.Reserved()),
		logging.String(logging.FieldEventType, "run_assembled"),
	)
	return m, err
}

func (r *run) primaryFailure(m *Manifest) string {
	for _, f := range m.Failures {
		if f.Language == string(r.plan.PrimaryLanguage) {
			return f.Reason
		}
	}
	return "unknown"
}

func encodePayload(stage string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stage, "encode", "", err)
	}
	return data, nil
}

func decodePayload(stage string, res cache.Result, target any) error {
	if err := json.Unmarshal(res.Payload, target); err != nil {
		// A cached payload that no longer decodes means the artifact or the
		// schema is corrupt, and the cache guarantee is void.
		return services.Wrap(services.ErrStoreUnavailable, stage, "decode cached payload", res.Fingerprint.Short(), err)
	}
	return nil
}
