package pipeline_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"constellation/internal/artifacts"
	"constellation/internal/cache"
	"constellation/internal/config"
	"constellation/internal/fingerprint"
	"constellation/internal/language"
	"constellation/internal/logging"
	"constellation/internal/pipeline"
	"constellation/internal/stages"
	"constellation/internal/testsupport"
)

// fakeAdapters implements every stage contract and counts calls by stage key
// (research, dialogue, transform:<lang>, synthesize:<lang>).
type fakeAdapters struct {
	cost float64

	mu       sync.Mutex
	calls    map[string]int
	queued   map[string][]error
	always   map[string]error
	hooks    map[string]func()
	scripts  map[language.Language]string
	active   atomic.Int32
	maxSynth atomic.Int32
}

func newFakeAdapters() *fakeAdapters {
	return &fakeAdapters{
		calls:   map[string]int{},
		queued:  map[string][]error{},
		always:  map[string]error{},
		hooks:   map[string]func(){},
		scripts: map[language.Language]string{},
	}
}

func (f *fakeAdapters) failOnce(key string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[key] = append(f.queued[key], errs...)
}

func (f *fakeAdapters) failAlways(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.always[key] = err
}

func (f *fakeAdapters) onCall(key string, hook func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[key] = hook
}

func (f *fakeAdapters) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeAdapters) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeAdapters) hit(key string) error {
	f.mu.Lock()
	f.calls[key]++
	var err error
	if q := f.queued[key]; len(q) > 0 {
		err = q[0]
		f.queued[key] = q[1:]
	} else if e, ok := f.always[key]; ok {
		err = e
	}
	hook := f.hooks[key]
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (f *fakeAdapters) Profile(fingerprint.CostTier) stages.Profile {
	return stages.Profile{Model: "fake-model", EstimatedCostUSD: f.cost}
}

func (f *fakeAdapters) Research(_ context.Context, req stages.ResearchRequest) (stages.ResearchResult, error) {
	if err := f.hit("research"); err != nil {
		return stages.ResearchResult{}, err
	}
	return stages.ResearchResult{Summary: "brief on " + req.Topic, KeyPoints: []string{string(req.Depth)}}, nil
}

func (f *fakeAdapters) GenerateScript(_ context.Context, req stages.ScriptRequest) (stages.Script, error) {
	if err := f.hit("dialogue"); err != nil {
		return stages.Script{}, err
	}
	segments := []stages.Segment{
		{Speaker: req.Language.Hosts[0].Name, Text: req.Research.Summary},
		{Speaker: req.Language.Hosts[1].Name, Text: string(req.EpisodeType)},
	}
	return stages.Script{Title: req.Topic, Language: req.Language.Language, Segments: segments, Text: stages.RenderText(segments)}, nil
}

func (f *fakeAdapters) Transform(_ context.Context, req stages.TransformRequest) (stages.Script, error) {
	key := pipeline.TransformKey(req.To.Language)
	f.mu.Lock()
	f.scripts[req.To.Language] = req.Script.Text
	f.mu.Unlock()
	if err := f.hit(key); err != nil {
		return stages.Script{}, err
	}
	segments := make([]stages.Segment, len(req.Script.Segments))
	for i, seg := range req.Script.Segments {
		segments[i] = stages.Segment{Speaker: req.To.Hosts[i%len(req.To.Hosts)].Name, Text: fmt.Sprintf("[%s] %s", req.To.Language, seg.Text)}
	}
	return stages.Script{Title: req.Script.Title, Language: req.To.Language, Segments: segments, Text: stages.RenderText(segments)}, nil
}

func (f *fakeAdapters) Synthesize(_ context.Context, req stages.SynthesisRequest) (stages.Audio, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		cur := f.maxSynth.Load()
		if n <= cur || f.maxSynth.CompareAndSwap(cur, n) {
			break
		}
	}
	if err := f.hit(pipeline.SynthesizeKey(req.Language.Language)); err != nil {
		return stages.Audio{}, err
	}
	return stages.Audio{Bytes: []byte("mp3:" + req.Script.Text), DurationSeconds: 1}, nil
}

func (f *fakeAdapters) adapters() pipeline.Adapters {
	return pipeline.Adapters{Researcher: f, ScriptWriter: f, Transformer: f, Synthesizer: f}
}

type harness struct {
	cfg     *config.Config
	store   *artifacts.Store
	manager *cache.Manager
	catalog *language.Catalog
	fakes   *fakeAdapters

	mu     sync.Mutex
	sleeps []time.Duration
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	catalog, err := language.NewCatalog(cfg.Languages)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return &harness{
		cfg:     cfg,
		store:   store,
		manager: cache.NewManager(store, fingerprint.NewBuilder(cfg.Templates.Namespace), logging.NewNop()),
		catalog: catalog,
		fakes:   newFakeAdapters(),
	}
}

func (h *harness) sleeper(ctx context.Context, d time.Duration) error {
	h.mu.Lock()
	h.sleeps = append(h.sleeps, d)
	h.mu.Unlock()
	return ctx.Err()
}

func (h *harness) recordedSleeps() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.sleeps...)
}

func (h *harness) orchestrator(t *testing.T, mutate ...func(*pipeline.Options)) *pipeline.Orchestrator {
	t.Helper()
	return h.orchestratorWithCache(t, h.manager, mutate...)
}

func (h *harness) orchestratorWithCache(t *testing.T, c pipeline.Cache, mutate ...func(*pipeline.Options)) *pipeline.Orchestrator {
	t.Helper()
	opts := pipeline.OptionsFromConfig(h.cfg)
	opts.Sleep = h.sleeper
	opts.Clock = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	for _, fn := range mutate {
		fn(&opts)
	}
	orch, err := pipeline.New(c, h.catalog, h.fakes.adapters(), opts, logging.NewNop())
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return orch
}

func aiSkillsPlan() pipeline.Plan {
	return pipeline.Plan{
		Topic:              "AI Skills",
		PrimaryLanguage:    language.English,
		SecondaryLanguages: []language.Language{language.Hindi, language.Tamil},
		EpisodeType:        "conversation",
		CostTier:           fingerprint.TierStandard,
	}
}
