package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"constellation/internal/artifacts"
	"constellation/internal/fingerprint"
	"constellation/internal/logging"
	"constellation/internal/services"
)

// ErrDraining is returned when a new computation is requested after Drain began.
var ErrDraining = errors.New("cache manager is draining")

// Backend is the persistence the manager wraps. *artifacts.Store satisfies it.
type Backend interface {
	Get(ctx context.Context, fp fingerprint.Fingerprint) (*artifacts.Entry, error)
	Put(ctx context.Context, fp fingerprint.Fingerprint, payload []byte, meta artifacts.Metadata) (*artifacts.Entry, error)
	EvictOlderThan(ctx context.Context, age time.Duration) (artifacts.EvictionResult, error)
	EvictBySize(ctx context.Context, budgetBytes int64) (artifacts.EvictionResult, error)
	Purge(ctx context.Context) (artifacts.EvictionResult, error)
	Stats(ctx context.Context) (artifacts.Stats, error)
	RecordSpend(ctx context.Context, rec artifacts.SpendRecord) error
	SpentSince(ctx context.Context, since time.Time) (float64, error)
}

// Output is what a successful computation produced. CostUSD is the estimated
// charge recorded in the spend ledger.
type Output struct {
	Payload []byte
	CostUSD float64
}

// ComputeFunc produces the payload for a cache miss. The context it receives is
// detached from the caller's cancellation.
type ComputeFunc func(ctx context.Context) (Output, error)

// Result is returned by GetOrCompute.
type Result struct {
	Fingerprint fingerprint.Fingerprint
	Payload     []byte
	Digest      string
	// Cached is true when the payload came from the store without computing.
	Cached bool
	// Shared is true when another caller's in-flight computation was reused.
	Shared bool
}

// Counters are session totals since the manager was created.
type Counters struct {
	Hits     int64
	Misses   int64
	Computes int64
	Shared   int64
}

// Manager provides get-or-compute over the artifact store with at most one
// concurrent computation per fingerprint.
type Manager struct {
	store   Backend
	builder fingerprint.Builder
	logger  *slog.Logger
	group   singleflight.Group

	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup

	hits     atomic.Int64
	misses   atomic.Int64
	computes atomic.Int64
	shared   atomic.Int64
}

// NewManager wraps store. The manager is the only writer to the store during a run.
func NewManager(store Backend, builder fingerprint.Builder, logger *slog.Logger) *Manager {
	return &Manager{
		store:   store,
		builder: builder,
		logger:  logging.NewComponentLogger(logger, "cache"),
	}
}

// Fingerprint returns the key GetOrCompute would use for unit.
func (m *Manager) Fingerprint(unit fingerprint.WorkUnit) fingerprint.Fingerprint {
	return m.builder.Build(unit)
}

type flightValue struct {
	payload []byte
	digest  string
	cached  bool
}

// GetOrCompute returns the stored payload for unit, computing and storing it on
// a miss. Concurrent callers for the same fingerprint share one computation and
// receive the same result or the same error. If ctx ends while waiting, the
// caller returns ctx.Err() and the computation keeps running so its result is
// still cached.
func (m *Manager) GetOrCompute(ctx context.Context, unit fingerprint.WorkUnit, compute ComputeFunc) (Result, error) {
	fp := m.builder.Build(unit)
	logger := logging.WithContext(ctx, m.logger).With(
		logging.String(logging.FieldFingerprint, fp.Short()),
		logging.String(logging.FieldStage, string(unit.Stage)),
	)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	entry, err := m.store.Get(ctx, fp)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, services.Wrap(services.ErrStoreUnavailable, string(unit.Stage), "lookup", fp.Short(), err)
	}
	if entry != nil {
		m.hits.Add(1)
		logger.Debug("cache hit", logging.Int64("hit_count", entry.HitCount), logging.String(logging.FieldEventType, "cache_hit"))
		return Result{Fingerprint: fp, Payload: entry.Payload, Digest: entry.PayloadDigest, Cached: true}, nil
	}
	m.misses.Add(1)
	logger.Debug("cache miss", logging.String(logging.FieldEventType, "cache_miss"))

	ch := m.group.DoChan(string(fp), func() (any, error) {
		return m.computeAndStore(context.WithoutCancel(ctx), fp, unit, compute, logger)
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			m.shared.Add(1)
		}
		if res.Err != nil {
			return Result{}, res.Err
		}
		value := res.Val.(flightValue)
		return Result{
			Fingerprint: fp,
			Payload:     value.payload,
			Digest:      value.digest,
			Cached:      value.cached,
			Shared:      res.Shared,
		}, nil
	}
}

func (m *Manager) computeAndStore(ctx context.Context, fp fingerprint.Fingerprint, unit fingerprint.WorkUnit, compute ComputeFunc, logger *slog.Logger) (flightValue, error) {
	if !m.begin() {
		return flightValue{}, fmt.Errorf("%w: %w", services.ErrStoreUnavailable, ErrDraining)
	}
	defer m.inflight.Done()

	// A flight for the same key may have stored the artifact between our
	// lookup and acquiring the flight.
	entry, err := m.store.Get(ctx, fp)
	if err != nil {
		return flightValue{}, services.Wrap(services.ErrStoreUnavailable, string(unit.Stage), "lookup", fp.Short(), err)
	}
	if entry != nil {
		return flightValue{payload: entry.Payload, digest: entry.PayloadDigest, cached: true}, nil
	}

	started := time.Now()
	out, err := compute(ctx)
	if err != nil {
		return flightValue{}, &services.ComputeError{
			Stage:       string(unit.Stage),
			Language:    unit.Language,
			Fingerprint: string(fp),
			Err:         err,
		}
	}
	m.computes.Add(1)

	stored, err := m.store.Put(ctx, fp, out.Payload, artifacts.Metadata{Stage: unit.Stage, Language: unit.Language})
	if err != nil {
		if errors.Is(err, artifacts.ErrPayloadMismatch) {
			logging.ErrorWithContext(logger, "fingerprint collision", "fingerprint_collision",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the key builder produced one fingerprint for two payloads; report this and bump templates.namespace"),
			)
			return flightValue{}, services.Wrap(services.ErrFingerprintCollision, string(unit.Stage), "store", fp.Short(), err)
		}
		return flightValue{}, services.Wrap(services.ErrStoreUnavailable, string(unit.Stage), "store", fp.Short(), err)
	}

	if out.CostUSD > 0 {
		runID, ok := services.RunIDFromContext(ctx)
		if !ok {
			runID = "adhoc"
		}
		if err := m.store.RecordSpend(ctx, artifacts.SpendRecord{
			RunID:       runID,
			Stage:       unit.Stage,
			Language:    unit.Language,
			Fingerprint: fp,
			CostUSD:     out.CostUSD,
		}); err != nil {
			return flightValue{}, services.Wrap(services.ErrStoreUnavailable, string(unit.Stage), "record spend", fp.Short(), err)
		}
	}

	logger.Info("artifact stored",
		logging.Int64("size_bytes", stored.SizeBytes),
		logging.Float64("cost_usd", out.CostUSD),
		logging.Duration("compute_duration", time.Since(started)),
		logging.String(logging.FieldEventType, "artifact_stored"),
	)
	return flightValue{payload: stored.Payload, digest: stored.PayloadDigest}, nil
}

func (m *Manager) begin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.draining {
		return false
	}
	m.inflight.Add(1)
	return true
}

// Drain refuses new computations and waits up to timeout for in-flight ones to
// finish storing. A non-positive timeout waits indefinitely.
func (m *Manager) Drain(timeout time.Duration) error {
	m.mu.Lock()
	m.draining = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("drain: computations still running after %s", timeout)
	}
}

// Counters returns session hit, miss, compute and shared-wait totals.
func (m *Manager) Counters() Counters {
	return Counters{
		Hits:     m.hits.Load(),
		Misses:   m.misses.Load(),
		Computes: m.computes.Load(),
		Shared:   m.shared.Load(),
	}
}

// SpentSince reports ledger spend since the given time.
func (m *Manager) SpentSince(ctx context.Context, since time.Time) (float64, error) {
	total, err := m.store.SpentSince(ctx, since)
	if err != nil {
		return 0, services.Wrap(services.ErrStoreUnavailable, "budget", "ledger", "", err)
	}
	return total, nil
}
