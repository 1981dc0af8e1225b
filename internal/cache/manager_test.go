package cache_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"constellation/internal/artifacts"
	"constellation/internal/cache"
	"constellation/internal/fingerprint"
	"constellation/internal/logging"
	"constellation/internal/services"
	"constellation/internal/testsupport"
)

func newManager(t *testing.T) (*cache.Manager, *artifacts.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	return cache.NewManager(store, fingerprint.NewBuilder("test"), logging.NewNop()), store
}

func unit(topic string) fingerprint.WorkUnit {
	return fingerprint.WorkUnit{
		Stage:           fingerprint.StageResearch,
		Topic:           topic,
		Language:        "english",
		CostTier:        fingerprint.TierStandard,
		TemplateVersion: 1,
	}
}

func constant(payload string, calls *atomic.Int64) cache.ComputeFunc {
	return func(context.Context) (cache.Output, error) {
		calls.Add(1)
		return cache.Output{Payload: []byte(payload)}, nil
	}
}

func TestGetOrComputeComputesOnce(t *testing.T) {
	manager, _ := newManager(t)
	ctx := context.Background()
	var calls atomic.Int64

	first, err := manager.GetOrCompute(ctx, unit("AI Skills"), constant("summary", &calls))
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if first.Cached {
		t.Fatal("first call should compute")
	}
	second, err := manager.GetOrCompute(ctx, unit("AI Skills"), constant("other", &calls))
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !second.Cached || string(second.Payload) != "summary" {
		t.Fatalf("expected cached summary, got %#v", second)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one compute, got %d", calls.Load())
	}
	if first.Fingerprint != second.Fingerprint || first.Digest != second.Digest {
		t.Fatal("fingerprint and digest should match across calls")
	}
	counters := manager.Counters()
	if counters.Hits != 1 || counters.Misses != 1 || counters.Computes != 1 {
		t.Fatalf("unexpected counters %#v", counters)
	}
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	manager, _ := newManager(t)
	ctx := context.Background()
	const callers = 8

	var calls atomic.Int64
	release := make(chan struct{})
	var entered sync.Once
	started := make(chan struct{})
	compute := func(context.Context) (cache.Output, error) {
		calls.Add(1)
		entered.Do(func() { close(started) })
		<-release
		return cache.Output{Payload: []byte("script")}, nil
	}

	results := make([]cache.Result, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = manager.GetOrCompute(ctx, unit("shared"), compute)
	}()
	<-started
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = manager.GetOrCompute(ctx, unit("shared"), compute)
		}(i)
	}
	// Let the waiters reach the flight before releasing the leader.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected exactly one compute, got %d", calls.Load())
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if string(results[i].Payload) != "script" || results[i].Fingerprint != results[0].Fingerprint {
			t.Fatalf("caller %d got %#v", i, results[i])
		}
	}
}

func TestGetOrComputeFailureSharedAndNotStored(t *testing.T) {
	manager, store := newManager(t)
	ctx := context.Background()
	boom := services.Wrap(services.ErrRateLimited, "research", "invoke", "429", nil)

	var calls atomic.Int64
	_, err := manager.GetOrCompute(ctx, unit("fails"), func(context.Context) (cache.Output, error) {
		calls.Add(1)
		return cache.Output{}, boom
	})
	if !errors.Is(err, services.ErrComputeFailed) || !errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("expected compute failure wrapping cause, got %v", err)
	}
	var computeErr *services.ComputeError
	if !errors.As(err, &computeErr) || computeErr.Stage != "research" || computeErr.Fingerprint == "" {
		t.Fatalf("expected ComputeError with context, got %#v", err)
	}
	entry, err := store.Peek(ctx, manager.Fingerprint(unit("fails")))
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if entry != nil {
		t.Fatal("failed compute must not be stored")
	}

	// Next call retries the compute since nothing was cached.
	if _, err := manager.GetOrCompute(ctx, unit("fails"), constant("ok", &calls)); err != nil {
		t.Fatalf("retry call: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected two computes, got %d", calls.Load())
	}
}

func TestTemplateVersionChangeMisses(t *testing.T) {
	manager, _ := newManager(t)
	ctx := context.Background()
	var calls atomic.Int64

	u := unit("versioned")
	if _, err := manager.GetOrCompute(ctx, u, constant("v1", &calls)); err != nil {
		t.Fatal(err)
	}
	u.TemplateVersion = 2
	res, err := manager.GetOrCompute(ctx, u, constant("v2", &calls))
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached || string(res.Payload) != "v2" || calls.Load() != 2 {
		t.Fatalf("expected miss after template bump, got %#v calls=%d", res, calls.Load())
	}
}

func TestCancelledCallerStillCachesResult(t *testing.T) {
	manager, store := newManager(t)
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(computeCtx context.Context) (cache.Output, error) {
		close(started)
		<-release
		if computeCtx.Err() != nil {
			return cache.Output{}, computeCtx.Err()
		}
		return cache.Output{Payload: []byte("audio")}, nil
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := manager.GetOrCompute(ctx, unit("cancel"), compute)
		errCh <- err
	}()
	<-started
	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return promptly")
	}

	close(release)
	if err := manager.Drain(2 * time.Second); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	entry, err := store.Peek(context.Background(), manager.Fingerprint(unit("cancel")))
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if entry == nil || string(entry.Payload) != "audio" {
		t.Fatalf("expected in-flight result cached after cancel, got %#v", entry)
	}
}

func TestDrainRefusesNewComputations(t *testing.T) {
	manager, _ := newManager(t)
	if err := manager.Drain(time.Second); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	var calls atomic.Int64
	_, err := manager.GetOrCompute(context.Background(), unit("late"), constant("x", &calls))
	if !errors.Is(err, cache.ErrDraining) || !errors.Is(err, services.ErrStoreUnavailable) {
		t.Fatalf("expected draining error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatal("compute must not run while draining")
	}
}

func TestDrainTimesOut(t *testing.T) {
	manager, _ := newManager(t)
	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	go func() {
		_, _ = manager.GetOrCompute(context.Background(), unit("slow"), func(context.Context) (cache.Output, error) {
			close(started)
			<-release
			return cache.Output{Payload: []byte("x")}, nil
		})
	}()
	<-started
	if err := manager.Drain(20 * time.Millisecond); err == nil {
		t.Fatal("expected drain timeout")
	}
}

type failingBackend struct {
	cache.Backend
	getErr error
	putErr error
}

func (f failingBackend) Get(ctx context.Context, fp fingerprint.Fingerprint) (*artifacts.Entry, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.Backend.Get(ctx, fp)
}

func (f failingBackend) Put(ctx context.Context, fp fingerprint.Fingerprint, payload []byte, meta artifacts.Metadata) (*artifacts.Entry, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	return f.Backend.Put(ctx, fp, payload, meta)
}

func TestStoreErrorsAreClassified(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	var calls atomic.Int64

	tests := []struct {
		name    string
		backend failingBackend
		want    error
		compute int64
	}{
		{"lookup failure", failingBackend{Backend: store, getErr: errors.New("disk I/O error")}, services.ErrStoreUnavailable, 0},
		{"put failure", failingBackend{Backend: store, putErr: errors.New("disk full")}, services.ErrStoreUnavailable, 1},
		{"payload mismatch", failingBackend{Backend: store, putErr: fmt.Errorf("%w: fp", artifacts.ErrPayloadMismatch)}, services.ErrFingerprintCollision, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls.Store(0)
			manager := cache.NewManager(tt.backend, fingerprint.NewBuilder("test"), logging.NewNop())
			_, err := manager.GetOrCompute(context.Background(), unit(tt.name), constant("x", &calls))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !services.IsFatal(err) {
				t.Fatalf("expected fatal classification for %v", err)
			}
			if calls.Load() != tt.compute {
				t.Fatalf("expected %d computes, got %d", tt.compute, calls.Load())
			}
		})
	}
}

func TestSpendRecordedOnMissOnly(t *testing.T) {
	manager, store := newManager(t)
	ctx := services.WithRunID(context.Background(), "run-7")
	compute := func(context.Context) (cache.Output, error) {
		return cache.Output{Payload: []byte("p"), CostUSD: 0.3}, nil
	}
	for i := 0; i < 3; i++ {
		if _, err := manager.GetOrCompute(ctx, unit("billed"), compute); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := store.SpentByRun(ctx, 0)
	if err != nil {
		t.Fatalf("SpentByRun: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-7" || runs[0].Computes != 1 || runs[0].TotalUSD != 0.3 {
		t.Fatalf("unexpected ledger %#v", runs)
	}
}

func TestApplyPolicyAndPurge(t *testing.T) {
	manager, _ := newManager(t)
	ctx := context.Background()
	var calls atomic.Int64
	for i := 0; i < 4; i++ {
		if _, err := manager.GetOrCompute(ctx, unit(fmt.Sprintf("t%d", i)), constant("0123456789", &calls)); err != nil {
			t.Fatal(err)
		}
	}
	res, err := manager.ApplyPolicy(ctx, cache.Policy{MaxBytes: 25})
	if err != nil {
		t.Fatalf("ApplyPolicy: %v", err)
	}
	if res.Removed != 2 {
		t.Fatalf("expected 2 removals, got %#v", res)
	}
	if res, err := manager.ApplyPolicy(ctx, cache.Policy{}); err != nil || res.Removed != 0 {
		t.Fatalf("disabled policy should be a no-op: %#v %v", res, err)
	}
	stats, err := manager.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Store.Count != 2 || stats.Counters.Computes != 4 {
		t.Fatalf("unexpected stats %#v", stats)
	}
	purged, err := manager.Purge(ctx)
	if err != nil || purged.Removed != 2 {
		t.Fatalf("Purge: %#v %v", purged, err)
	}
}
