package artifacts_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"constellation/internal/artifacts"
	"constellation/internal/fingerprint"
	"constellation/internal/testsupport"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func fp(name string) fingerprint.Fingerprint {
	return fingerprint.Fingerprint(fingerprint.DigestString(name))
}

func TestPutThenGetCountsHits(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	created, err := store.Put(ctx, fp("a"), []byte("payload"), artifacts.Metadata{Stage: fingerprint.StageResearch, Language: "english"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if created.SizeBytes != 7 || created.HitCount != 0 {
		t.Fatalf("unexpected created entry %#v", created)
	}
	if created.PayloadDigest != fingerprint.PayloadDigest([]byte("payload")) {
		t.Fatalf("unexpected digest %s", created.PayloadDigest)
	}

	for i := 1; i <= 2; i++ {
		got, err := store.Get(ctx, fp("a"))
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got == nil || string(got.Payload) != "payload" {
			t.Fatalf("unexpected entry %#v", got)
		}
		if got.HitCount != int64(i) {
			t.Fatalf("expected hit count %d, got %d", i, got.HitCount)
		}
		if got.LastHitAt.IsZero() {
			t.Fatal("expected last hit time")
		}
	}

	peeked, err := store.Peek(ctx, fp("a"))
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if peeked.HitCount != 2 {
		t.Fatalf("peek should not count hits, got %d", peeked.HitCount)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	entry, err := store.Get(context.Background(), fp("missing"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected nil entry, got %#v", entry)
	}
}

func TestPutIdempotentForIdenticalPayload(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	meta := artifacts.Metadata{Stage: fingerprint.StageDialogue}

	first, err := store.Put(ctx, fp("s"), []byte("script"), meta)
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}
	second, err := store.Put(ctx, fp("s"), []byte("script"), meta)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if !first.CreatedAt.Equal(second.CreatedAt) {
		t.Fatalf("idempotent put should keep original entry: %v vs %v", first.CreatedAt, second.CreatedAt)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Count != 1 {
		t.Fatalf("expected one entry, got %d", stats.Count)
	}
}

func TestPutRejectsDifferentPayload(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	meta := artifacts.Metadata{Stage: fingerprint.StageDialogue}

	if _, err := store.Put(ctx, fp("s"), []byte("v1"), meta); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_, err := store.Put(ctx, fp("s"), []byte("v2"), meta)
	if !errors.Is(err, artifacts.ErrPayloadMismatch) {
		t.Fatalf("expected ErrPayloadMismatch, got %v", err)
	}
	got, err := store.Peek(ctx, fp("s"))
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if string(got.Payload) != "v1" {
		t.Fatalf("payload was overwritten: %q", got.Payload)
	}
}

func TestPutRequiresStage(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if _, err := store.Put(context.Background(), fp("x"), []byte("x"), artifacts.Metadata{}); err == nil {
		t.Fatal("expected error without stage")
	}
}

func TestEntriesSurviveReopen(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := artifacts.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := store.Put(context.Background(), fp("durable"), []byte("audio"), artifacts.Metadata{Stage: fingerprint.StageSynthesize, Language: "tamil"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	got, err := reopened.Get(context.Background(), fp("durable"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || string(got.Payload) != "audio" || got.Language != "tamil" {
		t.Fatalf("unexpected entry after reopen %#v", got)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := artifacts.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store.Close()

	db, err := sql.Open("sqlite", cfg.Cache.DBPath)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("update version: %v", err)
	}
	db.Close()

	if _, err := artifacts.Open(cfg); !errors.Is(err, artifacts.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestEvictOlderThan(t *testing.T) {
	clock := newFakeClock()
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t), artifacts.WithClock(clock.Now))
	ctx := context.Background()

	testsupport.PutArtifact(t, store, fp("old"), fingerprint.StageResearch, "0123456789")
	clock.Advance(48 * time.Hour)
	testsupport.PutArtifact(t, store, fp("new"), fingerprint.StageResearch, "01234")

	result, err := store.EvictOlderThan(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("EvictOlderThan: %v", err)
	}
	if result.Removed != 1 || result.FreedBytes != 10 {
		t.Fatalf("unexpected result %#v", result)
	}
	if got, _ := store.Peek(ctx, fp("old")); got != nil {
		t.Fatal("old entry should be gone")
	}
	if got, _ := store.Peek(ctx, fp("new")); got == nil {
		t.Fatal("new entry should remain")
	}

	if result, err := store.EvictOlderThan(ctx, 0); err != nil || result.Removed != 0 {
		t.Fatalf("zero age should be a no-op: %#v %v", result, err)
	}
}

func TestEvictBySizeRemovesLeastRecentlyUsed(t *testing.T) {
	clock := newFakeClock()
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t), artifacts.WithClock(clock.Now))
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		testsupport.PutArtifact(t, store, fp(name), fingerprint.StageSynthesize, "0123456789")
		clock.Advance(time.Minute)
	}
	// Touch "a" so "b" becomes the least recently used.
	if _, err := store.Get(ctx, fp("a")); err != nil {
		t.Fatalf("Get: %v", err)
	}

	result, err := store.EvictBySize(ctx, 20)
	if err != nil {
		t.Fatalf("EvictBySize: %v", err)
	}
	if result.Removed != 1 || result.FreedBytes != 10 {
		t.Fatalf("unexpected result %#v", result)
	}
	if got, _ := store.Peek(ctx, fp("b")); got != nil {
		t.Fatal("expected b evicted")
	}
	for _, name := range []string{"a", "c"} {
		if got, _ := store.Peek(ctx, fp(name)); got == nil {
			t.Fatalf("expected %s kept", name)
		}
	}

	if result, err := store.EvictBySize(ctx, 1000); err != nil || result.Removed != 0 {
		t.Fatalf("under budget should be a no-op: %#v %v", result, err)
	}
}

func TestListStatsAndPurge(t *testing.T) {
	clock := newFakeClock()
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t), artifacts.WithClock(clock.Now))
	ctx := context.Background()

	testsupport.PutArtifact(t, store, fp("r"), fingerprint.StageResearch, "rr")
	clock.Advance(time.Second)
	if _, err := store.Put(ctx, fp("t"), []byte("tttt"), artifacts.Metadata{Stage: fingerprint.StageTransform, Language: "hindi"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	all, err := store.List(ctx, artifacts.ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].Fingerprint != fp("t") {
		t.Fatalf("expected newest first, got %#v", all)
	}
	if all[0].Payload != nil {
		t.Fatal("list should not load payloads")
	}

	filtered, err := store.List(ctx, artifacts.ListFilter{Stage: fingerprint.StageTransform, Language: "hindi"})
	if err != nil {
		t.Fatalf("List filtered: %v", err)
	}
	if len(filtered) != 1 {
		t.Fatalf("expected one filtered entry, got %d", len(filtered))
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Count != 2 || stats.TotalBytes != 6 || len(stats.ByStage) != 2 {
		t.Fatalf("unexpected stats %#v", stats)
	}
	if !stats.Newest.After(stats.Oldest) {
		t.Fatalf("expected newest after oldest: %#v", stats)
	}

	purged, err := store.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if purged.Removed != 2 || purged.FreedBytes != 6 {
		t.Fatalf("unexpected purge result %#v", purged)
	}
}

func TestConcurrentPutsOfDistinctFingerprints(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("branch-%d", i)
			if _, err := store.Put(ctx, fp(name), []byte(name), artifacts.Metadata{Stage: fingerprint.StageTransform}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Put: %v", err)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Count != 16 {
		t.Fatalf("expected 16 entries, got %d", stats.Count)
	}
}

func TestSpendLedger(t *testing.T) {
	clock := newFakeClock()
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t), artifacts.WithClock(clock.Now))
	ctx := context.Background()

	record := func(run string, cost float64) {
		t.Helper()
		if err := store.RecordSpend(ctx, artifacts.SpendRecord{RunID: run, Stage: fingerprint.StageResearch, Fingerprint: fp(run), CostUSD: cost}); err != nil {
			t.Fatalf("RecordSpend: %v", err)
		}
	}
	record("run-1", 1.5)
	clock.Advance(30 * time.Hour)
	record("run-2", 0.25)
	record("run-2", 0.25)

	spent, err := store.SpentSince(ctx, clock.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("SpentSince: %v", err)
	}
	if spent != 0.5 {
		t.Fatalf("expected 0.5 in trailing day, got %v", spent)
	}

	runs, err := store.SpentByRun(ctx, 0)
	if err != nil {
		t.Fatalf("SpentByRun: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "run-2" || runs[0].Computes != 2 || runs[0].TotalUSD != 0.5 {
		t.Fatalf("unexpected runs %#v", runs)
	}

	if err := store.RecordSpend(ctx, artifacts.SpendRecord{CostUSD: 1}); err == nil {
		t.Fatal("expected error without run id")
	}
}

func TestCheckHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.PutArtifact(t, store, fp("h"), fingerprint.StageResearch, "x")

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists || !health.IntegrityCheck {
		t.Fatalf("unexpected health %#v", health)
	}
	if health.TotalEntries != 1 || health.SchemaVersion != 1 || health.DBPath != cfg.Cache.DBPath {
		t.Fatalf("unexpected health %#v", health)
	}
}
