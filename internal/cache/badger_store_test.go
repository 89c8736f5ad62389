package cache

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
)

func newTestBadgerStore(t *testing.T) (*BadgerStore, *fakeClock) {
	t.Helper()

	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clock := &fakeClock{current: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewBadgerStore(db)
	store.now = clock.now
	return store, clock
}

func TestBadgerStorePutGet(t *testing.T) {
	store, clock := newTestBadgerStore(t)
	fp := mustFingerprint(t, "persisted book")
	ctx := context.Background()

	err := store.Put(ctx, Entry{
		Fingerprint:  fp,
		Result:       "durable summary",
		ModelVersion: "llama3",
		ExpiresAt:    clock.now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	entry, ok, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected hit")
	}
	if entry.Result != "durable summary" || entry.ModelVersion != "llama3" {
		t.Errorf("entry = %+v", entry)
	}
}

func TestBadgerStoreMiss(t *testing.T) {
	store, _ := newTestBadgerStore(t)

	_, ok, err := store.Get(context.Background(), mustFingerprint(t, "never stored"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected miss")
	}
}

func TestBadgerStoreExpiredNotServed(t *testing.T) {
	store, clock := newTestBadgerStore(t)
	fp := mustFingerprint(t, "short lived")
	ctx := context.Background()

	store.Put(ctx, Entry{
		Fingerprint: fp,
		Result:      "r",
		ExpiresAt:   clock.now().Add(time.Minute),
	})

	// ExpiresAt is re-checked on read, independent of Badger's own TTL.
	clock.advance(2 * time.Minute)
	if _, ok, err := store.Get(ctx, fp); err != nil || ok {
		t.Fatalf("expired entry served: ok=%v err=%v", ok, err)
	}
}

func TestBadgerStorePutAlreadyExpired(t *testing.T) {
	store, clock := newTestBadgerStore(t)
	fp := mustFingerprint(t, "stillborn entry")
	ctx := context.Background()

	// Writing an entry that is already past expiry is a silent no-op.
	if err := store.Put(ctx, Entry{Fingerprint: fp, Result: "r", ExpiresAt: clock.now().Add(-time.Minute)}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok, _ := store.Get(ctx, fp); ok {
		t.Fatal("expired-at-write entry was stored")
	}
}

func TestBadgerStoreInvalidate(t *testing.T) {
	store, clock := newTestBadgerStore(t)
	fp := mustFingerprint(t, "removed book")
	ctx := context.Background()

	store.Put(ctx, Entry{Fingerprint: fp, Result: "r", ExpiresAt: clock.now().Add(time.Hour)})
	if err := store.Invalidate(ctx, fp); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok, _ := store.Get(ctx, fp); ok {
		t.Fatal("entry survived invalidation")
	}

	// Invalidating an absent key is a no-op.
	if err := store.Invalidate(ctx, mustFingerprint(t, "absent")); err != nil {
		t.Fatalf("Invalidate absent: %v", err)
	}
}

func TestBadgerStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	fpContent := "restart survivor"
	ctx := context.Background()

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	store := NewBadgerStore(db)
	fp := mustFingerprint(t, fpContent)
	if err := store.Put(ctx, Entry{Fingerprint: fp, Result: "still here", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err = badger.Open(opts)
	if err != nil {
		t.Fatalf("reopen badger: %v", err)
	}
	defer db.Close()

	entry, ok, err := NewBadgerStore(db).Get(ctx, fp)
	if err != nil || !ok {
		t.Fatalf("Get after reopen: ok=%v err=%v", ok, err)
	}
	if entry.Result != "still here" {
		t.Errorf("Result = %q", entry.Result)
	}
}
