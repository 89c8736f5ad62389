package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inkwell-sys/inkwell/internal/fingerprint"
)

// flakyStore is a durable tier that can be switched into a failing state.
type flakyStore struct {
	entries map[fingerprint.Fingerprint]Entry
	failing bool
	puts    int
	gets    int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{entries: make(map[fingerprint.Fingerprint]Entry)}
}

var errStoreDown = errors.New("store down")

func (s *flakyStore) Get(ctx context.Context, fp fingerprint.Fingerprint) (Entry, bool, error) {
	s.gets++
	if s.failing {
		return Entry{}, false, errStoreDown
	}
	entry, ok := s.entries[fp]
	return entry, ok, nil
}

func (s *flakyStore) Put(ctx context.Context, entry Entry) error {
	s.puts++
	if s.failing {
		return errStoreDown
	}
	s.entries[entry.Fingerprint] = entry
	return nil
}

func (s *flakyStore) Invalidate(ctx context.Context, fp fingerprint.Fingerprint) error {
	if s.failing {
		return errStoreDown
	}
	delete(s.entries, fp)
	return nil
}

func TestLayeredWritesBothTiers(t *testing.T) {
	memory, _ := newTestCache(time.Hour, 0)
	store := newFlakyStore()
	layered := NewLayered(memory, store)
	fp := mustFingerprint(t, "durable book")

	layered.Put(context.Background(), Entry{
		Fingerprint: fp,
		Result:      "summary",
		ExpiresAt:   memory.now().Add(time.Hour),
	})

	if _, ok := memory.Get(fp); !ok {
		t.Error("entry missing from memory tier")
	}
	if _, ok := store.entries[fp]; !ok {
		t.Error("entry missing from durable tier")
	}
}

func TestLayeredDurableHitRepopulatesMemory(t *testing.T) {
	memory, clock := newTestCache(time.Hour, 0)
	store := newFlakyStore()
	layered := NewLayered(memory, store)
	fp := mustFingerprint(t, "only on disk")

	store.entries[fp] = Entry{
		Fingerprint: fp,
		Result:      "from disk",
		ExpiresAt:   clock.now().Add(time.Hour),
	}

	entry, ok := layered.Get(context.Background(), fp)
	if !ok {
		t.Fatal("expected durable hit")
	}
	if entry.Result != "from disk" {
		t.Errorf("Result = %q", entry.Result)
	}

	// Second read must come from memory without touching the store again.
	gets := store.gets
	if _, ok := layered.Get(context.Background(), fp); !ok {
		t.Fatal("expected memory hit")
	}
	if store.gets != gets {
		t.Error("memory tier was not repopulated")
	}
}

func TestLayeredFailOpenOnRead(t *testing.T) {
	memory, _ := newTestCache(time.Hour, 0)
	store := newFlakyStore()
	store.failing = true
	layered := NewLayered(memory, store)

	// A broken durable tier degrades to a miss, never an error or panic.
	if _, ok := layered.Get(context.Background(), mustFingerprint(t, "whatever")); ok {
		t.Fatal("expected miss from failing store")
	}
}

func TestLayeredFailOpenOnWrite(t *testing.T) {
	memory, _ := newTestCache(time.Hour, 0)
	store := newFlakyStore()
	store.failing = true
	layered := NewLayered(memory, store)
	fp := mustFingerprint(t, "memory only")

	layered.Put(context.Background(), Entry{
		Fingerprint: fp,
		Result:      "kept in memory",
		ExpiresAt:   memory.now().Add(time.Hour),
	})

	// The entry survives in the memory tier despite the durable failure.
	if entry, ok := layered.Get(context.Background(), fp); !ok || entry.Result != "kept in memory" {
		t.Fatalf("memory tier lost the entry: ok=%v entry=%+v", ok, entry)
	}
}

func TestLayeredMemoryOnly(t *testing.T) {
	memory, _ := newTestCache(time.Hour, 0)
	layered := NewLayered(memory, nil)
	fp := mustFingerprint(t, "no durable tier")

	layered.Put(context.Background(), Entry{
		Fingerprint: fp,
		Result:      "r",
		ExpiresAt:   memory.now().Add(time.Hour),
	})
	if _, ok := layered.Get(context.Background(), fp); !ok {
		t.Fatal("expected hit")
	}

	layered.Invalidate(context.Background(), fp)
	if _, ok := layered.Get(context.Background(), fp); ok {
		t.Fatal("expected miss after invalidation")
	}
}
