package inflight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/inkwell-sys/inkwell/internal/cache"
	"github.com/inkwell-sys/inkwell/internal/fingerprint"
)

func mustFingerprint(t *testing.T, content string) fingerprint.Fingerprint {
	t.Helper()
	fp, err := fingerprint.New(fingerprint.KindBookSummary, content)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	return fp
}

func newTestCoordinator() *Coordinator {
	provider := cache.NewLayered(cache.New(time.Hour, 0), nil)
	return New(provider, time.Hour)
}

func TestResolveComputesOnceAndCaches(t *testing.T) {
	coord := newTestCoordinator()
	fp := mustFingerprint(t, "book a full text")

	var calls int32
	compute := func(ctx context.Context) (Result, error) {
		atomic.AddInt32(&calls, 1)
		return Result{Text: "generated", ModelVersion: "v1"}, nil
	}

	entry, err := coord.Resolve(context.Background(), fp, compute)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if entry.Result != "generated" {
		t.Errorf("Result = %q", entry.Result)
	}

	// Second resolve is served from cache without invoking the backend.
	entry2, err := coord.Resolve(context.Background(), fp, compute)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if entry2.Result != "generated" {
		t.Errorf("Result = %q", entry2.Result)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("compute called %d times, want 1", got)
	}
}

func TestResolveCollapsesConcurrentCallers(t *testing.T) {
	coord := newTestCoordinator()
	fp := mustFingerprint(t, "never seen before")

	const waiters = 20
	var calls int32
	release := make(chan struct{})

	compute := func(ctx context.Context) (Result, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return Result{Text: "shared result", ModelVersion: "v1"}, nil
	}

	var wg sync.WaitGroup
	results := make([]string, waiters)
	errs := make([]error, waiters)

	started := make(chan struct{}, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started <- struct{}{}
			entry, err := coord.Resolve(context.Background(), fp, compute)
			results[i], errs[i] = entry.Result, err
		}(i)
	}

	// Wait until all goroutines are launched, give them time to join the
	// ticket, then let the single computation finish.
	for i := 0; i < waiters; i++ {
		<-started
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("compute called %d times, want 1", got)
	}
	for i := 0; i < waiters; i++ {
		if errs[i] != nil {
			t.Fatalf("waiter %d error: %v", i, errs[i])
		}
		if results[i] != "shared result" {
			t.Errorf("waiter %d result = %q", i, results[i])
		}
	}
}

func TestResolveFailurePropagatesToAllWaiters(t *testing.T) {
	coord := newTestCoordinator()
	fp := mustFingerprint(t, "doomed generation")
	backendErr := errors.New("backend exploded")

	const waiters = 5
	var calls int32
	release := make(chan struct{})

	compute := func(ctx context.Context) (Result, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return Result{}, backendErr
	}

	var wg sync.WaitGroup
	errs := make([]error, waiters)
	started := make(chan struct{}, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started <- struct{}{}
			_, errs[i] = coord.Resolve(context.Background(), fp, compute)
		}(i)
	}
	for i := 0; i < waiters; i++ {
		<-started
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("compute called %d times, want 1 (no per-waiter retry)", got)
	}
	for i, err := range errs {
		if !errors.Is(err, backendErr) {
			t.Errorf("waiter %d error = %v, want backend error", i, err)
		}
	}

	// A failed ticket is not cached; the next resolve computes again.
	okCompute := func(ctx context.Context) (Result, error) {
		return Result{Text: "recovered"}, nil
	}
	entry, err := coord.Resolve(context.Background(), fp, okCompute)
	if err != nil {
		t.Fatalf("Resolve after failure: %v", err)
	}
	if entry.Result != "recovered" {
		t.Errorf("Result = %q", entry.Result)
	}
}

func TestResolveWithoutCacheFailsOpen(t *testing.T) {
	coord := New(nil, time.Hour)
	fp := mustFingerprint(t, "cacheless world")

	var calls int32
	compute := func(ctx context.Context) (Result, error) {
		atomic.AddInt32(&calls, 1)
		return Result{Text: "fresh"}, nil
	}

	for i := 0; i < 3; i++ {
		entry, err := coord.Resolve(context.Background(), fp, compute)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if entry.Result != "fresh" {
			t.Errorf("Result = %q", entry.Result)
		}
	}

	// No cache means every sequential resolve computes fresh.
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("compute called %d times, want 3", got)
	}
}

func TestResolveAbandonedCallerDoesNotCancelGeneration(t *testing.T) {
	provider := cache.NewLayered(cache.New(time.Hour, 0), nil)
	coord := New(provider, time.Hour)
	fp := mustFingerprint(t, "slow generation")

	computeStarted := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	compute := func(ctx context.Context) (Result, error) {
		close(computeStarted)
		select {
		case <-release:
		case <-ctx.Done():
			t.Error("shared generation was canceled by an abandoning caller")
			return Result{}, ctx.Err()
		}
		close(done)
		return Result{Text: "finished anyway", ModelVersion: "v1"}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-computeStarted
		cancel()
	}()

	_, err := coord.Resolve(ctx, fp, compute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("abandoning caller got %v, want context.Canceled", err)
	}

	// The computation keeps running and completes into the cache.
	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("computation did not complete after caller abandoned")
	}

	// The result lands in the cache despite the abandoned caller.
	deadline := time.Now().Add(time.Second)
	for {
		if entry, ok := provider.Get(context.Background(), fp); ok {
			if entry.Result != "finished anyway" {
				t.Fatalf("cached Result = %q", entry.Result)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("cached result never appeared")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestInvalidateForcesRecompute(t *testing.T) {
	coord := newTestCoordinator()
	fp := mustFingerprint(t, "stale content")

	var calls int32
	compute := func(ctx context.Context) (Result, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return Result{Text: "old"}, nil
		}
		return Result{Text: "new"}, nil
	}

	if _, err := coord.Resolve(context.Background(), fp, compute); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	coord.Invalidate(context.Background(), fp)

	entry, err := coord.Resolve(context.Background(), fp, compute)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if entry.Result != "new" {
		t.Errorf("Result = %q, want recomputed value", entry.Result)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("compute called %d times, want 2", got)
	}
}
