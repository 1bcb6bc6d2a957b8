package coalesce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(ttl time.Duration, max int) (*Cache[string], *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string](ttl, max)
	c.now = clock.Now
	return c, clock
}

func constFetch(calls *atomic.Int32, v string) Fetch[string] {
	return func(ctx context.Context) (string, error) {
		calls.Add(1)
		return v, nil
	}
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestGetCoalescesConcurrentCallers(t *testing.T) {
	c, _ := newTestCache(time.Minute, 0)
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "v", nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = c.Get(context.Background(), "k", fetch)
	}()
	<-started
	for i := 1; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Get(context.Background(), "k", fetch)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("fetch called %d times, want 1", calls.Load())
	}
	for i := range n {
		if errs[i] != nil || results[i] != "v" {
			t.Errorf("caller %d: %q %v", i, results[i], errs[i])
		}
	}
}

func TestGetFreshHitSkipsFetch(t *testing.T) {
	c, clock := newTestCache(time.Minute, 0)
	var calls atomic.Int32
	for range 3 {
		v, err := c.Get(context.Background(), "k", constFetch(&calls, "v"))
		if err != nil || v != "v" {
			t.Fatalf("get: %q %v", v, err)
		}
		clock.Advance(10 * time.Second)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if v, ok := c.Peek("k"); !ok || v != "v" {
		t.Errorf("peek = %q %v", v, ok)
	}
}

func TestGetStaleReturnsOldAndRefreshes(t *testing.T) {
	c, clock := newTestCache(time.Minute, 0)
	var calls atomic.Int32
	if _, err := c.Get(context.Background(), "k", constFetch(&calls, "old")); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Minute)

	v, err := c.Get(context.Background(), "k", constFetch(&calls, "new"))
	if err != nil || v != "old" {
		t.Fatalf("stale get = %q %v, want old value", v, err)
	}
	waitFor(t, func() bool {
		v, _ := c.Peek("k")
		return v == "new"
	})
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestFailedRefreshKeepsStale(t *testing.T) {
	c, clock := newTestCache(time.Minute, 0)
	var calls atomic.Int32
	if _, err := c.Get(context.Background(), "k", constFetch(&calls, "old")); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Minute)

	var failed atomic.Bool
	v, err := c.Get(context.Background(), "k", func(ctx context.Context) (string, error) {
		failed.Store(true)
		return "", errors.New("backend down")
	})
	if err != nil || v != "old" {
		t.Fatalf("get = %q %v", v, err)
	}
	waitFor(t, failed.Load)
	time.Sleep(10 * time.Millisecond)
	if v, ok := c.Peek("k"); !ok || v != "old" {
		t.Errorf("peek = %q %v, want stale value kept", v, ok)
	}
}

func TestErrorsAreNotCached(t *testing.T) {
	c, _ := newTestCache(time.Minute, 0)
	boom := errors.New("boom")
	var calls atomic.Int32
	failing := func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", boom
	}
	if _, err := c.Get(context.Background(), "k", failing); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if _, err := c.Get(context.Background(), "k", failing); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if c.Len() != 0 {
		t.Errorf("len = %d", c.Len())
	}
}

func TestCanceledCallerDoesNotAbortSharedFetch(t *testing.T) {
	c, _ := newTestCache(time.Minute, 0)
	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, "k", func(fctx context.Context) (string, error) {
			<-release
			return "v", fctx.Err()
		})
		done <- err
	}()
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	close(release)
	waitFor(t, func() bool {
		v, ok := c.Peek("k")
		return ok && v == "v"
	})
}

func TestEvictsOldestEntries(t *testing.T) {
	c, _ := newTestCache(time.Minute, 2)
	var calls atomic.Int32
	for _, k := range []string{"a", "b", "c"} {
		if _, err := c.Get(context.Background(), k, constFetch(&calls, k)); err != nil {
			t.Fatal(err)
		}
	}
	if c.Len() != 2 {
		t.Fatalf("len = %d", c.Len())
	}
	if _, ok := c.Peek("a"); ok {
		t.Error("oldest entry should be evicted")
	}
	if _, ok := c.Peek("c"); !ok {
		t.Error("newest entry should remain")
	}
}

func TestPurgeDiscardsInFlightResult(t *testing.T) {
	c, _ := newTestCache(time.Minute, 0)
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan string, 1)
	go func() {
		v, _ := c.Get(context.Background(), "k", func(ctx context.Context) (string, error) {
			close(started)
			<-release
			return "before-purge", nil
		})
		done <- v
	}()
	<-started
	c.Purge()

	// a caller arriving after Purge must not join the earlier load
	got, err := c.Get(context.Background(), "k", func(ctx context.Context) (string, error) {
		return "after-purge", nil
	})
	if err != nil || got != "after-purge" {
		t.Fatalf("post-purge Get = %q, %v; want after-purge", got, err)
	}

	close(release)
	if v := <-done; v != "before-purge" {
		t.Errorf("waiter got %q", v)
	}
	if v, ok := c.Peek("k"); !ok || v != "after-purge" {
		t.Errorf("Peek = %q, %v; result of a load started before Purge must not be stored", v, ok)
	}
}

func TestInvalidate(t *testing.T) {
	c, _ := newTestCache(time.Minute, 0)
	var calls atomic.Int32
	c.Get(context.Background(), "k", constFetch(&calls, "v"))
	c.Invalidate("k")
	c.Get(context.Background(), "k", constFetch(&calls, "v"))
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestOrientationKey(t *testing.T) {
	a := OrientationKey([]string{"https://b", "https://a", "https://b"})
	b := OrientationKey([]string{"https://a", "https://b"})
	if a != b {
		t.Errorf("keys differ: %q vs %q", a, b)
	}
	in := []string{"z", "y"}
	OrientationKey(in)
	if in[0] != "z" {
		t.Error("OrientationKey must not reorder its input")
	}
	if SimilarKey("42") != "42" {
		t.Error("similar key")
	}
}
