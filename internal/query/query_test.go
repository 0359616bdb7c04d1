package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestClient(staleTime time.Duration, opts ...Option) (*Client, *clock) {
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(staleTime, opts...)
	c.now = clk.now
	c.lastSweep = clk.now()
	return c, clk
}

func counter(calls *atomic.Int32, value string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		calls.Add(1)
		return value, nil
	}
}

func mustFetch[T any](t *testing.T, c *Client, key Key, fn func(context.Context) (T, error)) T {
	t.Helper()
	v, err := Fetch(context.Background(), c, key, fn)
	if err != nil {
		t.Fatalf("Fetch %s failed: %v", key, err)
	}
	return v
}

func TestKey(t *testing.T) {
	if got := (Key{"recipe", 7}).String(); got != "recipe/7" {
		t.Errorf("Expected 'recipe/7', got '%s'", got)
	}

	tests := []struct {
		key, prefix Key
		want        bool
	}{
		{Key{"recipe", 7}, Key{"recipe"}, true},
		{Key{"recipe", 7}, Key{"recipe", "7"}, true},
		{Key{"recipes"}, Key{"recipe"}, false},
		{Key{"recipe"}, Key{"recipe", 7}, false},
		{Key{"recipes"}, Key{}, true},
	}
	for _, tt := range tests {
		if got := tt.key.HasPrefix(tt.prefix); got != tt.want {
			t.Errorf("%v.HasPrefix(%v) = %v, want %v", tt.key, tt.prefix, got, tt.want)
		}
	}
}

func TestFetchCachesWhileFresh(t *testing.T) {
	c, clk := newTestClient(30 * time.Second)
	var calls atomic.Int32

	if v := mustFetch(t, c, Key{"recipes"}, counter(&calls, "first")); v != "first" {
		t.Errorf("Expected 'first', got '%s'", v)
	}

	clk.advance(10 * time.Second)
	if v := mustFetch(t, c, Key{"recipes"}, counter(&calls, "second")); v != "first" {
		t.Errorf("Expected the cached 'first', got '%s'", v)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 call while fresh, got %d", calls.Load())
	}

	clk.advance(30 * time.Second)
	if v := mustFetch(t, c, Key{"recipes"}, counter(&calls, "third")); v != "third" {
		t.Errorf("Expected 'third' once stale, got '%s'", v)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 calls, got %d", calls.Load())
	}
}

func TestFetchZeroStaleTimeAlwaysRefetches(t *testing.T) {
	c, _ := newTestClient(0)
	var calls atomic.Int32

	for i := 0; i < 3; i++ {
		mustFetch(t, c, Key{"recipes"}, counter(&calls, "v"))
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 calls, got %d", calls.Load())
	}
}

func TestFetchErrorsAreNotCached(t *testing.T) {
	c, _ := newTestClient(time.Minute)
	boom := errors.New("boom")

	_, err := Fetch(context.Background(), c, Key{"recipe", 1}, func(context.Context) (string, error) {
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
	if _, ok := c.Peek(Key{"recipe", 1}); ok {
		t.Errorf("Expected no cached value after an error")
	}

	v := mustFetch(t, c, Key{"recipe", 1}, func(context.Context) (string, error) { return "ok", nil })
	if v != "ok" {
		t.Errorf("Expected 'ok', got '%s'", v)
	}
}

func TestFailedFetchesLeaveNoEntries(t *testing.T) {
	c, _ := newTestClient(time.Minute)
	notFound := errors.New("not found")

	for i := 0; i < 1000; i++ {
		_, err := Fetch(context.Background(), c, Key{"recipe", i}, func(context.Context) (string, error) {
			return "", notFound
		})
		if !errors.Is(err, notFound) {
			t.Fatalf("Expected not found, got %v", err)
		}
	}
	if n := c.Len(); n != 0 {
		t.Errorf("Expected no entries after failed fetches, got %d", n)
	}

	// a failure after data was cached keeps the old data
	mustFetch(t, c, Key{"recipes"}, func(context.Context) (string, error) { return "list", nil })
	c.Invalidate(Key{"recipes"})
	Fetch(context.Background(), c, Key{"recipes"}, func(context.Context) (string, error) {
		return "", notFound
	})
	if v, ok := c.Peek(Key{"recipes"}); !ok || v != "list" {
		t.Errorf("Expected the earlier list to stay cached, got %v (%v)", v, ok)
	}
}

func TestIdleEntriesAreCollected(t *testing.T) {
	c, clk := newTestClient(time.Second, WithGCTime(time.Minute))
	_, unsubscribe := c.Subscribe(Key{"recipes"})
	defer unsubscribe()

	for i := 1; i <= 50; i++ {
		id := i
		mustFetch(t, c, Key{"recipe", id}, func(context.Context) (string, error) {
			return fmt.Sprintf("recipe %d", id), nil
		})
	}
	mustFetch(t, c, Key{"recipes"}, func(context.Context) (string, error) { return "list", nil })
	if n := c.Len(); n != 51 {
		t.Fatalf("Expected 51 entries, got %d", n)
	}

	clk.advance(30 * time.Second)
	mustFetch(t, c, Key{"recipe", 1}, func(context.Context) (string, error) { return "fresh", nil })
	if n := c.Len(); n != 51 {
		t.Errorf("Expected entries younger than the GC time to be kept, got %d", n)
	}

	clk.advance(45 * time.Second)
	mustFetch(t, c, Key{"recipe", 99}, func(context.Context) (string, error) { return "new", nil })

	// recipe/1 was refreshed 45s ago, recipes is watched, recipe/99 is new
	if n := c.Len(); n != 3 {
		t.Errorf("Expected 3 entries after collection, got %d", n)
	}
	for _, k := range []Key{{"recipe", 1}, {"recipes"}, {"recipe", 99}} {
		if _, ok := c.Peek(k); !ok {
			t.Errorf("Expected %s to survive collection", k)
		}
	}
	if _, ok := c.Peek(Key{"recipe", 2}); ok {
		t.Errorf("Expected recipe/2 to be collected")
	}
}

func TestGCTimeNeverShorterThanStaleTime(t *testing.T) {
	c := New(time.Hour, WithGCTime(time.Second))
	if c.gcTime != time.Hour {
		t.Errorf("Expected GC time to be raised to the stale time, got %v", c.gcTime)
	}
	if New(0).gcTime != DefaultGCTime {
		t.Errorf("Expected the default GC time")
	}
}

func TestFetchDeduplicatesConcurrentCalls(t *testing.T) {
	c, _ := newTestClient(time.Minute)
	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})

	fn := func(context.Context) (int, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 5)
	errs := make([]error, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = Fetch(context.Background(), c, Key{"recipes"}, fn)
		}(i)
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("Expected 1 shared call, got %d", calls.Load())
	}
	for i, v := range results {
		if errs[i] != nil || v != 42 {
			t.Errorf("Caller %d: expected 42, got %d (%v)", i, v, errs[i])
		}
	}
}

func TestFetchCancelledCallerDetaches(t *testing.T) {
	c, _ := newTestClient(time.Minute)
	release := make(chan struct{})
	var sawCancel atomic.Bool

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := Fetch(ctx, c, Key{"recipes"}, func(fctx context.Context) (string, error) {
			<-release
			sawCancel.Store(fctx.Err() != nil)
			return "late", nil
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	close(release)
	deadline := time.Now().Add(time.Second)
	for {
		if v, ok := c.Peek(Key{"recipes"}); ok && v == "late" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected the detached call to fill the cache")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if sawCancel.Load() {
		t.Errorf("Expected the shared call not to see the caller's cancellation")
	}
}

func TestInvalidate(t *testing.T) {
	c, _ := newTestClient(time.Hour)
	var calls atomic.Int32

	for _, k := range []Key{{"recipes"}, {"recipe", 1}, {"recipe", 2}} {
		mustFetch(t, c, k, counter(&calls, "v"))
	}
	if calls.Load() != 3 {
		t.Fatalf("Expected 3 calls, got %d", calls.Load())
	}

	if n := c.Invalidate(Key{"recipe"}); n != 2 {
		t.Errorf("Expected 2 entries invalidated, got %d", n)
	}

	mustFetch(t, c, Key{"recipes"}, counter(&calls, "v"))
	if calls.Load() != 3 {
		t.Errorf("Expected the list entry to still be fresh, got %d calls", calls.Load())
	}

	mustFetch(t, c, Key{"recipe", 2}, counter(&calls, "v"))
	if calls.Load() != 4 {
		t.Errorf("Expected a refetch of recipe/2, got %d calls", calls.Load())
	}

	if n := c.Invalidate(Key{"unknown"}); n != 0 {
		t.Errorf("Expected 0 entries invalidated, got %d", n)
	}
}

func TestInvalidateDuringFetchStoresStale(t *testing.T) {
	c, _ := newTestClient(time.Hour)
	release := make(chan struct{})
	started := make(chan struct{})

	done := make(chan string, 1)
	go func() {
		v, _ := Fetch(context.Background(), c, Key{"recipes"}, func(context.Context) (string, error) {
			close(started)
			<-release
			return "before-write", nil
		})
		done <- v
	}()

	<-started
	c.Invalidate(Key{"recipes"})

	var calls atomic.Int32
	if v := mustFetch(t, c, Key{"recipes"}, counter(&calls, "after-write")); v != "after-write" {
		t.Errorf("Expected a fetch after invalidation not to join the earlier call, got '%s'", v)
	}

	close(release)
	if v := <-done; v != "before-write" {
		t.Errorf("Expected the earlier caller to get 'before-write', got '%s'", v)
	}

	// the late result must not replace the newer data
	if cached, ok := c.Peek(Key{"recipes"}); !ok || cached != "after-write" {
		t.Errorf("Expected 'after-write' to stay cached, got %v", cached)
	}

	if v := mustFetch(t, c, Key{"recipes"}, counter(&calls, "again")); v != "after-write" {
		t.Errorf("Expected the cached 'after-write', got '%s'", v)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 call, got %d", calls.Load())
	}
}

func TestSubscribe(t *testing.T) {
	c, _ := newTestClient(time.Hour)
	events, unsubscribe := c.Subscribe(Key{"recipes"})
	singles, unsubscribeSingles := c.Subscribe(Key{"recipe"})
	defer unsubscribeSingles()

	mustFetch(t, c, Key{"recipes"}, func(context.Context) (int, error) { return 1, nil })
	c.Invalidate(Key{"recipes"})
	c.Invalidate(Key{"recipe", 9})

	if ev := <-events; ev.Type != Updated {
		t.Errorf("Expected an update event first, got %v", ev.Type)
	}
	ev := <-events
	if ev.Type != Invalidated || ev.Key.String() != "recipes" {
		t.Errorf("Expected invalidation of recipes, got %v %s", ev.Type, ev.Key)
	}
	if len(events) != 0 {
		t.Errorf("Expected no further events, got %d", len(events))
	}

	ev = <-singles
	if ev.Type != Invalidated || ev.Key.String() != "recipe/9" {
		t.Errorf("Expected invalidation of recipe/9, got %v %s", ev.Type, ev.Key)
	}

	unsubscribe()
	unsubscribe()
	if _, open := <-events; open {
		t.Errorf("Expected the channel to be closed after unsubscribe")
	}
}

func TestSubscribeDropsWhenFull(t *testing.T) {
	c, _ := newTestClient(time.Hour)
	events, unsubscribe := c.Subscribe(Key{"recipes"})
	defer unsubscribe()

	for i := 0; i < subscriberBuffer+5; i++ {
		c.Invalidate(Key{"recipes"})
	}
	if len(events) != subscriberBuffer {
		t.Errorf("Expected %d buffered events, got %d", subscriberBuffer, len(events))
	}
}
