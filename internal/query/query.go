// Package query is a small request cache in front of the remote store.
//
// Entries are addressed by a Key of ordered parts. A cached value is served
// while it is fresh; concurrent fetches of the same key share one call.
// Writers call Invalidate after the store confirms a change so the next
// reader fetches again. Entries nobody has read or watched for the GC time
// are dropped.
package query

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Key identifies a cache entry, e.g. Key{"recipes"} or Key{"recipe", 7}.
type Key []any

func (k Key) String() string {
	parts := make([]string, len(k))
	for i, p := range k {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, "/")
}

// HasPrefix reports whether prefix matches the leading parts of k.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if fmt.Sprint(k[i]) != fmt.Sprint(prefix[i]) {
			return false
		}
	}
	return true
}

// EventType distinguishes cache events.
type EventType int

const (
	Invalidated EventType = iota
	Updated
)

func (t EventType) String() string {
	switch t {
	case Invalidated:
		return "invalidated"
	case Updated:
		return "updated"
	}
	return "unknown"
}

// Event is delivered to subscribers.
type Event struct {
	Type EventType
	Key  Key
}

const subscriberBuffer = 16

// DefaultGCTime is how long an unused entry is kept after its last update.
const DefaultGCTime = 5 * time.Minute

type entry struct {
	key        Key
	data       any
	hasData    bool
	stale      bool
	updatedAt  time.Time
	generation uint64
	dataGen    uint64
	fetching   int
}

type subscriber struct {
	key Key
	ch  chan Event
}

// Client is a request cache. The zero value is not usable; call New.
type Client struct {
	staleTime time.Duration
	gcTime    time.Duration
	now       func() time.Time

	mu        sync.Mutex
	entries   map[string]*entry
	subs      map[int]*subscriber
	nextSub   int
	lastSweep time.Time

	group singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithGCTime sets how long an entry is kept once nothing has updated it.
// It is never shorter than the stale time.
func WithGCTime(d time.Duration) Option {
	return func(c *Client) {
		c.gcTime = d
	}
}

// New returns a cache whose entries stay fresh for staleTime. A zero
// staleTime makes every Fetch go to the source, still deduplicated.
func New(staleTime time.Duration, opts ...Option) *Client {
	c := &Client{
		staleTime: staleTime,
		gcTime:    DefaultGCTime,
		now:       time.Now,
		entries:   make(map[string]*entry),
		subs:      make(map[int]*subscriber),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.gcTime = max(c.gcTime, c.staleTime)
	return c
}

// Fetch returns the cached value for key while it is fresh and otherwise
// calls fn. Concurrent callers share one call of fn per key. Errors are
// never cached.
//
// If ctx ends first Fetch returns ctx.Err(); the shared call keeps running
// detached from ctx so other waiters and the cache still get its result.
func Fetch[T any](ctx context.Context, c *Client, key Key, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	ks := key.String()

	c.mu.Lock()
	if now := c.now(); now.Sub(c.lastSweep) >= c.gcTime {
		c.sweepLocked(now)
	}
	// The entry exists before the call starts so an Invalidate racing it
	// can detach it.
	e := c.entryLocked(key, ks)
	if e.hasData && !e.stale && c.now().Sub(e.updatedAt) < c.staleTime {
		if v, ok := e.data.(T); ok {
			c.mu.Unlock()
			return v, nil
		}
	}
	c.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(ks, func() (any, error) {
		gen := c.begin(key, ks)
		v, err := fn(detached)
		if err != nil {
			c.abandon(ks)
			return nil, err
		}
		c.store(key, ks, v, gen)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("query %s: cached value has type %T", ks, res.Val)
		}
		return v, nil
	}
}

// Peek returns the cached value for key regardless of freshness.
func (c *Client) Peek(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok || !e.hasData {
		return nil, false
	}
	return e.data, true
}

// Invalidate marks every entry whose key starts with prefix as stale and
// detaches in-flight fetches for them, so the next Fetch starts a new call.
// A fetch already running stores its result as stale. It returns the
// number of entries touched.
func (c *Client) Invalidate(prefix Key) int {
	c.mu.Lock()
	n := 0
	for ks, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		e.stale = true
		e.generation++
		c.group.Forget(ks)
		n++
	}
	c.mu.Unlock()

	c.publish(Event{Type: Invalidated, Key: prefix})
	return n
}

// Subscribe delivers events for keys related to key: events on key itself,
// on keys below it, and invalidations of a prefix of it. Events are dropped
// when the channel is full. The returned func unsubscribes and closes the
// channel.
func (c *Client) Subscribe(key Key) (<-chan Event, func()) {
	sub := &subscriber{key: key, ch: make(chan Event, subscriberBuffer)}

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = sub
	c.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Len returns the number of entries held.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Client) entryLocked(key Key, ks string) *entry {
	e, ok := c.entries[ks]
	if !ok {
		e = &entry{key: key, updatedAt: c.now()}
		c.entries[ks] = e
	}
	return e
}

// begin marks a call for key as running and returns the generation it
// fetches for.
func (c *Client) begin(key Key, ks string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(key, ks)
	e.fetching++
	return e.generation
}

// abandon ends a failed call. An entry that never held data is removed.
func (c *Client) abandon(ks string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[ks]
	if !ok {
		return
	}
	if e.fetching > 0 {
		e.fetching--
	}
	if e.fetching == 0 && !e.hasData {
		delete(c.entries, ks)
	}
}

// sweepLocked drops entries that are idle for the GC time, unless a call
// is running for them or a subscriber watches them.
func (c *Client) sweepLocked(now time.Time) {
	c.lastSweep = now
	for ks, e := range c.entries {
		if e.fetching > 0 || now.Sub(e.updatedAt) < c.gcTime || c.watchedLocked(e.key) {
			continue
		}
		delete(c.entries, ks)
	}
}

func (c *Client) watchedLocked(key Key) bool {
	for _, sub := range c.subs {
		if key.HasPrefix(sub.key) || sub.key.HasPrefix(key) {
			return true
		}
	}
	return false
}

func (c *Client) store(key Key, ks string, v any, gen uint64) {
	c.mu.Lock()
	e := c.entryLocked(key, ks)
	if e.fetching > 0 {
		e.fetching--
	}
	if e.hasData && gen < e.dataGen {
		// a newer fetch already landed
		c.mu.Unlock()
		return
	}
	e.data = v
	e.dataGen = gen
	e.hasData = true
	e.updatedAt = c.now()
	e.stale = e.generation != gen
	c.mu.Unlock()

	c.publish(Event{Type: Updated, Key: key})
}

func (c *Client) publish(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs {
		if !ev.Key.HasPrefix(sub.key) && !sub.key.HasPrefix(ev.Key) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}
