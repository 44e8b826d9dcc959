// Package querycache is a keyed read-through cache for client views.
//
// Every key has one fetcher, one state and any number of subscribers. Concurrent
// reads of a key share a single in-flight fetch. A successful mutation
// invalidates the key: the cached value is marked stale and, when the key has
// subscribers, refetched in the background. Results of fetches started before
// the latest invalidation are dropped, so the last refetch wins.
package querycache

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	ErrUnknownKey = errors.New("querycache: unknown key")
	ErrClosed     = errors.New("querycache: closed")
)

// Fetcher loads the authoritative value for a key.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Listener receives every state transition of a key, in order.
type Listener[T any] func(State[T])

type Options struct {
	// FetchTimeout bounds a single fetch; zero means no timeout.
	FetchTimeout time.Duration
	// Now is used for UpdatedAt; defaults to time.Now.
	Now func() time.Time
}

type subscription[T any] struct {
	id     uint64
	fn     Listener[T]
	active atomic.Bool
}

type delivery[T any] struct {
	state State[T]
	subs  []*subscription[T]
}

type entry[T any] struct {
	key     string
	fetcher Fetcher[T]
	state   State[T]
	gen     uint64

	subs   map[uint64]*subscription[T]
	nextID uint64

	queue       []delivery[T]
	dispatching bool

	// mutating is a one-slot semaphore so a queued Mutate can give up on ctx.
	mutating chan struct{}
}

type Cache[T any] struct {
	opts Options

	mu      sync.Mutex
	entries map[string]*entry[T]
	closed  bool

	group singleflight.Group

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New[T any](opts Options) *Cache[T] {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache[T]{
		opts:    opts,
		entries: make(map[string]*entry[T]),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Register binds fetcher to key. Registering an existing key replaces its fetcher
// and keeps the cached state.
func (c *Cache[T]) Register(key string, fetcher Fetcher[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.fetcher = fetcher
		return
	}
	c.entries[key] = &entry[T]{
		key:      key,
		fetcher:  fetcher,
		subs:     make(map[uint64]*subscription[T]),
		mutating: make(chan struct{}, 1),
	}
}

// Peek returns the current state without fetching.
func (c *Cache[T]) Peek(key string) (State[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return State[T]{}, ErrUnknownKey
	}
	return e.state, nil
}

// Fetch returns the cached value when it is fresh, otherwise loads it. Callers that
// arrive while a load is in flight wait for that load instead of starting another.
// Cancelling ctx abandons the wait only; the shared load keeps running.
func (c *Cache[T]) Fetch(ctx context.Context, key string) (T, error) {
	e, err := c.lookup(key)
	if err != nil {
		var zero T
		return zero, err
	}
	c.mu.Lock()
	if e.state.Fresh() {
		data := e.state.Data
		c.mu.Unlock()
		return data, nil
	}
	c.mu.Unlock()
	return c.load(ctx, e)
}

// Refetch loads key regardless of freshness, joining a load of the current generation if one is in flight.
func (c *Cache[T]) Refetch(ctx context.Context, key string) (T, error) {
	e, err := c.lookup(key)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.load(ctx, e)
}

// Prefetch starts a background load unless the cached value is fresh.
func (c *Cache[T]) Prefetch(key string) error {
	e, err := c.lookup(key)
	if err != nil {
		return err
	}
	c.mu.Lock()
	fresh := e.state.Fresh()
	c.mu.Unlock()
	if !fresh {
		c.background(e)
	}
	return nil
}

// Invalidate marks key stale and, if anyone is subscribed, refetches it in the background.
func (c *Cache[T]) Invalidate(key string) error {
	e, err := c.lookup(key)
	if err != nil {
		return err
	}
	c.mu.Lock()
	e.gen++
	e.state.Stale = true
	watched := len(e.subs) > 0
	c.mu.Unlock()
	if watched {
		c.background(e)
	}
	return nil
}

// Mutate runs fn with other mutations of key excluded. On success key is invalidated;
// on failure the error is returned and the cached state is left as it was. A caller
// still waiting for an earlier mutation returns ctx.Err() once ctx is done, without
// running fn.
func (c *Cache[T]) Mutate(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	e, err := c.lookup(key)
	if err != nil {
		return err
	}
	select {
	case e.mutating <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.mutating }()
	if err := fn(ctx); err != nil {
		return err
	}
	return c.Invalidate(key)
}

// Subscribe registers fn for every later transition of key and returns the state at
// the moment of subscription. After the returned cancel func is called no new
// delivery to fn starts.
func (c *Cache[T]) Subscribe(key string, fn Listener[T]) (State[T], func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return State[T]{}, func() {}, ErrUnknownKey
	}
	e.nextID++
	sub := &subscription[T]{id: e.nextID, fn: fn}
	sub.active.Store(true)
	e.subs[sub.id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			sub.active.Store(false)
			c.mu.Lock()
			delete(e.subs, sub.id)
			c.mu.Unlock()
		})
	}
	return e.state, cancel, nil
}

// Close stops background refetches and waits for them and for pending listener
// deliveries to return. No listener is called after Close returns, so Close must
// not be called from inside a listener.
func (c *Cache[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

func (c *Cache[T]) lookup(key string) (*entry[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	e, ok := c.entries[key]
	if !ok {
		return nil, ErrUnknownKey
	}
	return e, nil
}

func (c *Cache[T]) background(e *entry[T]) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()
	go func() {
		defer c.wg.Done()
		_, _ = c.load(c.baseCtx, e)
	}()
}

type result[T any] struct {
	data T
}

func (c *Cache[T]) load(ctx context.Context, e *entry[T]) (T, error) {
	c.mu.Lock()
	gen := e.gen
	c.mu.Unlock()

	ch := c.group.DoChan(e.key+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		data, err := c.run(e, gen)
		return result[T]{data: data}, err
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(result[T]).data, nil
	}
}

// run performs one fetch of generation gen and publishes its outcome unless a newer
// generation exists by then.
func (c *Cache[T]) run(e *entry[T], gen uint64) (T, error) {
	c.mu.Lock()
	fetcher := e.fetcher
	if gen == e.gen {
		e.state.Status = StatusLoading
		e.state.Err = nil
		c.emitLocked(e)
	}
	c.mu.Unlock()

	ctx := c.baseCtx
	if c.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.FetchTimeout)
		defer cancel()
	}
	data, err := fetcher(ctx)

	c.mu.Lock()
	if gen == e.gen {
		if err != nil {
			e.state.Status = StatusError
			e.state.Err = err
		} else {
			e.state.Status = StatusSuccess
			e.state.Data = data
			e.state.HasData = true
			e.state.Err = nil
			e.state.Stale = false
		}
		e.state.UpdatedAt = c.opts.Now()
		c.emitLocked(e)
	}
	c.mu.Unlock()
	return data, err
}

// emitLocked queues the current state for everyone subscribed right now and makes
// sure a dispatcher is running. c.mu must be held.
func (c *Cache[T]) emitLocked(e *entry[T]) {
	if c.closed || len(e.subs) == 0 {
		return
	}
	subs := make([]*subscription[T], 0, len(e.subs))
	for _, s := range e.subs {
		subs = append(subs, s)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })
	e.queue = append(e.queue, delivery[T]{state: e.state, subs: subs})
	if !e.dispatching {
		e.dispatching = true
		c.wg.Add(1)
		go c.dispatch(e)
	}
}

// dispatch delivers queued states in order. At most one dispatcher runs per entry, so
// listeners never see transitions out of order and may call back into the cache.
func (c *Cache[T]) dispatch(e *entry[T]) {
	defer c.wg.Done()
	c.mu.Lock()
	for len(e.queue) > 0 {
		d := e.queue[0]
		e.queue = e.queue[1:]
		c.mu.Unlock()

		for _, s := range d.subs {
			if s.active.Load() {
				s.fn(d.state)
			}
		}

		c.mu.Lock()
	}
	e.dispatching = false
	c.mu.Unlock()
}
