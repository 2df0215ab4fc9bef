package fetch

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/reelfeed/reelfeed/asset"
	"github.com/reelfeed/reelfeed/constant"
	"github.com/reelfeed/reelfeed/feed"
	"github.com/reelfeed/reelfeed/key"
	"github.com/reelfeed/reelfeed/log"
	"github.com/reelfeed/reelfeed/metrics"
	"github.com/reelfeed/reelfeed/network"
	"github.com/reelfeed/reelfeed/quality"
	"github.com/spf13/viper"
)

// Priority orders fetch admission. High requests start immediately; Low
// (speculative) requests pass through a bounded admission gate so prefetch
// can never starve the visible item.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityHigh
)

// Result carries a resolved fetch back to the caller.
type Result struct {
	// Key is the canonical identity of the fetched variant.
	Key string
	// Payload holds the raw resource bytes.
	Payload []byte
	// Tier is the quality tier the resource was fetched at.
	Tier quality.Tier
}

// ResolveFunc maps a canonical media URL and a quality tier onto the
// concrete variant URL to fetch. The default is the identity mapping.
type ResolveFunc func(url string, tier quality.Tier) string

// ValidateFunc inspects a fetched payload and reports corruption.
type ValidateFunc func(payload []byte) error

// Options tune a Coordinator. Zero values fall back to global configuration.
type Options struct {
	Client         *http.Client
	Resolve        ResolveFunc
	Validate       ValidateFunc
	Timeout        time.Duration
	LowConcurrency int
}

// task is one live fetch. Exactly one task exists per key at any time; all
// concurrent requesters for that key attach to it.
type task struct {
	key  string
	url  string
	tier quality.Tier

	subscribers int
	priority    Priority
	// bump unblocks a queued low-priority task; closed for high priority.
	bump chan struct{}
	// done is closed once payload/err are final.
	done    chan struct{}
	payload []byte
	err     error
	cancel  context.CancelFunc
}

// Coordinator deduplicates concurrent fetches per resource key, consults
// the asset cache before any network I/O, and selects quality from the
// monitor at task-creation time. The in-flight task table is the only
// shared mutable state and is guarded by a single mutex.
type Coordinator struct {
	cache    *asset.Cache
	monitor  *quality.Monitor
	client   *http.Client
	resolve  ResolveFunc
	validate ValidateFunc
	timeout  time.Duration
	lowGate  chan struct{}

	mu    sync.Mutex
	tasks map[string]*task
}

// NewCoordinator wires a coordinator against the given cache and monitor.
func NewCoordinator(cache *asset.Cache, monitor *quality.Monitor, opts Options) *Coordinator {
	client := opts.Client
	if client == nil {
		client = network.Preferred()
	}
	resolve := opts.Resolve
	if resolve == nil {
		resolve = func(url string, _ quality.Tier) string { return url }
	}
	validate := opts.Validate
	if validate == nil {
		validate = func(payload []byte) error {
			if len(payload) == 0 {
				return ErrCorruptPayload
			}
			return nil
		}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Duration(viper.GetInt(key.FetchTimeout)) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
	}
	lowConcurrency := opts.LowConcurrency
	if lowConcurrency <= 0 {
		lowConcurrency = viper.GetInt(key.FetchLowConcurrency)
		if lowConcurrency <= 0 {
			lowConcurrency = 2
		}
	}

	return &Coordinator{
		cache:    cache,
		monitor:  monitor,
		client:   client,
		resolve:  resolve,
		validate: validate,
		timeout:  timeout,
		lowGate:  make(chan struct{}, lowConcurrency),
		tasks:    make(map[string]*task),
	}
}

// Request fetches the resource at the tier currently reported by the
// quality monitor. It suspends the caller until resolution; cancelling ctx
// detaches this caller without disturbing other subscribers of the same key.
func (c *Coordinator) Request(ctx context.Context, url string, pri Priority) (*Result, error) {
	return c.RequestAtTier(ctx, url, pri, c.monitor.Current())
}

// RequestAtTier fetches the resource at an explicit quality tier. Used by
// playback quality upgrades; all other callers go through Request.
func (c *Coordinator) RequestAtTier(ctx context.Context, url string, pri Priority, tier quality.Tier) (*Result, error) {
	variant := c.resolve(url, tier)
	resourceKey := feed.Key(variant)

	if payload, ok := c.cache.Get(ctx, resourceKey); ok {
		return &Result{Key: resourceKey, Payload: payload, Tier: tier}, nil
	}

	c.mu.Lock()
	if t, ok := c.tasks[resourceKey]; ok {
		t.subscribers++
		if pri == PriorityHigh && t.priority == PriorityLow {
			// Never start a duplicate: promote the live task in place so
			// the now-visible item stops queueing behind speculative work.
			t.priority = PriorityHigh
			close(t.bump)
			metrics.FetchBumped()
			log.Debugf("fetch: bumped %s to high priority", resourceKey)
		}
		c.mu.Unlock()
		metrics.FetchAttached()
		return c.await(ctx, t)
	}

	// The task context is detached from the first caller on purpose:
	// it is cancelled only when the last subscriber lets go.
	taskCtx, cancel := context.WithCancel(context.Background())
	t := &task{
		key:         resourceKey,
		url:         variant,
		tier:        tier,
		subscribers: 1,
		priority:    pri,
		bump:        make(chan struct{}),
		done:        make(chan struct{}),
		cancel:      cancel,
	}
	if pri == PriorityHigh {
		close(t.bump)
	}
	c.tasks[resourceKey] = t
	c.mu.Unlock()

	go c.run(taskCtx, t)
	return c.await(ctx, t)
}

// Invalidate drops the cached variant for a URL at the given tier. Callers
// use it before retrying a corrupt-payload failure.
func (c *Coordinator) Invalidate(url string, tier quality.Tier) {
	c.cache.Remove(feed.Key(c.resolve(url, tier)))
}

// await suspends one subscriber until the task resolves or the subscriber's
// own context is cancelled.
func (c *Coordinator) await(ctx context.Context, t *task) (*Result, error) {
	select {
	case <-ctx.Done():
		c.detach(t)
		return nil, &Error{Key: t.key, Class: ClassCancelled, Err: ctx.Err()}
	case <-t.done:
		if t.err != nil {
			return nil, t.err
		}
		return &Result{Key: t.key, Payload: t.payload, Tier: t.tier}, nil
	}
}

// detach removes one subscriber; the last one out cancels the task.
func (c *Coordinator) detach(t *task) {
	c.mu.Lock()
	t.subscribers--
	last := t.subscribers == 0
	c.mu.Unlock()

	if last {
		t.cancel()
	}
}

// finish publishes the task outcome and removes it from the in-flight
// table. On success the cache is populated before waiters resolve, so no
// concurrent request can slip past a stale miss.
func (c *Coordinator) finish(ctx context.Context, t *task, payload []byte, err error) {
	if err == nil {
		c.cache.Put(ctx, t.key, payload)
	}

	c.mu.Lock()
	delete(c.tasks, t.key)
	t.payload = payload
	t.err = err
	c.mu.Unlock()
	close(t.done)

	switch {
	case err == nil:
		metrics.FetchTask("completed")
	case IsCancelled(err):
		metrics.FetchTask("cancelled")
	default:
		metrics.FetchTask("failed")
	}
}

// run executes a task to completion. Failures never populate the cache, so
// a subsequent request for the same key starts a fresh task.
func (c *Coordinator) run(ctx context.Context, t *task) {
	// Low-priority admission: wait for a gate slot, a priority bump, or
	// cancellation, whichever comes first.
	acquiredGate := false
	select {
	case <-t.bump:
	case c.lowGate <- struct{}{}:
		acquiredGate = true
	case <-ctx.Done():
		c.finish(ctx, t, nil, &Error{Key: t.key, Class: ClassCancelled, Err: ctx.Err()})
		return
	}
	if acquiredGate {
		defer func() { <-c.lowGate }()
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, t.url, nil)
	if err != nil {
		c.finish(ctx, t, nil, &Error{Key: t.key, Class: ClassTerminal, Err: err})
		return
	}
	req.Header.Set("User-Agent", constant.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		c.finish(ctx, t, nil, c.failure(ctx, t, err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.finish(ctx, t, nil, &Error{Key: t.key, Class: classifyStatus(resp.StatusCode), Err: statusErr(resp)})
		return
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		c.finish(ctx, t, nil, c.failure(ctx, t, err))
		return
	}

	if err := c.validate(payload); err != nil {
		log.Warnf("fetch: payload validation failed for %s: %v", t.key, err)
		c.finish(ctx, t, nil, &Error{Key: t.key, Class: ClassTransient, Err: err})
		return
	}

	c.finish(ctx, t, payload, nil)
}

// failure wraps a transport error, preferring the cancelled class when the
// task itself was abandoned rather than the network misbehaving.
func (c *Coordinator) failure(ctx context.Context, t *task, err error) error {
	if ctx.Err() != nil {
		return &Error{Key: t.key, Class: ClassCancelled, Err: ctx.Err()}
	}
	return &Error{Key: t.key, Class: classifyErr(err), Err: err}
}

// Inflight reports the number of live fetch tasks. Diagnostic surface.
func (c *Coordinator) Inflight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}
