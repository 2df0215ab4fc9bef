package prefetch

import (
	"context"
	"sync"

	"github.com/reelfeed/reelfeed/feed"
	"github.com/reelfeed/reelfeed/fetch"
	"github.com/reelfeed/reelfeed/key"
	"github.com/reelfeed/reelfeed/log"
	"github.com/reelfeed/reelfeed/metrics"
	"github.com/samber/mo"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

// Fetcher is the slice of the fetch coordinator the scheduler needs for
// speculative media warming.
type Fetcher interface {
	Request(ctx context.Context, url string, pri fetch.Priority) (*fetch.Result, error)
}

var _ Fetcher = (*fetch.Coordinator)(nil)

// Options tunes the scheduler. Zero values fall back to configuration.
type Options struct {
	// PageSize is the fixed window size in collection indices.
	PageSize int
	// Threshold is how close to a loaded boundary the position must get
	// before the next window is requested.
	Threshold int
	// MediaAhead is how many media resources of a landed window are warmed
	// at low priority.
	MediaAhead int
	// RatePerSec caps window metadata fetches per second across all
	// collections.
	RatePerSec float64

	// OnWindow delivers a landed window's descriptors, in index order.
	OnWindow func(collectionID string, start int, descs []*feed.Descriptor)
	// OnError surfaces a failed window fetch. Failures never stop the
	// scheduler; the range stays unmarked and is retried on the next
	// qualifying position change.
	OnError func(collectionID string, err error)
}

// collection is the per-collection bookkeeping behind the scheduler.
type collection struct {
	// loaded spans correspond to successfully fetched, non-empty windows.
	loaded rangeSet
	// exhausted spans were requested and came back empty; they are kept
	// apart from loaded so end-of-collection detection stays honest.
	exhausted rangeSet
	// highest is the exclusive upper bound of every window requested so
	// far, loaded or not. Direction inference compares against it.
	highest int
	hasMore bool
	loading bool
	// queued holds the most recent position observed while a window fetch
	// was in flight, replayed once that fetch resolves.
	queued mo.Option[int]
}

// Scheduler issues speculative low-priority fetches around the current
// scroll position of paginated collections: window metadata first, then the
// first few media resources of each landed window.
//
// Concurrency: at most one in-flight window-metadata fetch per collection.
// A position change arriving during a fetch is queued, not dropped, so the
// scheduler converges on the latest position.
type Scheduler struct {
	provider feed.Provider
	fetcher  Fetcher
	opts     Options
	limiter  *rate.Limiter

	mu          sync.Mutex
	collections map[string]*collection

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler builds a scheduler over the given metadata provider and
// fetch coordinator.
func NewScheduler(provider feed.Provider, fetcher Fetcher, opts Options) *Scheduler {
	if opts.PageSize <= 0 {
		opts.PageSize = viper.GetInt(key.PrefetchPageSize)
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 10
	}
	if opts.Threshold <= 0 {
		opts.Threshold = viper.GetInt(key.PrefetchThreshold)
	}
	if opts.MediaAhead <= 0 {
		opts.MediaAhead = viper.GetInt(key.PrefetchMediaAhead)
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = viper.GetFloat64(key.PrefetchRatePerSec)
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 4
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		provider:    provider,
		fetcher:     fetcher,
		opts:        opts,
		limiter:     rate.NewLimiter(rate.Limit(opts.RatePerSec), 1),
		collections: make(map[string]*collection),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Close cancels all in-flight speculative work.
func (s *Scheduler) Close() {
	s.cancel()
}

// HasMore reports whether the collection is believed to have unfetched
// items past its highest loaded window.
func (s *Scheduler) HasMore(collectionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(collectionID).hasMore
}

// IsLoading reports whether a window-metadata fetch for the collection is
// currently in flight.
func (s *Scheduler) IsLoading(collectionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(collectionID).loading
}

// OnPositionChanged ingests the current scroll index of a collection and,
// when the position is close enough to an unfetched boundary, issues a
// low-priority fetch for the next aligned window in the inferred scroll
// direction. Repeated calls with the same index are idempotent.
func (s *Scheduler) OnPositionChanged(collectionID string, index int) {
	if index < 0 {
		return
	}

	s.mu.Lock()
	c := s.get(collectionID)
	if c.loading {
		c.queued = mo.Some(index)
		s.mu.Unlock()
		return
	}
	start, ok := s.nextWindowLocked(c, index)
	if !ok {
		s.mu.Unlock()
		return
	}
	c.loading = true
	if end := start + s.opts.PageSize; end > c.highest {
		c.highest = end
	}
	s.mu.Unlock()

	go s.fetchWindow(collectionID, c, start)
}

// get returns the collection's bookkeeping, creating it on first sight.
// Caller holds s.mu.
func (s *Scheduler) get(collectionID string) *collection {
	c, ok := s.collections[collectionID]
	if !ok {
		c = &collection{hasMore: true}
		s.collections[collectionID] = c
	}
	return c
}

// nextWindowLocked computes the aligned window start to fetch for the given
// position, or reports false when no fetch is warranted. Forward means the
// position sits at or past everything requested so far; the next window is
// then appended after the loaded boundary. Backward prepends before it and
// deliberately ignores the exhaustion flag, which only ever means "no more
// items past the end". Caller holds s.mu.
func (s *Scheduler) nextWindowLocked(c *collection, index int) (int, bool) {
	page := s.opts.PageSize
	cur := index - index%page
	forward := c.highest == 0 || index >= c.highest-1

	if forward {
		target := cur
		if c.loaded.Overlaps(cur, cur+page) {
			if c.loaded.End()-index > s.opts.Threshold {
				return 0, false
			}
			target = c.loaded.End()
		}
		if !c.hasMore {
			return 0, false
		}
		if c.loaded.Overlaps(target, target+page) || c.exhausted.Overlaps(target, target+page) {
			return 0, false
		}
		return target, true
	}

	target := cur
	if c.loaded.Overlaps(cur, cur+page) {
		if index-c.loaded.Start() > s.opts.Threshold {
			return 0, false
		}
		target = c.loaded.Start() - page
	}
	if target < 0 {
		return 0, false
	}
	if c.loaded.Overlaps(target, target+page) || c.exhausted.Overlaps(target, target+page) {
		return 0, false
	}
	return target, true
}

// fetchWindow performs one window-metadata fetch and its follow-up media
// warming, then replays any position change that arrived meanwhile.
func (s *Scheduler) fetchWindow(collectionID string, c *collection, start int) {
	page := s.opts.PageSize
	if err := s.limiter.Wait(s.ctx); err != nil {
		s.settle(collectionID, c, func() {})
		return
	}

	descs, err := s.provider.Page(s.ctx, collectionID, start, page)

	switch {
	case err != nil:
		// Unmarked: the same window is retried on the next qualifying
		// position change.
		metrics.PrefetchWindow("failed")
		log.Warnf("prefetch: window [%d,%d) failed for %s: %v", start, start+page, collectionID, err)
		s.settle(collectionID, c, func() {
			if s.opts.OnError != nil {
				s.opts.OnError(collectionID, err)
			}
		})

	case len(descs) == 0:
		metrics.PrefetchWindow("empty")
		log.Debugf("prefetch: collection %s exhausted at index %d", collectionID, start)
		s.mu.Lock()
		c.hasMore = false
		c.exhausted.Mark(start, start+page)
		s.mu.Unlock()
		s.settle(collectionID, c, func() {})

	default:
		metrics.PrefetchWindow("loaded")
		s.mu.Lock()
		c.loaded.Mark(start, start+page)
		s.mu.Unlock()
		s.settle(collectionID, c, func() {
			if s.opts.OnWindow != nil {
				s.opts.OnWindow(collectionID, start, descs)
			}
			s.warm(descs)
		})
	}
}

// settle clears the in-flight flag, runs the landing callback, and replays
// a queued position change if one arrived during the fetch.
func (s *Scheduler) settle(collectionID string, c *collection, deliver func()) {
	s.mu.Lock()
	c.loading = false
	queued := c.queued
	c.queued = mo.None[int]()
	s.mu.Unlock()

	deliver()

	if index, ok := queued.Get(); ok {
		s.OnPositionChanged(collectionID, index)
	}
}

// warm issues low-priority fetches for the first few media resources of a
// landed window. Failures are speculative-only and ignored beyond a debug
// line; the playback path refetches at high priority anyway.
func (s *Scheduler) warm(descs []*feed.Descriptor) {
	ahead := s.opts.MediaAhead
	if ahead > len(descs) {
		ahead = len(descs)
	}
	for _, desc := range descs[:ahead] {
		desc := desc
		go func() {
			if _, err := s.fetcher.Request(s.ctx, desc.URL, fetch.PriorityLow); err != nil {
				log.Debugf("prefetch: media warm failed for %s: %v", desc, err)
			}
		}()
	}
}
