package playback

import (
	"context"
	"sync"
	"time"

	"github.com/reelfeed/reelfeed/feed"
	"github.com/reelfeed/reelfeed/fetch"
	"github.com/reelfeed/reelfeed/log"
	"github.com/reelfeed/reelfeed/metrics"
	"github.com/reelfeed/reelfeed/quality"
)

// Session is the state machine owning one media resource's lifecycle:
// load, readiness, exclusive playback, and cleanup. All mutation is
// serialized by a single mutex; event callbacks fire outside it.
type Session struct {
	manager *Manager
	events  Events

	mu           sync.Mutex
	state        State
	desc         *feed.Descriptor
	visible      bool
	payload      []byte
	tier         quality.Tier
	position     float64
	playingSince time.Time
	cancelLoad   context.CancelFunc
	stopTick     chan struct{}
	tierCancel   func()
	destroyed    bool
	// gen invalidates stale load results after a rebind.
	gen int
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Position returns the current playback position in seconds.
func (s *Session) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Tier returns the quality tier of the currently held resource.
func (s *Session) Tier() quality.Tier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tier
}

// Bind attaches the session to a feed item and starts a high-priority
// load. Rebinding cancels any prior in-flight load first, guarding against
// rapid re-binding during fast scroll.
func (s *Session) Bind(desc *feed.Descriptor, visible bool) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
	s.stopTickLocked()

	s.gen++
	gen := s.gen
	s.desc = desc
	s.visible = visible
	s.payload = nil
	s.position = 0

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelLoad = cancel
	emit := s.transitionLocked(StateLoading)
	s.mu.Unlock()
	emit()

	go s.load(ctx, gen, desc)
}

// UpdateVisibility informs the session the feed item entered or left the
// viewport. Gaining visibility while ready resumes playback (subject to
// the single-player rule); losing it pauses output but retains the
// resource so a return needs no refetch.
func (s *Session) UpdateVisibility(visible bool) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.visible = visible
	state := s.state
	s.mu.Unlock()

	switch {
	case visible && state == StateReadyPaused:
		s.play()
	case !visible && state == StateReadyPlaying:
		s.pause()
		s.manager.release(s)
	}
}

// Destroy releases everything the session owns: the in-flight fetch
// subscription, the tick loop, the tier watcher, and the exclusive-output
// slot. It is idempotent; the second call is a no-op.
func (s *Session) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
	s.stopTickLocked()
	if s.tierCancel != nil {
		s.tierCancel()
		s.tierCancel = nil
	}
	desc, position := s.desc, s.position
	s.payload = nil
	emit := s.transitionLocked(StateIdle)
	s.mu.Unlock()

	emit()
	s.manager.release(s)
	s.manager.progress(desc, position)
}

// load drives one bind through fetch, the single automatic retry, and into
// readiness. The variant URL is resolved from the monitor's current tier so
// each tier maps onto its own resource key. Transient failures invalidate
// the cached variant before the retry so the second attempt hits the network.
func (s *Session) load(ctx context.Context, gen int, desc *feed.Descriptor) {
	tier := s.manager.monitor.Current()
	url := desc.VariantFor(tier)
	result, err := s.manager.fetcher.RequestAtTier(ctx, url, fetch.PriorityHigh, tier)

	if err != nil && fetch.IsTransient(err) {
		log.Warnf("playback: transient load failure for %s, retrying once: %v", desc, err)
		s.manager.fetcher.Invalidate(url, tier)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.manager.opts.RetryDelay):
		}
		result, err = s.manager.fetcher.RequestAtTier(ctx, url, fetch.PriorityHigh, tier)
	}

	if err != nil {
		if fetch.IsCancelled(err) {
			// Rebound or destroyed mid-load; not an error outcome.
			return
		}
		s.failLoad(gen, err)
		return
	}

	s.ready(gen, result)
}

// failLoad transitions to the error state, emitting exactly one error
// notification regardless of how many attempts preceded it.
func (s *Session) failLoad(gen int, err error) {
	s.mu.Lock()
	if s.destroyed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.cancelLoad = nil
	emit := s.transitionLocked(StateError)
	s.mu.Unlock()

	emit()
	s.events.fail(err.Error())
}

// ready stores the fetched resource and moves to paused or playing
// depending on current visibility.
func (s *Session) ready(gen int, result *fetch.Result) {
	s.mu.Lock()
	if s.destroyed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.cancelLoad = nil
	s.payload = result.Payload
	s.tier = result.Tier
	visible := s.visible
	if !visible {
		emit := s.transitionLocked(StateReadyPaused)
		s.mu.Unlock()
		emit()
		return
	}
	s.mu.Unlock()

	s.play()
}

// play acquires the exclusive-output slot (pausing any other playing
// session first) and starts producing position ticks.
func (s *Session) play() {
	s.mu.Lock()
	if s.destroyed || s.payload == nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.manager.acquire(s)

	s.mu.Lock()
	if s.destroyed || s.payload == nil {
		// Destroyed between the check above and taking the slot; give
		// the slot back so the manager never points at a dead session.
		s.mu.Unlock()
		s.manager.release(s)
		return
	}
	if s.state == StateReadyPlaying {
		s.mu.Unlock()
		return
	}
	emit := s.transitionLocked(StateReadyPlaying)
	s.playingSince = time.Now()
	s.startTickLocked()
	s.startTierWatchLocked()
	s.mu.Unlock()
	emit()
}

// pause stops output while retaining the resource.
func (s *Session) pause() {
	s.mu.Lock()
	if s.state != StateReadyPlaying {
		s.mu.Unlock()
		return
	}
	s.stopTickLocked()
	desc, position := s.desc, s.position
	emit := s.transitionLocked(StateReadyPaused)
	s.mu.Unlock()

	emit()
	s.manager.progress(desc, position)
}

// preempt is invoked by the manager when another session takes the
// exclusive-output slot.
func (s *Session) preempt() {
	s.pause()
}

// transitionLocked updates state, keeps the playing gauge honest, and
// returns the deferred event emission. Caller holds s.mu.
func (s *Session) transitionLocked(to State) func() {
	from := s.state
	if from == to {
		return func() {}
	}
	s.state = to

	if from == StateReadyPlaying {
		metrics.SessionPlaying(-1)
	}
	if to == StateReadyPlaying {
		metrics.SessionPlaying(1)
	}

	events := s.events
	return func() { events.state(to) }
}

// startTickLocked launches the position tick loop. Caller holds s.mu.
func (s *Session) startTickLocked() {
	if s.stopTick != nil {
		return
	}
	stop := make(chan struct{})
	s.stopTick = stop
	interval := s.manager.opts.TickInterval

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.mu.Lock()
				if s.state != StateReadyPlaying {
					s.mu.Unlock()
					return
				}
				s.position += interval.Seconds()
				position := s.position
				s.mu.Unlock()
				s.events.tick(position)
			}
		}
	}()
}

// stopTickLocked halts the tick loop if running. Caller holds s.mu.
func (s *Session) stopTickLocked() {
	if s.stopTick != nil {
		close(s.stopTick)
		s.stopTick = nil
	}
}

// startTierWatchLocked subscribes to quality transitions once per session
// lifetime. Caller holds s.mu.
func (s *Session) startTierWatchLocked() {
	if s.tierCancel != nil || s.manager.monitor == nil || !s.manager.opts.UpgradeEnabled {
		return
	}
	ch, cancel := s.manager.monitor.Subscribe()
	s.tierCancel = cancel

	go func() {
		for tier := range ch {
			s.maybeUpgrade(tier)
		}
	}()
}

// maybeUpgrade transparently re-requests the resource at a higher tier
// once playback has been continuous for the configured dwell, and
// hot-swaps the payload at a tick boundary so output never glitches.
func (s *Session) maybeUpgrade(tier quality.Tier) {
	s.mu.Lock()
	eligible := !s.destroyed &&
		s.state == StateReadyPlaying &&
		tier > s.tier &&
		time.Since(s.playingSince) >= s.manager.opts.UpgradeDwell
	desc := s.desc
	held := s.tier
	gen := s.gen
	s.mu.Unlock()

	if !eligible || desc == nil {
		return
	}
	url := desc.VariantFor(tier)
	if url == desc.VariantFor(held) {
		// No dedicated variant at the higher tier; the held resource is
		// already the best representation available.
		return
	}

	result, err := s.manager.fetcher.RequestAtTier(context.Background(), url, fetch.PriorityLow, tier)
	if err != nil {
		log.Debugf("playback: quality upgrade fetch failed for %s: %v", desc, err)
		return
	}

	s.mu.Lock()
	if !s.destroyed && gen == s.gen && s.state == StateReadyPlaying && tier > s.tier {
		s.payload = result.Payload
		s.tier = result.Tier
		log.Infof("playback: upgraded %s to %s", desc, result.Tier)
	}
	s.mu.Unlock()
}
