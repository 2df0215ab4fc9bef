package playback

import (
	"sync"
	"time"

	"github.com/reelfeed/reelfeed/feed"
	"github.com/reelfeed/reelfeed/history"
	"github.com/reelfeed/reelfeed/key"
	"github.com/reelfeed/reelfeed/log"
	"github.com/reelfeed/reelfeed/quality"
	"github.com/spf13/viper"
)

// Options tune session behavior. Zero values fall back to global
// configuration; thresholds here are tunable policy, not contract.
type Options struct {
	// RetryDelay is the pause before the single automatic retry of a
	// transient load failure.
	RetryDelay time.Duration
	// TickInterval is the playback position tick period.
	TickInterval time.Duration
	// UpgradeDwell is the minimum continuous playback before a quality
	// upgrade is attempted, guarding against borderline-network thrashing.
	UpgradeDwell time.Duration
	// UpgradeEnabled toggles transparent quality upgrades entirely.
	UpgradeEnabled bool
	// Progress, when set, receives watch progress on pause and destroy.
	Progress func(d *feed.Descriptor, seconds float64)
}

// Manager owns the process-wide exclusive-output slot and constructs
// sessions bound to it. The slot is the single piece of shared state that
// enforces the at-most-one-playing invariant; mutation is serialized by the
// manager's mutex.
type Manager struct {
	fetcher Fetcher
	monitor *quality.Monitor
	opts    Options

	mu     sync.Mutex
	active *Session
}

// NewManager wires a session factory against the fetch coordinator and
// quality monitor.
func NewManager(fetcher Fetcher, monitor *quality.Monitor, opts Options) *Manager {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Duration(viper.GetInt(key.PlaybackRetryDelay)) * time.Second
		if opts.RetryDelay <= 0 {
			opts.RetryDelay = time.Second
		}
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Duration(viper.GetInt(key.PlaybackTickInterval)) * time.Millisecond
		if opts.TickInterval <= 0 {
			opts.TickInterval = 100 * time.Millisecond
		}
	}
	if opts.UpgradeDwell <= 0 {
		opts.UpgradeDwell = time.Duration(viper.GetInt(key.PlaybackUpgradeDwell)) * time.Second
		if opts.UpgradeDwell <= 0 {
			opts.UpgradeDwell = 5 * time.Second
		}
	}

	return &Manager{fetcher: fetcher, monitor: monitor, opts: opts}
}

// NewSession creates an idle session. The caller must invoke Destroy when
// the feed item unbinds; cleanup is explicit, never finalizer-driven.
func (m *Manager) NewSession(events Events) *Session {
	return &Session{
		manager: m,
		events:  events,
		state:   StateIdle,
	}
}

// Active returns the session currently holding the exclusive-output slot,
// or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// acquire hands the exclusive-output slot to s, force-pausing the previous
// holder first (newest wins). The previous session is paused, not
// destroyed, so a later visibility gain resumes without a refetch.
func (m *Manager) acquire(s *Session) {
	m.mu.Lock()
	prev := m.active
	m.active = s
	m.mu.Unlock()

	if prev != nil && prev != s {
		prev.preempt()
	}
}

// release clears the slot if s still holds it.
func (m *Manager) release(s *Session) {
	m.mu.Lock()
	if m.active == s {
		m.active = nil
	}
	m.mu.Unlock()
}

// progress reports watch progress on pause and destroy. A custom Progress
// hook takes precedence; otherwise progress is persisted to the history
// store when enabled.
func (m *Manager) progress(d *feed.Descriptor, seconds float64) {
	if d == nil || seconds <= 0 {
		return
	}
	if m.opts.Progress != nil {
		m.opts.Progress(d, seconds)
		return
	}
	if !viper.GetBool(key.HistorySaveProgress) || d.Duration <= 0 {
		return
	}

	percentage := seconds / d.Duration * 100
	if percentage > 100 {
		percentage = 100
	}
	if err := history.Save(d, percentage); err != nil {
		log.Warnf("playback: failed to persist watch progress for %s: %v", d, err)
	}
}
