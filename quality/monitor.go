package quality

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/reelfeed/reelfeed/constant"
	"github.com/reelfeed/reelfeed/key"
	"github.com/reelfeed/reelfeed/log"
	"github.com/reelfeed/reelfeed/network"
	"github.com/spf13/viper"
)

// Sample captures one observation of the network path.
type Sample struct {
	// Reachable reports whether the probe target answered at all.
	Reachable bool
	// Constrained reports a degraded path (high latency, lossy, metered).
	Constrained bool
	// RTT is the observed round-trip time of the probe.
	RTT time.Duration
}

// Classify maps a path observation onto a quality tier.
// Unreachable or constrained-and-metered paths degrade to Low; a reachable
// but constrained path yields Medium; everything else is High.
func Classify(s Sample) Tier {
	switch {
	case !s.Reachable:
		return Low
	case s.Constrained:
		return Medium
	default:
		return High
	}
}

// ProbeFunc produces one path observation. Injectable for tests.
type ProbeFunc func(ctx context.Context) Sample

// Monitor periodically observes the network path and publishes tier
// transitions to subscribers. The current tier is always readable
// synchronously and defaults to Low until the first observation arrives, a
// conservative choice that avoids over-committing bandwidth on startup.
type Monitor struct {
	mu     sync.Mutex
	tier   Tier
	subs   map[int]chan Tier
	nextID int

	probe    ProbeFunc
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMonitor creates a monitor using the given probe function.
// A nil probe falls back to the HTTP probe configured via viper.
func NewMonitor(probe ProbeFunc) *Monitor {
	if probe == nil {
		probe = httpProbe
	}
	interval := time.Duration(viper.GetInt(key.NetworkProbeInterval)) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{
		tier:     Low,
		subs:     make(map[int]chan Tier),
		probe:    probe,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start launches the periodic probe loop. It returns immediately.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		// First observation happens right away rather than after a full tick.
		m.Observe(m.probe(ctx))

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.Observe(m.probe(ctx))
			}
		}
	}()
}

// Close terminates the probe loop and closes all subscriber channels.
func (m *Monitor) Close() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.mu.Lock()
		defer m.mu.Unlock()
		for id, ch := range m.subs {
			close(ch)
			delete(m.subs, id)
		}
	})
}

// Current returns the last known tier classification.
func (m *Monitor) Current() Tier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tier
}

// Subscribe registers for tier transition events. Events are published only
// when the classification actually changes, never on every path observation.
// The returned cancel function must be called to release the subscription.
func (m *Monitor) Subscribe() (<-chan Tier, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan Tier, 4)
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			close(sub)
			delete(m.subs, id)
		}
	}
	return ch, cancel
}

// Observe ingests one path observation, updating the current tier and
// notifying subscribers on transitions.
func (m *Monitor) Observe(s Sample) {
	next := Classify(s)

	m.mu.Lock()
	if next == m.tier {
		m.mu.Unlock()
		return
	}
	prev := m.tier
	m.tier = next
	// Publish while still holding the mutex: cancel and Close close these
	// channels under the same lock, so a send can never race a close. The
	// sends never block; slow subscribers drop intermediate transitions
	// instead of stalling the observation path.
	for _, ch := range m.subs {
		select {
		case ch <- next:
		default:
		}
	}
	m.mu.Unlock()

	log.Infof("network quality changed: %s -> %s (rtt=%s)", prev, next, s.RTT)
}

// ProbeOnce performs a single observation with the configured HTTP probe,
// outside any monitor loop.
func ProbeOnce(ctx context.Context) Sample {
	return httpProbe(ctx)
}

// httpProbe issues a lightweight HEAD request against the configured probe
// URL and classifies reachability and latency.
func httpProbe(ctx context.Context) Sample {
	probeURL := viper.GetString(key.NetworkProbeURL)
	constrainedRTT := time.Duration(viper.GetInt(key.NetworkConstrainedRTTMs)) * time.Millisecond
	if constrainedRTT <= 0 {
		constrainedRTT = 750 * time.Millisecond
	}

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, probeURL, nil)
	if err != nil {
		return Sample{Reachable: false}
	}
	req.Header.Set("User-Agent", constant.UserAgent)

	start := time.Now()
	resp, err := network.Client.Do(req)
	rtt := time.Since(start)
	if err != nil {
		log.Debugf("network probe failed: %v", err)
		return Sample{Reachable: false, RTT: rtt}
	}
	resp.Body.Close()

	return Sample{
		Reachable:   true,
		Constrained: rtt > constrainedRTT,
		RTT:         rtt,
	}
}
