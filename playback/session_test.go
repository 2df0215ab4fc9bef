package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/reelfeed/reelfeed/feed"
	"github.com/reelfeed/reelfeed/fetch"
	"github.com/reelfeed/reelfeed/quality"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeFetcher scripts fetch outcomes per call and records traffic.
type fakeFetcher struct {
	mu          sync.Mutex
	requests    []string
	invalidated []string
	errQueue    []error
	delay       time.Duration
}

func (f *fakeFetcher) RequestAtTier(ctx context.Context, url string, pri fetch.Priority, tier quality.Tier) (*fetch.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, url)
	var outcome error
	if len(f.errQueue) > 0 {
		outcome = f.errQueue[0]
		f.errQueue = f.errQueue[1:]
	}
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, &fetch.Error{Key: url, Class: fetch.ClassCancelled, Err: ctx.Err()}
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, &fetch.Error{Key: url, Class: fetch.ClassCancelled, Err: err}
	}
	if outcome != nil {
		return nil, outcome
	}
	return &fetch.Result{Key: url, Payload: []byte("bytes"), Tier: tier}, nil
}

func (f *fakeFetcher) Invalidate(url string, tier quality.Tier) {
	f.mu.Lock()
	f.invalidated = append(f.invalidated, url)
	f.mu.Unlock()
}

func (f *fakeFetcher) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// recorder captures session events safely across goroutines.
type recorder struct {
	mu     sync.Mutex
	states []State
	errors []string
}

func (r *recorder) events() Events {
	return Events{
		OnState: func(s State) {
			r.mu.Lock()
			r.states = append(r.states, s)
			r.mu.Unlock()
		},
		OnError: func(msg string) {
			r.mu.Lock()
			r.errors = append(r.errors, msg)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

func transientErr() error {
	return &fetch.Error{Key: "k", Class: fetch.ClassTransient, Err: errors.New("timeout")}
}

func terminalErr() error {
	return &fetch.Error{Key: "k", Class: fetch.ClassTerminal, Err: errors.New("not found")}
}

func waitForState(s *Session, want State) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return false
}

func waitForTier(s *Session, want quality.Tier) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Tier() == want {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return false
}

func testManager(f Fetcher) *Manager {
	monitor := quality.NewMonitor(func(context.Context) quality.Sample {
		return quality.Sample{Reachable: true}
	})
	return NewManager(f, monitor, Options{
		RetryDelay:   10 * time.Millisecond,
		TickInterval: 10 * time.Millisecond,
		UpgradeDwell: time.Hour, // upgrades out of the way unless a test opts in
	})
}

// upgradeManager enables transparent quality upgrades with a short dwell
// and exposes the monitor so tests can drive tier transitions directly.
func upgradeManager(f Fetcher) (*Manager, *quality.Monitor) {
	monitor := quality.NewMonitor(func(context.Context) quality.Sample {
		return quality.Sample{Reachable: false}
	})
	m := NewManager(f, monitor, Options{
		RetryDelay:     10 * time.Millisecond,
		TickInterval:   10 * time.Millisecond,
		UpgradeDwell:   5 * time.Millisecond,
		UpgradeEnabled: true,
	})
	return m, monitor
}

func descriptor(url string) *feed.Descriptor {
	return &feed.Descriptor{ID: url, URL: url, Duration: 30}
}

func TestBindAndPlay(t *testing.T) {
	Convey("Given a visible session whose fetch succeeds", t, func() {
		f := &fakeFetcher{}
		m := testManager(f)
		rec := &recorder{}
		s := m.NewSession(rec.events())
		defer s.Destroy()

		s.Bind(descriptor("https://cdn.example.com/x.mp4"), true)

		Convey("It reaches readyPlaying", func() {
			So(waitForState(s, StateReadyPlaying), ShouldBeTrue)
			So(m.Active(), ShouldEqual, s)
		})

		Convey("Position ticks advance while playing", func() {
			So(waitForState(s, StateReadyPlaying), ShouldBeTrue)
			time.Sleep(50 * time.Millisecond)
			So(s.Position(), ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given a hidden session whose fetch succeeds", t, func() {
		f := &fakeFetcher{}
		m := testManager(f)
		s := m.NewSession(Events{})
		defer s.Destroy()

		s.Bind(descriptor("https://cdn.example.com/x.mp4"), false)

		Convey("It parks in readyPaused without taking the output slot", func() {
			So(waitForState(s, StateReadyPaused), ShouldBeTrue)
			So(m.Active(), ShouldBeNil)
		})
	})
}

func TestSinglePlayerInvariant(t *testing.T) {
	Convey("Given one session already playing", t, func() {
		f := &fakeFetcher{}
		m := testManager(f)
		first := m.NewSession(Events{})
		second := m.NewSession(Events{})
		defer first.Destroy()
		defer second.Destroy()

		first.Bind(descriptor("https://cdn.example.com/x.mp4"), true)
		So(waitForState(first, StateReadyPlaying), ShouldBeTrue)

		Convey("When a second visible session becomes ready", func() {
			second.Bind(descriptor("https://cdn.example.com/y.mp4"), true)
			So(waitForState(second, StateReadyPlaying), ShouldBeTrue)

			Convey("The first is paused, not destroyed, and only one plays", func() {
				So(waitForState(first, StateReadyPaused), ShouldBeTrue)
				So(m.Active(), ShouldEqual, second)

				playing := 0
				for _, s := range []*Session{first, second} {
					if s.State() == StateReadyPlaying {
						playing++
					}
				}
				So(playing, ShouldEqual, 1)
			})

			Convey("Resuming the first later needs no refetch", func() {
				So(waitForState(first, StateReadyPaused), ShouldBeTrue)
				before := f.requestCount()
				first.UpdateVisibility(true)
				So(waitForState(first, StateReadyPlaying), ShouldBeTrue)
				So(f.requestCount(), ShouldEqual, before)
			})
		})
	})
}

func TestLoadFailureRetry(t *testing.T) {
	Convey("Given a fetch that fails transiently twice", t, func() {
		f := &fakeFetcher{errQueue: []error{transientErr(), transientErr()}}
		m := testManager(f)
		rec := &recorder{}
		s := m.NewSession(rec.events())
		defer s.Destroy()

		s.Bind(descriptor("https://cdn.example.com/x.mp4"), true)

		Convey("The session retries once, then errors with a single notification", func() {
			So(waitForState(s, StateError), ShouldBeTrue)
			So(f.requestCount(), ShouldEqual, 2)
			So(len(f.invalidated), ShouldEqual, 1)

			// Give any stray goroutine a chance to misbehave before counting.
			time.Sleep(30 * time.Millisecond)
			So(rec.errorCount(), ShouldEqual, 1)
		})
	})

	Convey("Given a fetch that fails transiently then succeeds", t, func() {
		f := &fakeFetcher{errQueue: []error{transientErr()}}
		m := testManager(f)
		rec := &recorder{}
		s := m.NewSession(rec.events())
		defer s.Destroy()

		s.Bind(descriptor("https://cdn.example.com/x.mp4"), true)

		Convey("The retry recovers into playback with no error event", func() {
			So(waitForState(s, StateReadyPlaying), ShouldBeTrue)
			So(f.requestCount(), ShouldEqual, 2)
			So(rec.errorCount(), ShouldEqual, 0)
		})
	})

	Convey("Given a fetch that fails terminally", t, func() {
		f := &fakeFetcher{errQueue: []error{terminalErr()}}
		m := testManager(f)
		rec := &recorder{}
		s := m.NewSession(rec.events())
		defer s.Destroy()

		s.Bind(descriptor("https://cdn.example.com/x.mp4"), true)

		Convey("The session errors without retrying", func() {
			So(waitForState(s, StateError), ShouldBeTrue)
			So(f.requestCount(), ShouldEqual, 1)
			So(rec.errorCount(), ShouldEqual, 1)
		})
	})
}

func TestQualityUpgrade(t *testing.T) {
	Convey("Given a playing session with a dedicated high-tier variant", t, func() {
		f := &fakeFetcher{}
		m, monitor := upgradeManager(f)
		s := m.NewSession(Events{})
		defer s.Destroy()
		defer monitor.Close()

		desc := descriptor("https://cdn.example.com/x-low.mp4")
		desc.Variants = map[quality.Tier]string{
			quality.High: "https://cdn.example.com/x-high.mp4",
		}
		s.Bind(desc, true)
		So(waitForState(s, StateReadyPlaying), ShouldBeTrue)
		So(s.Tier(), ShouldEqual, quality.Low)
		time.Sleep(20 * time.Millisecond) // exceed the upgrade dwell

		Convey("A tier transition refetches the higher variant and swaps it in", func() {
			monitor.Observe(quality.Sample{Reachable: true})

			So(waitForTier(s, quality.High), ShouldBeTrue)
			So(f.requestCount(), ShouldEqual, 2)
			f.mu.Lock()
			last := f.requests[len(f.requests)-1]
			f.mu.Unlock()
			So(last, ShouldEqual, "https://cdn.example.com/x-high.mp4")
			So(s.State(), ShouldEqual, StateReadyPlaying)
		})
	})

	Convey("Given a playing session whose item has no higher-tier variant", t, func() {
		f := &fakeFetcher{}
		m, monitor := upgradeManager(f)
		s := m.NewSession(Events{})
		defer s.Destroy()
		defer monitor.Close()

		s.Bind(descriptor("https://cdn.example.com/x.mp4"), true)
		So(waitForState(s, StateReadyPlaying), ShouldBeTrue)
		time.Sleep(20 * time.Millisecond)

		Convey("A tier transition performs no fetch and keeps the held tier", func() {
			monitor.Observe(quality.Sample{Reachable: true})
			time.Sleep(50 * time.Millisecond)

			So(f.requestCount(), ShouldEqual, 1)
			So(s.Tier(), ShouldEqual, quality.Low)
		})
	})
}

func TestVisibility(t *testing.T) {
	Convey("Given a playing session", t, func() {
		f := &fakeFetcher{}
		m := testManager(f)
		s := m.NewSession(Events{})
		defer s.Destroy()

		s.Bind(descriptor("https://cdn.example.com/x.mp4"), true)
		So(waitForState(s, StateReadyPlaying), ShouldBeTrue)

		Convey("Losing visibility pauses output but retains the resource", func() {
			s.UpdateVisibility(false)
			So(waitForState(s, StateReadyPaused), ShouldBeTrue)

			Convey("Regaining visibility resumes without a refetch", func() {
				before := f.requestCount()
				s.UpdateVisibility(true)
				So(waitForState(s, StateReadyPlaying), ShouldBeTrue)
				So(f.requestCount(), ShouldEqual, before)
			})
		})
	})
}

func TestDestroy(t *testing.T) {
	Convey("Given a playing session", t, func() {
		f := &fakeFetcher{}
		m := testManager(f)
		s := m.NewSession(Events{})

		s.Bind(descriptor("https://cdn.example.com/x.mp4"), true)
		So(waitForState(s, StateReadyPlaying), ShouldBeTrue)

		Convey("Destroy releases the slot and lands in idle", func() {
			s.Destroy()
			So(s.State(), ShouldEqual, StateIdle)
			So(m.Active(), ShouldBeNil)

			Convey("And a second Destroy is a no-op", func() {
				s.Destroy()
				So(s.State(), ShouldEqual, StateIdle)
			})

			Convey("And a playback attempt landing after Destroy leaves the slot empty", func() {
				s.play()
				So(s.State(), ShouldEqual, StateIdle)
				So(m.Active(), ShouldBeNil)
			})
		})
	})

	Convey("Given a session destroyed mid-load", t, func() {
		f := &fakeFetcher{delay: 200 * time.Millisecond}
		m := testManager(f)
		rec := &recorder{}
		s := m.NewSession(rec.events())

		s.Bind(descriptor("https://cdn.example.com/x.mp4"), true)
		time.Sleep(10 * time.Millisecond)
		s.Destroy()

		Convey("The load is cancelled without an error event", func() {
			time.Sleep(50 * time.Millisecond)
			So(s.State(), ShouldEqual, StateIdle)
			So(rec.errorCount(), ShouldEqual, 0)
		})
	})
}

func TestRebindCancelsPriorLoad(t *testing.T) {
	Convey("Given a session rebound while its first load is in flight", t, func() {
		f := &fakeFetcher{delay: 100 * time.Millisecond}
		m := testManager(f)
		s := m.NewSession(Events{})
		defer s.Destroy()

		s.Bind(descriptor("https://cdn.example.com/first.mp4"), true)
		time.Sleep(10 * time.Millisecond)
		s.Bind(descriptor("https://cdn.example.com/second.mp4"), true)

		Convey("Only the second bind reaches playback", func() {
			So(waitForState(s, StateReadyPlaying), ShouldBeTrue)
			f.mu.Lock()
			last := f.requests[len(f.requests)-1]
			f.mu.Unlock()
			So(last, ShouldEqual, "https://cdn.example.com/second.mp4")
		})
	})
}
