package prefetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/reelfeed/reelfeed/feed"
	"github.com/reelfeed/reelfeed/fetch"
	"github.com/reelfeed/reelfeed/quality"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeProvider serves scripted pages and records every window request.
type fakeProvider struct {
	mu    sync.Mutex
	calls []int
	empty map[int]bool
	fail  map[int]bool
	block chan struct{}
}

func (p *fakeProvider) Page(ctx context.Context, collectionID string, offset, limit int) ([]*feed.Descriptor, error) {
	p.mu.Lock()
	p.calls = append(p.calls, offset)
	block := p.block
	failed := p.fail[offset]
	empty := p.empty[offset]
	delete(p.fail, offset)
	p.mu.Unlock()

	if block != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-block:
		}
	}
	if failed {
		return nil, errors.New("upstream unavailable")
	}
	if empty {
		return nil, nil
	}

	descs := make([]*feed.Descriptor, 0, limit)
	for i := 0; i < limit; i++ {
		index := offset + i
		descs = append(descs, &feed.Descriptor{
			ID:    fmt.Sprintf("%s-%d", collectionID, index),
			URL:   fmt.Sprintf("https://cdn.example.com/%s/%d.mp4", collectionID, index),
			Index: index,
		})
	}
	return descs, nil
}

func (p *fakeProvider) windowCalls() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.calls...)
}

// warmCounter counts speculative media requests.
type warmCounter struct {
	mu   sync.Mutex
	urls []string
}

func (w *warmCounter) Request(ctx context.Context, url string, pri fetch.Priority) (*fetch.Result, error) {
	w.mu.Lock()
	w.urls = append(w.urls, url)
	w.mu.Unlock()
	return &fetch.Result{Key: url, Payload: []byte("bytes"), Tier: quality.Low}, nil
}

func (w *warmCounter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.urls)
}

func waitUntil(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return false
}

func testOptions() Options {
	return Options{
		PageSize:   10,
		Threshold:  2,
		MediaAhead: 3,
		RatePerSec: 1000,
	}
}

func waitIdleWith(s *Scheduler, p *fakeProvider, collectionID string, calls int) bool {
	return waitUntil(func() bool {
		return !s.IsLoading(collectionID) && len(p.windowCalls()) >= calls
	})
}

func TestInitialWindow(t *testing.T) {
	Convey("Given a fresh collection", t, func() {
		p := &fakeProvider{}
		w := &warmCounter{}

		var mu sync.Mutex
		var landed []int
		opts := testOptions()
		opts.OnWindow = func(collectionID string, start int, descs []*feed.Descriptor) {
			mu.Lock()
			landed = append(landed, start)
			mu.Unlock()
		}
		s := NewScheduler(p, w, opts)
		defer s.Close()

		Convey("The first position change fetches the window under the cursor", func() {
			s.OnPositionChanged("demo", 0)
			So(waitIdleWith(s, p, "demo", 1), ShouldBeTrue)
			So(p.windowCalls(), ShouldResemble, []int{0})

			mu.Lock()
			So(landed, ShouldResemble, []int{0})
			mu.Unlock()

			Convey("And warms the first few media resources at low priority", func() {
				So(waitUntil(func() bool { return w.count() == 3 }), ShouldBeTrue)
			})
		})

		Convey("A mid-collection first position aligns to its window", func() {
			s.OnPositionChanged("demo", 23)
			So(waitIdleWith(s, p, "demo", 1), ShouldBeTrue)
			So(p.windowCalls(), ShouldResemble, []int{20})
		})
	})
}

func TestIdempotence(t *testing.T) {
	Convey("Given a loaded window", t, func() {
		p := &fakeProvider{}
		s := NewScheduler(p, &warmCounter{}, testOptions())
		defer s.Close()

		s.OnPositionChanged("demo", 0)
		So(waitIdleWith(s, p, "demo", 1), ShouldBeTrue)

		Convey("Repeating the same position issues no duplicate fetch", func() {
			for i := 0; i < 5; i++ {
				s.OnPositionChanged("demo", 5)
			}
			time.Sleep(30 * time.Millisecond)
			So(p.windowCalls(), ShouldResemble, []int{0})
		})

		Convey("Only positions near the boundary trigger the next window", func() {
			s.OnPositionChanged("demo", 5)
			time.Sleep(30 * time.Millisecond)
			So(p.windowCalls(), ShouldResemble, []int{0})

			s.OnPositionChanged("demo", 9)
			So(waitIdleWith(s, p, "demo", 2), ShouldBeTrue)
			So(p.windowCalls(), ShouldResemble, []int{0, 10})
		})
	})
}

func TestExhaustion(t *testing.T) {
	Convey("Given a collection that ends before index 20", t, func() {
		p := &fakeProvider{empty: map[int]bool{20: true}}
		s := NewScheduler(p, &warmCounter{}, testOptions())
		defer s.Close()

		s.OnPositionChanged("demo", 20)
		So(waitIdleWith(s, p, "demo", 1), ShouldBeTrue)

		Convey("The empty window clears hasMore", func() {
			So(s.HasMore("demo"), ShouldBeFalse)

			Convey("Forward position changes issue no further calls", func() {
				s.OnPositionChanged("demo", 25)
				s.OnPositionChanged("demo", 29)
				time.Sleep(30 * time.Millisecond)
				So(p.windowCalls(), ShouldResemble, []int{20})
			})

			Convey("But backward prefetch still works", func() {
				s.OnPositionChanged("demo", 5)
				So(waitIdleWith(s, p, "demo", 2), ShouldBeTrue)
				So(p.windowCalls(), ShouldResemble, []int{20, 0})
			})
		})
	})
}

func TestFailureRetries(t *testing.T) {
	Convey("Given a window fetch that fails once", t, func() {
		p := &fakeProvider{fail: map[int]bool{0: true}}

		var mu sync.Mutex
		var failures int
		opts := testOptions()
		opts.OnError = func(collectionID string, err error) {
			mu.Lock()
			failures++
			mu.Unlock()
		}
		s := NewScheduler(p, &warmCounter{}, opts)
		defer s.Close()

		s.OnPositionChanged("demo", 0)
		So(waitIdleWith(s, p, "demo", 1), ShouldBeTrue)

		Convey("The failure is surfaced without marking the range", func() {
			mu.Lock()
			So(failures, ShouldEqual, 1)
			mu.Unlock()
			So(s.HasMore("demo"), ShouldBeTrue)

			Convey("So the next position change retries the same window", func() {
				s.OnPositionChanged("demo", 0)
				So(waitIdleWith(s, p, "demo", 2), ShouldBeTrue)
				So(p.windowCalls(), ShouldResemble, []int{0, 0})
			})
		})
	})
}

func TestSingleInFlightPerCollection(t *testing.T) {
	Convey("Given a slow window fetch in flight", t, func() {
		p := &fakeProvider{block: make(chan struct{})}
		s := NewScheduler(p, &warmCounter{}, testOptions())
		defer s.Close()

		s.OnPositionChanged("demo", 0)
		So(waitUntil(func() bool { return s.IsLoading("demo") && len(p.windowCalls()) >= 1 }), ShouldBeTrue)

		Convey("Further position changes queue instead of fetching", func() {
			s.OnPositionChanged("demo", 9)
			s.OnPositionChanged("demo", 9)
			So(p.windowCalls(), ShouldResemble, []int{0})

			Convey("And the queued position is replayed after the fetch lands", func() {
				close(p.block)
				p.mu.Lock()
				p.block = nil
				p.mu.Unlock()

				So(waitIdleWith(s, p, "demo", 2), ShouldBeTrue)
				So(p.windowCalls(), ShouldResemble, []int{0, 10})
			})
		})
	})
}
