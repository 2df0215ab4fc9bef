package quality

import (
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func newTestMonitor() *Monitor {
	return &Monitor{
		tier: Low,
		subs: make(map[int]chan Tier),
		stop: make(chan struct{}),
	}
}

func TestClassify(t *testing.T) {
	Convey("Classification of path observations", t, func() {
		So(Classify(Sample{Reachable: false}), ShouldEqual, Low)
		So(Classify(Sample{Reachable: true, Constrained: true}), ShouldEqual, Medium)
		So(Classify(Sample{Reachable: true}), ShouldEqual, High)
	})
}

func TestTierOrdering(t *testing.T) {
	Convey("Tier policy mapping is monotonic", t, func() {
		So(Low, ShouldBeLessThan, Medium)
		So(Medium, ShouldBeLessThan, High)
		So(Low.MaxBitrate(), ShouldBeLessThan, Medium.MaxBitrate())
		So(Medium.MaxBitrate(), ShouldBeLessThan, High.MaxBitrate())
		So(Low.MaxHeight(), ShouldBeLessThan, Medium.MaxHeight())
		So(Medium.MaxHeight(), ShouldBeLessThan, High.MaxHeight())
	})
}

func TestMonitor(t *testing.T) {
	Convey("Given a fresh monitor", t, func() {
		m := newTestMonitor()

		Convey("The tier defaults to Low before any observation", func() {
			So(m.Current(), ShouldEqual, Low)
		})

		Convey("An observation updates the current tier", func() {
			m.Observe(Sample{Reachable: true})
			So(m.Current(), ShouldEqual, High)
		})

		Convey("With a subscriber attached", func() {
			ch, cancel := m.Subscribe()
			defer cancel()

			Convey("A tier transition is published", func() {
				m.Observe(Sample{Reachable: true})
				select {
				case tier := <-ch:
					So(tier, ShouldEqual, High)
				default:
					So("no event", ShouldBeEmpty)
				}
			})

			Convey("Repeated observations of the same tier publish nothing", func() {
				m.Observe(Sample{Reachable: true})
				<-ch
				m.Observe(Sample{Reachable: true})
				m.Observe(Sample{Reachable: true})
				select {
				case _, ok := <-ch:
					So(ok, ShouldBeFalse) // only acceptable read is a closed channel
				default:
					So(true, ShouldBeTrue)
				}
			})

			Convey("Cancelling the subscription closes the channel", func() {
				cancel()
				_, ok := <-ch
				So(ok, ShouldBeFalse)
			})
		})

		Convey("Close shuts down all subscribers", func() {
			ch, _ := m.Subscribe()
			m.Close()
			_, ok := <-ch
			So(ok, ShouldBeFalse)
		})
	})
}

func TestSubscriberChurn(t *testing.T) {
	Convey("Subscribing and cancelling under continuous observations never panics", t, func() {
		m := newTestMonitor()

		var wg sync.WaitGroup
		stop := make(chan struct{})

		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-stop:
						return
					default:
					}
					ch, cancel := m.Subscribe()
					select {
					case <-ch:
					default:
					}
					cancel()
				}
			}()
		}

		for i := 0; i < 2000; i++ {
			m.Observe(Sample{Reachable: i%2 == 0})
		}
		close(stop)
		wg.Wait()

		m.Observe(Sample{Reachable: true})
		So(m.Current(), ShouldEqual, High)
	})
}
