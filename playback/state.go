// Package playback owns the per-item media session lifecycle and enforces
// the process-wide single-active-player invariant across the feed.
package playback

import (
	"context"

	"github.com/reelfeed/reelfeed/fetch"
	"github.com/reelfeed/reelfeed/quality"
)

// State enumerates the playback session lifecycle.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReadyPaused
	StateReadyPlaying
	StateError
)

// String returns the lowercase state label.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReadyPaused:
		return "readyPaused"
	case StateReadyPlaying:
		return "readyPlaying"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Events are the only observable outputs of a session besides the media
// resource itself: state transitions, periodic position ticks while
// playing, and at most one error notification per failed load.
// Callbacks are invoked outside session locks; nil callbacks are skipped.
type Events struct {
	OnState func(State)
	OnTick  func(seconds float64)
	OnError func(msg string)
}

func (e Events) state(s State) {
	if e.OnState != nil {
		e.OnState(s)
	}
}

func (e Events) tick(seconds float64) {
	if e.OnTick != nil {
		e.OnTick(seconds)
	}
}

func (e Events) fail(msg string) {
	if e.OnError != nil {
		e.OnError(msg)
	}
}

// Fetcher is the slice of the fetch coordinator sessions depend on.
type Fetcher interface {
	RequestAtTier(ctx context.Context, url string, pri fetch.Priority, tier quality.Tier) (*fetch.Result, error)
	Invalidate(url string, tier quality.Tier)
}

var _ Fetcher = (*fetch.Coordinator)(nil)
