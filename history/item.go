package history

import (
	"fmt"
	"time"

	"github.com/reelfeed/reelfeed/feed"
)

// SavedItem is a single watch-progress entry preserved in the user's history.
type SavedItem struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	URL               string    `json:"url"`
	ThumbnailURL      string    `json:"thumbnail_url,omitempty"`
	Duration          float64   `json:"duration"`
	Index             int       `json:"index"`
	WatchedPercentage float64   `json:"watched_percentage"`
	WatchedAt         time.Time `json:"watched_at"`
}

func (s *SavedItem) encode() string {
	return feed.Key(s.URL)
}

func (s *SavedItem) String() string {
	return fmt.Sprintf("%s : %.0f%%", s.Title, s.WatchedPercentage)
}

func newSavedItem(desc *feed.Descriptor) *SavedItem {
	return &SavedItem{
		ID:           desc.ID,
		Title:        desc.Title,
		URL:          desc.URL,
		ThumbnailURL: desc.ThumbnailURL,
		Duration:     desc.Duration,
		Index:        desc.Index,
	}
}
