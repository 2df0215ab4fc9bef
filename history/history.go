// Package history tracks and persists per-item watch progress.
package history

import (
	"time"

	"github.com/metafates/gache"
	"github.com/reelfeed/reelfeed/feed"
	"github.com/reelfeed/reelfeed/filesystem"
	"github.com/reelfeed/reelfeed/where"
)

// cacher is the disk-backed registry of watch-progress records, keyed by the
// canonical resource key of each item's URL.
var cacher = gache.New[map[string]*SavedItem](
	&gache.Options{
		Path:       where.History(),
		FileSystem: &filesystem.GacheFs{},
	},
)

// Get returns the complete collection of watch-progress records from the
// persistent store.
func Get() (map[string]*SavedItem, error) {
	cached, expired, err := cacher.Get()
	if err != nil {
		return nil, err
	}
	if expired || cached == nil {
		return make(map[string]*SavedItem), nil
	}
	return cached, nil
}

// Save persists the watch progress of an item. Idempotency: the maximum
// observed percentage wins, so a partial re-watch never regresses a record.
func Save(desc *feed.Descriptor, percentage float64) error {
	saved, err := Get()
	if err != nil {
		return err
	}

	record := newSavedItem(desc)

	if existing, exists := saved[record.encode()]; exists {
		if percentage < existing.WatchedPercentage {
			percentage = existing.WatchedPercentage
		}
	}
	record.WatchedPercentage = percentage
	record.WatchedAt = time.Now()

	saved[record.encode()] = record

	return cacher.Set(saved)
}

// Remove permanently deletes a watch-progress record.
func Remove(item *SavedItem) error {
	saved, err := Get()
	if err != nil {
		return err
	}

	delete(saved, item.encode())
	return cacher.Set(saved)
}
