// Package feed defines the domain models and boundary interfaces for media discovery and retrieval.
package feed

import "github.com/reelfeed/reelfeed/quality"

// Descriptor represents a single playable resource within a collection.
type Descriptor struct {
	// Stable identifier assigned by the metadata provider.
	ID string `json:"id"`
	// Display title.
	Title string `json:"title"`
	// Canonical URL of the default media variant.
	URL string `json:"url"`
	// Optional per-tier variant URLs. Missing tiers fall back to URL.
	Variants map[quality.Tier]string `json:"variants,omitempty"`
	// Preview image URL.
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	// Total duration in seconds. Zero when unknown.
	Duration float64 `json:"duration,omitempty"`
	// Ordering index within the collection.
	Index int `json:"index"`
}

// VariantFor returns the media URL for the requested quality tier,
// falling back to the canonical URL when no dedicated variant exists.
func (d *Descriptor) VariantFor(tier quality.Tier) string {
	if url, ok := d.Variants[tier]; ok && url != "" {
		return url
	}
	return d.URL
}

// String returns the title or URL for display.
func (d *Descriptor) String() string {
	if d.Title != "" {
		return d.Title
	}
	return d.URL
}
