// Package quality observes network path conditions and classifies them into
// an ordered tier consumed by fetch construction and playback upgrades.
package quality

// Tier is an ordered classification of current network conditions.
// Higher tiers permit higher bitrates and resolutions.
type Tier int

const (
	Low Tier = iota
	Medium
	High
)

// String returns the lowercase tier label.
func (t Tier) String() string {
	switch t {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// MaxBitrate returns the maximum media bitrate in bits per second permitted
// at this tier. The mapping is monotonic in tier order.
func (t Tier) MaxBitrate() int {
	switch t {
	case Low:
		return 800_000
	case Medium:
		return 2_500_000
	default:
		return 8_000_000
	}
}

// MaxHeight returns the maximum vertical resolution permitted at this tier.
func (t Tier) MaxHeight() int {
	switch t {
	case Low:
		return 480
	case Medium:
		return 720
	default:
		return 1080
	}
}
