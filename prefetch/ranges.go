package prefetch

import "sort"

// span is a half-open index interval [start, end).
type span struct {
	start, end int
}

// rangeSet tracks which index intervals of a collection are covered. Spans
// are kept sorted and coalesced, so boundary queries stay cheap even after
// long scroll sessions.
type rangeSet struct {
	spans []span
}

func (r *rangeSet) Empty() bool {
	return len(r.spans) == 0
}

// Start returns the lowest covered index, or 0 when nothing is covered.
func (r *rangeSet) Start() int {
	if len(r.spans) == 0 {
		return 0
	}
	return r.spans[0].start
}

// End returns the exclusive upper bound of coverage, or 0 when nothing is
// covered.
func (r *rangeSet) End() int {
	if len(r.spans) == 0 {
		return 0
	}
	return r.spans[len(r.spans)-1].end
}

// Overlaps reports whether [start, end) intersects any covered span.
func (r *rangeSet) Overlaps(start, end int) bool {
	for _, s := range r.spans {
		if start < s.end && s.start < end {
			return true
		}
	}
	return false
}

// Mark covers [start, end), merging with any adjacent or overlapping spans.
func (r *rangeSet) Mark(start, end int) {
	if end <= start {
		return
	}
	merged := span{start, end}
	out := r.spans[:0]
	for _, s := range r.spans {
		if s.end < merged.start || merged.end < s.start {
			out = append(out, s)
			continue
		}
		if s.start < merged.start {
			merged.start = s.start
		}
		if s.end > merged.end {
			merged.end = s.end
		}
	}
	out = append(out, merged)
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	r.spans = out
}
