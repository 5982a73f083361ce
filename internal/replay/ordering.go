package replay

import "sort"

// SortEvents orders events by (at ASC, seq ASC, type ASC). Seq is
// unique per script line, so the ordering is total and a script replays
// identically every run.
func SortEvents(events []*Event) {
	sort.Slice(events, func(i, j int) bool {
		return compareEvents(events[i], events[j]) < 0
	})
}

// compareEvents returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (at ASC, seq ASC, type ASC). EventType is a tie-breaker for
// hand-built event slices that never went through LoadScript.
func compareEvents(a, b *Event) int {
	if !a.At.Equal(b.At) {
		if a.At.Before(b.At) {
			return -1
		}
		return 1
	}
	if a.Seq != b.Seq {
		if a.Seq < b.Seq {
			return -1
		}
		return 1
	}
	if a.Type != b.Type {
		if a.Type < b.Type {
			return -1
		}
		return 1
	}
	return 0
}
