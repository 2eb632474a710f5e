package feedback

import (
	"math"
	"sort"
	"strings"
)

// HighlightWindowSeconds is the distance from the playhead within which an
// entry is presented as current. Presentation behavior, not a correctness
// invariant.
const HighlightWindowSeconds = 1.0

// SortOrder controls timeline ordering by anchor timestamp.
type SortOrder string

const (
	SortAscending  SortOrder = "asc"
	SortDescending SortOrder = "desc"
)

// Filter narrows the already-fetched feedback list client-side. A zero
// Filter passes everything through in ascending timestamp order.
type Filter struct {
	// Category keeps only entries of the given category when non-empty.
	Category Category
	// Search keeps entries whose title or content contains the term,
	// case-insensitively.
	Search string
	Order  SortOrder
}

// Apply filters and sorts the entries without mutating the input slice.
func Apply(entries []TimelineFeedback, filter Filter) []TimelineFeedback {
	term := strings.ToLower(strings.TrimSpace(filter.Search))

	selected := make([]TimelineFeedback, 0, len(entries))
	for _, entry := range entries {
		if filter.Category != "" && entry.Category != filter.Category {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(entry.Title), term) &&
			!strings.Contains(strings.ToLower(entry.Content), term) {
			continue
		}
		selected = append(selected, entry)
	}

	descending := filter.Order == SortDescending
	sort.SliceStable(selected, func(i, j int) bool {
		if descending {
			return selected[i].Timestamp > selected[j].Timestamp
		}
		return selected[i].Timestamp < selected[j].Timestamp
	})
	return selected
}

// Highlighted returns exactly the entries whose anchor lies within the
// highlight window of the current playback position.
func Highlighted(entries []TimelineFeedback, playheadSeconds float64) []TimelineFeedback {
	matched := make([]TimelineFeedback, 0)
	for _, entry := range entries {
		if math.Abs(entry.Timestamp-playheadSeconds) <= HighlightWindowSeconds {
			matched = append(matched, entry)
		}
	}
	return matched
}
