package taskcast

import "strings"

// MatchesType reports whether eventType matches a set of type patterns. A nil patterns slice
// means "no filter" (always matches); an empty, non-nil slice matches nothing. Each pattern is
// either "*" (matches anything), "prefix.*" (matches anything with that dotted prefix), or an
// exact type name.
func MatchesType(eventType string, patterns []string) bool {
	if patterns == nil {
		return true
	}
	for _, p := range patterns {
		if p == "*" {
			return true
		}
		if strings.HasSuffix(p, ".*") {
			prefix := strings.TrimSuffix(p, "*")
			if strings.HasPrefix(eventType, prefix) {
				return true
			}
			continue
		}
		if p == eventType {
			return true
		}
	}
	return false
}

// MatchesFilter reports whether event passes a subscribe filter's includeStatus/types/levels
// checks. It does not evaluate the since cursor; that is applied separately by the store (raw
// level) or by the caller (live stream resumption), per ApplyFilteredIndex.
func MatchesFilter(event TaskEvent, filter *SubscribeFilter) bool {
	if filter == nil {
		return true
	}
	if !filter.includeStatus() && event.Type == StatusEventType {
		return false
	}
	if filter.Types != nil && !MatchesType(event.Type, filter.Types) {
		return false
	}
	if filter.Levels != nil {
		found := false
		for _, l := range filter.Levels {
			if l == event.Level {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ApplyFilteredIndex walks events in raw order, assigning a dense 0-based filteredIndex to every
// filter-matching event. If filter.Since.Index is set, matching events with filteredIndex <= that
// cursor are skipped from the returned slice, but the counter still advances for them, so later
// filteredIndex values are unaffected by the cursor.
func ApplyFilteredIndex(events []TaskEvent, filter *SubscribeFilter) []FilteredEvent {
	var sinceIndex *int64
	if filter != nil && filter.Since != nil && filter.Since.Index != nil {
		sinceIndex = filter.Since.Index
	}

	out := make([]FilteredEvent, 0, len(events))
	var counter int64
	for _, e := range events {
		if !MatchesFilter(e, filter) {
			continue
		}
		idx := counter
		counter++
		if sinceIndex != nil && idx <= *sinceIndex {
			continue
		}
		out = append(out, FilteredEvent{
			FilteredIndex: idx,
			RawIndex:      e.Index,
			Event:         e,
		})
	}
	return out
}
