package cleanup

import "github.com/weightwave/taskcast/pkg/taskcast"

// MatchesCleanupRule reports whether a terminal task matches a retention rule at time now (ms).
func MatchesCleanupRule(task taskcast.Task, rule taskcast.CleanupRule, now int64) bool {
	if !taskcast.IsTerminal(task.Status) {
		return false
	}
	if rule.Match != nil {
		if rule.Match.Status != nil && !statusIn(task.Status, rule.Match.Status) {
			return false
		}
		if rule.Match.TaskTypes != nil {
			if task.Type == "" || !taskcast.MatchesType(task.Type, rule.Match.TaskTypes) {
				return false
			}
		}
	}
	if rule.Trigger != nil && rule.Trigger.AfterMs != nil {
		anchor := task.UpdatedAt
		if task.CompletedAt != nil {
			anchor = *task.CompletedAt
		}
		if now-anchor < *rule.Trigger.AfterMs {
			return false
		}
	}
	return true
}

func statusIn(s taskcast.TaskStatus, list []taskcast.TaskStatus) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// FilterEventsForCleanup returns the subset of events a cleanup rule selects for removal. A nil
// rule.EventFilter selects every event.
func FilterEventsForCleanup(events []taskcast.TaskEvent, filter *taskcast.CleanupEventFilter, now int64, completedAt *int64) []taskcast.TaskEvent {
	if filter == nil {
		return events
	}
	out := make([]taskcast.TaskEvent, 0, len(events))
	for _, e := range events {
		if filter.Types != nil && !taskcast.MatchesType(e.Type, filter.Types) {
			continue
		}
		if filter.Levels != nil && !levelIn(e.Level, filter.Levels) {
			continue
		}
		if filter.SeriesMode != nil && !seriesModeIn(e.SeriesMode, filter.SeriesMode) {
			continue
		}
		if filter.OlderThanMs != nil && completedAt != nil {
			cutoff := *completedAt - *filter.OlderThanMs
			if e.Timestamp >= cutoff {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

func levelIn(l taskcast.EventLevel, list []taskcast.EventLevel) bool {
	for _, x := range list {
		if x == l {
			return true
		}
	}
	return false
}

func seriesModeIn(m taskcast.SeriesMode, list []taskcast.SeriesMode) bool {
	if m == "" {
		return false
	}
	for _, x := range list {
		if x == m {
			return true
		}
	}
	return false
}
