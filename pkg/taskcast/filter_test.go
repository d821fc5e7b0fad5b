package taskcast

import "testing"

func TestMatchesType(t *testing.T) {
	cases := []struct {
		eventType string
		patterns  []string
		want      bool
	}{
		{"progress", nil, true},
		{"progress", []string{}, false},
		{"progress", []string{"*"}, true},
		{"llm.delta", []string{"llm.*"}, true},
		{"llm.delta.chunk", []string{"llm.*"}, true},
		{"llm", []string{"llm.*"}, false},
		{"progress", []string{"progress"}, true},
		{"progress", []string{"other"}, false},
	}
	for _, c := range cases {
		if got := MatchesType(c.eventType, c.patterns); got != c.want {
			t.Errorf("MatchesType(%q, %v) = %v, want %v", c.eventType, c.patterns, got, c.want)
		}
	}
}

func TestMatchesFilter_IncludeStatus(t *testing.T) {
	f := false
	filter := &SubscribeFilter{IncludeStatus: &f}
	statusEvent := TaskEvent{Type: StatusEventType, Level: LevelInfo}
	if MatchesFilter(statusEvent, filter) {
		t.Error("expected status event to be excluded when includeStatus=false")
	}
	other := TaskEvent{Type: "progress", Level: LevelInfo}
	if !MatchesFilter(other, filter) {
		t.Error("expected non-status event to pass")
	}
}

func TestMatchesFilter_Levels(t *testing.T) {
	filter := &SubscribeFilter{Levels: []EventLevel{LevelWarn, LevelError}}
	if MatchesFilter(TaskEvent{Type: "x", Level: LevelInfo}, filter) {
		t.Error("expected info level to be excluded")
	}
	if !MatchesFilter(TaskEvent{Type: "x", Level: LevelError}, filter) {
		t.Error("expected error level to pass")
	}
}

func TestApplyFilteredIndex_Basic(t *testing.T) {
	events := []TaskEvent{
		{Index: 0, Type: "progress", Level: LevelInfo},
		{Index: 1, Type: "log", Level: LevelDebug},
		{Index: 2, Type: "progress", Level: LevelInfo},
	}
	filter := &SubscribeFilter{Types: []string{"progress"}}
	got := ApplyFilteredIndex(events, filter)
	if len(got) != 2 {
		t.Fatalf("expected 2 filtered events, got %d", len(got))
	}
	if got[0].FilteredIndex != 0 || got[0].RawIndex != 0 {
		t.Errorf("unexpected first event: %+v", got[0])
	}
	if got[1].FilteredIndex != 1 || got[1].RawIndex != 2 {
		t.Errorf("unexpected second event: %+v", got[1])
	}
}

func TestApplyFilteredIndex_SinceCursorSkipsButCounterAdvances(t *testing.T) {
	events := []TaskEvent{
		{Index: 0, Type: "progress", Level: LevelInfo},
		{Index: 1, Type: "progress", Level: LevelInfo},
		{Index: 2, Type: "progress", Level: LevelInfo},
	}
	zero := int64(0)
	filter := &SubscribeFilter{Since: &SinceCursor{Index: &zero}}
	got := ApplyFilteredIndex(events, filter)
	if len(got) != 2 {
		t.Fatalf("expected 2 events after cursor, got %d", len(got))
	}
	if got[0].FilteredIndex != 1 || got[1].FilteredIndex != 2 {
		t.Errorf("expected filteredIndex to continue from 1, got %+v", got)
	}
}
