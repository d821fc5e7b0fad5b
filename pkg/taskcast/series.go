package taskcast

import (
	"context"
	"encoding/json"
)

// processSeries applies series compaction to a raw event before it is appended to the log. It
// returns the event observers will see: unchanged for keep-all and when no series is set, merged
// for accumulate, and unchanged (but replacing the log tail) for latest.
func processSeries(ctx context.Context, store ShortTermStore, taskID string, event TaskEvent) (TaskEvent, error) {
	if event.SeriesID == "" || event.SeriesMode == "" {
		return event, nil
	}

	switch event.SeriesMode {
	case SeriesKeepAll:
		return event, nil

	case SeriesAccumulate:
		prev, err := store.GetSeriesLatest(ctx, taskID, event.SeriesID)
		if err != nil {
			return TaskEvent{}, StoreError(err)
		}
		merged := event
		if prev != nil {
			if mergedData, ok := concatenateText(prev.Data, event.Data); ok {
				merged.Data = mergedData
			}
		}
		if err := store.SetSeriesLatest(ctx, taskID, event.SeriesID, merged); err != nil {
			return TaskEvent{}, StoreError(err)
		}
		return merged, nil

	case SeriesLatest:
		if err := store.ReplaceLastSeriesEvent(ctx, taskID, event.SeriesID, event); err != nil {
			return TaskEvent{}, StoreError(err)
		}
		return event, nil

	default:
		return event, nil
	}
}

// concatenateText implements the accumulate merge rule: if both prev and next are JSON objects
// with a string "text" field, the result is next's object with "text" replaced by prev.text +
// next.text; all of next's other fields are preserved, and prev's non-text fields are discarded.
// Any other shape leaves next's data unchanged.
func concatenateText(prevData, nextData json.RawMessage) (json.RawMessage, bool) {
	prevText, prevOK := extractText(prevData)
	nextObj, nextText, nextOK := extractTextObject(nextData)
	if !prevOK || !nextOK {
		return nil, false
	}
	nextObj["text"] = prevText + nextText
	merged, err := json.Marshal(nextObj)
	if err != nil {
		return nil, false
	}
	return merged, true
}

func extractText(data json.RawMessage) (string, bool) {
	_, text, ok := extractTextObject(data)
	return text, ok
}

func extractTextObject(data json.RawMessage) (map[string]any, string, bool) {
	if len(data) == 0 {
		return nil, "", false
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, "", false
	}
	raw, ok := obj["text"]
	if !ok {
		return nil, "", false
	}
	text, ok := raw.(string)
	if !ok {
		return nil, "", false
	}
	return obj, text, true
}
