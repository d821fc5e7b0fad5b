package api

import (
	"encoding/json"

	"github.com/weightwave/taskcast/pkg/taskcast"
)

// createTaskRequest is the JSON body of POST /tasks.
type createTaskRequest struct {
	ID         string                   `json:"id,omitempty"`
	Type       string                   `json:"type,omitempty"`
	Params     json.RawMessage          `json:"params,omitempty"`
	Metadata   json.RawMessage          `json:"metadata,omitempty"`
	TTL        *int64                   `json:"ttl,omitempty"`
	Webhooks   []taskcast.WebhookConfig `json:"webhooks,omitempty"`
	Cleanup    *taskcast.CleanupConfig  `json:"cleanup,omitempty"`
	AuthConfig *taskcast.TaskAuthConfig `json:"authConfig,omitempty"`
}

// transitionRequest is the JSON body of PATCH /tasks/:id/status.
type transitionRequest struct {
	Status taskcast.TaskStatus     `json:"status"`
	Result json.RawMessage         `json:"result,omitempty"`
	Error  *taskcast.TaskErrorInfo `json:"error,omitempty"`
}

// publishEventRequest is the JSON body of a single event in POST /tasks/:id/events. The endpoint
// accepts either one object or an array of these.
type publishEventRequest struct {
	Type       string              `json:"type"`
	Level      taskcast.EventLevel `json:"level,omitempty"`
	Data       json.RawMessage     `json:"data,omitempty"`
	SeriesID   string              `json:"seriesId,omitempty"`
	SeriesMode taskcast.SeriesMode `json:"seriesMode,omitempty"`
}

func (r publishEventRequest) toInput() taskcast.PublishEventInput {
	level := r.Level
	if level == "" {
		level = taskcast.LevelInfo
	}
	return taskcast.PublishEventInput{
		Type:       r.Type,
		Level:      level,
		Data:       r.Data,
		SeriesID:   r.SeriesID,
		SeriesMode: r.SeriesMode,
	}
}

// decodePublishEventBody accepts either a single event object or a JSON array of event objects,
// matching the reference implementation's batch-publish convenience endpoint.
func decodePublishEventBody(body []byte) ([]publishEventRequest, error) {
	trimmed := trimLeadingSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var reqs []publishEventRequest
		if err := json.Unmarshal(body, &reqs); err != nil {
			return nil, err
		}
		return reqs, nil
	}
	var req publishEventRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	return []publishEventRequest{req}, nil
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\n', '\r':
			i++
		default:
			return b[i:]
		}
	}
	return b[i:]
}
