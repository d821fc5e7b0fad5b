package api

import "github.com/weightwave/taskcast/pkg/taskcast"

// taskResponse is the JSON shape returned for a single task.
type taskResponse struct {
	*taskcast.Task
}

// eventsResponse is the JSON shape returned by the plain REST history endpoint: a bare array.
type eventsResponse []taskcast.TaskEvent

// publishEventsResponse is returned by POST /tasks/:id/events when the body is an array; a
// single-object body gets the single published event back instead.
type publishEventsResponse []taskcast.TaskEvent

// healthResponse is returned by GET /health.
type healthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	LongTerm     string `json:"longTerm,omitempty"`
	StoreBackend string `json:"storeBackend"`
}
