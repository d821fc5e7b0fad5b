// Package sse implements the task event streaming layer: replay a task's history, then tail it
// live, writing Server-Sent Events to an http.ResponseWriter. It has no framework dependency —
// pkg/api wires it to echo's *echo.Response, which satisfies http.ResponseWriter and http.Flusher.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/weightwave/taskcast/pkg/taskcast"
)

// eventBufferSize bounds the live-event channel so a slow writer cannot block the engine's
// broadcast dispatch (pkg/broadcast's snapshot-then-release-lock pattern calls handlers
// synchronously); when the channel is full the incoming event is dropped rather than stalling
// publish.
const eventBufferSize = 256

// Writer is the subset of http.ResponseWriter (with Flush) the stream needs.
type Writer interface {
	http.ResponseWriter
	Flush()
}

// Engine is the subset of *taskcast.Engine the stream depends on.
type Engine interface {
	GetTask(ctx context.Context, taskID string) (*taskcast.Task, error)
	GetEvents(ctx context.Context, taskID string, opts *taskcast.GetEventsOptions) ([]taskcast.TaskEvent, error)
	Subscribe(taskID string, handler taskcast.BroadcastHandler) taskcast.Unsubscribe
}

// Stream replays history then tails a task's event channel live, writing SSE frames to w until
// ctx is cancelled (client disconnect), the task reaches a terminal state, or an unrecoverable
// write error occurs. It returns the error from loading the task or its history, and nil
// otherwise; write errors end the stream silently since the client has already gone away by the
// time one occurs.
func Stream(ctx context.Context, w Writer, engine Engine, taskID string, filter *taskcast.SubscribeFilter) error {
	task, err := engine.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Always read the full raw history: since.id/since.timestamp gate history-only reads, and
	// since.index must be applied at the filtered level by ApplyFilteredIndex, not truncate the
	// raw log the filtered index is computed over.
	history, err := engine.GetEvents(ctx, taskID, nil)
	if err != nil {
		return err
	}
	var lastRaw int64 = -1
	for _, fe := range taskcast.ApplyFilteredIndex(history, filter) {
		if !writeEvent(w, fe, filter) {
			return nil
		}
		lastRaw = fe.RawIndex
	}

	if taskcast.IsTerminal(task.Status) {
		writeDone(w, string(task.Status))
		return nil
	}

	live := make(chan taskcast.TaskEvent, eventBufferSize)
	unsubscribe := engine.Subscribe(taskID, func(event taskcast.TaskEvent) {
		select {
		case live <- event:
		default:
			// Buffer full: drop rather than block the publisher. A slow SSE client falls
			// behind; it can reconnect with a since cursor to resume.
		}
	})
	defer unsubscribe()

	counter := resumeCounter(history, filter)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-live:
			if event.Index <= lastRaw {
				continue // already replayed from history before the subscription was live
			}
			if !taskcast.MatchesFilter(event, filter) {
				continue
			}
			fe := taskcast.FilteredEvent{FilteredIndex: counter, RawIndex: event.Index, Event: event}
			counter++
			if !writeEvent(w, fe, filter) {
				return nil
			}
			if event.Type == taskcast.StatusEventType && taskcast.IsTerminal(statusFromEvent(event)) {
				writeDone(w, string(statusFromEvent(event)))
				return nil
			}
		}
	}
}

// resumeCounter returns the dense filtered-index counter value the live stream should continue
// from: the count of history events matching filter, regardless of whether a since.index cursor
// caused some of them to be skipped from the replayed slice (the counter advances either way).
func resumeCounter(history []taskcast.TaskEvent, filter *taskcast.SubscribeFilter) int64 {
	var counter int64
	for _, e := range history {
		if taskcast.MatchesFilter(e, filter) {
			counter++
		}
	}
	return counter
}

func statusFromEvent(event taskcast.TaskEvent) taskcast.TaskStatus {
	var data struct {
		Status taskcast.TaskStatus `json:"status"`
	}
	_ = json.Unmarshal(event.Data, &data)
	return data.Status
}

func writeEvent(w Writer, fe taskcast.FilteredEvent, filter *taskcast.SubscribeFilter) bool {
	wrap := filter == nil || filter.Wrap == nil || *filter.Wrap
	var body any = fe.ToEnvelope()
	if !wrap {
		body = fe.Event
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return true
	}
	_, werr := fmt.Fprintf(w, "id: %s\nevent: taskcast.event\ndata: %s\n\n", fe.Event.ID, payload)
	if werr != nil {
		return false
	}
	w.Flush()
	return true
}

func writeDone(w Writer, reason string) {
	payload, _ := json.Marshal(map[string]string{"reason": reason})
	_, _ = fmt.Fprintf(w, "event: taskcast.done\ndata: %s\n\n", payload)
	w.Flush()
}
