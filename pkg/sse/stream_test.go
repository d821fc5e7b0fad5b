package sse

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weightwave/taskcast/pkg/taskcast"
)

type fakeEngine struct {
	mu       sync.Mutex
	task     *taskcast.Task
	events   []taskcast.TaskEvent
	handlers []taskcast.BroadcastHandler
}

func (f *fakeEngine) GetTask(ctx context.Context, taskID string) (*taskcast.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := *f.task
	return &t, nil
}

func (f *fakeEngine) GetEvents(ctx context.Context, taskID string, opts *taskcast.GetEventsOptions) ([]taskcast.TaskEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]taskcast.TaskEvent, len(f.events))
	copy(out, f.events)
	return out, nil
}

func (f *fakeEngine) Subscribe(taskID string, handler taskcast.BroadcastHandler) taskcast.Unsubscribe {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handler)
	idx := len(f.handlers) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.handlers[idx] = nil
	}
}

func (f *fakeEngine) publish(event taskcast.TaskEvent) {
	f.mu.Lock()
	handlers := make([]taskcast.BroadcastHandler, len(f.handlers))
	copy(handlers, f.handlers)
	f.mu.Unlock()
	for _, h := range handlers {
		if h != nil {
			h(event)
		}
	}
}

func TestStream_TerminalTaskReplaysThenSendsDone(t *testing.T) {
	engine := &fakeEngine{
		task: &taskcast.Task{ID: "t1", Status: taskcast.StatusCompleted},
		events: []taskcast.TaskEvent{
			{ID: "e1", TaskID: "t1", Index: 0, Type: "progress", Level: taskcast.LevelInfo},
		},
	}
	rec := httptest.NewRecorder()
	err := Stream(context.Background(), rec, engine, "t1", nil)
	require.NoError(t, err)

	body := rec.Body.String()
	assert.Contains(t, body, "event: taskcast.event")
	assert.Contains(t, body, `"eventId":"e1"`)
	assert.Contains(t, body, "event: taskcast.done")
	assert.Contains(t, body, `"reason":"completed"`)
}

func TestStream_LiveEventsUntilTerminalStatusEvent(t *testing.T) {
	engine := &fakeEngine{task: &taskcast.Task{ID: "t1", Status: taskcast.StatusRunning}}
	rec := httptest.NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = Stream(ctx, rec, engine, "t1", nil)
		close(done)
	}()

	// Give Stream time to subscribe before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for {
		engine.mu.Lock()
		n := len(engine.handlers)
		engine.mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	engine.publish(taskcast.TaskEvent{ID: "e1", TaskID: "t1", Index: 0, Type: "progress", Level: taskcast.LevelInfo})
	engine.publish(taskcast.TaskEvent{
		ID: "e2", TaskID: "t1", Index: 1, Type: taskcast.StatusEventType, Level: taskcast.LevelInfo,
		Data: []byte(`{"status":"completed"}`),
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not terminate after terminal status event")
	}

	body := rec.Body.String()
	assert.Equal(t, 1, strings.Count(body, `"eventId":"e1"`))
	assert.Contains(t, body, "event: taskcast.done")
	assert.Contains(t, body, `"reason":"completed"`)
}

func TestStream_ReconnectSinceIndexReplaysFromFilteredLevel(t *testing.T) {
	engine := &fakeEngine{
		task: &taskcast.Task{ID: "t1", Status: taskcast.StatusCompleted},
		events: []taskcast.TaskEvent{
			{ID: "e0", TaskID: "t1", Index: 0, Type: "progress", Level: taskcast.LevelInfo},
			{ID: "e1", TaskID: "t1", Index: 1, Type: "progress", Level: taskcast.LevelInfo},
			{ID: "e2", TaskID: "t1", Index: 2, Type: "progress", Level: taskcast.LevelInfo},
			{ID: "e3", TaskID: "t1", Index: 3, Type: "progress", Level: taskcast.LevelInfo},
			{ID: "e4", TaskID: "t1", Index: 4, Type: "progress", Level: taskcast.LevelInfo},
		},
	}
	since := int64(1)
	filter := &taskcast.SubscribeFilter{Since: &taskcast.SinceCursor{Index: &since}}
	rec := httptest.NewRecorder()
	err := Stream(context.Background(), rec, engine, "t1", filter)
	require.NoError(t, err)

	body := rec.Body.String()
	// Raw events 2, 3, 4 (0-based) resume at filteredIndex 2, 3, 4; 0 and 1 are skipped but still
	// counted, so the surviving events' filteredIndex values are unaffected by the cursor.
	assert.NotContains(t, body, `"eventId":"e0"`)
	assert.NotContains(t, body, `"eventId":"e1"`)
	assert.Contains(t, body, `"eventId":"e2"`)
	assert.Contains(t, body, `"filteredIndex":2`)
	assert.Contains(t, body, `"eventId":"e3"`)
	assert.Contains(t, body, `"filteredIndex":3`)
	assert.Contains(t, body, `"eventId":"e4"`)
	assert.Contains(t, body, `"filteredIndex":4`)
}

func TestStream_RawModeOmitsEnvelope(t *testing.T) {
	engine := &fakeEngine{
		task: &taskcast.Task{ID: "t1", Status: taskcast.StatusCompleted},
		events: []taskcast.TaskEvent{
			{ID: "e1", TaskID: "t1", Index: 0, Type: "progress", Level: taskcast.LevelInfo},
		},
	}
	rec := httptest.NewRecorder()
	wrap := false
	err := Stream(context.Background(), rec, engine, "t1", &taskcast.SubscribeFilter{Wrap: &wrap})
	require.NoError(t, err)

	body := rec.Body.String()
	assert.Contains(t, body, `"id":"e1"`)
	assert.NotContains(t, body, "filteredIndex")
}
