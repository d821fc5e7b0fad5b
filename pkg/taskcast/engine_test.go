package taskcast

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inMemTestStore is a minimal, fully functional ShortTermStore used to test the engine without
// importing pkg/memstore (which itself imports this package).
type inMemTestStore struct {
	mu     sync.Mutex
	tasks  map[string]Task
	events map[string][]TaskEvent
	index  map[string]int64
	series map[string]map[string]TaskEvent
}

func newInMemTestStore() *inMemTestStore {
	return &inMemTestStore{
		tasks:  map[string]Task{},
		events: map[string][]TaskEvent{},
		index:  map[string]int64{},
		series: map[string]map[string]TaskEvent{},
	}
}

func (s *inMemTestStore) SaveTask(_ context.Context, t Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	return nil
}

func (s *inMemTestStore) GetTask(_ context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *inMemTestStore) AppendEvent(_ context.Context, taskID string, e TaskEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[taskID] = append(s.events[taskID], e)
	return nil
}

func (s *inMemTestStore) GetEvents(_ context.Context, taskID string, _ *GetEventsOptions) ([]TaskEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TaskEvent(nil), s.events[taskID]...), nil
}

func (s *inMemTestStore) NextIndex(_ context.Context, taskID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.index[taskID]
	s.index[taskID] = idx + 1
	return idx, nil
}

func (s *inMemTestStore) SetTTL(context.Context, string, int64) error { return nil }

func (s *inMemTestStore) GetSeriesLatest(_ context.Context, taskID, seriesID string) (*TaskEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.series[taskID]
	if !ok {
		return nil, nil
	}
	e, ok := m[seriesID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *inMemTestStore) SetSeriesLatest(_ context.Context, taskID, seriesID string, e TaskEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.series[taskID]
	if !ok {
		m = map[string]TaskEvent{}
		s.series[taskID] = m
	}
	m[seriesID] = e
	return nil
}

func (s *inMemTestStore) ReplaceLastSeriesEvent(_ context.Context, taskID, seriesID string, e TaskEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.series[taskID]
	if ok {
		if prev, ok := m[seriesID]; ok {
			events := s.events[taskID]
			for i := len(events) - 1; i >= 0; i-- {
				if events[i].ID == prev.ID {
					events[i] = e
					m[seriesID] = e
					return nil
				}
			}
		}
	}
	s.events[taskID] = append(s.events[taskID], e)
	if !ok {
		m = map[string]TaskEvent{}
		s.series[taskID] = m
	}
	m[seriesID] = e
	return nil
}

type fakeBroadcast struct {
	mu       sync.Mutex
	handlers map[string][]BroadcastHandler
}

func newFakeBroadcast() *fakeBroadcast {
	return &fakeBroadcast{handlers: map[string][]BroadcastHandler{}}
}

func (b *fakeBroadcast) Publish(_ context.Context, channel string, e TaskEvent) error {
	b.mu.Lock()
	hs := append([]BroadcastHandler(nil), b.handlers[channel]...)
	b.mu.Unlock()
	for _, h := range hs {
		h(e)
	}
	return nil
}

func (b *fakeBroadcast) Subscribe(channel string, h BroadcastHandler) Unsubscribe {
	b.mu.Lock()
	b.handlers[channel] = append(b.handlers[channel], h)
	b.mu.Unlock()
	return func() {}
}

func newTestEngine() *Engine {
	return NewEngine(newInMemTestStore(), nil, newFakeBroadcast(), nil, Hooks{})
}

func TestEngine_CreateAndGetTask(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	task, err := e.CreateTask(ctx, CreateTaskInput{ID: "t1", Type: "process"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, task.Status)

	got, err := e.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)
}

func TestEngine_GetTask_NotFound(t *testing.T) {
	e := newTestEngine()
	_, err := e.GetTask(context.Background(), "missing")
	require.Error(t, err)
	var tcErr *Error
	require.ErrorAs(t, err, &tcErr)
	assert.Equal(t, KindTaskNotFound, tcErr.Kind)
}

func TestEngine_Lifecycle_S1(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	_, err := e.CreateTask(ctx, CreateTaskInput{ID: "t1", Type: "process"})
	require.NoError(t, err)

	task, err := e.TransitionTask(ctx, "t1", TransitionInput{Status: StatusRunning})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, task.Status)

	data, _ := json.Marshal(map[string]any{"percent": 50})
	ev, err := e.PublishEvent(ctx, "t1", PublishEventInput{Type: "progress", Level: LevelInfo, Data: data})
	require.NoError(t, err)
	assert.EqualValues(t, 1, ev.Index)

	result, _ := json.Marshal(map[string]any{"output": "x"})
	task, err = e.TransitionTask(ctx, "t1", TransitionInput{Status: StatusCompleted, Result: result})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
	require.NotNil(t, task.CompletedAt)

	events, err := e.GetEvents(ctx, "t1", nil)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, StatusEventType, events[0].Type)
	assert.Equal(t, "progress", events[1].Type)
	assert.Equal(t, StatusEventType, events[2].Type)
}

func TestEngine_InvalidTransition_S2(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	_, err := e.CreateTask(ctx, CreateTaskInput{ID: "t2"})
	require.NoError(t, err)

	_, err = e.TransitionTask(ctx, "t2", TransitionInput{Status: StatusCompleted})
	require.Error(t, err)
	var tcErr *Error
	require.ErrorAs(t, err, &tcErr)
	assert.Equal(t, KindInvalidTransition, tcErr.Kind)
}

func TestEngine_TerminalLockout(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	_, err := e.CreateTask(ctx, CreateTaskInput{ID: "t3"})
	require.NoError(t, err)
	_, err = e.TransitionTask(ctx, "t3", TransitionInput{Status: StatusRunning})
	require.NoError(t, err)
	_, err = e.TransitionTask(ctx, "t3", TransitionInput{Status: StatusFailed})
	require.NoError(t, err)

	_, err = e.PublishEvent(ctx, "t3", PublishEventInput{Type: "progress"})
	require.Error(t, err)
	var tcErr *Error
	require.ErrorAs(t, err, &tcErr)
	assert.Equal(t, KindTaskTerminal, tcErr.Kind)
}

func TestEngine_IndexDensityUnderConcurrency(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	_, err := e.CreateTask(ctx, CreateTaskInput{ID: "t4"})
	require.NoError(t, err)
	_, err = e.TransitionTask(ctx, "t4", TransitionInput{Status: StatusRunning})
	require.NoError(t, err)

	const n = 30
	var wg sync.WaitGroup
	indices := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev, err := e.PublishEvent(ctx, "t4", PublishEventInput{Type: "progress"})
			require.NoError(t, err)
			indices <- ev.Index
		}()
	}
	wg.Wait()
	close(indices)

	seen := map[int64]bool{}
	for idx := range indices {
		seen[idx] = true
	}
	// index 0 was taken by the running-transition's status event, so producer indices are 1..n.
	assert.Len(t, seen, n)
	for i := int64(1); i <= n; i++ {
		assert.True(t, seen[i], "missing index %d", i)
	}
}

func TestEngine_Subscribe_ReceivesLiveEvents(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	_, err := e.CreateTask(ctx, CreateTaskInput{ID: "t5"})
	require.NoError(t, err)
	_, err = e.TransitionTask(ctx, "t5", TransitionInput{Status: StatusRunning})
	require.NoError(t, err)

	var got []TaskEvent
	e.Subscribe("t5", func(ev TaskEvent) { got = append(got, ev) })

	_, err = e.PublishEvent(ctx, "t5", PublishEventInput{Type: "progress"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "progress", got[0].Type)
}
