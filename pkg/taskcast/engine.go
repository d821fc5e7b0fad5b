package taskcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// CreateTaskInput is the payload accepted by CreateTask.
type CreateTaskInput struct {
	ID         string
	Type       string
	Params     json.RawMessage
	Metadata   json.RawMessage
	TTL        *int64
	Webhooks   []WebhookConfig
	Cleanup    *CleanupConfig
	AuthConfig *TaskAuthConfig
}

// PublishEventInput is the payload accepted by PublishEvent.
type PublishEventInput struct {
	Type       string
	Level      EventLevel
	Data       json.RawMessage
	SeriesID   string
	SeriesMode SeriesMode
}

// TransitionInput is the payload accepted by TransitionTask.
type TransitionInput struct {
	Status TaskStatus
	Result json.RawMessage
	Error  *TaskErrorInfo
}

// Engine is the public orchestration surface: task lifecycle, event emission, and subscriptions.
// It holds no process-wide mutable state of its own beyond its collaborators, all supplied at
// construction.
type Engine struct {
	short     ShortTermStore
	long      LongTermStore // optional; nil disables long-term archival
	broadcast BroadcastProvider
	webhooks  WebhookDeliverer // optional; nil disables webhook fan-out
	hooks     Hooks
	now       func() time.Time
}

// NewEngine constructs an Engine. long, webhooks, and hooks fields may be left zero to disable
// the corresponding best-effort side channel.
func NewEngine(short ShortTermStore, long LongTermStore, broadcast BroadcastProvider, webhooks WebhookDeliverer, hooks Hooks) *Engine {
	return &Engine{
		short:     short,
		long:      long,
		broadcast: broadcast,
		webhooks:  webhooks,
		hooks:     hooks,
		now:       time.Now,
	}
}

// CreateTask creates a new task in Pending status.
func (e *Engine) CreateTask(ctx context.Context, in CreateTaskInput) (*Task, error) {
	now := e.now().UnixMilli()
	id := in.ID
	if id == "" {
		id = newTaskID(e.now())
	}
	task := Task{
		ID:         id,
		Type:       in.Type,
		Status:     StatusPending,
		Params:     in.Params,
		Metadata:   in.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
		TTL:        in.TTL,
		Webhooks:   in.Webhooks,
		Cleanup:    in.Cleanup,
		AuthConfig: in.AuthConfig,
	}

	if err := e.short.SaveTask(ctx, task); err != nil {
		return nil, StoreError(err)
	}
	if e.long != nil {
		if err := e.long.SaveTask(ctx, task); err != nil {
			slog.Warn("long-term save_task failed on create", "task_id", id, "error", err)
		}
	}
	if task.TTL != nil {
		if err := e.short.SetTTL(ctx, id, *task.TTL); err != nil {
			slog.Warn("set_ttl failed on create", "task_id", id, "error", err)
		}
	}
	return &task, nil
}

// GetTask returns a task, preferring the short-term store and falling back to long-term.
func (e *Engine) GetTask(ctx context.Context, taskID string) (*Task, error) {
	task, err := e.short.GetTask(ctx, taskID)
	if err != nil {
		return nil, StoreError(err)
	}
	if task != nil {
		return task, nil
	}
	if e.long == nil {
		return nil, TaskNotFound(taskID)
	}
	task, err = e.long.GetTask(ctx, taskID)
	if err != nil {
		return nil, StoreError(err)
	}
	if task == nil {
		return nil, TaskNotFound(taskID)
	}
	return task, nil
}

// TransitionTask validates and applies a lifecycle transition, emitting a "taskcast:status" event.
func (e *Engine) TransitionTask(ctx context.Context, taskID string, in TransitionInput) (*Task, error) {
	task, err := e.short.GetTask(ctx, taskID)
	if err != nil {
		return nil, StoreError(err)
	}
	if task == nil {
		return nil, TaskNotFound(taskID)
	}
	if !CanTransition(task.Status, in.Status) {
		return nil, InvalidTransition(task.Status, in.Status)
	}

	now := e.now().UnixMilli()
	updated := *task
	updated.Status = in.Status
	updated.UpdatedAt = now
	if IsTerminal(in.Status) {
		updated.CompletedAt = &now
	}
	if in.Result != nil {
		updated.Result = in.Result
	}
	if in.Error != nil {
		updated.Error = in.Error
	}

	if err := e.short.SaveTask(ctx, updated); err != nil {
		return nil, StoreError(err)
	}
	if e.long != nil {
		if err := e.long.SaveTask(ctx, updated); err != nil {
			slog.Warn("long-term save_task failed on transition", "task_id", taskID, "error", err)
		}
	}

	data, _ := json.Marshal(statusEventData{Status: in.Status, Result: updated.Result, Error: updated.Error})
	if _, err := e.emit(ctx, &updated, PublishEventInput{
		Type:  StatusEventType,
		Level: LevelInfo,
		Data:  data,
	}); err != nil {
		return nil, err
	}
	return &updated, nil
}

// PublishEvent appends and broadcasts a single event on a non-terminal task.
func (e *Engine) PublishEvent(ctx context.Context, taskID string, in PublishEventInput) (*TaskEvent, error) {
	task, err := e.short.GetTask(ctx, taskID)
	if err != nil {
		return nil, StoreError(err)
	}
	if task == nil {
		return nil, TaskNotFound(taskID)
	}
	if IsTerminal(task.Status) {
		return nil, TaskTerminal(task.Status)
	}
	return e.emit(ctx, task, in)
}

// GetEvents returns a task's event history, applying the store's cursor/limit semantics.
func (e *Engine) GetEvents(ctx context.Context, taskID string, opts *GetEventsOptions) ([]TaskEvent, error) {
	events, err := e.short.GetEvents(ctx, taskID, opts)
	if err != nil {
		return nil, StoreError(err)
	}
	return events, nil
}

// Subscribe attaches a live handler to a task's event channel.
func (e *Engine) Subscribe(taskID string, handler BroadcastHandler) Unsubscribe {
	return e.broadcast.Subscribe(taskID, handler)
}

// emit is the single path by which every event (status transitions and producer-published events
// alike) enters the system: allocate index, run series compaction, append, publish, then
// fire-and-forget long-term archival and webhook delivery.
func (e *Engine) emit(ctx context.Context, task *Task, in PublishEventInput) (*TaskEvent, error) {
	index, err := e.short.NextIndex(ctx, task.ID)
	if err != nil {
		return nil, StoreError(err)
	}

	raw := TaskEvent{
		ID:         uuid.NewString(),
		TaskID:     task.ID,
		Index:      index,
		Timestamp:  e.now().UnixMilli(),
		Type:       in.Type,
		Level:      in.Level,
		Data:       in.Data,
		SeriesID:   in.SeriesID,
		SeriesMode: in.SeriesMode,
	}

	final, err := processSeries(ctx, e.short, task.ID, raw)
	if err != nil {
		return nil, err
	}

	if err := e.short.AppendEvent(ctx, task.ID, final); err != nil {
		return nil, StoreError(err)
	}

	if err := e.broadcast.Publish(ctx, task.ID, final); err != nil {
		return nil, StoreError(err)
	}

	e.fireAndForget(task, final)

	return &final, nil
}

// fireAndForget runs long-term archival and webhook delivery on a detached goroutine; failures
// are swallowed and reported only through hooks, per the engine's failure-semantics contract.
func (e *Engine) fireAndForget(task *Task, event TaskEvent) {
	if e.long == nil && (e.webhooks == nil || len(task.Webhooks) == 0) {
		return
	}
	webhooks := task.Webhooks
	taskID := task.ID
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if e.long != nil {
			if err := e.long.SaveEvent(bgCtx, event); err != nil {
				slog.Warn("long-term save_event failed", "task_id", taskID, "event_id", event.ID, "error", err)
				if e.hooks.OnEventDropped != nil {
					e.hooks.OnEventDropped(event, err)
				}
			}
		}

		if e.webhooks == nil {
			return
		}
		for _, wh := range webhooks {
			if !MatchesFilter(event, wh.Filter) {
				continue
			}
			if err := e.webhooks.Deliver(bgCtx, wh, event); err != nil {
				slog.Warn("webhook delivery failed", "task_id", taskID, "url", wh.URL, "error", err)
				if e.hooks.OnWebhookFailed != nil {
					e.hooks.OnWebhookFailed(taskID, wh, err)
				}
			}
		}
	}()
}
