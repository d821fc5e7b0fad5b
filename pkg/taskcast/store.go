package taskcast

import "context"

// ShortTermStore is the fast, possibly-volatile store backing live task state and the recent
// event log. The in-memory implementation (pkg/memstore) does not persist across restarts; the
// Redis implementation (pkg/redisstore) lets multiple process instances share one.
type ShortTermStore interface {
	SaveTask(ctx context.Context, task Task) error
	GetTask(ctx context.Context, taskID string) (*Task, error)
	AppendEvent(ctx context.Context, taskID string, event TaskEvent) error
	GetEvents(ctx context.Context, taskID string, opts *GetEventsOptions) ([]TaskEvent, error)
	// NextIndex atomically allocates and returns the next 0-based per-task event index.
	NextIndex(ctx context.Context, taskID string) (int64, error)
	SetTTL(ctx context.Context, taskID string, seconds int64) error
	GetSeriesLatest(ctx context.Context, taskID, seriesID string) (*TaskEvent, error)
	SetSeriesLatest(ctx context.Context, taskID, seriesID string, event TaskEvent) error
	// ReplaceLastSeriesEvent replaces the previous series-latest entry in the log in place
	// (searching from the tail), or appends if no previous entry exists.
	ReplaceLastSeriesEvent(ctx context.Context, taskID, seriesID string, event TaskEvent) error
}

// LongTermStore is the durable archive. Writes must be idempotent: SaveTask upserts only the
// mutable columns (status/result/error/metadata/updatedAt/completedAt); SaveEvent is a no-op on
// conflict with an existing (taskID, index) or id.
type LongTermStore interface {
	SaveTask(ctx context.Context, task Task) error
	GetTask(ctx context.Context, taskID string) (*Task, error)
	SaveEvent(ctx context.Context, event TaskEvent) error
	GetEvents(ctx context.Context, taskID string, opts *GetEventsOptions) ([]TaskEvent, error)
	// ListTasksForCleanup returns tasks whose status is terminal, for the cleanup service to
	// evaluate against configured rules. The short-term store has no enumeration operation by
	// contract, so cleanup is necessarily long-term-store-driven.
	ListTasksForCleanup(ctx context.Context) ([]Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	DeleteEvents(ctx context.Context, taskID string, eventIDs []string) error
}

// BroadcastHandler receives events published to a channel it is subscribed to.
type BroadcastHandler func(event TaskEvent)

// Unsubscribe detaches a previously registered handler. Idempotent: calling it more than once has
// no further effect.
type Unsubscribe func()

// BroadcastProvider fans out published events to local and (for shared-backend implementations)
// cross-instance subscribers of a channel. A channel corresponds 1:1 with a task id.
type BroadcastProvider interface {
	Publish(ctx context.Context, channel string, event TaskEvent) error
	Subscribe(channel string, handler BroadcastHandler) Unsubscribe
}

// Hooks are optional observability callbacks the Engine invokes for conditions that are swallowed
// rather than surfaced to the operation's caller.
type Hooks struct {
	OnEventDropped  func(event TaskEvent, reason error)
	OnWebhookFailed func(taskID string, webhook WebhookConfig, reason error)
}

// WebhookDeliverer delivers a single event to a single webhook target. Implemented by
// pkg/webhook; kept as an interface here so the engine package has no HTTP dependency.
type WebhookDeliverer interface {
	Deliver(ctx context.Context, webhook WebhookConfig, event TaskEvent) error
}
