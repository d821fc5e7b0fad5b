// Package taskcast implements the task lifecycle engine: the state machine, event filter,
// series compaction, and the orchestration surface that ties them to a short-term store, a
// long-term store, and a broadcast provider.
package taskcast

import "encoding/json"

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusTimeout   TaskStatus = "timeout"
	StatusCancelled TaskStatus = "cancelled"
)

// EventLevel is the severity of a task event.
type EventLevel string

const (
	LevelDebug EventLevel = "debug"
	LevelInfo  EventLevel = "info"
	LevelWarn  EventLevel = "warn"
	LevelError EventLevel = "error"
)

// SeriesMode controls how an event with a seriesId is compacted in the short-term store.
type SeriesMode string

const (
	SeriesKeepAll    SeriesMode = "keep-all"
	SeriesAccumulate SeriesMode = "accumulate"
	SeriesLatest     SeriesMode = "latest"
)

// BackoffStrategy is the webhook retry delay shape.
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// PermissionScope is a capability a bearer token may be granted.
type PermissionScope string

const (
	ScopeTaskCreate      PermissionScope = "task:create"
	ScopeTaskManage      PermissionScope = "task:manage"
	ScopeEventPublish    PermissionScope = "event:publish"
	ScopeEventSubscribe  PermissionScope = "event:subscribe"
	ScopeEventHistory    PermissionScope = "event:history"
	ScopeWebhookCreate   PermissionScope = "webhook:create"
	ScopeAll             PermissionScope = "*"
)

// TaskErrorInfo is the structured error payload attached to a failed/timed-out task.
type TaskErrorInfo struct {
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

// RetryConfig controls webhook delivery retry/backoff behavior.
type RetryConfig struct {
	Retries        int             `json:"retries"`
	Backoff        BackoffStrategy `json:"backoff"`
	InitialDelayMs int64           `json:"initialDelayMs"`
	MaxDelayMs     int64           `json:"maxDelayMs"`
	TimeoutMs      int64           `json:"timeoutMs"`
}

// DefaultRetryConfig matches the reference implementation's defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Retries:        3,
		Backoff:        BackoffExponential,
		InitialDelayMs: 1000,
		MaxDelayMs:     30000,
		TimeoutMs:      5000,
	}
}

// SinceCursor selects a starting point when reading events; precedence is id > index > timestamp.
type SinceCursor struct {
	ID        string `json:"id,omitempty"`
	Index     *int64 `json:"index,omitempty"`
	Timestamp *int64 `json:"timestamp,omitempty"`
}

// SubscribeFilter narrows which events a consumer sees, on both the history and live paths.
type SubscribeFilter struct {
	Since         *SinceCursor `json:"since,omitempty"`
	Types         []string     `json:"types,omitempty"`
	Levels        []EventLevel `json:"levels,omitempty"`
	IncludeStatus *bool        `json:"includeStatus,omitempty"`
	Wrap          *bool        `json:"wrap,omitempty"`
}

func (f *SubscribeFilter) includeStatus() bool {
	if f == nil || f.IncludeStatus == nil {
		return true
	}
	return *f.IncludeStatus
}

func (f *SubscribeFilter) wrap() bool {
	if f == nil || f.Wrap == nil {
		return true
	}
	return *f.Wrap
}

// WebhookConfig describes a single webhook target registered on a task.
type WebhookConfig struct {
	URL    string           `json:"url"`
	Filter *SubscribeFilter `json:"filter,omitempty"`
	Secret string           `json:"secret,omitempty"`
	Wrap   *bool            `json:"wrap,omitempty"`
	Retry  *RetryConfig     `json:"retry,omitempty"`
}

// CleanupMatch narrows which tasks a cleanup rule applies to.
type CleanupMatch struct {
	Status    []TaskStatus `json:"status,omitempty"`
	TaskTypes []string     `json:"taskTypes,omitempty"`
}

// CleanupTrigger gates a cleanup rule on elapsed time since task completion.
type CleanupTrigger struct {
	AfterMs *int64 `json:"afterMs,omitempty"`
}

// CleanupEventFilter narrows which events of a matched task a cleanup rule removes.
type CleanupEventFilter struct {
	Types       []string     `json:"types,omitempty"`
	Levels      []EventLevel `json:"levels,omitempty"`
	SeriesMode  []SeriesMode `json:"seriesMode,omitempty"`
	OlderThanMs *int64       `json:"olderThanMs,omitempty"`
}

// CleanupTarget names what a matching cleanup rule removes.
type CleanupTarget string

const (
	CleanupTargetAll    CleanupTarget = "all"
	CleanupTargetEvents CleanupTarget = "events"
	CleanupTargetTask   CleanupTarget = "task"
)

// CleanupRule is one retention rule evaluated against terminal tasks.
type CleanupRule struct {
	Match       *CleanupMatch       `json:"match,omitempty"`
	Trigger     *CleanupTrigger     `json:"trigger,omitempty"`
	EventFilter *CleanupEventFilter `json:"eventFilter,omitempty"`
	Target      CleanupTarget       `json:"target"`
}

// CleanupConfig is the list of retention rules attached to a task.
type CleanupConfig struct {
	Rules []CleanupRule `json:"rules,omitempty"`
}

// TaskAuthRule restricts which scopes/task ids a request must present to act on a task, beyond
// the process-wide authorization mode. Round-trips through JSON untouched; no operation in this
// module interprets it yet (see SPEC_FULL.md §3).
type TaskAuthRule struct {
	Match   *struct {
		Scope []PermissionScope `json:"scope,omitempty"`
	} `json:"match,omitempty"`
	Require *struct {
		TaskIDs []string `json:"taskIds,omitempty"`
	} `json:"require,omitempty"`
}

// TaskAuthConfig is the optional per-task access-rule list carried in the data model.
type TaskAuthConfig struct {
	Rules []TaskAuthRule `json:"rules,omitempty"`
}

// Task is the root entity tracked by the engine.
type Task struct {
	ID          string          `json:"id"`
	Type        string          `json:"type,omitempty"`
	Status      TaskStatus      `json:"status"`
	Params      json.RawMessage `json:"params,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *TaskErrorInfo  `json:"error,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   int64           `json:"createdAt"`
	UpdatedAt   int64           `json:"updatedAt"`
	CompletedAt *int64          `json:"completedAt,omitempty"`
	TTL         *int64          `json:"ttl,omitempty"`
	AuthConfig  *TaskAuthConfig `json:"authConfig,omitempty"`
	Webhooks    []WebhookConfig `json:"webhooks,omitempty"`
	Cleanup     *CleanupConfig  `json:"cleanup,omitempty"`
}

// TaskEvent is one entry in a task's append-only (modulo series compaction) event log.
type TaskEvent struct {
	ID         string          `json:"id"`
	TaskID     string          `json:"taskId"`
	Index      int64           `json:"index"`
	Timestamp  int64           `json:"timestamp"`
	Type       string          `json:"type"`
	Level      EventLevel      `json:"level"`
	Data       json.RawMessage `json:"data,omitempty"`
	SeriesID   string          `json:"seriesId,omitempty"`
	SeriesMode SeriesMode      `json:"seriesMode,omitempty"`
}

// FilteredEvent is the consumer-facing view assigned by ApplyFilteredIndex.
type FilteredEvent struct {
	FilteredIndex int64     `json:"filteredIndex"`
	RawIndex      int64     `json:"rawIndex"`
	Event         TaskEvent `json:"event"`
}

// Envelope is the wire shape used by the streaming layer when wrap != false.
type Envelope struct {
	FilteredIndex int64           `json:"filteredIndex"`
	RawIndex      int64           `json:"rawIndex"`
	EventID       string          `json:"eventId"`
	TaskID        string          `json:"taskId"`
	Type          string          `json:"type"`
	Timestamp     int64           `json:"timestamp"`
	Level         EventLevel      `json:"level"`
	Data          json.RawMessage `json:"data,omitempty"`
	SeriesID      string          `json:"seriesId,omitempty"`
	SeriesMode    SeriesMode      `json:"seriesMode,omitempty"`
}

// ToEnvelope projects a FilteredEvent into its wire envelope.
func (fe FilteredEvent) ToEnvelope() Envelope {
	e := fe.Event
	return Envelope{
		FilteredIndex: fe.FilteredIndex,
		RawIndex:      fe.RawIndex,
		EventID:       e.ID,
		TaskID:        e.TaskID,
		Type:          e.Type,
		Timestamp:     e.Timestamp,
		Level:         e.Level,
		Data:          e.Data,
		SeriesID:      e.SeriesID,
		SeriesMode:    e.SeriesMode,
	}
}

// IsTerminalStatus reports whether s is one of the terminal lifecycle states.
func IsTerminalStatus(s TaskStatus) bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout, StatusCancelled:
		return true
	default:
		return false
	}
}

// statusEventData is the data payload of a "taskcast:status" event.
type statusEventData struct {
	Status TaskStatus      `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *TaskErrorInfo  `json:"error,omitempty"`
}

// StatusEventType is the event type emitted for every lifecycle transition.
const StatusEventType = "taskcast:status"

// GetEventsOptions narrows a GetEvents call.
type GetEventsOptions struct {
	Since *SinceCursor
	Limit *int
}
