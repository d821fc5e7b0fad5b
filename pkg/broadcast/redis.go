package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/weightwave/taskcast/pkg/taskcast"
)

// RedisProvider is the shared-backend BroadcastProvider: a single PSUBSCRIBE covering every task
// channel, read by one background goroutine that dispatches to local handlers by extracted task
// id. Subscribe never opens a per-channel backend subscription; it only mutates the local handler
// map, matching the source's own single-pattern-subscription design.
type RedisProvider struct {
	client *redis.Client
	prefix string

	mu       sync.RWMutex
	handlers map[string]map[uint64]taskcast.BroadcastHandler
	nextID   uint64

	pubsub   *redis.PubSub
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// NewRedisProvider constructs a provider and starts its background reader. prefix defaults to
// "taskcast" when empty and must match the prefix used by the paired redisstore.Store.
func NewRedisProvider(client *redis.Client, prefix string) *RedisProvider {
	if prefix == "" {
		prefix = "taskcast"
	}
	p := &RedisProvider{
		client:   client,
		prefix:   prefix,
		handlers: make(map[string]map[uint64]taskcast.BroadcastHandler),
		loopDone: make(chan struct{}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.pubsub = client.PSubscribe(ctx, p.pattern())
	go p.readLoop(ctx)
	return p
}

func (p *RedisProvider) pattern() string { return fmt.Sprintf("%s:task:*", p.prefix) }
func (p *RedisProvider) channelName(taskID string) string {
	return fmt.Sprintf("%s:task:%s", p.prefix, taskID)
}

func (p *RedisProvider) taskIDFromChannel(channel string) (string, bool) {
	want := fmt.Sprintf("%s:task:", p.prefix)
	if !strings.HasPrefix(channel, want) {
		return "", false
	}
	return strings.TrimPrefix(channel, want), true
}

// Publish PUBLISHes the JSON-encoded event to the task's channel; every connected instance
// (including this one, via its own pattern subscription) receives it.
func (p *RedisProvider) Publish(ctx context.Context, channel string, event taskcast.TaskEvent) error {
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channelName(channel), b).Err()
}

// Subscribe registers a local handler; no backend call is made.
func (p *RedisProvider) Subscribe(channel string, handler taskcast.BroadcastHandler) taskcast.Unsubscribe {
	token := func() uint64 {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.nextID++
		return p.nextID
	}()

	p.mu.Lock()
	set, ok := p.handlers[channel]
	if !ok {
		set = make(map[uint64]taskcast.BroadcastHandler)
		p.handlers[channel] = set
	}
	set[token] = handler
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if set, ok := p.handlers[channel]; ok {
				delete(set, token)
				if len(set) == 0 {
					delete(p.handlers, channel)
				}
			}
		})
	}
}

// Close stops the background reader and releases the pattern subscription.
func (p *RedisProvider) Close() error {
	p.cancel()
	err := p.pubsub.Close()
	<-p.loopDone
	return err
}

// readLoop is the single goroutine permitted to read from the pattern subscription; it reconnects
// with exponential backoff (capped) if the channel closes unexpectedly, mirroring the reconnect
// shape the teacher uses for its own LISTEN/NOTIFY reader.
func (p *RedisProvider) readLoop(ctx context.Context) {
	defer close(p.loopDone)
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for {
		ch := p.pubsub.Channel()
		for msg := range ch {
			taskID, ok := p.taskIDFromChannel(msg.Channel)
			if !ok {
				continue
			}
			var event taskcast.TaskEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.Warn("broadcast: failed to decode redis message", "channel", msg.Channel, "error", err)
				continue
			}
			p.dispatch(taskID, event)
		}

		if ctx.Err() != nil {
			return
		}

		slog.Warn("broadcast: redis pattern subscription closed, reconnecting", "backoff", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		p.pubsub = p.client.PSubscribe(ctx, p.pattern())
	}
}

func (p *RedisProvider) dispatch(taskID string, event taskcast.TaskEvent) {
	p.mu.RLock()
	set := p.handlers[taskID]
	snapshot := make([]taskcast.BroadcastHandler, 0, len(set))
	for _, h := range set {
		snapshot = append(snapshot, h)
	}
	p.mu.RUnlock()

	for _, h := range snapshot {
		h(event)
	}
}
