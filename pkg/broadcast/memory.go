// Package broadcast implements taskcast.BroadcastProvider: an in-process variant and a
// Redis-backed variant for multi-instance deployments.
package broadcast

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/weightwave/taskcast/pkg/taskcast"
)

// MemoryProvider is the in-process BroadcastProvider: a channel-to-handler-map fan-out guarded by
// a single RWMutex. Publish snapshots the handler list under a read lock, then invokes handlers
// after releasing it, so no lock is held while a handler runs and handlers may subscribe or
// unsubscribe. Handlers run synchronously on the publishing goroutine: Publish returns only after
// every handler in the snapshot has returned.
type MemoryProvider struct {
	mu       sync.RWMutex
	handlers map[string]map[uint64]taskcast.BroadcastHandler
	nextID   uint64
}

// NewMemoryProvider constructs an empty in-process broadcast provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{handlers: make(map[string]map[uint64]taskcast.BroadcastHandler)}
}

// Publish invokes every handler currently registered on channel, in a snapshot taken at call
// time; handlers registered afterward do not see this event.
func (p *MemoryProvider) Publish(_ context.Context, channel string, event taskcast.TaskEvent) error {
	p.mu.RLock()
	set := p.handlers[channel]
	snapshot := make([]taskcast.BroadcastHandler, 0, len(set))
	for _, h := range set {
		snapshot = append(snapshot, h)
	}
	p.mu.RUnlock()

	for _, h := range snapshot {
		h(event)
	}
	return nil
}

// Subscribe registers handler on channel and returns an idempotent unsubscribe.
func (p *MemoryProvider) Subscribe(channel string, handler taskcast.BroadcastHandler) taskcast.Unsubscribe {
	token := atomic.AddUint64(&p.nextID, 1)

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
