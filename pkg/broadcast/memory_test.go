package broadcast

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weightwave/taskcast/pkg/taskcast"
)

func TestMemoryProvider_PublishDeliversToAllSubscribers(t *testing.T) {
	p := NewMemoryProvider()
	var gotA, gotB []taskcast.TaskEvent
	p.Subscribe("t1", func(e taskcast.TaskEvent) { gotA = append(gotA, e) })
	p.Subscribe("t1", func(e taskcast.TaskEvent) { gotB = append(gotB, e) })

	require.NoError(t, p.Publish(context.Background(), "t1", taskcast.TaskEvent{ID: "e1"}))

	assert.Len(t, gotA, 1)
	assert.Len(t, gotB, 1)
}

func TestMemoryProvider_UnsubscribeIsIdempotentAndStopsDelivery(t *testing.T) {
	p := NewMemoryProvider()
	var count int
	unsub := p.Subscribe("t1", func(taskcast.TaskEvent) { count++ })

	require.NoError(t, p.Publish(context.Background(), "t1", taskcast.TaskEvent{}))
	assert.Equal(t, 1, count)

	unsub()
	unsub() // idempotent

	require.NoError(t, p.Publish(context.Background(), "t1", taskcast.TaskEvent{}))
	assert.Equal(t, 1, count)
}

func TestMemoryProvider_ChannelsAreIndependent(t *testing.T) {
	p := NewMemoryProvider()
	var a, b int
	p.Subscribe("t1", func(taskcast.TaskEvent) { a++ })
	p.Subscribe("t2", func(taskcast.TaskEvent) { b++ })

	require.NoError(t, p.Publish(context.Background(), "t1", taskcast.TaskEvent{}))
	assert.Equal(t, 1, a)
	assert.Equal(t, 0, b)
}
