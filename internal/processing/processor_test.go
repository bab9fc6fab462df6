package processing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiabasekou/ged-project/internal/audit"
)

type collector struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *collector) Notify(_ context.Context, ev audit.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestDispatcherDelivers(t *testing.T) {
	sink := &collector{}
	d := New(sink, 2, zerolog.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	for i := 0; i < 10; i++ {
		require.NoError(t, d.Notify(context.Background(), audit.Event{Action: audit.ActionDownload}))
	}
	assert.Eventually(t, func() bool { return sink.len() == 10 }, time.Second, 5*time.Millisecond)
	cancel()
	d.Wait()
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &collector{}
	d := New(sink, 1, zerolog.Nop(), nil)
	// Not started: nothing drains the buffer.
	for i := 0; i < cap(d.queue); i++ {
		require.NoError(t, d.Notify(context.Background(), audit.Event{}))
	}
	assert.ErrorIs(t, d.Notify(context.Background(), audit.Event{}), ErrQueueFull)
}

func TestDispatcherFlushesOnShutdown(t *testing.T) {
	sink := &collector{}
	d := New(sink, 1, zerolog.Nop(), nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Notify(context.Background(), audit.Event{}))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Start(ctx)
	d.Wait()
	assert.Equal(t, 5, sink.len())
}
