package interactive

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wirehome/wirehome-go/pkg/bus"
	"github.com/wirehome/wirehome-go/pkg/faultstore"
	"github.com/wirehome/wirehome-go/pkg/log"
)

// syncBuffer is written from handler goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

func newTestConsole(t *testing.T, faults *faultstore.Store) (*Console, *bus.Broker, *syncBuffer) {
	t.Helper()
	var sink log.Logger
	if faults != nil {
		sink = faults
	}
	broker := bus.NewBroker(bus.BrokerConfig{}, sink)
	out := &syncBuffer{}
	return newConsole(broker, faults, out), broker, out
}

func TestSubscribeAndPublish(t *testing.T) {
	c, broker, out := newTestConsole(t, nil)
	ctx := context.Background()

	assert.False(t, c.Execute(ctx, "subscribe type=button.pressed"))
	require.Equal(t, 1, broker.Count())
	assert.Contains(t, out.String(), "Subscribed ")

	out.Reset()
	c.Execute(ctx, "publish type=button.pressed room=kitchen")
	assert.Contains(t, out.String(), "room=kitchen type=button.pressed")
	assert.Contains(t, out.String(), "Delivered to 1 subscriber(s)")

	out.Reset()
	c.Execute(ctx, "pub type=other")
	assert.Contains(t, out.String(), "Delivered to 0 subscriber(s)")
}

func TestUnsubscribe(t *testing.T) {
	c, broker, out := newTestConsole(t, nil)
	ctx := context.Background()

	c.Execute(ctx, "subscribe type=*")
	uid := broker.Subscribers()[0].UID()

	c.Execute(ctx, "unsubscribe "+uid)
	assert.Equal(t, 0, broker.Count())
	assert.Contains(t, out.String(), "Unsubscribed "+uid)

	out.Reset()
	c.Execute(ctx, "unsubscribe "+uid)
	assert.Contains(t, out.String(), "Unsubscribe failed")
}

func TestSubsListsCounters(t *testing.T) {
	c, broker, out := newTestConsole(t, nil)
	ctx := context.Background()

	_, err := broker.SubscribeWithUID("lights", bus.NewFilter(map[string]string{"type": "light"}), bus.HandlerFunc(
		func(context.Context, bus.Message) error { return nil }))
	require.NoError(t, err)
	c.Execute(ctx, "publish type=light")

	out.Reset()
	c.Execute(ctx, "subs")
	assert.Contains(t, out.String(), "UID")
	assert.Regexp(t, `lights\s+type=light\s+0\s+1\s+0`, out.String())
}

func TestEnqueueRequiresRunningDispatcher(t *testing.T) {
	c, broker, out := newTestConsole(t, nil)
	ctx := context.Background()

	c.Execute(ctx, "enqueue type=x")
	assert.Contains(t, out.String(), "Enqueue failed")

	broker.Start()
	defer broker.Stop()

	out.Reset()
	c.Execute(ctx, "enqueue type=x")
	assert.Contains(t, out.String(), "Queued")
}

func TestFaultsCommands(t *testing.T) {
	store, err := faultstore.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	c, broker, out := newTestConsole(t, store)
	ctx := context.Background()

	_, err = broker.SubscribeWithUID("broken", bus.NewFilter(nil), bus.HandlerFunc(
		func(context.Context, bus.Message) error { return errors.New("boom") }))
	require.NoError(t, err)

	c.Execute(ctx, "publish type=x")
	require.Eventually(t, func() bool {
		n, _ := store.Count()
		return n == 1
	}, time.Second, 10*time.Millisecond)

	out.Reset()
	c.Execute(ctx, "faults broken")
	assert.Contains(t, out.String(), "boom")

	c.Execute(ctx, "reset-faults")
	n, err := store.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFaultsDisabled(t *testing.T) {
	c, _, out := newTestConsole(t, nil)

	c.Execute(context.Background(), "faults")
	assert.Contains(t, out.String(), "Fault journal disabled")
}

func TestInvalidInput(t *testing.T) {
	c, broker, out := newTestConsole(t, nil)
	ctx := context.Background()

	c.Execute(ctx, "publish")
	c.Execute(ctx, "publish novalue")
	c.Execute(ctx, "subscribe =x")
	c.Execute(ctx, "frobnicate")

	assert.Equal(t, 0, broker.Count())
	assert.Contains(t, out.String(), "usage: publish")
	assert.Contains(t, out.String(), `invalid pair "novalue"`)
	assert.Contains(t, out.String(), "Unknown command: frobnicate")
}

func TestQuit(t *testing.T) {
	c, _, _ := newTestConsole(t, nil)

	assert.True(t, c.Execute(context.Background(), "quit"))
	assert.False(t, c.Execute(context.Background(), "   "))
}
