package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wirehome/wirehome-go/pkg/bus"
	"github.com/wirehome/wirehome-go/pkg/config"
	"github.com/wirehome/wirehome-go/pkg/persistence"
)

func TestRestoreSubscriptions(t *testing.T) {
	store := persistence.NewHubStateStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, store.Save(&persistence.HubState{
		Subscriptions: []persistence.SubscriptionRecord{
			{UID: "trace", Filter: map[string]string{"type": "*"}, Action: config.ActionLog},
			{UID: "taken", Action: config.ActionLog},
			{UID: "broken", Action: config.ActionWebhook},
		},
	}))

	broker := bus.NewBroker(bus.BrokerConfig{}, nil)
	_, err := broker.SubscribeWithUID("taken", bus.NewFilter(nil), bus.HandlerFunc(
		func(context.Context, bus.Message) error { return nil }))
	require.NoError(t, err)

	require.NoError(t, restoreSubscriptions(broker, store, slog.New(slog.DiscardHandler)))

	assert.Equal(t, 2, broker.Count())
	sub, err := broker.Subscriber("trace")
	require.NoError(t, err)
	assert.Equal(t, "type=*", sub.Filter().String())
	_, err = broker.Subscriber("broken")
	assert.ErrorIs(t, err, bus.ErrSubscriberNotFound)
}
