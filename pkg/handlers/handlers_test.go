package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wirehome/wirehome-go/pkg/bus"
	"github.com/wirehome/wirehome-go/pkg/config"
	"github.com/wirehome/wirehome-go/pkg/log"
)

func TestLogHandlerWritesMessage(t *testing.T) {
	var buf bytes.Buffer
	h := NewLogHandler("trace", slog.New(slog.NewTextHandler(&buf, nil)))

	err := h.Process(context.Background(), bus.Message{"type": "button.pressed"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "subscriber=trace")
	assert.Contains(t, buf.String(), "button.pressed")
}

func TestWebhookHandlerPostsJSON(t *testing.T) {
	var got bus.Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h := NewWebhookHandler(srv.URL, srv.Client(), time.Second)
	err := h.Process(context.Background(), bus.Message{"type": "alarm", "zone": "garage"})

	require.NoError(t, err)
	assert.Equal(t, bus.Message{"type": "alarm", "zone": "garage"}, got)
}

func TestWebhookHandlerStatusIsFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookHandler(srv.URL, srv.Client(), 0).Process(context.Background(), bus.Message{})

	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, bus.KindFault, bus.Classify(err))
}

func TestWebhookHandlerCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := NewWebhookHandler(srv.URL, srv.Client(), 0).Process(ctx, bus.Message{})
	assert.Equal(t, bus.KindCancelled, bus.Classify(err))
}

func TestWebhookHandlerTimeoutIsFault(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	err := NewWebhookHandler(srv.URL, srv.Client(), 20*time.Millisecond).Process(context.Background(), bus.Message{})
	require.Error(t, err)
	assert.Equal(t, bus.KindFault, bus.Classify(err))
}

func TestWebhookFaultReachesDiagnostics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var faults atomic.Int32
	sink := log.LoggerFunc(func(e log.Event) {
		if e.Category == log.CategoryFault && e.SubscriberUID == "notify" {
			faults.Add(1)
		}
	})

	sub, err := bus.NewSubscriber("notify", bus.NewFilter(nil), NewWebhookHandler(srv.URL, srv.Client(), 0), sink)
	require.NoError(t, err)

	require.NoError(t, sub.Deliver(context.Background(), bus.Message{"type": "x"}))
	assert.Equal(t, int64(1), sub.FaultedCount())
	assert.Equal(t, int32(1), faults.Load())
}

func TestFromConfig(t *testing.T) {
	h, err := FromConfig(config.SubscriptionConfig{UID: "a", Action: config.ActionLog}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &LogHandler{}, h)

	h, err = FromConfig(config.SubscriptionConfig{UID: "b", Action: config.ActionWebhook, URL: "http://example.invalid"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://example.invalid", h.(*WebhookHandler).URL())

	_, err = FromConfig(config.SubscriptionConfig{UID: "c", Action: config.ActionWebhook}, nil, nil)
	assert.ErrorIs(t, err, bus.ErrInvalidArgument)

	_, err = FromConfig(config.SubscriptionConfig{UID: "d", Action: "script"}, nil, nil)
	assert.ErrorIs(t, err, bus.ErrInvalidArgument)
}

func TestSubscribeRegistersAll(t *testing.T) {
	broker := bus.NewBroker(bus.BrokerConfig{}, nil)
	subs := []config.SubscriptionConfig{
		{UID: "trace", Filter: map[string]string{"type": "*"}, Action: config.ActionLog},
		{UID: "other", Action: config.ActionLog},
	}

	require.NoError(t, Subscribe(broker, subs, slog.New(slog.DiscardHandler), nil))
	assert.Equal(t, 2, broker.Count())

	err := Subscribe(broker, subs[:1], nil, nil)
	assert.ErrorIs(t, err, bus.ErrDuplicateUID)
}
