package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wirehome/wirehome-go/pkg/bus"
)

func TestParseEmptyYieldsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseFullDocument(t *testing.T) {
	doc := `
http:
  listen: "127.0.0.1:9090"
  shutdown_timeout: 2s
broker:
  max_subscribers: 64
  fan_out_limit: 4
  queue_size: 32
  workers: 1
diagnostics:
  file: /var/log/wirehome/bus.wlog
  database: /var/lib/wirehome/faults.db
discovery:
  enabled: true
log_level: debug
state_file: /var/lib/wirehome/state.json
subscriptions:
  - uid: trace.buttons
    filter:
      type: button.pressed
  - uid: notify.alarm
    filter:
      type: alarm.triggered
    action: webhook
    url: http://127.0.0.1:8123/hook
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.HTTP.ListenAddress)
	assert.Equal(t, 2*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, bus.BrokerConfig{MaxSubscribers: 64, FanOutLimit: 4, QueueSize: 32, Workers: 1}, cfg.Broker)
	assert.Equal(t, "/var/lib/wirehome/faults.db", cfg.Diagnostics.Database)
	assert.True(t, cfg.Discovery.Enabled)
	assert.Equal(t, DefaultInstanceName, cfg.Discovery.Instance)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/var/lib/wirehome/state.json", cfg.StateFile)

	require.Len(t, cfg.Subscriptions, 2)
	assert.Equal(t, ActionLog, cfg.Subscriptions[0].Action)
	assert.Equal(t, map[string]string{"type": "button.pressed"}, cfg.Subscriptions[0].Filter)
	assert.Equal(t, ActionWebhook, cfg.Subscriptions[1].Action)
	assert.Equal(t, DefaultWebhookTimeout, cfg.Subscriptions[1].Timeout)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad yaml", "http: [unterminated"},
		{"bad level", "log_level: chatty"},
		{"negative workers", "broker:\n  workers: -1"},
		{"discovery without http", "http:\n  listen: \"\"\ndiscovery:\n  enabled: true"},
		{"missing uid", "subscriptions:\n  - filter: {type: x}"},
		{"duplicate uid", "subscriptions:\n  - uid: a\n  - uid: a"},
		{"webhook without url", "subscriptions:\n  - uid: a\n    action: webhook"},
		{"unknown action", "subscriptions:\n  - uid: a\n    action: script"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("ERROR")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelError, lvl)

	_, err = ParseLevel("verbose")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
