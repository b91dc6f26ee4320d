package persistence

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wirehome/wirehome-go/pkg/config"
)

func TestHubStateStore(t *testing.T) {
	t.Run("LoadMissingFile", func(t *testing.T) {
		store := NewHubStateStore(filepath.Join(t.TempDir(), "state.json"))

		state, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(state.Subscriptions) != 0 {
			t.Errorf("Load() subscriptions = %d, want 0", len(state.Subscriptions))
		}
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		store := NewHubStateStore(filepath.Join(t.TempDir(), "nested", "state.json"))

		state := &HubState{
			Subscriptions: []SubscriptionRecord{
				{UID: "a", Filter: map[string]string{"type": "x"}, Action: config.ActionLog},
			},
		}
		if err := store.Save(state); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		loaded, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if loaded.Version != StateVersion {
			t.Errorf("Version = %d, want %d", loaded.Version, StateVersion)
		}
		if loaded.SavedAt.IsZero() {
			t.Error("SavedAt not set")
		}
		if len(loaded.Subscriptions) != 1 || loaded.Subscriptions[0].Filter["type"] != "x" {
			t.Errorf("unexpected subscriptions: %+v", loaded.Subscriptions)
		}
		if _, err := os.Stat(store.Path() + ".tmp"); !os.IsNotExist(err) {
			t.Error("temp file left behind")
		}
	})

	t.Run("PutAndRemove", func(t *testing.T) {
		store := NewHubStateStore(filepath.Join(t.TempDir(), "state.json"))

		webhook := config.SubscriptionConfig{
			UID:     "notify",
			Action:  config.ActionWebhook,
			URL:     "http://127.0.0.1:8123/hook",
			Timeout: 3 * time.Second,
		}
		if err := store.PutSubscription(RecordFromConfig(webhook)); err != nil {
			t.Fatalf("PutSubscription() error = %v", err)
		}
		if err := store.PutSubscription(RecordFromConfig(config.SubscriptionConfig{UID: "trace", Action: config.ActionLog})); err != nil {
			t.Fatalf("PutSubscription() error = %v", err)
		}

		webhook.URL = "http://127.0.0.1:8123/other"
		if err := store.PutSubscription(RecordFromConfig(webhook)); err != nil {
			t.Fatalf("PutSubscription() error = %v", err)
		}

		state, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(state.Subscriptions) != 2 {
			t.Fatalf("subscriptions = %d, want 2", len(state.Subscriptions))
		}
		got := state.Subscriptions[0].Config()
		if got.URL != webhook.URL || got.Timeout != 3*time.Second {
			t.Errorf("replaced record = %+v", got)
		}

		if err := store.RemoveSubscription("notify"); err != nil {
			t.Fatalf("RemoveSubscription() error = %v", err)
		}
		if err := store.RemoveSubscription("unknown"); err != nil {
			t.Fatalf("RemoveSubscription(unknown) error = %v", err)
		}

		state, _ = store.Load()
		if len(state.Subscriptions) != 1 || state.Subscriptions[0].UID != "trace" {
			t.Errorf("unexpected subscriptions: %+v", state.Subscriptions)
		}
	})

	t.Run("LoadCorrupt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewHubStateStore(path).Load(); err == nil {
			t.Error("Load() expected error for corrupt file")
		}
	})

	t.Run("Clear", func(t *testing.T) {
		store := NewHubStateStore(filepath.Join(t.TempDir(), "state.json"))
		if err := store.Save(&HubState{}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if err := store.Clear(); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		if err := store.Clear(); err != nil {
			t.Fatalf("Clear() twice error = %v", err)
		}
	})
}
