package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/wirehome/wirehome-go/pkg/config"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// HubState contains the runtime state of a hub.
type HubState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Subscriptions were created at runtime, in creation order.
	Subscriptions []SubscriptionRecord `json:"subscriptions,omitempty"`
}

// SubscriptionRecord describes a runtime subscription.
type SubscriptionRecord struct {
	UID       string            `json:"uid"`
	Filter    map[string]string `json:"filter,omitempty"`
	Action    string            `json:"action"`
	URL       string            `json:"url,omitempty"`
	Timeout   time.Duration     `json:"timeout,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// RecordFromConfig converts a subscription declaration into a record.
func RecordFromConfig(sc config.SubscriptionConfig) SubscriptionRecord {
	return SubscriptionRecord{
		UID:       sc.UID,
		Filter:    sc.Filter,
		Action:    sc.Action,
		URL:       sc.URL,
		Timeout:   sc.Timeout,
		CreatedAt: time.Now(),
	}
}

// Config converts the record back into a subscription declaration.
func (r SubscriptionRecord) Config() config.SubscriptionConfig {
	return config.SubscriptionConfig{
		UID:     r.UID,
		Filter:  r.Filter,
		Action:  r.Action,
		URL:     r.URL,
		Timeout: r.Timeout,
	}
}

// HubStateStore manages persistence of hub state to a JSON file.
type HubStateStore struct {
	mu   sync.Mutex
	path string
}

// NewHubStateStore creates a new hub state store.
func NewHubStateStore(path string) *HubStateStore {
	return &HubStateStore{path: path}
}

// Path returns the state file path.
func (s *HubStateStore) Path() string {
	return s.path
}

// Save persists the hub state to disk.
func (s *HubStateStore) Save(state *HubState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(state)
}

func (s *HubStateStore) save(state *HubState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	state.Version = StateVersion
	state.SavedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// Atomic replace.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the hub state from disk.
// Returns an empty state if the file doesn't exist.
func (s *HubStateStore) Load() (*HubState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *HubStateStore) load() (*HubState, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &HubState{Version: StateVersion}, nil
	}
	if err != nil {
		return nil, err
	}

	state := &HubState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, err
	}
	return state, nil
}

// PutSubscription adds or replaces the record with rec.UID.
func (s *HubStateStore) PutSubscription(rec SubscriptionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}

	i := slices.IndexFunc(state.Subscriptions, func(r SubscriptionRecord) bool { return r.UID == rec.UID })
	if i >= 0 {
		state.Subscriptions[i] = rec
	} else {
		state.Subscriptions = append(state.Subscriptions, rec)
	}
	return s.save(state)
}

// RemoveSubscription deletes the record with uid. Unknown uids are ignored.
func (s *HubStateStore) RemoveSubscription(uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}

	n := len(state.Subscriptions)
	state.Subscriptions = slices.DeleteFunc(state.Subscriptions, func(r SubscriptionRecord) bool { return r.UID == uid })
	if len(state.Subscriptions) == n {
		return nil
	}
	return s.save(state)
}

// Clear removes the state file.
func (s *HubStateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
