package log

import (
	"testing"
	"time"
)

func TestFaultEventCBORRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)
	original := Event{
		Timestamp:     ts,
		SubscriberUID: "wirehome.lamp.living_room",
		Category:      CategoryFault,
		Kind:          FaultPanic,
		Message: map[string]any{
			"type":  "component_registry.event.status_changed",
			"state": map[string]any{"power": "on"},
		},
		Error: &ErrorEventData{
			Message: "index out of range",
			Context: "Deliver",
			Stack:   "goroutine 7 [running]:",
		},
		Duration: 3 * time.Millisecond,
	}

	data, err := EncodeEvent(original)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if !decoded.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp: got %v, want %v", decoded.Timestamp, original.Timestamp)
	}
	if decoded.SubscriberUID != original.SubscriberUID {
		t.Errorf("SubscriberUID: got %q, want %q", decoded.SubscriberUID, original.SubscriberUID)
	}
	if decoded.Category != CategoryFault || decoded.Kind != FaultPanic {
		t.Errorf("Category/Kind: got %v/%v", decoded.Category, decoded.Kind)
	}
	if decoded.Error == nil || decoded.Error.Message != "index out of range" {
		t.Fatalf("Error: got %+v", decoded.Error)
	}
	if decoded.Error.Stack != original.Error.Stack {
		t.Errorf("Error.Stack: got %q", decoded.Error.Stack)
	}
	if decoded.Duration != original.Duration {
		t.Errorf("Duration: got %v, want %v", decoded.Duration, original.Duration)
	}

	// Nested maps must come back as map[string]any.
	state, ok := decoded.Message["state"].(map[string]any)
	if !ok {
		t.Fatalf("Message[state]: got %T, want map[string]any", decoded.Message["state"])
	}
	if state["power"] != "on" {
		t.Errorf("Message[state][power]: got %v", state["power"])
	}
}

func TestStateEventCBORRoundTrip(t *testing.T) {
	original := Event{
		Timestamp: time.Now(),
		Category:  CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   StateEntityDispatcher,
			OldState: "stopped",
			NewState: "running",
		},
	}

	data, err := EncodeEvent(original)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if decoded.StateChange == nil {
		t.Fatal("StateChange is nil")
	}
	if *decoded.StateChange != *original.StateChange {
		t.Errorf("StateChange: got %+v, want %+v", decoded.StateChange, original.StateChange)
	}
	if decoded.Error != nil {
		t.Errorf("Error: got %+v, want nil", decoded.Error)
	}
}

func TestEventCBORUsesIntegerKeys(t *testing.T) {
	data, err := EncodeEvent(Event{
		Timestamp:     time.Now(),
		SubscriberUID: "sub-1",
		Category:      CategoryDelivery,
	})
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	var rawMap map[uint64]any
	if err := logDecMode.Unmarshal(data, &rawMap); err != nil {
		t.Fatalf("failed to decode as map: %v", err)
	}
	for _, key := range []uint64{1, 2, 3} {
		if _, ok := rawMap[key]; !ok {
			t.Errorf("expected integer key %d not found in encoded data", key)
		}
	}
}

func TestCategoryStrings(t *testing.T) {
	for _, c := range []Category{CategoryDelivery, CategoryFault, CategoryState} {
		parsed, ok := ParseCategory(c.String())
		if !ok || parsed != c {
			t.Errorf("ParseCategory(%q) = %v, %v", c.String(), parsed, ok)
		}
	}
	if _, ok := ParseCategory("fault"); !ok {
		t.Error("ParseCategory should be case-insensitive")
	}
	if _, ok := ParseCategory("bogus"); ok {
		t.Error("ParseCategory(bogus) should fail")
	}
	if got := Category(99).String(); got != "UNKNOWN" {
		t.Errorf("Category(99).String() = %q", got)
	}
}
