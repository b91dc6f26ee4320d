package bus

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Message is a structured bus message. Handlers must treat it as read-only:
// the same map is handed to every matching subscriber.
type Message map[string]any

// Wildcard is the filter value that matches any present message value.
const Wildcard = "*"

// Filter is an immutable set of match criteria attached to a subscription.
// Only the broker interprets it; subscribers carry it for introspection.
// The zero Filter has no criteria and matches every message.
type Filter struct {
	criteria map[string]string
}

// NewFilter copies criteria into a new Filter.
func NewFilter(criteria map[string]string) Filter {
	if len(criteria) == 0 {
		return Filter{}
	}
	c := make(map[string]string, len(criteria))
	for k, v := range criteria {
		c[k] = v
	}
	return Filter{criteria: c}
}

// ParseFilter builds a Filter from "key=value" pairs.
func ParseFilter(pairs []string) (Filter, error) {
	criteria := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return Filter{}, fmt.Errorf("%w: filter criterion %q is not key=value", ErrInvalidArgument, p)
		}
		criteria[k] = v
	}
	return NewFilter(criteria), nil
}

// Get returns the criterion value for key.
func (f Filter) Get(key string) (string, bool) {
	v, ok := f.criteria[key]
	return v, ok
}

// Len returns the number of criteria.
func (f Filter) Len() int {
	return len(f.criteria)
}

// Keys returns the criterion keys in sorted order.
func (f Filter) Keys() []string {
	keys := make([]string, 0, len(f.criteria))
	for k := range f.criteria {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Map returns a copy of the criteria.
func (f Filter) Map() map[string]string {
	m := make(map[string]string, len(f.criteria))
	for k, v := range f.criteria {
		m[k] = v
	}
	return m
}

// Equal reports whether both filters hold the same criteria.
func (f Filter) Equal(other Filter) bool {
	if len(f.criteria) != len(other.criteria) {
		return false
	}
	for k, v := range f.criteria {
		if ov, ok := other.criteria[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Matches reports whether msg satisfies every criterion. A message value
// matches when its string rendering equals the criterion, or when the
// criterion is Wildcard and the key is present.
func (f Filter) Matches(msg Message) bool {
	for k, want := range f.criteria {
		got, ok := msg[k]
		if !ok {
			return false
		}
		if want == Wildcard {
			continue
		}
		if fmt.Sprint(got) != want {
			return false
		}
	}
	return true
}

// String renders the filter as sorted "key=value" pairs. Equal filters
// render identically, so the result can be used as a map key.
func (f Filter) String() string {
	keys := f.Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + f.criteria[k]
	}
	return strings.Join(parts, " ")
}

// MarshalJSON encodes the filter as a JSON object.
func (f Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Map())
}

// UnmarshalJSON decodes a JSON object of string values.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*f = NewFilter(m)
	return nil
}
