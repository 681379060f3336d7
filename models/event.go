// api/models/event.go
package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

type EventType string

const (
	EventClick           EventType = "click"
	EventScroll          EventType = "scroll"
	EventMouseMove       EventType = "mouse_move"
	EventFormInteraction EventType = "form_interaction"
	EventPageView        EventType = "page_view"
	EventRageClick       EventType = "rage_click"
	EventError           EventType = "error"
	EventCustom          EventType = "custom"
)

// eventTypeAliases maps tracker spellings onto the canonical event types.
var eventTypeAliases = map[string]EventType{
	"click":            EventClick,
	"scroll":           EventScroll,
	"mouse_move":       EventMouseMove,
	"mousemove":        EventMouseMove,
	"pointer_move":     EventMouseMove,
	"pointermove":      EventMouseMove,
	"move":             EventMouseMove,
	"form_interaction": EventFormInteraction,
	"page_view":        EventPageView,
	"pageview":         EventPageView,
	"rage_click":       EventRageClick,
	"error":            EventError,
	"custom":           EventCustom,
}

// ParseEventType normalizes a raw event type. The second return value is false
// for anything outside the known set.
func ParseEventType(raw string) (EventType, bool) {
	t, ok := eventTypeAliases[strings.ToLower(strings.TrimSpace(raw))]
	return t, ok
}

// Event is a single validated, session-tagged interaction.
type Event struct {
	EventID    string         `json:"event_id"`
	SessionID  string         `json:"session"`
	SiteID     int64          `json:"site_id"`
	DeviceType string         `json:"device_type"`
	EventType  EventType      `json:"event_type"`
	Timestamp  time.Time      `json:"timestamp"`
	PageURL    string         `json:"page_url"`
	Data       map[string]any `json:"data,omitempty"`
}

// IntField reads an integer payload field. Floats are truncated toward zero
// and numeric strings are accepted; anything else reports false.
func (e *Event) IntField(key string) (int, bool) {
	if e.Data == nil {
		return 0, false
	}
	v, ok := e.Data[key]
	if !ok || v == nil {
		return 0, false
	}

	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case float32:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		if f, err := n.Float64(); err == nil {
			return int(f), true
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i, true
		}
	}
	return 0, false
}

// TopPathResult is a page URL paired with the number of sessions that viewed it.
type TopPathResult struct {
	PageURL string `json:"page_url"`
	Count   uint64 `json:"count"`
}
