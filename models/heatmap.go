package models

import "time"

type HeatmapKind string

const (
	HeatmapClick  HeatmapKind = "click"
	HeatmapMove   HeatmapKind = "move"
	HeatmapScroll HeatmapKind = "scroll"
)

// EventType returns the event type a heatmap kind is built from.
func (k HeatmapKind) EventType() (EventType, bool) {
	switch k {
	case HeatmapClick:
		return EventClick, true
	case HeatmapMove:
		return EventMouseMove, true
	case HeatmapScroll:
		return EventScroll, true
	}
	return "", false
}

// HeatmapKey identifies one stored heatmap. Generating the same key again
// replaces the stored result.
type HeatmapKey struct {
	SiteID     int64       `json:"site_id"`
	PageURL    string      `json:"page_url"`
	Kind       HeatmapKind `json:"heatmap_type"`
	DeviceType string      `json:"device_type"`
	RangeStart time.Time   `json:"date_range_start"`
	RangeEnd   time.Time   `json:"date_range_end"`
}

type HeatmapPoint struct {
	X     int  `json:"x"`
	Y     int  `json:"y"`
	Value int  `json:"value"`
	Width *int `json:"width,omitempty"`
}

type HeatmapResult struct {
	Key          HeatmapKey     `json:"key"`
	Points       []HeatmapPoint `json:"data"`
	Max          int            `json:"max"`
	SessionCount int            `json:"session_count"`
	TotalEvents  int            `json:"total_events"`
}
