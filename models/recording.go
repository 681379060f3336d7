package models

import (
	"encoding/json"
	"time"
)

// Recording is the append-only rrweb timeline for one session.
type Recording struct {
	RecordingID   string            `json:"recording_id"`
	SessionID     string            `json:"session_id"`
	Duration      int64             `json:"duration"`
	EventCount    int               `json:"event_count"`
	Events        []json.RawMessage `json:"events"`
	HasErrors     bool              `json:"has_errors"`
	HasRageClicks bool              `json:"has_rage_clicks"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// RecordingSummary is a recording without its timeline, joined with the
// session fields the dashboard shows.
type RecordingSummary struct {
	RecordingID    string    `json:"recording_id"`
	SessionID      string    `json:"session_id"`
	UserIdentifier *string   `json:"user_identifier"`
	Duration       int64     `json:"duration"`
	EventCount     int       `json:"event_count"`
	HasErrors      bool      `json:"has_errors"`
	HasRageClicks  bool      `json:"has_rage_clicks"`
	CreatedAt      time.Time `json:"created_at"`
}
