package models

import "time"

// DefaultInactivityThreshold is how long a session may go without activity
// before it reads as inactive.
const DefaultInactivityThreshold = 5 * time.Minute

type LivenessState string

const (
	LivenessNeverConnected LivenessState = "never_connected"
	LivenessConnected      LivenessState = "connected"
	LivenessInactive       LivenessState = "inactive"
)

type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Session struct {
	ID             string         `json:"id"`
	SiteID         int64          `json:"site"`
	DeviceType     string         `json:"device_type"`
	Browser        string         `json:"browser"`
	OS             string         `json:"os"`
	Viewport       Viewport       `json:"viewport"`
	Location       map[string]any `json:"location,omitempty"`
	UserIdentifier *string        `json:"user_identifier"`
	Tags           map[string]any `json:"tags"`
	StartedAt      time.Time      `json:"started_at"`
	EndedAt        *time.Time     `json:"ended_at"`
	LastActivityAt *time.Time     `json:"last_activity_at"`
}

// Liveness derives the connection state from the last observed activity.
// It is computed at read time; nothing ticks in the background.
func (s *Session) Liveness(now time.Time, threshold time.Duration) LivenessState {
	if s.LastActivityAt == nil {
		return LivenessNeverConnected
	}
	if now.Sub(*s.LastActivityAt) > threshold {
		return LivenessInactive
	}
	return LivenessConnected
}
