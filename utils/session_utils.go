package utils

import (
	"github.com/google/uuid"
)

// NewSessionID returns a random session identifier.
func NewSessionID() string {
	return uuid.New().String()
}

// NewEventID returns a time-ordered event identifier.
func NewEventID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// RecordingIDFor derives the recording id of a session. Recordings are
// one-to-one with sessions, so the id is stable across fragments.
func RecordingIDFor(sessionID string) string {
	return "rec_" + sessionID
}
