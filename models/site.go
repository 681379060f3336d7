package models

import "time"

// Site is owned and registered by an external collaborator; the core only reads it.
type Site struct {
	ID         int64          `json:"id"`
	OwnerID    string         `json:"owner_id"`
	Name       string         `json:"name"`
	Domain     string         `json:"domain"`
	TrackingID string         `json:"tracking_id"`
	Settings   map[string]any `json:"settings,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
