package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hotspot/api/models"
	"hotspot/api/utils"
)

// RawEvent is an event as the tracker sends it. Timestamp may be an ISO 8601
// string or epoch milliseconds.
type RawEvent struct {
	EventID   string          `json:"event_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	EventType string          `json:"event_type"`
	Timestamp json.RawMessage `json:"timestamp"`
	PageURL   string          `json:"page_url"`
	Data      map[string]any  `json:"data"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// parseTimestamp accepts a quoted date string or a bare number of epoch
// milliseconds. Zone-less strings are read as UTC.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("unreadable timestamp: %w", err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return time.Time{}, fmt.Errorf("missing timestamp")
		}
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromEpochMillis(ms)
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	}

	ms, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %s", raw)
	}
	return fromEpochMillis(int64(ms))
}

func fromEpochMillis(ms int64) (time.Time, error) {
	if ms <= 0 {
		return time.Time{}, fmt.Errorf("timestamp %d is not a positive epoch millisecond value", ms)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// normalize turns one raw record into an event, or returns the reasons it
// cannot be accepted. sessionID is the batch's session, empty when the batch
// opens a new one. Session, site and device fields are left for the caller.
// The payload is never checked.
func normalize(raw RawEvent, sessionID string) (models.Event, []string) {
	var problems []string

	if raw.SessionID != "" && raw.SessionID != sessionID {
		if sessionID == "" {
			problems = append(problems, fmt.Sprintf("belongs to session %s, but the batch opens a new session", raw.SessionID))
		} else {
			problems = append(problems, fmt.Sprintf("belongs to session %s, not %s", raw.SessionID, sessionID))
		}
	}

	eventType, ok := models.ParseEventType(raw.EventType)
	if !ok {
		if strings.TrimSpace(raw.EventType) == "" {
			problems = append(problems, "missing event type")
		} else {
			problems = append(problems, fmt.Sprintf("unknown event type %q", raw.EventType))
		}
	}

	ts, err := parseTimestamp(raw.Timestamp)
	if err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return models.Event{}, problems
	}

	id := strings.TrimSpace(raw.EventID)
	if id == "" {
		id = utils.NewEventID()
	}
	return models.Event{
		EventID:   id,
		EventType: eventType,
		Timestamp: ts,
		PageURL:   strings.TrimSpace(raw.PageURL),
		Data:      raw.Data,
	}, nil
}
