// Package recording builds one append-only rrweb timeline per session from
// fragments the tracker uploads.
package recording

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"hotspot/api/locks"
	"hotspot/api/metrics"
	"hotspot/api/models"
	"hotspot/api/session"
	"hotspot/api/store"
	"hotspot/api/utils"
)

type AppendResult struct {
	RecordingID   string `json:"recording_id"`
	EventCount    int    `json:"event_count"`
	Duration      int64  `json:"duration"`
	HasErrors     bool   `json:"has_errors"`
	HasRageClicks bool   `json:"has_rage_clicks"`
}

type Reconstructor struct {
	sites      store.SiteDirectory
	sessions   store.SessionRepository
	recordings store.RecordingRepository
	correlator *session.Correlator
	locker     locks.Locker
	clock      utils.Clock
	log        *zap.Logger
}

func NewReconstructor(
	sites store.SiteDirectory,
	sessions store.SessionRepository,
	recordings store.RecordingRepository,
	correlator *session.Correlator,
	locker locks.Locker,
	clock utils.Clock,
	log *zap.Logger,
) *Reconstructor {
	if locker == nil {
		locker = locks.NewKeyedMutex()
	}
	return &Reconstructor{
		sites:      sites,
		sessions:   sessions,
		recordings: recordings,
		correlator: correlator,
		locker:     locker,
		clock:      clock,
		log:        log,
	}
}

// AppendFragment adds frames to the end of the session's timeline, creating
// the recording on the first fragment. Flags are promoted from the new frames
// only and never cleared.
func (r *Reconstructor) AppendFragment(ctx context.Context, sessionID string, frames []json.RawMessage) (*AppendResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required: %w", models.ErrInvalidArgument)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("empty recording fragment: %w", models.ErrInvalidArgument)
	}
	for i, f := range frames {
		if !json.Valid(f) {
			return nil, fmt.Errorf("frame %d is not valid JSON: %w", i, models.ErrInvalidArgument)
		}
	}

	if _, err := r.sessions.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	result, err := r.appendLocked(ctx, sessionID, frames)
	if err != nil {
		return nil, err
	}

	if err := r.correlator.Touch(ctx, sessionID); err != nil {
		r.log.Warn("Failed to touch session after recording append",
			zap.String("session_id", sessionID), zap.Error(err))
	}
	metrics.RecordingFrames.Add(float64(len(frames)))
	return result, nil
}

func (r *Reconstructor) appendLocked(ctx context.Context, sessionID string, frames []json.RawMessage) (*AppendResult, error) {
	release, err := r.locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("lock recording for session %s: %w", sessionID, err)
	}
	defer release()

	now := r.clock.Now()
	rec, err := r.recordings.GetRecordingBySession(ctx, sessionID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		rec = &models.Recording{
			RecordingID: utils.RecordingIDFor(sessionID),
			SessionID:   sessionID,
			CreatedAt:   now,
		}
	case err != nil:
		return nil, err
	}

	timeline := make([]json.RawMessage, 0, len(rec.Events)+len(frames))
	timeline = append(timeline, rec.Events...)
	timeline = append(timeline, frames...)
	rec.Events = timeline
	rec.EventCount = len(timeline)
	rec.Duration = durationSeconds(timeline)
	rec.UpdatedAt = now

	for _, raw := range frames {
		f := decodeFrame(raw)
		if f.mentions("error") {
			rec.HasErrors = true
		}
		if f.mentions("rage") {
			rec.HasRageClicks = true
		}
	}

	if err := r.recordings.SaveRecording(ctx, rec); err != nil {
		return nil, fmt.Errorf("save recording %s: %w", rec.RecordingID, err)
	}

	return &AppendResult{
		RecordingID:   rec.RecordingID,
		EventCount:    rec.EventCount,
		Duration:      rec.Duration,
		HasErrors:     rec.HasErrors,
		HasRageClicks: rec.HasRageClicks,
	}, nil
}

// Get returns a recording for playback. A non-empty owner must own the
// session's site.
func (r *Reconstructor) Get(ctx context.Context, recordingID, owner string) (*models.Recording, error) {
	rec, err := r.recordings.GetRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if owner == "" {
		return rec, nil
	}

	s, err := r.sessions.GetSession(ctx, rec.SessionID)
	if err != nil {
		return nil, err
	}
	site, err := r.sites.GetSite(ctx, s.SiteID)
	if err != nil {
		return nil, err
	}
	if site.OwnerID != owner {
		return nil, fmt.Errorf("recording %s: %w", recordingID, models.ErrNotFound)
	}
	return rec, nil
}

// ListForOwner returns the newest recordings across the owner's sites.
func (r *Reconstructor) ListForOwner(ctx context.Context, owner string, limit int) ([]models.RecordingSummary, error) {
	sites, err := r.sites.ListSitesByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(sites) == 0 {
		return []models.RecordingSummary{}, nil
	}
	ids := make([]int64, len(sites))
	for i, s := range sites {
		ids[i] = s.ID
	}
	out, err := r.recordings.ListRecordings(ctx, ids, time.Time{}, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.RecordingSummary{}
	}
	return out, nil
}
