// api/handlers/track_handlers.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hotspot/api/ingest"
	"hotspot/api/metrics"
	"hotspot/api/recording"
	"hotspot/api/session"
)

// TrackHandlers serve the browser tracker. These routes are public; the
// tracking id or session id is the only credential.
type TrackHandlers struct {
	Correlator    *session.Correlator
	Ingest        *ingest.Service
	Reconstructor *recording.Reconstructor
	log           *zap.Logger
	timeout       time.Duration
}

func NewTrackHandlers(correlator *session.Correlator, ingestService *ingest.Service, reconstructor *recording.Reconstructor, log *zap.Logger, timeout time.Duration) *TrackHandlers {
	return &TrackHandlers{
		Correlator:    correlator,
		Ingest:        ingestService,
		Reconstructor: reconstructor,
		log:           log,
		timeout:       timeout,
	}
}

type openSessionRequest struct {
	TrackingID string `json:"tracking_id" binding:"required"`
	session.Attributes
}

func (h *TrackHandlers) OpenSession(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	s, err := h.Correlator.Open(ctx, req.TrackingID, req.Attributes)
	if err != nil {
		respondError(c, h.log, err, "open session")
		return
	}
	metrics.SessionsOpened.Inc()

	c.JSON(http.StatusCreated, gin.H{
		"session_id": s.ID,
		"site_id":    s.SiteID,
		"started_at": s.StartedAt,
	})
}

type submitEventsRequest struct {
	session.Ref
	session.Attributes
	Events []ingest.RawEvent `json:"events"`
}

func (h *TrackHandlers) SubmitEvents(c *gin.Context) {
	var req submitEventsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	accepted, err := h.Ingest.SubmitEvents(ctx, req.Ref, req.Attributes, req.Events)
	if err != nil {
		respondError(c, h.log, err, "record events")
		return
	}

	c.JSON(http.StatusOK, accepted)
}

type identifyRequest struct {
	SessionID      string         `json:"session_id" binding:"required"`
	UserIdentifier *string        `json:"user_identifier"`
	Traits         map[string]any `json:"traits"`
}

func (h *TrackHandlers) Identify(c *gin.Context) {
	var req identifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.Correlator.Identify(ctx, req.SessionID, req.UserIdentifier, req.Traits); err != nil {
		respondError(c, h.log, err, "identify user")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "User identified"})
}

type recordingEventsRequest struct {
	SessionID string            `json:"session_id"`
	Events    []json.RawMessage `json:"events"`
}

func (h *TrackHandlers) AppendRecording(c *gin.Context) {
	var req recordingEventsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	res, err := h.Reconstructor.AppendFragment(ctx, req.SessionID, req.Events)
	if err != nil {
		respondError(c, h.log, err, "save recording events")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"recording_id": res.RecordingID,
		"event_count":  res.EventCount,
	})
}

func (h *TrackHandlers) EndSession(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.Correlator.End(ctx, c.Param("id")); err != nil {
		respondError(c, h.log, err, "end session")
		return
	}
	c.Status(http.StatusNoContent)
}
