// Package session resolves tracker traffic to sessions and derives their
// liveness.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"hotspot/api/models"
	"hotspot/api/store"
	"hotspot/api/utils"
)

// Ref identifies the session a tracker call belongs to. SessionID wins when
// both are set; TrackingID alone opens a new session on first contact.
type Ref struct {
	SessionID  string `json:"session_id"`
	TrackingID string `json:"tracking_id"`
}

// Attributes describe the visitor's environment when a session is opened.
type Attributes struct {
	DeviceType string          `json:"device_type"`
	Browser    string          `json:"browser"`
	OS         string          `json:"os"`
	Viewport   models.Viewport `json:"viewport"`
	Location   map[string]any  `json:"location,omitempty"`
}

type Correlator struct {
	sites     store.SiteDirectory
	sessions  store.SessionRepository
	clock     utils.Clock
	threshold time.Duration
	log       *zap.Logger
}

func NewCorrelator(sites store.SiteDirectory, sessions store.SessionRepository, clock utils.Clock, threshold time.Duration, log *zap.Logger) *Correlator {
	if threshold <= 0 {
		threshold = models.DefaultInactivityThreshold
	}
	return &Correlator{
		sites:     sites,
		sessions:  sessions,
		clock:     clock,
		threshold: threshold,
		log:       log,
	}
}

// Open creates a session for the site owning trackingID.
func (c *Correlator) Open(ctx context.Context, trackingID string, attrs Attributes) (*models.Session, error) {
	trackingID = strings.TrimSpace(trackingID)
	if trackingID == "" {
		return nil, fmt.Errorf("tracking id is required: %w", models.ErrInvalidArgument)
	}
	site, err := c.sites.GetSiteByTrackingID(ctx, trackingID)
	if err != nil {
		return nil, err
	}

	s := &models.Session{
		ID:         utils.NewSessionID(),
		SiteID:     site.ID,
		DeviceType: strings.ToLower(strings.TrimSpace(attrs.DeviceType)),
		Browser:    attrs.Browser,
		OS:         attrs.OS,
		Viewport:   attrs.Viewport,
		Location:   attrs.Location,
		Tags:       map[string]any{},
		StartedAt:  c.clock.Now(),
	}
	if err := c.sessions.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("open session for site %d: %w", site.ID, err)
	}

	c.log.Debug("Session opened", zap.String("session_id", s.ID), zap.Int64("site_id", site.ID))
	return s, nil
}

// Resolve returns the referenced session, opening one when only a tracking id
// is given.
func (c *Correlator) Resolve(ctx context.Context, ref Ref, attrs Attributes) (*models.Session, error) {
	if id := strings.TrimSpace(ref.SessionID); id != "" {
		return c.sessions.GetSession(ctx, id)
	}
	if strings.TrimSpace(ref.TrackingID) != "" {
		return c.Open(ctx, ref.TrackingID, attrs)
	}
	return nil, fmt.Errorf("session id or tracking id is required: %w", models.ErrInvalidArgument)
}

// Identify attaches a user identifier and tags to a session. Repeated calls
// overwrite both.
func (c *Correlator) Identify(ctx context.Context, sessionID string, userIdentifier *string, tags map[string]any) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required: %w", models.ErrInvalidArgument)
	}
	if tags == nil {
		tags = map[string]any{}
	}
	return c.sessions.UpdateIdentity(ctx, sessionID, userIdentifier, tags)
}

// Touch records activity on a session at the current time.
func (c *Correlator) Touch(ctx context.Context, sessionID string) error {
	return c.sessions.TouchSession(ctx, sessionID, c.clock.Now())
}

func (c *Correlator) Liveness(ctx context.Context, sessionID string) (models.LivenessState, error) {
	s, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return s.Liveness(c.clock.Now(), c.threshold), nil
}

// End marks the session finished. Only the first call sets the end time.
func (c *Correlator) End(ctx context.Context, sessionID string) error {
	return c.sessions.EndSession(ctx, sessionID, c.clock.Now())
}

// Status returns a session with its liveness. A non-empty owner must own the
// session's site.
func (c *Correlator) Status(ctx context.Context, sessionID, owner string) (*models.Session, models.LivenessState, error) {
	s, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	if owner != "" {
		site, err := c.sites.GetSite(ctx, s.SiteID)
		if err != nil {
			return nil, "", err
		}
		if site.OwnerID != owner {
			return nil, "", fmt.Errorf("session %s: %w", sessionID, models.ErrNotFound)
		}
	}
	return s, s.Liveness(c.clock.Now(), c.threshold), nil
}
