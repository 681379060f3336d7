// api/store/store.go
package store

import (
	"context"
	"time"

	"hotspot/api/models"
)

// SiteDirectory resolves sites registered by the tenant service.
type SiteDirectory interface {
	GetSite(ctx context.Context, id int64) (*models.Site, error)
	GetSiteByTrackingID(ctx context.Context, trackingID string) (*models.Site, error)
	ListSitesByOwner(ctx context.Context, ownerID string) ([]models.Site, error)
}

// SessionFilter selects sessions started within [StartedSince, StartedUntil].
// A zero bound is unbounded.
type SessionFilter struct {
	SiteIDs      []int64
	StartedSince time.Time
	StartedUntil time.Time
}

type SessionRepository interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	UpdateIdentity(ctx context.Context, id string, userIdentifier *string, tags map[string]any) error
	TouchSession(ctx context.Context, id string, at time.Time) error
	EndSession(ctx context.Context, id string, at time.Time) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]models.Session, error)
}

// EventFilter selects events. Empty fields do not filter; PageContains is a
// case-insensitive substring match.
type EventFilter struct {
	SiteIDs      []int64
	SessionID    string
	PageContains string
	Types        []models.EventType
	DeviceType   string
	Since        time.Time
	Until        time.Time
}

type EventRepository interface {
	// InsertEvents stores the whole slice or nothing.
	InsertEvents(ctx context.Context, events []models.Event) error
	// StreamEvents calls fn for each matching event ordered by timestamp then
	// event id. Returning an error from fn stops the stream.
	StreamEvents(ctx context.Context, filter EventFilter, fn func(*models.Event) error) error
	// TopPages ranks page-view URLs by distinct session count.
	TopPages(ctx context.Context, siteIDs []int64, since time.Time, limit int) ([]models.TopPathResult, error)
	FirstPageView(ctx context.Context, sessionID string) (string, bool, error)
	DistinctPages(ctx context.Context, siteID int64, eventType models.EventType, limit int) ([]string, error)
}

type RecordingRepository interface {
	GetRecording(ctx context.Context, recordingID string) (*models.Recording, error)
	GetRecordingBySession(ctx context.Context, sessionID string) (*models.Recording, error)
	// SaveRecording inserts or overwrites the recording row for its session.
	SaveRecording(ctx context.Context, r *models.Recording) error
	// ListRecordings returns summaries newest first. limit <= 0 means no limit.
	ListRecordings(ctx context.Context, siteIDs []int64, since time.Time, limit int) ([]models.RecordingSummary, error)
}

type HeatmapRepository interface {
	// ReplaceHeatmap overwrites whatever is stored under the result's key.
	ReplaceHeatmap(ctx context.Context, result *models.HeatmapResult, generatedAt time.Time) error
	GetHeatmap(ctx context.Context, key models.HeatmapKey) (*models.HeatmapResult, error)
}

type FunnelRepository interface {
	GetFunnel(ctx context.Context, id int64) (*models.Funnel, error)
}

var (
	_ SiteDirectory       = (*MemoryStore)(nil)
	_ SessionRepository   = (*MemoryStore)(nil)
	_ EventRepository     = (*MemoryStore)(nil)
	_ RecordingRepository = (*MemoryStore)(nil)
	_ HeatmapRepository   = (*MemoryStore)(nil)
	_ FunnelRepository    = (*MemoryStore)(nil)

	_ SiteDirectory       = (*CachedSiteDirectory)(nil)
	_ SiteDirectory       = (*PostgresSiteStore)(nil)
	_ SessionRepository   = (*PostgresSessionStore)(nil)
	_ EventRepository     = (*ClickHouseEventStore)(nil)
	_ RecordingRepository = (*PostgresRecordingStore)(nil)
	_ HeatmapRepository   = (*PostgresHeatmapStore)(nil)
	_ FunnelRepository    = (*PostgresFunnelStore)(nil)
)
