// api/store/memory.go
package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"hotspot/api/models"
)

// MemoryStore implements every repository in process. It backs the test
// suites and the "memory" storage driver.
type MemoryStore struct {
	mu         sync.RWMutex
	sites      map[int64]*models.Site
	sessions   map[string]*models.Session
	events     []models.Event
	recordings map[string]*models.Recording // by session id
	heatmaps   map[models.HeatmapKey]storedHeatmap
	funnels    map[int64]*models.Funnel
}

type storedHeatmap struct {
	result      models.HeatmapResult
	generatedAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sites:      make(map[int64]*models.Site),
		sessions:   make(map[string]*models.Session),
		recordings: make(map[string]*models.Recording),
		heatmaps:   make(map[models.HeatmapKey]storedHeatmap),
		funnels:    make(map[int64]*models.Funnel),
	}
}

// AddSite registers a site the way the tenant service would.
func (m *MemoryStore) AddSite(site models.Site) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sites[site.ID] = &site
}

// AddFunnel stores a funnel definition.
func (m *MemoryStore) AddFunnel(f models.Funnel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funnels[f.ID] = &f
}

func (m *MemoryStore) GetSite(ctx context.Context, id int64) (*models.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sites[id]
	if !ok {
		return nil, fmt.Errorf("site %d: %w", id, models.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) GetSiteByTrackingID(ctx context.Context, trackingID string) (*models.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sites {
		if s.TrackingID == trackingID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("tracking id %q: %w", trackingID, models.ErrNotFound)
}

func (m *MemoryStore) ListSitesByOwner(ctx context.Context, ownerID string) ([]models.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Site
	for _, s := range m.sites {
		if s.OwnerID == ownerID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CreateSession(ctx context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; exists {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	m.sessions[s.ID] = copySession(s)
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	return copySession(s), nil
}

func (m *MemoryStore) UpdateIdentity(ctx context.Context, id string, userIdentifier *string, tags map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	if userIdentifier != nil {
		u := *userIdentifier
		s.UserIdentifier = &u
	} else {
		s.UserIdentifier = nil
	}
	s.Tags = maps.Clone(tags)
	return nil
}

func (m *MemoryStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	if s.LastActivityAt == nil || at.After(*s.LastActivityAt) {
		s.LastActivityAt = &at
	}
	return nil
}

func (m *MemoryStore) EndSession(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	if s.EndedAt == nil {
		s.EndedAt = &at
	}
	return nil
}

func (m *MemoryStore) ListSessions(ctx context.Context, filter SessionFilter) ([]models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Session
	for _, s := range m.sessions {
		if !slices.Contains(filter.SiteIDs, s.SiteID) {
			continue
		}
		if !filter.StartedSince.IsZero() && s.StartedAt.Before(filter.StartedSince) {
			continue
		}
		if !filter.StartedUntil.IsZero() && s.StartedAt.After(filter.StartedUntil) {
			continue
		}
		out = append(out, *copySession(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

func (m *MemoryStore) InsertEvents(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range events {
		e.Data = maps.Clone(e.Data)
		m.events = append(m.events, e)
	}
	return nil
}

func (f EventFilter) matches(e *models.Event) bool {
	if len(f.SiteIDs) > 0 && !slices.Contains(f.SiteIDs, e.SiteID) {
		return false
	}
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, e.EventType) {
		return false
	}
	if f.DeviceType != "" && e.DeviceType != f.DeviceType {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	if f.PageContains != "" && !strings.Contains(strings.ToLower(e.PageURL), strings.ToLower(f.PageContains)) {
		return false
	}
	return true
}

func (m *MemoryStore) StreamEvents(ctx context.Context, filter EventFilter, fn func(*models.Event) error) error {
	m.mu.RLock()
	var matched []models.Event
	for i := range m.events {
		if filter.matches(&m.events[i]) {
			matched = append(matched, m.events[i])
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].EventID < matched[j].EventID
		}
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})

	for i := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(&matched[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) TopPages(ctx context.Context, siteIDs []int64, since time.Time, limit int) ([]models.TopPathResult, error) {
	if limit <= 0 {
		limit = 10
	}
	filter := EventFilter{SiteIDs: siteIDs, Types: []models.EventType{models.EventPageView}, Since: since}
	if len(siteIDs) == 0 {
		return nil, nil
	}

	sessionsByPage := make(map[string]map[string]struct{})
	m.mu.RLock()
	for i := range m.events {
		e := &m.events[i]
		if !filter.matches(e) {
			continue
		}
		if sessionsByPage[e.PageURL] == nil {
			sessionsByPage[e.PageURL] = make(map[string]struct{})
		}
		sessionsByPage[e.PageURL][e.SessionID] = struct{}{}
	}
	m.mu.RUnlock()

	results := make([]models.TopPathResult, 0, len(sessionsByPage))
	for page, sessions := range sessionsByPage {
		results = append(results, models.TopPathResult{PageURL: page, Count: uint64(len(sessions))})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Count == results[j].Count {
			return results[i].PageURL < results[j].PageURL
		}
		return results[i].Count > results[j].Count
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MemoryStore) FirstPageView(ctx context.Context, sessionID string) (string, bool, error) {
	var first *models.Event
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.events {
		e := &m.events[i]
		if e.SessionID != sessionID || e.EventType != models.EventPageView {
			continue
		}
		if first == nil || e.Timestamp.Before(first.Timestamp) {
			first = e
		}
	}
	if first == nil {
		return "", false, nil
	}
	return first.PageURL, true, nil
}

func (m *MemoryStore) DistinctPages(ctx context.Context, siteID int64, eventType models.EventType, limit int) ([]string, error) {
	seen := make(map[string]struct{})
	var pages []string
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.events {
		e := &m.events[i]
		if e.SiteID != siteID || e.EventType != eventType {
			continue
		}
		if _, ok := seen[e.PageURL]; ok {
			continue
		}
		seen[e.PageURL] = struct{}{}
		pages = append(pages, e.PageURL)
		if limit > 0 && len(pages) == limit {
			break
		}
	}
	return pages, nil
}

func (m *MemoryStore) GetRecording(ctx context.Context, recordingID string) (*models.Recording, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.recordings {
		if r.RecordingID == recordingID {
			return copyRecording(r), nil
		}
	}
	return nil, fmt.Errorf("recording %s: %w", recordingID, models.ErrNotFound)
}

func (m *MemoryStore) GetRecordingBySession(ctx context.Context, sessionID string) (*models.Recording, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.recordings[sessionID]
	if !ok {
		return nil, fmt.Errorf("recording for session %s: %w", sessionID, models.ErrNotFound)
	}
	return copyRecording(r), nil
}

func (m *MemoryStore) SaveRecording(ctx context.Context, r *models.Recording) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordings[r.SessionID] = copyRecording(r)
	return nil
}

func (m *MemoryStore) ListRecordings(ctx context.Context, siteIDs []int64, since time.Time, limit int) ([]models.RecordingSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.RecordingSummary
	for sessionID, r := range m.recordings {
		s, ok := m.sessions[sessionID]
		if !ok || !slices.Contains(siteIDs, s.SiteID) {
			continue
		}
		if !since.IsZero() && r.CreatedAt.Before(since) {
			continue
		}
		out = append(out, models.RecordingSummary{
			RecordingID:    r.RecordingID,
			SessionID:      r.SessionID,
			UserIdentifier: s.UserIdentifier,
			Duration:       r.Duration,
			EventCount:     r.EventCount,
			HasErrors:      r.HasErrors,
			HasRageClicks:  r.HasRageClicks,
			CreatedAt:      r.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].RecordingID < out[j].RecordingID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ReplaceHeatmap(ctx context.Context, result *models.HeatmapResult, generatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := *result
	cp.Points = slices.Clone(result.Points)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heatmaps[result.Key] = storedHeatmap{result: cp, generatedAt: generatedAt}
	return nil
}

func (m *MemoryStore) GetHeatmap(ctx context.Context, key models.HeatmapKey) (*models.HeatmapResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.heatmaps[key]
	if !ok {
		return nil, fmt.Errorf("heatmap: %w", models.ErrNotFound)
	}
	cp := h.result
	cp.Points = slices.Clone(h.result.Points)
	return &cp, nil
}

// HeatmapCount reports how many heatmap keys are stored.
func (m *MemoryStore) HeatmapCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.heatmaps)
}

func (m *MemoryStore) GetFunnel(ctx context.Context, id int64) (*models.Funnel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.funnels[id]
	if !ok {
		return nil, fmt.Errorf("funnel %d: %w", id, models.ErrNotFound)
	}
	cp := *f
	cp.Steps = slices.Clone(f.Steps)
	return &cp, nil
}

func copySession(s *models.Session) *models.Session {
	cp := *s
	cp.Tags = maps.Clone(s.Tags)
	cp.Location = maps.Clone(s.Location)
	if s.UserIdentifier != nil {
		u := *s.UserIdentifier
		cp.UserIdentifier = &u
	}
	if s.LastActivityAt != nil {
		t := *s.LastActivityAt
		cp.LastActivityAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		cp.EndedAt = &t
	}
	return &cp
}

func copyRecording(r *models.Recording) *models.Recording {
	cp := *r
	cp.Events = slices.Clone(r.Events)
	return &cp
}
