package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotspot/api/models"
)

var base = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func pageView(id, sessionID, url string, at time.Time) models.Event {
	return models.Event{EventID: id, SessionID: sessionID, SiteID: 1, DeviceType: "desktop", EventType: models.EventPageView, Timestamp: at, PageURL: url}
}

func TestMemoryStore_TopPagesCountsDistinctSessions(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.InsertEvents(ctx, []models.Event{
		pageView("e1", "s1", "/pricing", base),
		pageView("e2", "s1", "/pricing", base.Add(time.Minute)),
		pageView("e3", "s1", "/pricing", base.Add(2*time.Minute)),
		pageView("e4", "s2", "/", base),
		pageView("e5", "s3", "/", base),
		pageView("e6", "s4", "/old", base.Add(-48*time.Hour)),
	}))

	top, err := m.TopPages(ctx, []int64{1}, base.Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []models.TopPathResult{
		{PageURL: "/", Count: 2},
		{PageURL: "/pricing", Count: 1},
	}, top)

	none, err := m.TopPages(ctx, nil, time.Time{}, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore_StreamEventsOrdering(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.InsertEvents(ctx, []models.Event{
		pageView("b", "s1", "/two", base.Add(time.Second)),
		pageView("z", "s1", "/one", base),
		pageView("a", "s1", "/one-b", base),
	}))

	var ids []string
	err := m.StreamEvents(ctx, EventFilter{SessionID: "s1"}, func(e *models.Event) error {
		ids = append(ids, e.EventID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "z", "b"}, ids)

	stop := errors.New("stop")
	calls := 0
	err = m.StreamEvents(ctx, EventFilter{}, func(*models.Event) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestMemoryStore_PageFilterIsCaseInsensitiveSubstring(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.InsertEvents(ctx, []models.Event{
		pageView("e1", "s1", "/Checkout/Step-1", base),
		pageView("e2", "s1", "/cart", base),
	}))

	var urls []string
	require.NoError(t, m.StreamEvents(ctx, EventFilter{PageContains: "checkout"}, func(e *models.Event) error {
		urls = append(urls, e.PageURL)
		return nil
	}))
	assert.Equal(t, []string{"/Checkout/Step-1"}, urls)
}

func TestMemoryStore_TouchSessionNeverMovesBackwards(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.CreateSession(ctx, &models.Session{ID: "s1", SiteID: 1, StartedAt: base}))

	require.NoError(t, m.TouchSession(ctx, "s1", base.Add(2*time.Minute)))
	require.NoError(t, m.TouchSession(ctx, "s1", base.Add(time.Minute)))

	s, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, s.LastActivityAt)
	assert.Equal(t, base.Add(2*time.Minute), *s.LastActivityAt)

	assert.ErrorIs(t, m.TouchSession(ctx, "missing", base), models.ErrNotFound)
}

func TestMemoryStore_EndSessionKeepsFirstEnd(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.CreateSession(ctx, &models.Session{ID: "s1", SiteID: 1, StartedAt: base}))

	require.NoError(t, m.EndSession(ctx, "s1", base.Add(time.Minute)))
	require.NoError(t, m.EndSession(ctx, "s1", base.Add(time.Hour)))

	s, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, s.EndedAt)
	assert.Equal(t, base.Add(time.Minute), *s.EndedAt)
}

func TestMemoryStore_ListRecordingsNewestFirst(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	for i, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, m.CreateSession(ctx, &models.Session{ID: id, SiteID: 1, StartedAt: base}))
		require.NoError(t, m.SaveRecording(ctx, &models.Recording{
			RecordingID: "rec_" + id,
			SessionID:   id,
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, m.CreateSession(ctx, &models.Session{ID: "other", SiteID: 2, StartedAt: base}))
	require.NoError(t, m.SaveRecording(ctx, &models.Recording{RecordingID: "rec_other", SessionID: "other", CreatedAt: base}))

	all, err := m.ListRecordings(ctx, []int64{1}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "rec_s3", all[0].RecordingID)
	assert.Equal(t, "rec_s1", all[2].RecordingID)

	limited, err := m.ListRecordings(ctx, []int64{1}, base.Add(30*time.Minute), 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "rec_s3", limited[0].RecordingID)
}

func TestMemoryStore_NotFound(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	_, err := m.GetSite(ctx, 9)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = m.GetSession(ctx, "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = m.GetRecording(ctx, "rec_nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = m.GetFunnel(ctx, 9)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

type countingSites struct {
	SiteDirectory
	byID       int
	byTracking int
}

func (c *countingSites) GetSite(ctx context.Context, id int64) (*models.Site, error) {
	c.byID++
	return c.SiteDirectory.GetSite(ctx, id)
}

func (c *countingSites) GetSiteByTrackingID(ctx context.Context, trackingID string) (*models.Site, error) {
	c.byTracking++
	return c.SiteDirectory.GetSiteByTrackingID(ctx, trackingID)
}

func TestCachedSiteDirectory(t *testing.T) {
	m := NewMemoryStore()
	m.AddSite(models.Site{ID: 1, OwnerID: "owner-1", TrackingID: "trk-1"})
	next := &countingSites{SiteDirectory: m}
	cached := NewCachedSiteDirectory(next, time.Minute)
	ctx := context.Background()

	for range 3 {
		site, err := cached.GetSite(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "owner-1", site.OwnerID)

		site, err = cached.GetSiteByTrackingID(ctx, "trk-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), site.ID)
	}
	assert.Equal(t, 1, next.byID)
	assert.Equal(t, 1, next.byTracking)

	_, err := cached.GetSite(ctx, 2)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = cached.GetSite(ctx, 2)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, 3, next.byID, "misses are not cached")
}

func TestBuildEventWhere(t *testing.T) {
	where, args := buildEventWhere(EventFilter{})
	assert.Empty(t, where)
	assert.Nil(t, args)

	since := base.Add(-time.Hour)
	where, args = buildEventWhere(EventFilter{
		SiteIDs:      []int64{1, 2},
		Types:        []models.EventType{models.EventClick},
		DeviceType:   "mobile",
		Since:        since,
		PageContains: "/cart",
	})
	assert.Equal(t, "WHERE site_id IN (?) AND event_type IN (?) AND device_type = ? AND timestamp >= ? AND positionCaseInsensitiveUTF8(page_url, ?) > 0", where)
	assert.Equal(t, []any{[]int64{1, 2}, []string{"click"}, "mobile", since, "/cart"}, args)
}

func TestSessionKey(t *testing.T) {
	key, err := sessionKey(" 3F2504E0-4F89-41D3-9A0C-0305E82C3301 ")
	require.NoError(t, err)
	assert.Equal(t, "3f2504e0-4f89-41d3-9a0c-0305e82c3301", key.String())

	for _, id := range []string{"", "missing", "rec_3f2504e0"} {
		_, err := sessionKey(id)
		assert.ErrorIs(t, err, models.ErrNotFound, id)
	}
}

func TestMemoryStore_ListSessionsWindowIsInclusive(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	for i, id := range []string{"early", "start", "end", "late"} {
		require.NoError(t, m.CreateSession(ctx, &models.Session{ID: id, SiteID: 1, StartedAt: base.Add(time.Duration(i-1) * time.Hour)}))
	}

	got, err := m.ListSessions(ctx, SessionFilter{SiteIDs: []int64{1}, StartedSince: base, StartedUntil: base.Add(time.Hour)})
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, s := range got {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"start", "end"}, ids)
}
