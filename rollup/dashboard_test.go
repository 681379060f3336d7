package rollup

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hotspot/api/models"
	"hotspot/api/store"
	"hotspot/api/utils"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

type fixture struct {
	agg *Aggregator
	mem *store.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemoryStore()
	mem.AddSite(models.Site{ID: 1, OwnerID: "owner-1", TrackingID: "trk-1"})
	mem.AddSite(models.Site{ID: 2, OwnerID: "owner-1", TrackingID: "trk-2"})
	mem.AddSite(models.Site{ID: 3, OwnerID: "owner-2", TrackingID: "trk-3"})
	return &fixture{agg: NewAggregator(mem, mem, mem, mem, &utils.FixedClock{T: now}, 7, zap.NewNop()), mem: mem}
}

func (f *fixture) session(t *testing.T, id string, siteID int64, started time.Time, user *string) {
	t.Helper()
	require.NoError(t, f.mem.CreateSession(context.Background(), &models.Session{ID: id, SiteID: siteID, StartedAt: started, UserIdentifier: user}))
}

func (f *fixture) pageView(t *testing.T, id, sessionID string, siteID int64, at time.Time, url string) {
	t.Helper()
	require.NoError(t, f.mem.InsertEvents(context.Background(), []models.Event{{
		EventID: id, SessionID: sessionID, SiteID: siteID, EventType: models.EventPageView, Timestamp: at, PageURL: url,
	}}))
}

func (f *fixture) recording(t *testing.T, sessionID string, duration int64, created time.Time) {
	t.Helper()
	require.NoError(t, f.mem.SaveRecording(context.Background(), &models.Recording{
		RecordingID: utils.RecordingIDFor(sessionID),
		SessionID:   sessionID,
		Duration:    duration,
		Events:      []json.RawMessage{json.RawMessage(`{}`)},
		EventCount:  1,
		CreatedAt:   created,
		UpdatedAt:   created,
	}))
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	day := 24 * time.Hour
	start := now.Add(-7 * day)

	f.session(t, "a", 1, start.Add(time.Hour), strPtr("alice"))
	f.session(t, "b", 1, start.Add(time.Hour+time.Minute), strPtr("alice"))
	f.session(t, "c", 2, start.Add(3*day), strPtr("bob"))
	f.session(t, "d", 2, now.Add(-time.Hour), nil)
	f.session(t, "old", 1, start.Add(-day), strPtr("carol"))
	f.session(t, "other", 3, now.Add(-time.Hour), strPtr("mallory"))

	f.pageView(t, "e1", "a", 1, start.Add(2*time.Hour), "/pricing")
	f.pageView(t, "e2", "a", 1, start.Add(time.Hour+time.Second), "/")
	f.pageView(t, "e3", "a", 1, start.Add(3*time.Hour), "/pricing")
	f.pageView(t, "e4", "b", 1, start.Add(2*time.Hour), "/pricing")
	f.pageView(t, "e5", "c", 2, start.Add(3*day), "/")
	f.pageView(t, "e6", "other", 3, now.Add(-time.Hour), "/secret")

	f.recording(t, "a", 125, start.Add(2*time.Hour))
	f.recording(t, "d", 30, now.Add(-time.Minute))
	f.recording(t, "old", 500, start.Add(-day))

	res, err := f.agg.Dashboard(context.Background(), "owner-1", 7)
	require.NoError(t, err)

	assert.Equal(t, 4, res.TotalSessions)
	assert.Equal(t, 2, res.ActiveUsers)
	assert.Equal(t, 2, res.TotalRecordings)
	assert.Equal(t, int64(77), res.AvgSessionDuration)

	assert.Equal(t, []models.TopPathResult{
		{PageURL: "/", Count: 2},
		{PageURL: "/pricing", Count: 2},
	}, res.TopPages)

	require.Len(t, res.RecentRecordings, 3, "recent recordings ignore the window")
	assert.Equal(t, models.RecentRecording{
		ID: "rec_d", User: "Anonymous", Duration: "0m 30s", Page: "/", Timestamp: now.Add(-time.Minute).Format(time.RFC3339),
	}, res.RecentRecordings[0])
	assert.Equal(t, "alice", res.RecentRecordings[1].User)
	assert.Equal(t, "2m 5s", res.RecentRecordings[1].Duration)
	assert.Equal(t, "/", res.RecentRecordings[1].Page, "earliest page view wins")
	assert.Equal(t, "rec_old", res.RecentRecordings[2].ID)

	require.Len(t, res.SessionsTrend, 7)
	assert.Equal(t, models.DailyCount{Date: "2025-03-03", Count: 2}, res.SessionsTrend[0])
	assert.Equal(t, models.DailyCount{Date: "2025-03-06", Count: 1}, res.SessionsTrend[3])
	assert.Equal(t, models.DailyCount{Date: "2025-03-09", Count: 1}, res.SessionsTrend[6])
	total := 0
	for _, d := range res.SessionsTrend {
		total += d.Count
	}
	assert.Equal(t, 4, total)

	assert.Equal(t, 7, res.DateRange.Days)
	assert.Equal(t, start, res.DateRange.Start)
	assert.Equal(t, now, res.DateRange.End)
}

func TestDashboard_NoSites(t *testing.T) {
	f := newFixture(t)

	res, err := f.agg.Dashboard(context.Background(), "nobody", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalSessions)
	assert.NotNil(t, res.TopPages)
	assert.NotNil(t, res.RecentRecordings)
	require.Len(t, res.SessionsTrend, 7)
	for _, d := range res.SessionsTrend {
		assert.Equal(t, 0, d.Count)
	}
}

func TestDashboard_RejectsOversizedWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.agg.Dashboard(ctx, "owner-1", models.MaxWindowDays+1)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, err = f.agg.Dashboard(ctx, "owner-1", 1<<60)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	res, err := f.agg.Dashboard(ctx, "owner-1", models.MaxWindowDays)
	require.NoError(t, err)
	assert.Len(t, res.SessionsTrend, models.MaxWindowDays)
}

func TestDashboard_WindowEndsNow(t *testing.T) {
	f := newFixture(t)
	f.session(t, "current", 1, now, nil)
	f.session(t, "skewed", 1, now.Add(time.Minute), nil)

	res, err := f.agg.Dashboard(context.Background(), "owner-1", 7)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalSessions)
}
