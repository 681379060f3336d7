package funnel

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hotspot/api/models"
	"hotspot/api/store"
)

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	engine *Engine
	mem    *store.MemoryStore
	seq    int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemoryStore()
	mem.AddSite(models.Site{ID: 1, OwnerID: "owner-1", TrackingID: "trk-1"})
	mem.AddSite(models.Site{ID: 2, OwnerID: "owner-2", TrackingID: "trk-2"})
	return &fixture{engine: NewEngine(mem, mem, mem, mem, zap.NewNop()), mem: mem}
}

func (f *fixture) session(t *testing.T, siteID int64, id string, pages ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.mem.CreateSession(ctx, &models.Session{ID: id, SiteID: siteID, StartedAt: base}))
	for i, p := range pages {
		f.seq++
		require.NoError(t, f.mem.InsertEvents(ctx, []models.Event{{
			EventID:   fmt.Sprintf("e%05d", f.seq),
			SessionID: id,
			SiteID:    siteID,
			EventType: models.EventPageView,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			PageURL:   p,
		}}))
	}
}

func checkoutFunnel() models.Funnel {
	return models.Funnel{
		ID:     10,
		SiteID: 1,
		Name:   "Checkout",
		Steps: []models.FunnelStep{
			{Name: "Landing", URL: "/landing"},
			{Name: "Checkout", URL: "/checkout"},
			{Name: "Thank you", URL: "/thankyou"},
		},
	}
}

// seedScenario: 10 sessions, 6 land, 3 of those check out, 1 of those finishes.
func (f *fixture) seedScenario(t *testing.T) {
	t.Helper()
	f.session(t, 1, "s01", "https://shop.test/landing", "/checkout", "/thankyou")
	f.session(t, 1, "s02", "https://shop.test/landing?utm=x", "/CHECKOUT")
	f.session(t, 1, "s03", "/landing", "/checkout/payment")
	f.session(t, 1, "s04", "/landing")
	f.session(t, 1, "s05", "/landing", "/about")
	f.session(t, 1, "s06", "/landing")
	// reaches later steps without landing, so never counted past step 1
	f.session(t, 1, "s07", "/checkout", "/thankyou")
	f.session(t, 1, "s08", "/about")
	f.session(t, 1, "s09")
	f.session(t, 1, "s10", "/pricing")
	// another site's traffic is outside the universe
	f.session(t, 2, "x01", "/landing", "/checkout", "/thankyou")
}

func TestCompute_Scenario(t *testing.T) {
	f := newFixture(t)
	f.seedScenario(t)
	f.mem.AddFunnel(checkoutFunnel())

	res, err := f.engine.Compute(context.Background(), 10, "owner-1")
	require.NoError(t, err)

	assert.Equal(t, "Checkout", res.FunnelName)
	assert.Equal(t, 10, res.TotalSessions)
	require.Len(t, res.Steps, 3)

	s1, s2, s3 := res.Steps[0], res.Steps[1], res.Steps[2]

	assert.Equal(t, 1, s1.StepNumber)
	assert.Equal(t, 6, s1.Sessions)
	assert.Equal(t, 100.0, s1.ConversionRate)
	assert.Equal(t, 4, s1.DropOffCount)
	assert.Equal(t, 40.0, s1.DropOffRate)
	assert.Equal(t, 60.0, s1.OverallConversion)

	assert.Equal(t, 3, s2.Sessions)
	assert.Equal(t, 50.0, s2.ConversionRate)
	assert.Equal(t, 3, s2.DropOffCount)
	assert.Equal(t, 50.0, s2.DropOffRate)
	assert.Equal(t, 30.0, s2.OverallConversion)

	assert.Equal(t, 1, s3.Sessions)
	assert.Equal(t, 33.33, s3.ConversionRate)
	assert.Equal(t, 2, s3.DropOffCount)
	assert.Equal(t, 66.67, s3.DropOffRate)
	assert.Equal(t, 10.0, s3.OverallConversion)

	assert.Equal(t, 10.0, res.OverallConversion)
}

func TestCompute_Monotonic(t *testing.T) {
	f := newFixture(t)
	f.seedScenario(t)
	f.mem.AddFunnel(models.Funnel{ID: 11, SiteID: 1, Name: "Loose", Steps: []models.FunnelStep{
		{Name: "Any", URL: "/"},
		{Name: "Thank you", URL: "/thankyou"},
		{Name: "Checkout again", URL: "/checkout"},
		{Name: "Landing", URL: "landing"},
	}})

	res, err := f.engine.Compute(context.Background(), 11, "")
	require.NoError(t, err)
	require.Len(t, res.Steps, 4)
	assert.Equal(t, 100.0, res.Steps[0].ConversionRate)
	for i := 1; i < len(res.Steps); i++ {
		assert.LessOrEqual(t, res.Steps[i].Sessions, res.Steps[i-1].Sessions)
	}
	assert.Equal(t, 9, res.Steps[0].Sessions, "s09 has no events")
	assert.Equal(t, 2, res.Steps[1].Sessions)
	assert.Equal(t, 1, res.Steps[3].Sessions)
}

func TestCompute_ZeroSteps(t *testing.T) {
	f := newFixture(t)
	f.seedScenario(t)
	f.mem.AddFunnel(models.Funnel{ID: 12, SiteID: 1, Name: "Empty"})

	res, err := f.engine.Compute(context.Background(), 12, "owner-1")
	require.NoError(t, err)
	assert.NotNil(t, res.Steps)
	assert.Empty(t, res.Steps)
	assert.Equal(t, 0.0, res.OverallConversion)
	assert.Equal(t, 10, res.TotalSessions)
}

func TestCompute_NoSessions(t *testing.T) {
	f := newFixture(t)
	f.mem.AddFunnel(checkoutFunnel())

	res, err := f.engine.Compute(context.Background(), 10, "owner-1")
	require.NoError(t, err)
	for _, s := range res.Steps {
		assert.Equal(t, 0, s.Sessions)
		assert.Equal(t, 0.0, s.DropOffRate)
		assert.Equal(t, 0.0, s.OverallConversion)
	}
	assert.Equal(t, 100.0, res.Steps[0].ConversionRate)
	assert.Equal(t, 0.0, res.Steps[1].ConversionRate)
}

func TestCompute_NotFound(t *testing.T) {
	f := newFixture(t)
	f.mem.AddFunnel(checkoutFunnel())

	_, err := f.engine.Compute(context.Background(), 999, "owner-1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.engine.Compute(context.Background(), 10, "owner-2")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCompute_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.seedScenario(t)
	f.mem.AddFunnel(checkoutFunnel())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.engine.Compute(ctx, 10, "owner-1")
	assert.ErrorIs(t, err, context.Canceled)
}
