package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hotspot/api/models"
	"hotspot/api/store"
	"hotspot/api/utils"
)

func newTestCorrelator(t *testing.T) (*Correlator, *store.MemoryStore, *utils.FixedClock) {
	t.Helper()
	mem := store.NewMemoryStore()
	mem.AddSite(models.Site{ID: 1, OwnerID: "owner-1", Name: "Shop", Domain: "shop.test", TrackingID: "trk-1"})
	clock := &utils.FixedClock{T: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewCorrelator(mem, mem, clock, 5*time.Minute, zap.NewNop()), mem, clock
}

func TestOpen_UnknownTrackingID(t *testing.T) {
	c, _, _ := newTestCorrelator(t)
	_, err := c.Open(context.Background(), "nope", Attributes{})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestResolve(t *testing.T) {
	c, _, clock := newTestCorrelator(t)
	ctx := context.Background()

	s, err := c.Resolve(ctx, Ref{TrackingID: "trk-1"}, Attributes{DeviceType: "Desktop", Browser: "Firefox"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.SiteID)
	assert.Equal(t, "desktop", s.DeviceType)
	assert.Equal(t, clock.Now(), s.StartedAt)

	again, err := c.Resolve(ctx, Ref{SessionID: s.ID, TrackingID: "trk-1"}, Attributes{})
	require.NoError(t, err)
	assert.Equal(t, s.ID, again.ID)

	_, err = c.Resolve(ctx, Ref{}, Attributes{})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = c.Resolve(ctx, Ref{SessionID: "missing"}, Attributes{})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestIdentify_LastWriteWins(t *testing.T) {
	c, mem, _ := newTestCorrelator(t)
	ctx := context.Background()
	s, err := c.Open(ctx, "trk-1", Attributes{})
	require.NoError(t, err)

	first := "alice@example.com"
	require.NoError(t, c.Identify(ctx, s.ID, &first, map[string]any{"plan": "free"}))
	second := "alice"
	require.NoError(t, c.Identify(ctx, s.ID, &second, map[string]any{"plan": "pro"}))
	require.NoError(t, c.Identify(ctx, s.ID, &second, map[string]any{"plan": "pro"}))

	got, err := mem.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.UserIdentifier)
	assert.Equal(t, "alice", *got.UserIdentifier)
	assert.Equal(t, "pro", got.Tags["plan"])

	assert.ErrorIs(t, c.Identify(ctx, "missing", &first, nil), models.ErrNotFound)
}

func TestLiveness_Transitions(t *testing.T) {
	c, _, clock := newTestCorrelator(t)
	ctx := context.Background()
	s, err := c.Open(ctx, "trk-1", Attributes{})
	require.NoError(t, err)

	state, err := c.Liveness(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LivenessNeverConnected, state)

	require.NoError(t, c.Touch(ctx, s.ID))
	state, _ = c.Liveness(ctx, s.ID)
	assert.Equal(t, models.LivenessConnected, state)

	clock.Advance(5 * time.Minute)
	state, _ = c.Liveness(ctx, s.ID)
	assert.Equal(t, models.LivenessConnected, state, "exactly at the threshold is still connected")

	clock.Advance(time.Second)
	state, _ = c.Liveness(ctx, s.ID)
	assert.Equal(t, models.LivenessInactive, state)

	require.NoError(t, c.Touch(ctx, s.ID))
	state, _ = c.Liveness(ctx, s.ID)
	assert.Equal(t, models.LivenessConnected, state)

	_, err = c.Liveness(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestEnd_Idempotent(t *testing.T) {
	c, mem, clock := newTestCorrelator(t)
	ctx := context.Background()
	s, err := c.Open(ctx, "trk-1", Attributes{})
	require.NoError(t, err)

	require.NoError(t, c.End(ctx, s.ID))
	endedAt := clock.Now()
	clock.Advance(time.Minute)
	require.NoError(t, c.End(ctx, s.ID))

	got, err := mem.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EndedAt)
	assert.Equal(t, endedAt, *got.EndedAt)
}

func TestStatus_ScopedToOwner(t *testing.T) {
	c, mem, _ := newTestCorrelator(t)
	mem.AddSite(models.Site{ID: 2, OwnerID: "owner-2", TrackingID: "trk-2"})
	ctx := context.Background()
	s, err := c.Open(ctx, "trk-1", Attributes{})
	require.NoError(t, err)
	require.NoError(t, c.Touch(ctx, s.ID))

	got, state, err := c.Status(ctx, s.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, models.LivenessConnected, state)

	_, _, err = c.Status(ctx, s.ID, "owner-2")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
