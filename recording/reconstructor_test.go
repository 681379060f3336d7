package recording

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hotspot/api/locks"
	"hotspot/api/models"
	"hotspot/api/session"
	"hotspot/api/store"
	"hotspot/api/utils"
)

type fixture struct {
	rec   *Reconstructor
	mem   *store.MemoryStore
	corr  *session.Correlator
	clock *utils.FixedClock
	sess  *models.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemoryStore()
	mem.AddSite(models.Site{ID: 1, OwnerID: "owner-1", TrackingID: "trk-1"})
	mem.AddSite(models.Site{ID: 2, OwnerID: "owner-2", TrackingID: "trk-2"})
	clock := &utils.FixedClock{T: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	corr := session.NewCorrelator(mem, mem, clock, 5*time.Minute, zap.NewNop())
	s, err := corr.Open(context.Background(), "trk-1", session.Attributes{})
	require.NoError(t, err)

	return &fixture{
		rec:   NewReconstructor(mem, mem, mem, corr, locks.NewKeyedMutex(), clock, zap.NewNop()),
		mem:   mem,
		corr:  corr,
		clock: clock,
		sess:  s,
	}
}

func frameAt(ts int64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"type":3,"timestamp":%d,"data":{"source":1}}`, ts))
}

func customFrame(ts int64, payload string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"type":5,"timestamp":%d,"data":%s}`, ts, payload))
}

func TestAppendFragment_CountAdditive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f1 := []json.RawMessage{frameAt(1_000), frameAt(2_000), frameAt(3_000)}
	f2 := []json.RawMessage{frameAt(4_000), frameAt(65_500)}

	res, err := f.rec.AppendFragment(ctx, f.sess.ID, f1)
	require.NoError(t, err)
	assert.Equal(t, "rec_"+f.sess.ID, res.RecordingID)
	assert.Equal(t, 3, res.EventCount)
	assert.Equal(t, int64(2), res.Duration)

	res, err = f.rec.AppendFragment(ctx, f.sess.ID, f2)
	require.NoError(t, err)
	assert.Equal(t, len(f1)+len(f2), res.EventCount)
	assert.Equal(t, int64(64), res.Duration)

	stored, err := f.mem.GetRecordingBySession(ctx, f.sess.ID)
	require.NoError(t, err)
	require.Len(t, stored.Events, 5)
	assert.JSONEq(t, string(f1[0]), string(stored.Events[0]))
	assert.JSONEq(t, string(f2[1]), string(stored.Events[4]))
}

func TestAppendFragment_NoResortLateFragment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rec.AppendFragment(ctx, f.sess.ID, []json.RawMessage{frameAt(10_000), frameAt(20_000)})
	require.NoError(t, err)

	res, err := f.rec.AppendFragment(ctx, f.sess.ID, []json.RawMessage{frameAt(1_500)})
	require.NoError(t, err)
	assert.Equal(t, 3, res.EventCount)
	assert.Equal(t, int64(-8), res.Duration, "storage order is kept, so the span can go negative")
}

func TestAppendFragment_FlagPromotion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.rec.AppendFragment(ctx, f.sess.ID, []json.RawMessage{
		frameAt(1_000),
		json.RawMessage(`{"type":3,"timestamp":1100,"data":{"tag":"error"}}`),
	})
	require.NoError(t, err)
	assert.False(t, res.HasErrors, "only custom frames raise flags")
	assert.False(t, res.HasRageClicks)

	res, err = f.rec.AppendFragment(ctx, f.sess.ID, []json.RawMessage{
		customFrame(2_000, `{"tag":"js_error","payload":{"message":"boom"}}`),
	})
	require.NoError(t, err)
	assert.True(t, res.HasErrors)
	assert.False(t, res.HasRageClicks)

	res, err = f.rec.AppendFragment(ctx, f.sess.ID, []json.RawMessage{
		customFrame(3_000, `{"tag":"rage_click"}`),
	})
	require.NoError(t, err)
	assert.True(t, res.HasErrors)
	assert.True(t, res.HasRageClicks)

	res, err = f.rec.AppendFragment(ctx, f.sess.ID, []json.RawMessage{frameAt(4_000)})
	require.NoError(t, err)
	assert.True(t, res.HasErrors, "flags never clear")
	assert.True(t, res.HasRageClicks)
}

func TestAppendFragment_ToleratesOddFrames(t *testing.T) {
	f := newFixture(t)

	res, err := f.rec.AppendFragment(context.Background(), f.sess.ID, []json.RawMessage{
		json.RawMessage(`{"type":"5","timestamp":"soon","data":{"tag":"error"}}`),
		json.RawMessage(`42`),
		json.RawMessage(`{"type":5,"data":"rage"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.EventCount)
	assert.Equal(t, int64(0), res.Duration)
	assert.False(t, res.HasErrors)
	assert.True(t, res.HasRageClicks)
}

func TestAppendFragment_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rec.AppendFragment(ctx, "missing", []json.RawMessage{frameAt(1)})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.rec.AppendFragment(ctx, f.sess.ID, nil)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = f.rec.AppendFragment(ctx, "", []json.RawMessage{frameAt(1)})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = f.rec.AppendFragment(ctx, f.sess.ID, []json.RawMessage{json.RawMessage(`{broken`)})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = f.mem.GetRecordingBySession(ctx, f.sess.ID)
	assert.ErrorIs(t, err, models.ErrNotFound, "rejected fragments create nothing")
}

func TestAppendFragment_TouchesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rec.AppendFragment(ctx, f.sess.ID, []json.RawMessage{frameAt(1)})
	require.NoError(t, err)

	state, err := f.corr.Liveness(ctx, f.sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LivenessConnected, state)
}

func TestAppendFragment_ConcurrentSameSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const writers = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.rec.AppendFragment(ctx, f.sess.ID, []json.RawMessage{frameAt(int64(i)), frameAt(int64(i))})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, err := f.mem.GetRecordingBySession(ctx, f.sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2*writers, stored.EventCount)
	assert.Len(t, stored.Events, 2*writers)
}

func TestGetAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.rec.AppendFragment(ctx, f.sess.ID, []json.RawMessage{frameAt(1_000)})
	require.NoError(t, err)

	rec, err := f.rec.Get(ctx, res.RecordingID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, f.sess.ID, rec.SessionID)

	_, err = f.rec.Get(ctx, res.RecordingID, "owner-2")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.rec.Get(ctx, "rec_missing", "")
	assert.ErrorIs(t, err, models.ErrNotFound)

	list, err := f.rec.ListForOwner(ctx, "owner-1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, res.RecordingID, list[0].RecordingID)

	list, err = f.rec.ListForOwner(ctx, "owner-2", 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}
