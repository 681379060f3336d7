// Package heatmap bins click, move and scroll coordinates into per-page
// histograms.
package heatmap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"hotspot/api/metrics"
	"hotspot/api/models"
	"hotspot/api/store"
	"hotspot/api/utils"
)

const availablePagesLimit = 20

// Request selects the events of one heatmap. Owner, when set, must own the
// site. Zero values fall back to "/", click, desktop and the default window.
type Request struct {
	SiteID     int64
	Owner      string
	PageURL    string
	Kind       models.HeatmapKind
	DeviceType string
	Days       int
}

type Aggregator struct {
	sites       store.SiteDirectory
	events      store.EventRepository
	heatmaps    store.HeatmapRepository
	clock       utils.Clock
	defaultDays int
	log         *zap.Logger
}

func NewAggregator(sites store.SiteDirectory, events store.EventRepository, heatmaps store.HeatmapRepository, clock utils.Clock, defaultDays int, log *zap.Logger) *Aggregator {
	if defaultDays <= 0 {
		defaultDays = 7
	}
	return &Aggregator{
		sites:       sites,
		events:      events,
		heatmaps:    heatmaps,
		clock:       clock,
		defaultDays: defaultDays,
		log:         log,
	}
}

func (a *Aggregator) normalize(req Request) (Request, error) {
	if req.PageURL == "" {
		req.PageURL = "/"
	}
	if req.Kind == "" {
		req.Kind = models.HeatmapClick
	}
	req.Kind = models.HeatmapKind(strings.ToLower(string(req.Kind)))
	if _, ok := req.Kind.EventType(); !ok {
		return req, fmt.Errorf("unknown heatmap type %q: %w", req.Kind, models.ErrInvalidArgument)
	}
	if req.DeviceType == "" {
		req.DeviceType = "desktop"
	}
	req.DeviceType = strings.ToLower(req.DeviceType)
	if req.Days <= 0 {
		req.Days = a.defaultDays
	}
	if req.Days > models.MaxWindowDays {
		return req, fmt.Errorf("days %d exceeds %d: %w", req.Days, models.MaxWindowDays, models.ErrInvalidArgument)
	}
	return req, nil
}

func (a *Aggregator) site(ctx context.Context, siteID int64, owner string) (*models.Site, error) {
	site, err := a.sites.GetSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if owner != "" && site.OwnerID != owner {
		return nil, fmt.Errorf("site %d: %w", siteID, models.ErrNotFound)
	}
	return site, nil
}

// key identifies the stored result. Range bounds are whole UTC days so that
// regenerating during the same day replaces the same row.
func key(req Request, since, until time.Time) models.HeatmapKey {
	return models.HeatmapKey{
		SiteID:     req.SiteID,
		PageURL:    req.PageURL,
		Kind:       req.Kind,
		DeviceType: req.DeviceType,
		RangeStart: utils.StartOfDay(since.UTC()),
		RangeEnd:   utils.StartOfDay(until.UTC()),
	}
}

// Generate recomputes the heatmap from every matching event in the window and
// replaces whatever was stored under its key. If ctx ends first nothing is
// written.
func (a *Aggregator) Generate(ctx context.Context, req Request) (*models.HeatmapResult, error) {
	req, err := a.normalize(req)
	if err != nil {
		return nil, err
	}
	site, err := a.site(ctx, req.SiteID, req.Owner)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	now := a.clock.Now()
	since, until := utils.TrailingWindow(now, req.Days)
	eventType, _ := req.Kind.EventType()

	b := newBins()
	sessions := make(map[string]struct{})
	total := 0

	// Session count covers every event on the page, so all types are streamed.
	filter := store.EventFilter{
		SiteIDs:      []int64{site.ID},
		PageContains: req.PageURL,
		DeviceType:   req.DeviceType,
		Since:        since,
		Until:        until,
	}
	err = a.events.StreamEvents(ctx, filter, func(e *models.Event) error {
		sessions[e.SessionID] = struct{}{}
		if e.EventType != eventType {
			return nil
		}
		total++
		b.addEvent(req.Kind, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("stream events for heatmap: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &models.HeatmapResult{
		Key:          key(req, since, until),
		Points:       b.points(req.Kind),
		Max:          b.max,
		SessionCount: len(sessions),
		TotalEvents:  total,
	}
	if err := a.heatmaps.ReplaceHeatmap(ctx, result, now); err != nil {
		return nil, fmt.Errorf("store heatmap: %w", err)
	}

	metrics.HeatmapDuration.WithLabelValues(string(req.Kind)).Observe(time.Since(started).Seconds())
	a.log.Debug("Heatmap generated",
		zap.Int64("site_id", site.ID),
		zap.String("page_url", req.PageURL),
		zap.String("kind", string(req.Kind)),
		zap.Int("points", len(result.Points)),
		zap.Int("total_events", total))

	return result, nil
}

// Stored returns the last generated result for the request's current key.
func (a *Aggregator) Stored(ctx context.Context, req Request) (*models.HeatmapResult, error) {
	req, err := a.normalize(req)
	if err != nil {
		return nil, err
	}
	if _, err := a.site(ctx, req.SiteID, req.Owner); err != nil {
		return nil, err
	}
	since, until := utils.TrailingWindow(a.clock.Now(), req.Days)
	return a.heatmaps.GetHeatmap(ctx, key(req, since, until))
}

// AvailablePages lists page-view URLs seen on the site, for picking a page.
func (a *Aggregator) AvailablePages(ctx context.Context, siteID int64, owner string) ([]string, error) {
	if _, err := a.site(ctx, siteID, owner); err != nil {
		return nil, err
	}
	pages, err := a.events.DistinctPages(ctx, siteID, models.EventPageView, availablePagesLimit)
	if err != nil {
		return nil, err
	}
	if pages == nil {
		pages = []string{}
	}
	return pages, nil
}
