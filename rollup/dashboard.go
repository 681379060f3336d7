// Package rollup projects an owner's sessions, events and recordings into the
// dashboard summary. It stores nothing.
package rollup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hotspot/api/models"
	"hotspot/api/store"
	"hotspot/api/utils"
)

const (
	topPagesLimit         = 10
	recentRecordingsLimit = 10
)

type Aggregator struct {
	sites       store.SiteDirectory
	sessions    store.SessionRepository
	events      store.EventRepository
	recordings  store.RecordingRepository
	clock       utils.Clock
	defaultDays int
	log         *zap.Logger
}

func NewAggregator(sites store.SiteDirectory, sessions store.SessionRepository, events store.EventRepository, recordings store.RecordingRepository, clock utils.Clock, defaultDays int, log *zap.Logger) *Aggregator {
	if defaultDays <= 0 {
		defaultDays = 7
	}
	return &Aggregator{
		sites:       sites,
		sessions:    sessions,
		events:      events,
		recordings:  recordings,
		clock:       clock,
		defaultDays: defaultDays,
		log:         log,
	}
}

func (a *Aggregator) Dashboard(ctx context.Context, owner string, days int) (*models.DashboardRollup, error) {
	if days <= 0 {
		days = a.defaultDays
	}
	if days > models.MaxWindowDays {
		return nil, fmt.Errorf("days %d exceeds %d: %w", days, models.MaxWindowDays, models.ErrInvalidArgument)
	}
	now := a.clock.Now()
	start, end := utils.TrailingWindow(now, days)

	out := &models.DashboardRollup{
		TopPages:         []models.TopPathResult{},
		RecentRecordings: []models.RecentRecording{},
		SessionsTrend:    make([]models.DailyCount, days),
		DateRange:        models.DateRange{Start: start, End: end, Days: days},
	}
	for i := range out.SessionsTrend {
		out.SessionsTrend[i].Date = start.Add(time.Duration(i) * 24 * time.Hour).Format("2006-01-02")
	}

	sites, err := a.sites.ListSitesByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list sites for owner: %w", err)
	}
	if len(sites) == 0 {
		return out, nil
	}
	siteIDs := make([]int64, len(sites))
	for i, s := range sites {
		siteIDs[i] = s.ID
	}

	sessions, err := a.sessions.ListSessions(ctx, store.SessionFilter{SiteIDs: siteIDs, StartedSince: start, StartedUntil: end})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out.TotalSessions = len(sessions)
	users := make(map[string]struct{})
	for _, s := range sessions {
		if s.UserIdentifier != nil {
			users[*s.UserIdentifier] = struct{}{}
		}
		day := int(s.StartedAt.Sub(start) / (24 * time.Hour))
		if day >= 0 && day < days {
			out.SessionsTrend[day].Count++
		}
	}
	out.ActiveUsers = len(users)

	windowed, err := a.recordings.ListRecordings(ctx, siteIDs, start, 0)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	out.TotalRecordings = len(windowed)
	if len(windowed) > 0 {
		var sum int64
		for _, r := range windowed {
			sum += r.Duration
		}
		out.AvgSessionDuration = sum / int64(len(windowed))
	}

	top, err := a.events.TopPages(ctx, siteIDs, start, topPagesLimit)
	if err != nil {
		return nil, fmt.Errorf("top pages: %w", err)
	}
	if top != nil {
		out.TopPages = top
	}

	recent, err := a.recordings.ListRecordings(ctx, siteIDs, time.Time{}, recentRecordingsLimit)
	if err != nil {
		return nil, fmt.Errorf("recent recordings: %w", err)
	}
	for _, r := range recent {
		user := "Anonymous"
		if r.UserIdentifier != nil && *r.UserIdentifier != "" {
			user = *r.UserIdentifier
		}
		page, ok, err := a.events.FirstPageView(ctx, r.SessionID)
		if err != nil {
			return nil, fmt.Errorf("first page of session %s: %w", r.SessionID, err)
		}
		if !ok {
			page = "/"
		}
		out.RecentRecordings = append(out.RecentRecordings, models.RecentRecording{
			ID:        r.RecordingID,
			User:      user,
			Duration:  utils.HumanDuration(r.Duration),
			Page:      page,
			Timestamp: r.CreatedAt.Format(time.RFC3339),
		})
	}

	return out, nil
}
