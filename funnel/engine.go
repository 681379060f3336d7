// Package funnel computes strict step-by-step conversion for a site's
// sessions.
package funnel

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"hotspot/api/metrics"
	"hotspot/api/models"
	"hotspot/api/store"
	"hotspot/api/utils"
)

type Engine struct {
	sites    store.SiteDirectory
	funnels  store.FunnelRepository
	sessions store.SessionRepository
	events   store.EventRepository
	log      *zap.Logger
}

func NewEngine(sites store.SiteDirectory, funnels store.FunnelRepository, sessions store.SessionRepository, events store.EventRepository, log *zap.Logger) *Engine {
	return &Engine{
		sites:    sites,
		funnels:  funnels,
		sessions: sessions,
		events:   events,
		log:      log,
	}
}

type sessionSet map[string]struct{}

// pageHistory maps each session to the distinct lower-cased URLs it visited.
type pageHistory map[string]map[string]struct{}

func (h pageHistory) visited(sessionID, needle string) bool {
	for url := range h[sessionID] {
		if strings.Contains(url, needle) {
			return true
		}
	}
	return false
}

// Compute evaluates the funnel against every session the site has. A session
// counts at step i only if it was counted at step i-1. A non-empty owner must
// own the funnel's site.
func (e *Engine) Compute(ctx context.Context, funnelID int64, owner string) (*models.FunnelResult, error) {
	f, err := e.funnels.GetFunnel(ctx, funnelID)
	if err != nil {
		return nil, err
	}
	site, err := e.sites.GetSite(ctx, f.SiteID)
	if err != nil {
		return nil, err
	}
	if owner != "" && site.OwnerID != owner {
		return nil, fmt.Errorf("funnel %d: %w", funnelID, models.ErrNotFound)
	}

	sessions, err := e.sessions.ListSessions(ctx, store.SessionFilter{SiteIDs: []int64{site.ID}})
	if err != nil {
		return nil, fmt.Errorf("list sessions for funnel %d: %w", funnelID, err)
	}
	eligible := make(sessionSet, len(sessions))
	for _, s := range sessions {
		eligible[s.ID] = struct{}{}
	}
	total := len(eligible)

	result := &models.FunnelResult{
		FunnelID:      f.ID,
		FunnelName:    f.Name,
		TotalSessions: total,
		Steps:         make([]models.FunnelStepResult, 0, len(f.Steps)),
	}
	if len(f.Steps) == 0 {
		return result, nil
	}

	history, err := e.history(ctx, site.ID, eligible)
	if err != nil {
		return nil, err
	}

	for i, step := range f.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		needle := strings.ToLower(step.URL)
		reached := make(sessionSet)
		for id := range eligible {
			if history.visited(id, needle) {
				reached[id] = struct{}{}
			}
		}

		before := len(eligible)
		count := len(reached)
		conversion := 100.0
		if i > 0 {
			conversion = utils.Percent(count, before)
		}
		dropOff := before - count

		result.Steps = append(result.Steps, models.FunnelStepResult{
			StepNumber:        i + 1,
			StepName:          step.Name,
			StepURL:           step.URL,
			Sessions:          count,
			ConversionRate:    utils.Round2(conversion),
			DropOffCount:      dropOff,
			DropOffRate:       utils.Round2(utils.Percent(dropOff, before)),
			OverallConversion: utils.Round2(utils.Percent(count, total)),
		})
		eligible = reached
	}
	result.OverallConversion = result.Steps[len(result.Steps)-1].OverallConversion

	metrics.FunnelComputations.Inc()
	e.log.Debug("Funnel computed",
		zap.Int64("funnel_id", f.ID),
		zap.Int("total_sessions", total),
		zap.Int("steps", len(f.Steps)))
	return result, nil
}

// history reads the site's events once and keeps the URLs of sessions in
// the universe.
func (e *Engine) history(ctx context.Context, siteID int64, universe sessionSet) (pageHistory, error) {
	h := make(pageHistory, len(universe))
	err := e.events.StreamEvents(ctx, store.EventFilter{SiteIDs: []int64{siteID}}, func(ev *models.Event) error {
		if _, ok := universe[ev.SessionID]; !ok {
			return nil
		}
		urls := h[ev.SessionID]
		if urls == nil {
			urls = make(map[string]struct{})
			h[ev.SessionID] = urls
		}
		urls[strings.ToLower(ev.PageURL)] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("stream page history for site %d: %w", siteID, err)
	}
	return h, nil
}
