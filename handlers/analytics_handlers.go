// api/handlers/analytics_handlers.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hotspot/api/funnel"
	"hotspot/api/heatmap"
	"hotspot/api/models"
	"hotspot/api/recording"
	"hotspot/api/rollup"
	"hotspot/api/session"
)

// AnalyticsHandlers serve the dashboard. Every route is scoped to the
// authenticated owner.
type AnalyticsHandlers struct {
	Heatmaps      *heatmap.Aggregator
	Funnels       *funnel.Engine
	Rollup        *rollup.Aggregator
	Reconstructor *recording.Reconstructor
	Correlator    *session.Correlator
	log           *zap.Logger
	timeout       time.Duration
}

func NewAnalyticsHandlers(
	heatmaps *heatmap.Aggregator,
	funnels *funnel.Engine,
	rollupAggregator *rollup.Aggregator,
	reconstructor *recording.Reconstructor,
	correlator *session.Correlator,
	log *zap.Logger,
	timeout time.Duration,
) *AnalyticsHandlers {
	return &AnalyticsHandlers{
		Heatmaps:      heatmaps,
		Funnels:       funnels,
		Rollup:        rollupAggregator,
		Reconstructor: reconstructor,
		Correlator:    correlator,
		log:           log,
		timeout:       timeout,
	}
}

func (h *AnalyticsHandlers) heatmapRequest(c *gin.Context) (heatmap.Request, bool) {
	siteID, ok := int64Param(c, "site_id")
	if !ok {
		return heatmap.Request{}, false
	}
	days, ok := intQuery(c, "days")
	if !ok {
		return heatmap.Request{}, false
	}
	return heatmap.Request{
		SiteID:     siteID,
		Owner:      ownerFrom(c),
		PageURL:    c.Query("page_url"),
		Kind:       models.HeatmapKind(c.Query("type")),
		DeviceType: c.Query("device"),
		Days:       days,
	}, true
}

func heatmapResponse(res *models.HeatmapResult, pages []string) gin.H {
	body := gin.H{
		"site_id":      res.Key.SiteID,
		"page_url":     res.Key.PageURL,
		"heatmap_type": res.Key.Kind,
		"device_type":  res.Key.DeviceType,
		"date_range": gin.H{
			"start": res.Key.RangeStart.Format("2006-01-02"),
			"end":   res.Key.RangeEnd.Format("2006-01-02"),
		},
		"data":          res.Points,
		"max":           res.Max,
		"session_count": res.SessionCount,
		"total_events":  res.TotalEvents,
	}
	if pages != nil {
		body["available_pages"] = pages
	}
	return body
}

// GenerateHeatmap recomputes and stores the heatmap for the query.
func (h *AnalyticsHandlers) GenerateHeatmap(c *gin.Context) {
	req, ok := h.heatmapRequest(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	res, err := h.Heatmaps.Generate(ctx, req)
	if err != nil {
		respondError(c, h.log, err, "generate heatmap")
		return
	}
	pages, err := h.Heatmaps.AvailablePages(ctx, req.SiteID, req.Owner)
	if err != nil {
		respondError(c, h.log, err, "list heatmap pages")
		return
	}

	c.JSON(http.StatusOK, heatmapResponse(res, pages))
}

// GetHeatmap returns the heatmap last generated for the query.
func (h *AnalyticsHandlers) GetHeatmap(c *gin.Context) {
	req, ok := h.heatmapRequest(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	res, err := h.Heatmaps.Stored(ctx, req)
	if err != nil {
		respondError(c, h.log, err, "load heatmap")
		return
	}
	c.JSON(http.StatusOK, heatmapResponse(res, nil))
}

func (h *AnalyticsHandlers) HeatmapPages(c *gin.Context) {
	siteID, ok := int64Param(c, "site_id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	pages, err := h.Heatmaps.AvailablePages(ctx, siteID, ownerFrom(c))
	if err != nil {
		respondError(c, h.log, err, "list heatmap pages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"site_id": siteID, "pages": pages})
}

func (h *AnalyticsHandlers) FunnelAnalytics(c *gin.Context) {
	funnelID, ok := int64Param(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	res, err := h.Funnels.Compute(ctx, funnelID, ownerFrom(c))
	if err != nil {
		respondError(c, h.log, err, "compute funnel")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *AnalyticsHandlers) Dashboard(c *gin.Context) {
	days, ok := intQuery(c, "days")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	res, err := h.Rollup.Dashboard(ctx, ownerFrom(c), days)
	if err != nil {
		respondError(c, h.log, err, "retrieve dashboard statistics")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *AnalyticsHandlers) ListRecordings(c *gin.Context) {
	limit, ok := intQuery(c, "limit")
	if !ok {
		return
	}
	if limit == 0 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	list, err := h.Reconstructor.ListForOwner(ctx, ownerFrom(c), limit)
	if err != nil {
		respondError(c, h.log, err, "list recordings")
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *AnalyticsHandlers) GetRecording(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	rec, err := h.Reconstructor.Get(ctx, c.Param("id"), ownerFrom(c))
	if err != nil {
		respondError(c, h.log, err, "load recording")
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *AnalyticsHandlers) SessionLiveness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	s, state, err := h.Correlator.Status(ctx, c.Param("id"), ownerFrom(c))
	if err != nil {
		respondError(c, h.log, err, "load session")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":       s.ID,
		"state":            state,
		"last_activity_at": s.LastActivityAt,
		"ended_at":         s.EndedAt,
	})
}
