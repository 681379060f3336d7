package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"hotspot/api/config"
	"hotspot/api/handlers"
	"hotspot/api/middleware"
)

// Setup registers every route. Tracker routes are public; everything else
// requires an owner principal.
func Setup(conf *config.Config, log *zap.Logger, track *handlers.TrackHandlers, analytics *handlers.AnalyticsHandlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORSMiddleware(conf.Server.AllowedOrigin))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		tracking := api.Group("/track")
		{
			tracking.POST("/sessions", track.OpenSession)
			tracking.POST("/sessions/:id/end", track.EndSession)
			tracking.POST("/events", track.SubmitEvents)
			tracking.POST("/identify", track.Identify)
			tracking.POST("/recording-events", track.AppendRecording)
		}

		protected := api.Group("/")
		protected.Use(middleware.AuthRequired([]byte(conf.Auth.JWTSecret), conf.Auth.APIKey, log))
		{
			protected.POST("/heatmaps/generate/:site_id", analytics.GenerateHeatmap)
			protected.GET("/heatmaps/data/:site_id", analytics.GetHeatmap)
			protected.GET("/heatmaps/pages/:site_id", analytics.HeatmapPages)
			protected.GET("/funnels/:id/analytics", analytics.FunnelAnalytics)
			protected.GET("/analytics/dashboard", analytics.Dashboard)
			protected.GET("/recordings", analytics.ListRecordings)
			protected.GET("/recordings/:id", analytics.GetRecording)
			protected.GET("/sessions/:id/liveness", analytics.SessionLiveness)
		}
	}

	return r
}
