// api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"hotspot/api/config"
	"hotspot/api/database"
	"hotspot/api/funnel"
	"hotspot/api/handlers"
	"hotspot/api/heatmap"
	"hotspot/api/ingest"
	"hotspot/api/locks"
	"hotspot/api/logging"
	"hotspot/api/messaging"
	"hotspot/api/recording"
	"hotspot/api/rollup"
	"hotspot/api/router"
	"hotspot/api/session"
	"hotspot/api/store"
	"hotspot/api/utils"
)

// backends groups the repositories selected by the storage driver.
type backends struct {
	sites      store.SiteDirectory
	sessions   store.SessionRepository
	events     store.EventRepository
	recordings store.RecordingRepository
	heatmaps   store.HeatmapRepository
	funnels    store.FunnelRepository
	close      func()
}

func openBackends(ctx context.Context, conf *config.Config, log *zap.Logger) (*backends, error) {
	if conf.Storage.Driver == "memory" {
		log.Warn("Using in-memory storage; data is lost on restart")
		mem := store.NewMemoryStore()
		return &backends{
			sites:      mem,
			sessions:   mem,
			events:     mem,
			recordings: mem,
			heatmaps:   mem,
			funnels:    mem,
			close:      func() {},
		}, nil
	}

	dbClient, err := database.NewPostgresDB(conf.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("initialize PostgreSQL: %w", err)
	}
	if err := database.NewMigrationRunner(dbClient.DB).Run(); err != nil {
		dbClient.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	chClient, err := database.NewClickHouseDB(conf.ClickHouse, log)
	if err != nil {
		dbClient.Close()
		return nil, fmt.Errorf("initialize ClickHouse: %w", err)
	}
	if err := chClient.EnsureSchema(ctx); err != nil {
		chClient.Close()
		dbClient.Close()
		return nil, fmt.Errorf("ensure ClickHouse schema: %w", err)
	}

	return &backends{
		sites:      store.NewPostgresSiteStore(dbClient.DB),
		sessions:   store.NewPostgresSessionStore(dbClient.DB),
		events:     store.NewClickHouseEventStore(chClient, log),
		recordings: store.NewPostgresRecordingStore(dbClient.DB),
		heatmaps:   store.NewPostgresHeatmapStore(dbClient.DB),
		funnels:    store.NewPostgresFunnelStore(dbClient.DB),
		close: func() {
			chClient.Close()
			dbClient.Close()
		},
	}, nil
}

func newLocker(ctx context.Context, conf config.RedisConfig, log *zap.Logger) (locks.Locker, func(), error) {
	if conf.Addr == "" {
		return locks.NewKeyedMutex(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ping redis at %s: %w", conf.Addr, err)
	}
	log.Info("Recording writes serialized through Redis", zap.String("addr", conf.Addr))
	return locks.NewRedisLocker(client, conf.LockTTL, log), func() { client.Close() }, nil
}

func newPublisher(conf config.RabbitMQConfig, log *zap.Logger) (messaging.Publisher, func(), error) {
	if conf.URL == "" {
		return messaging.NopPublisher{}, func() {}, nil
	}
	pub, err := messaging.NewRabbitPublisher(conf.URL, conf.Exchange)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Publishing accepted batches", zap.String("exchange", conf.Exchange))
	return pub, func() {
		if err := pub.Close(); err != nil {
			log.Warn("Error closing RabbitMQ publisher", zap.Error(err))
		}
	}, nil
}

func main() {
	conf, v, err := config.Load(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, level, err := logging.Init(conf.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	config.Watch(v, level, log)

	gin.SetMode(conf.Server.Mode)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	b, err := openBackends(startCtx, conf, log)
	if err != nil {
		log.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer b.close()

	locker, closeLocker, err := newLocker(startCtx, conf.Redis, log)
	if err != nil {
		log.Fatal("Failed to initialize recording lock", zap.Error(err))
	}
	defer closeLocker()

	publisher, closePublisher, err := newPublisher(conf.RabbitMQ, log)
	if err != nil {
		log.Fatal("Failed to initialize publisher", zap.Error(err))
	}
	defer closePublisher()

	clock := utils.SystemClock
	sites := store.NewCachedSiteDirectory(b.sites, conf.Tracking.SiteCacheTTL)

	correlator := session.NewCorrelator(sites, b.sessions, clock, conf.Tracking.InactivityThreshold, log.Named("session"))
	ingestService := ingest.NewService(correlator, b.events, publisher, log.Named("ingest"))
	reconstructor := recording.NewReconstructor(sites, b.sessions, b.recordings, correlator, locker, clock, log.Named("recording"))
	heatmaps := heatmap.NewAggregator(sites, b.events, b.heatmaps, clock, conf.Tracking.DefaultHeatmapDays, log.Named("heatmap"))
	funnels := funnel.NewEngine(sites, b.funnels, b.sessions, b.events, log.Named("funnel"))
	dashboard := rollup.NewAggregator(sites, b.sessions, b.events, b.recordings, clock, conf.Tracking.DefaultDashboardDays, log.Named("rollup"))

	timeout := conf.Server.RequestTimeout
	trackHandlers := handlers.NewTrackHandlers(correlator, ingestService, reconstructor, log, timeout)
	analyticsHandlers := handlers.NewAnalyticsHandlers(heatmaps, funnels, dashboard, reconstructor, correlator, log, timeout)

	r := router.Setup(conf, log, trackHandlers, analyticsHandlers)

	srv := &http.Server{
		Addr:    ":" + conf.Server.Port,
		Handler: r,
	}

	go func() {
		log.Info("Hotspot API server starting", zap.String("port", conf.Server.Port), zap.String("storage", conf.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Hotspot API server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exiting.")
}
