package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nextstop-data/internal/api"
	"github.com/nextstop-data/internal/catalog"
	"github.com/nextstop-data/internal/city"
	"github.com/nextstop-data/internal/common/config"
	"github.com/nextstop-data/internal/common/db"
	"github.com/nextstop-data/internal/common/discord"
	"github.com/nextstop-data/internal/common/logger"
	"github.com/nextstop-data/internal/common/maintenance"
	"github.com/nextstop-data/internal/geo"
	gtfs_realtime "github.com/nextstop-data/internal/gtfs-realtime"
	"github.com/nextstop-data/internal/gtfs-realtime/consumer"
	"github.com/nextstop-data/internal/gtfs-realtime/feedstore"
	"github.com/nextstop-data/internal/gtfs-realtime/processor"
	"github.com/nextstop-data/internal/gtfs-static/importer"
	"github.com/nextstop-data/internal/gtfs-static/scraper"
	"github.com/nextstop-data/internal/metrics"
	"github.com/nextstop-data/internal/scheduleapi"
	"github.com/nextstop-data/pkg/gtfs-static/models"
)

func main() {
	// A missing .env is fine, the environment may already be set.
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	alerts := discord.NewClient(cfg.Logging.DiscordURL, "nextstop-data")
	log := logger.NewFromConfig(logger.Config{
		Level:    logger.ParseLogLevel(cfg.Logging.Level),
		Console:  true,
		FilePath: cfg.Logging.FilePath,
		Alerter:  alerts,
	})
	if envErr != nil {
		log.Debug("No .env file loaded", "error", envErr)
	}

	log.Info("nextstop data service starting",
		"version", "1.0.0",
		"log_level", cfg.Logging.Level,
		"db_driver", cfg.Database.Driver,
		"http_addr", cfg.HTTP.Addr,
	)

	database, err := db.Open(cfg.Database.Driver, cfg.Database.DSN, log)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	collector := metrics.NewCollector()

	cat := catalog.New(catalog.NewStore(database), log)
	stops := geo.NewIndex(cat, geo.DefaultRules())
	feeds := feedstore.New()

	fetcher := consumer.NewConsumer(cfg.GTFSRealtime, processor.NewProcessor(log), log)
	rtManager := gtfs_realtime.NewManager(cfg.GTFSRealtime, fetcher, feeds, log, collector)
	defer rtManager.Stop()

	cities, err := city.Load(cfg.Cities.SeedFile, cfg.Cities.OverlayFile, cfg.Cities.ActiveFile, log)
	if err != nil {
		log.Fatal("Failed to load cities", "error", err)
	}

	var store scraper.RemoteStore
	if cfg.GTFSStatic.StoreURL != "" {
		store = scraper.NewHTTPStore(cfg.GTFSStatic.StoreURL, cfg.GTFSStatic.MaxRetries, log)
	} else {
		store = scraper.NewDirStore(cfg.GTFSStatic.StoreDir)
	}
	syncer := scraper.NewSyncer(store, cities, importer.NewImporter(cat, log), cfg.GTFSStatic.DownloadDir, log).
		WithAlerter(alerts).
		WithMetrics(collector)
	staticScheduler := scraper.NewScheduler(cfg.GTFSStatic.CheckInterval, syncer, cities, log)

	cleanup := maintenance.NewCleanupScheduler(database, func() []string {
		all := cities.Cities()
		ids := make([]string, len(all))
		for i, c := range all {
			ids[i] = c.ID
		}
		return ids
	}, log, maintenance.SchedulerConfig{
		Interval:     cfg.Maintenance.Interval,
		InitialDelay: maintenance.DefaultSchedulerConfig().InitialDelay,
	})

	syncer.Subscribe(func(change scraper.StateChange) {
		switch change.State {
		case scraper.StateListing:
			cleanup.LockForImport()
		case scraper.StateIdle:
			cleanup.UnlockAfterImport()
			collector.SetCatalog(cat.CountTrips(), cat.CountStops(), cat.CountRoutes())
		}
	})

	activate := func(c models.City) {
		if err := cat.LoadCity(ctx, c.ID); err != nil {
			log.Error("Failed to load catalog", "city", c.ID, "error", err)
		}
		collector.SetCatalog(cat.CountTrips(), cat.CountStops(), cat.CountRoutes())
		if err := rtManager.SwitchCity(ctx, c); err != nil {
			log.Error("Failed to switch realtime city", "city", c.ID, "error", err)
		}
		staticScheduler.Trigger()
	}
	unsubscribe := cities.Subscribe(activate)
	defer unsubscribe()

	if active, ok := cities.Active(); ok {
		activate(active)
	} else if cfg.Cities.DefaultCity != "" {
		if err := cities.SetActive(cfg.Cities.DefaultCity); err != nil {
			log.Error("Failed to activate default city", "city", cfg.Cities.DefaultCity, "error", err)
		}
	} else {
		log.Info("No active city selected, waiting for one over the API")
	}

	if err := cleanup.Start(ctx); err != nil {
		log.Error("Failed to start catalog maintenance", "error", err)
	}
	defer cleanup.Stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func(s *scraper.GTFSScheduler) {
		defer wg.Done()
		if err := s.Start(ctx); err != nil {
			log.Error("Static sync scheduler error", "error", err)
		}
	}(staticScheduler)

	server := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: api.NewRouter(api.Deps{
			Cities:         cities,
			Catalog:        cat,
			Snapshots:      feeds,
			Stops:          stops,
			Schedule:       scheduleapi.NewClient(cfg.ScheduleAPI, cfg.GTFSRealtime.RequestTimeout, log, collector),
			Sync:           staticScheduler,
			Metrics:        collector,
			Logger:         log,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	select {
	case <-sigChan:
		log.Info("Shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}

	cancel()
	wg.Wait()

	log.Info("nextstop data service stopped")
}
