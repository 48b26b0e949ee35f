package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/LabyrinthianWebsite/fantastic-waddle/config"
	"github.com/LabyrinthianWebsite/fantastic-waddle/database"
	"github.com/LabyrinthianWebsite/fantastic-waddle/handlers"
	"github.com/LabyrinthianWebsite/fantastic-waddle/logging"
	"github.com/LabyrinthianWebsite/fantastic-waddle/media"
	"github.com/LabyrinthianWebsite/fantastic-waddle/realtime"
	"github.com/LabyrinthianWebsite/fantastic-waddle/repository"
	"github.com/LabyrinthianWebsite/fantastic-waddle/services"
	"github.com/LabyrinthianWebsite/fantastic-waddle/workers"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// app holds everything both the server and the CLI commands need
type app struct {
	cfg        config.Config
	db         *gorm.DB
	store      *media.LocalStorage
	studioRepo *repository.StudioRepository
	modelRepo  *repository.ModelRepository
	setRepo    *repository.SetRepository
	mediaRepo  *repository.MediaRepository
	ingestion  *services.IngestionService
	logCloser  io.Closer
	vips       bool
}

func newApp(cfg config.Config, notifier services.Notifier) (*app, error) {
	logCloser := logging.Setup(logging.FileOptions{
		Path:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Compress:   true,
	})

	for _, p := range []string{filepath.Dir(cfg.DatabasePath), cfg.UploadTempPath} {
		logging.Info("Ensuring storage directory exists: %s", p)
		if err := os.MkdirAll(p, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", p, err)
		}
	}

	gormLevel := logger.Warn
	if logging.IsDebugEnabled() {
		gormLevel = logger.Info
	}
	db, err := database.InitGormDB(cfg.DatabasePath, gormLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	store, err := media.NewLocalStorage(cfg.MediaStoragePath, map[media.AssetType]string{
		media.AssetTypeMedia:     filepath.Base(cfg.MediaPath),
		media.AssetTypeThumbnail: filepath.Base(cfg.ThumbsPath),
		media.AssetTypeCover:     filepath.Base(cfg.CoversPath),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize media store: %w", err)
	}

	vipsOn := false
	if cfg.UseVips {
		if err := media.InitVips(); err != nil {
			logging.Warn("libvips unavailable, falling back to pure Go encoding: %v", err)
		} else {
			vipsOn = true
		}
	}

	video := media.NewVideoTool(cfg.FFmpegPath, cfg.FFprobePath, cfg.VideoProbeTimeout)
	processor := media.NewProcessor(store, media.ProcessorOptions{
		ThumbnailWidth:   cfg.ThumbnailWidth,
		ThumbnailHeight:  cfg.ThumbnailHeight,
		ThumbnailQuality: cfg.ThumbnailQuality,
		DisplayMaxSize:   cfg.DisplayMaxSize,
		DisplayQuality:   cfg.DisplayQuality,
		CoverMaxSize:     cfg.CoverMaxSize,
		MaxImagePixels:   cfg.MaxImagePixels,
	}, video)

	a := &app{
		cfg:        cfg,
		db:         db,
		store:      store,
		studioRepo: repository.NewStudioRepository(db),
		modelRepo:  repository.NewModelRepository(db),
		setRepo:    repository.NewSetRepository(db),
		mediaRepo:  repository.NewMediaRepository(db),
		logCloser:  logCloser,
		vips:       vipsOn,
	}
	cascade := services.NewCascadeService(a.setRepo, a.modelRepo, a.studioRepo, processor, store)
	a.ingestion = services.NewIngestionService(a.modelRepo, a.studioRepo, a.setRepo, a.mediaRepo, store, processor, media.NewHasher(cfg.MaxImagePixels), cascade, notifier)

	logging.Info("Using database: %s", cfg.DatabasePath)
	logging.Info("Storing media in: %s", cfg.MediaStoragePath)
	logging.Info("Display max size (longest side): %dpx, thumbnails %dx%d", cfg.DisplayMaxSize, cfg.ThumbnailWidth, cfg.ThumbnailHeight)
	return a, nil
}

func (a *app) Close() {
	if a.vips {
		media.ShutdownVips()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}

func (a *app) router(hub *realtime.Hub, ingest handlers.IngestSubmitter) (http.Handler, error) {
	r := chi.NewRouter()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   a.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(handlers.MetricsMiddleware)
	r.Use(corsHandler.Handler)

	uploadHandler := &handlers.UploadHandler{
		ModelRepo:      a.modelRepo,
		Ingest:         ingest,
		UploadTempPath: a.cfg.UploadTempPath,
		MaxUploadBytes: a.cfg.MaxUploadBytes,
	}
	setHandler := &handlers.SetHandler{
		ModelRepo: a.modelRepo,
		SetRepo:   a.setRepo,
		MediaRepo: a.mediaRepo,
		Store:     a.store,
	}

	assetDirs := make(map[media.AssetType]string)
	for _, t := range []media.AssetType{media.AssetTypeMedia, media.AssetTypeThumbnail, media.AssetTypeCover} {
		dir, err := a.store.AssetDir(t)
		if err != nil {
			return nil, err
		}
		assetDirs[t] = dir
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/models/{model_id}", func(r chi.Router) {
			r.Post("/upload", uploadHandler.UploadArchive)
			r.Get("/sets", setHandler.ListModelSets)
		})
		r.Route("/sets/{set_id}", func(r chi.Router) {
			r.Get("/", setHandler.GetSet)
			r.Get("/media", setHandler.ListSetMedia)
			r.Get("/zip", setHandler.DownloadSetZip)
		})
		r.Delete("/media/{media_id}", setHandler.DeleteMedia)

		// stored paths are relative to the storage root, so /api/<stored path> resolves
		for t, dir := range assetDirs {
			prefix := "/" + filepath.Base(dir)
			r.Get(prefix+"/*", handlers.AssetServer(dir))
			logging.Info("Registered %s server at /api%s/*", t, prefix)
		}
	})

	r.Get("/ws", hub.ServeWS)
	r.Handle("/metrics", promhttp.Handler())
	return r, nil
}

func runServer(parent context.Context, a *app, hub *realtime.Hub) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go hub.Run()
	defer hub.Stop()

	logging.Info("Initializing ingest worker pool (Workers: %d, Queue Size: %d)...", a.cfg.NumIngestWorkers, a.cfg.IngestQueueSize)
	ingest := workers.NewIngestProcessor(a.ingestion, a.cfg.IngestQueueSize, a.cfg.NumIngestWorkers)
	defer ingest.Stop()

	sweeper, err := workers.NewUploadSweeper(a.cfg.UploadTempPath, a.cfg.UploadTempMaxAge, a.cfg.SweepSchedule, ingest.IsPending)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	handler, err := a.router(hub, ingest)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	server := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// no read/write timeouts: uploads and set zips stream for as long as they take
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logging.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error("Error during server shutdown: %v", err)
	}
	return nil
}
