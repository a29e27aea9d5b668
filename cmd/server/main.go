package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/photosync/photosync/internal/config"
	_ "github.com/photosync/photosync/internal/docs"
	"github.com/photosync/photosync/internal/handlers"
	custommw "github.com/photosync/photosync/internal/middleware"
	"github.com/photosync/photosync/internal/observability"
	"github.com/photosync/photosync/internal/repository"
	"github.com/photosync/photosync/internal/services"
	httpSwagger "github.com/swaggo/http-swagger"
)

const serviceName = "photosync-server"

var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		observability.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	logFile := observability.Configure(serviceName, observability.ParseLevel(cfg.Logging.Level), observability.FileOutput{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	defer logFile.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	telemetry, err := observability.Initialize(ctx, observability.NewConfig(serviceName, version))
	if err != nil {
		observability.Errorf("Failed to initialize telemetry: %v", err)
		os.Exit(1)
	}

	// Initialize database and repository
	var (
		db        *sql.DB
		photoRepo repository.PhotoRepo
	)
	if cfg.UsePostgres() {
		observability.Info("Using PostgreSQL database")
		db, err = repository.NewPostgresDB(cfg.DatabaseURL)
		if err != nil {
			observability.Errorf("Failed to initialize PostgreSQL database: %v", err)
			os.Exit(1)
		}
		photoRepo = repository.NewPhotoRepositoryPostgres(db)
	} else {
		observability.Info("Using SQLite database")
		db, err = repository.NewSQLiteDB(cfg.DatabasePath)
		if err != nil {
			observability.Errorf("Failed to initialize SQLite database: %v", err)
			os.Exit(1)
		}
		photoRepo = repository.NewPhotoRepository(db)
	}
	defer db.Close()

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		observability.Errorf("Failed to initialize storage service: %v", err)
		os.Exit(1)
	}

	intakeMetrics, err := observability.NewIntakeMetrics()
	if err != nil {
		observability.Warnf("Intake metrics disabled: %v", err)
	}
	httpMetrics, err := observability.NewHTTPMetrics()
	if err != nil {
		observability.Warnf("HTTP metrics disabled: %v", err)
	}

	hub := services.NewWebSocketHub()
	go hub.Run(ctx)

	intake := services.NewIntakeService(
		photoRepo,
		blobs,
		services.NewHashService(),
		services.NewEXIFService(),
		services.NewThumbnailService(cfg.PhotoStorage.ThumbnailSize),
		intakeMetrics,
		hub,
		cfg.PhotoStorage.MaxFileSizeMB,
	)

	// Initialize handlers
	photoHandler := handlers.NewPhotoHandler(photoRepo, blobs, intake)
	healthHandler := handlers.NewHealthHandler()
	wsHandler := handlers.NewWebSocketHandler(hub, services.TopicIntake)

	// Setup router
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(observability.TracingMiddleware("/health", "/api/health", "/ws"))
	if httpMetrics != nil {
		r.Use(observability.MetricsMiddleware(httpMetrics))
	}
	r.Use(custommw.APIKeyAuth(cfg.Security, "/api/test", "/api/health", "/api/version"))

	// Routes
	r.Get("/health", healthHandler.HealthCheck)
	r.Get("/api/health", healthHandler.HealthCheck)
	r.Get("/api/test", photoHandler.Test)
	r.Get("/api/version", handlers.NewVersionHandler(serviceName, version))
	r.Get("/ws", wsHandler.HandleConnection)
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	r.Post("/api/upload", photoHandler.Upload)
	r.Route("/api/photos", func(r chi.Router) {
		r.Post("/upload", photoHandler.Upload)
		r.Post("/check", photoHandler.CheckHashes)
		r.Get("/", photoHandler.List)
		r.Get("/{id}", photoHandler.GetByID)
		r.Get("/{id}/thumbnail", photoHandler.Thumbnail)
		r.Delete("/{id}", photoHandler.Delete)
	})

	// Create server
	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // Longer for uploads
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		observability.Infof("PhotoSync intake server %s starting on %s", version, cfg.ServerAddress)
		if cfg.PhotoStorage.UseObjectStorage() {
			observability.Infof("Photo storage: minio bucket %s at %s", cfg.MinIO.Bucket, cfg.MinIO.Endpoint)
		} else {
			observability.Infof("Photo storage path: %s", cfg.PhotoStorage.BasePath)
		}
		observability.Infof("Max file size: %dMB", cfg.PhotoStorage.MaxFileSizeMB)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			observability.Errorf("Server error: %v", err)
			stop()
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	observability.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		observability.Errorf("Server forced to shutdown: %v", err)
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		observability.Warnf("Telemetry shutdown: %v", err)
	}

	observability.Info("Server stopped")
}

// newBlobStore selects the configured photo storage backend
func newBlobStore(ctx context.Context, cfg *config.Config) (services.BlobStore, error) {
	if cfg.PhotoStorage.UseObjectStorage() {
		return services.NewObjectStorageService(ctx, cfg.MinIO, cfg.PhotoStorage.AllowedExtensions, cfg.PhotoStorage.MaxFileSizeMB)
	}
	if err := cfg.EnsurePhotoStorage(); err != nil {
		return nil, err
	}
	return services.NewPhotoStorageService(cfg.PhotoStorage.BasePath, cfg.PhotoStorage.AllowedExtensions, cfg.PhotoStorage.MaxFileSizeMB)
}
