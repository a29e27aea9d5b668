// Package agent assembles the device-side sync engine from configuration.
package agent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/photosync/photosync/internal/clock"
	"github.com/photosync/photosync/internal/config"
	"github.com/photosync/photosync/internal/handlers"
	"github.com/photosync/photosync/internal/models"
	"github.com/photosync/photosync/internal/observability"
	"github.com/photosync/photosync/internal/repository"
	"github.com/photosync/photosync/internal/services"
)

const ServiceName = "photosync-agent"

const shutdownTimeout = 10 * time.Second

// Agent owns the state database and every component of the sync engine
type Agent struct {
	cfg      config.Agent
	deviceID string

	stateDB  *sql.DB
	sharedDB *sql.DB

	Index     repository.MediaIndexRepo
	Watermark repository.WatermarkRepo
	Stats     repository.SyncStatsRepo

	Source       *services.IndexAssetSource
	Indexer      *services.MediaIndexer
	Orchestrator *services.SyncOrchestrator
	Manual       *services.ManualTrigger
	Change       *services.ChangeTrigger
	Hub          *services.WebSocketHub
}

// Option customizes how an Agent is assembled
type Option func(*options)

type options struct {
	client services.UploadClient
	clock  clock.Clock
}

// WithUploadClient replaces the HTTP client built from configuration
func WithUploadClient(c services.UploadClient) Option {
	return func(o *options) { o.client = c }
}

// WithClock sets the clock used for index timestamps and run timing
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// New opens the agent state and wires the engine. databaseURL, when set,
// moves the watermark and statistics to a shared PostgreSQL database while
// the media index stays in the local SQLite file.
func New(cfg config.Agent, databaseURL string, opts ...Option) (*Agent, error) {
	o := options{clock: clock.RealClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	a := &Agent{cfg: cfg, deviceID: cfg.ResolveDeviceID()}

	stateDB, err := repository.NewSQLiteDB(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("open agent state %s: %w", cfg.StatePath, err)
	}
	a.stateDB = stateDB
	a.Index = repository.NewMediaIndexRepository(stateDB)

	if databaseURL != "" {
		shared, err := repository.NewPostgresDB(databaseURL)
		if err != nil {
			stateDB.Close()
			return nil, fmt.Errorf("open shared database: %w", err)
		}
		a.sharedDB = shared
		a.Watermark = repository.NewWatermarkRepositoryPostgres(shared, a.deviceID)
		a.Stats = repository.NewSyncStatsRepositoryPostgres(shared)
	} else {
		a.Watermark = repository.NewWatermarkRepository(stateDB, a.deviceID)
		a.Stats = repository.NewSyncStatsRepository(stateDB)
	}

	client := o.client
	if client == nil {
		client, err = services.NewHTTPUploadClient(services.UploadClientOptions{
			Endpoint:          cfg.EndpointURL,
			DeviceID:          a.deviceID,
			Tokens:            services.StaticBearerToken(cfg.AuthToken),
			Timeout:           cfg.UploadTimeout(),
			MaxFileSize:       cfg.MaxFileSize(),
			AllowedExtensions: cfg.AllowedExtensions,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	metrics, err := observability.NewSyncMetrics()
	if err != nil {
		observability.Warnf("Sync metrics disabled: %v", err)
	}

	a.Hub = services.NewWebSocketHub()
	a.Source = services.NewIndexAssetSource(a.Index)
	a.Orchestrator = services.NewSyncOrchestrator(a.Source, client, a.Watermark,
		services.WithSyncMetrics(metrics),
		services.WithClock(o.clock),
		services.WithReporters(
			services.NewStatsReporter(a.Stats, a.deviceID),
			services.NewHubReporter(a.Hub),
		),
	)

	a.Indexer = services.NewMediaIndexer(a.Index, services.NewHashService(), services.NewEXIFService(), o.clock, cfg.AllowedExtensions)
	a.Manual = services.NewManualTrigger(a.Orchestrator)
	a.Change = services.NewChangeTrigger(a.Orchestrator, cfg.DebounceInterval())
	a.Indexer.AddListener(a.Change)

	return a, nil
}

// DeviceID is the key the watermark and statistics are stored under
func (a *Agent) DeviceID() string {
	return a.deviceID
}

// Scan indexes everything under the watch path
func (a *Agent) Scan(ctx context.Context) (services.ScanSummary, error) {
	return a.Indexer.ScanFolder(ctx, a.cfg.WatchPath)
}

// SyncNow runs a single manual pass and waits for it
func (a *Agent) SyncNow(ctx context.Context) models.SyncResult {
	return <-a.Manual.Request(ctx)
}

// Status reports the engine state, watermark and backlog
func (a *Agent) Status(ctx context.Context) (models.SyncStatusResponse, error) {
	watermark, err := a.Watermark.Read(ctx)
	if err != nil {
		return models.SyncStatusResponse{}, err
	}
	indexed, err := a.Index.Count(ctx)
	if err != nil {
		return models.SyncStatusResponse{}, err
	}
	pending, err := a.Source.PendingCount(ctx, watermark)
	if err != nil {
		return models.SyncStatusResponse{}, err
	}
	stats, err := a.Stats.Get(ctx, a.deviceID)
	if err != nil {
		return models.SyncStatusResponse{}, err
	}

	state := a.Orchestrator.State()
	return models.SyncStatusResponse{
		Running:   state == services.StateRunning,
		State:     state.String(),
		Watermark: watermark,
		Indexed:   indexed,
		Pending:   pending,
		Stats:     stats,
	}, nil
}

// Router builds the local status API. version is reported by /api/version.
func (a *Agent) Router(version string) http.Handler {
	syncHandler := handlers.NewSyncHandler(a.Orchestrator, a.Manual, a.Watermark, a.Index, a.Stats, a.deviceID)
	healthHandler := handlers.NewHealthHandler()
	wsHandler := handlers.NewWebSocketHandler(a.Hub, services.TopicSync)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observability.TracingMiddleware("/health", "/ws"))
	if m, err := observability.NewHTTPMetrics(); err == nil {
		r.Use(observability.MetricsMiddleware(m))
	}

	r.Get("/health", healthHandler.HealthCheck)
	r.Get("/ws", wsHandler.HandleConnection)
	r.Route("/api", func(r chi.Router) {
		r.Get("/sync/status", syncHandler.GetSyncStatus)
		r.Post("/sync", syncHandler.TriggerSync)
		r.Get("/assets/recent", syncHandler.RecentAssets)
		r.Get("/version", handlers.NewVersionHandler(ServiceName, version))
	})
	return r
}

// Run indexes the watch path, then keeps the watcher, the change and
// periodic triggers, the hub and the status server alive until ctx is done
// or one of them fails.
func (a *Agent) Run(ctx context.Context, version string) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	summary, err := a.Scan(ctx)
	if err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}
	observability.Infof("Initial scan of %s: %d files, %d indexed, %d errors",
		a.cfg.WatchPath, summary.FilesScanned, summary.Indexed, len(summary.Errors))

	watcher := services.NewFolderWatcher(a.cfg.WatchPath, a.Indexer, a.cfg.SettleDelay())
	gate := services.NewConditionsGate(a.cfg.ConditionsPath, a.cfg.RequireUnmetered, a.cfg.RequireCharging)
	periodic := services.NewPeriodicTrigger(a.Orchestrator, a.cfg.PeriodicInterval(), gate, a.cfg.RunTimeout())

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Hub.Run(ctx)
		return nil
	})
	g.Go(func() error { return watcher.Start(ctx) })
	g.Go(func() error { return a.Change.Start(ctx) })
	g.Go(func() error { return periodic.Start(ctx) })

	if a.cfg.StatusAddress != "" {
		srv := &http.Server{
			Addr:         a.cfg.StatusAddress,
			Handler:      a.Router(version),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0, // manual syncs are answered when the pass ends
			IdleTimeout:  60 * time.Second,
		}
		g.Go(func() error {
			observability.Infof("Agent status API listening on %s", a.cfg.StatusAddress)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// A change in the backlog while the agent was down is picked up at once.
	a.Change.Notify()

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the databases
func (a *Agent) Close() error {
	var errs []error
	if a.sharedDB != nil {
		errs = append(errs, a.sharedDB.Close())
	}
	if a.stateDB != nil {
		errs = append(errs, a.stateDB.Close())
	}
	return errors.Join(errs...)
}
