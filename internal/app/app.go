package app

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"

	"leafscan/internal/config"
	"leafscan/internal/logger"
	"leafscan/internal/repository/sqlite"
	"leafscan/internal/route"
	"leafscan/internal/service"
	"leafscan/internal/service/ai"
	"leafscan/internal/service/history"
	"leafscan/internal/service/maintenance"
	"leafscan/internal/service/websocket"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config      *config.Config
	logger      *logger.Logger
	db          *sqlite.DB
	loader      *ai.Loader
	hubService  *websocket.HubService
	maintenance *maintenance.Service
	manager     *service.Manager
	server      *http.Server
}

// NewApp opens the database, reads the model catalog and wires every
// service behind the HTTP router.
func NewApp(cfg *config.Config) (*App, error) {
	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		log.Close()
		return nil, err
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Close()
		return nil, err
	}

	predictions := sqlite.NewPredictionRepository(db)
	diseases := sqlite.NewDiseaseRepository(db)

	loader := ai.NewLoader(catalog, os.DirFS(cfg.ModelDirectory), log)
	analyzer := ai.NewAnalyzer(loader, cfg.HeatmapAlpha, cfg.MaxImagePixels, log)
	hub := websocket.NewHubService(log)
	historyService := history.NewService(predictions, diseases, hub, log)

	maintenanceService := maintenance.NewService(predictions, cfg.Retention(), log)
	if err := maintenanceService.Schedule(cfg.MaintenanceSchedule); err != nil {
		db.Close()
		log.Close()
		return nil, err
	}

	mng := service.NewManager(analyzer, loader, historyService, hub, maintenanceService, log)

	return &App{
		config:      cfg,
		logger:      log,
		db:          db,
		loader:      loader,
		hubService:  hub,
		maintenance: maintenanceService,
		manager:     mng,
		server: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           route.SetupRoutes(mng, cfg, log),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func loadCatalog(cfg *config.Config) (*ai.Catalog, error) {
	if cfg.ModelCatalog == "" {
		return ai.DefaultCatalog()
	}
	return ai.LoadCatalog(cfg.ModelCatalog)
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.hubService.Run(ctx)
	a.startWatcher(ctx)

	if _, err := a.maintenance.RunOnce(); err != nil {
		a.logger.Error("Startup maintenance failed: %v", err)
	}
	a.maintenance.Start()
	defer a.maintenance.Stop()

	a.logger.Info("Leaf disease classifier")
	a.logger.Info("URL: http://localhost:%d", a.config.Port)
	a.logger.Info("Models: %s (%v)", a.config.ModelDirectory, a.loader.Catalog().IDs())
	a.logger.Info("Database: %s", a.config.DatabasePath)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrapf(err, "http server on %s failed", a.server.Addr)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "failed to shut down server")
	}
	return nil
}

func (a *App) startWatcher(ctx context.Context) {
	if !a.config.WatchModels {
		return
	}
	w, err := ai.NewWatcher(a.config.ModelDirectory, a.loader, a.logger)
	if err != nil {
		a.logger.Warning("Model hot reload disabled: %v", err)
		return
	}
	go w.Run(ctx)
}

func (a *App) close() {
	if err := a.db.Close(); err != nil {
		a.logger.Error("Failed to close database: %v", err)
	}
	a.logger.Close()
}
