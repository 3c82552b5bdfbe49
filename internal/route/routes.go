package route

import (
	"net/http"
	"os"
	"path/filepath"

	"leafscan/internal/config"
	"leafscan/internal/handler"
	"leafscan/internal/logger"
	"leafscan/internal/middleware"
	"leafscan/internal/service"
)

// dynamicHTMLHandler serves /path as <static>/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(staticDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if path == "/" {
			path = "/index"
		}

		filePath := filepath.Join(staticDir, filepath.Clean("/"+path)+".html")

		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}

		http.ServeFile(w, r, filePath)
	}
}

// SetupRoutes registers HTTP routes, static file serving and API endpoints,
// and wraps the mux with request id, access log and panic recovery.
func SetupRoutes(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDirectory))))

	mux.HandleFunc("GET /health", handler.HealthHandler)

	// Models
	mux.HandleFunc("GET /api/models", handler.ModelsHandler(manager))
	mux.HandleFunc("GET /api/models/info", handler.ModelsInfoHandler(manager, logger))

	// Analysis
	mux.HandleFunc("POST /api/predict", handler.PredictHandler(manager, cfg, logger))

	// History
	mux.HandleFunc("GET /api/history", handler.HistoryHandler(manager, logger))
	mux.HandleFunc("DELETE /api/history/clear", handler.ClearHistoryHandler(manager, logger))
	mux.HandleFunc("GET /api/history/export", handler.ExportHistoryHandler(manager, logger))
	mux.HandleFunc("GET /api/prediction/{id}", handler.GetPredictionHandler(manager, logger))
	mux.HandleFunc("DELETE /api/prediction/{id}", handler.DeletePredictionHandler(manager, logger))
	mux.HandleFunc("GET /api/prediction/{id}/download", handler.DownloadPredictionHandler(manager, logger))
	mux.HandleFunc("DELETE /api/data/clear-all", handler.ClearAllHandler(manager, logger))
	mux.HandleFunc("GET /api/statistics", handler.StatisticsHandler(manager, logger))
	mux.HandleFunc("GET /api/diseases", handler.DiseasesHandler(manager, logger))

	// Maintenance
	mux.HandleFunc("POST /api/maintenance/run", handler.RunMaintenanceHandler(manager, logger))

	// Live feed
	mux.HandleFunc("GET /api/live", handler.LiveWebsocketHandler(manager, logger))

	// Log endpoints
	mux.HandleFunc("GET /logs/{level}", handler.ShowLogsHandler(cfg))
	mux.HandleFunc("POST /logs/{level}/clear", handler.ClearLogsHandler(logger))

	// Automatic HTML handler mapping for example: /history -> static/history.html
	mux.HandleFunc("GET /", dynamicHTMLHandler(cfg.StaticDirectory))

	return middleware.Chain(mux,
		middleware.RequestID,
		middleware.Logging(logger),
		middleware.Recovery(logger),
	)
}
