package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"leafscan/internal/logger"
	"leafscan/internal/service"
	"leafscan/internal/service/history"
)

// HistoryHandler returns one page of stored predictions without images.
func HistoryHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), history.DefaultPageSize)

		result, err := manager.GetHistoryService().List(page, limit)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// ClearHistoryHandler deletes every stored prediction.
func ClearHistoryHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := manager.GetHistoryService().Clear()
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message": "History cleared",
			"deleted": n,
		})
	}
}

// ClearAllHandler deletes every prediction and drops all loaded models.
func ClearAllHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := manager.GetHistoryService().Clear()
		if err != nil {
			writeError(w, logger, err)
			return
		}
		purged := manager.GetModels().Purge()
		logger.Info("Cleared all data: %d predictions, %d cached models", n, purged)

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message":        "All data cleared",
			"deleted":        n,
			"models_evicted": purged,
		})
	}
}

// ExportHistoryHandler streams the history as csv or xlsx.
func ExportHistoryHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format := strings.ToLower(r.URL.Query().Get("format"))
		if format == "" {
			format = history.FormatCSV
		}

		// Buffered so a failed export still gets a JSON error response.
		var buf bytes.Buffer
		if err := manager.GetHistoryService().Export(&buf, format); err != nil {
			writeError(w, logger, err)
			return
		}

		name := fmt.Sprintf("prediction_history_%s.%s", time.Now().Format("20060102_150405"), format)
		w.Header().Set("Content-Type", history.ContentType(format))
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		w.WriteHeader(http.StatusOK)
		buf.WriteTo(w)
	}
}

// StatisticsHandler summarizes stored predictions.
func StatisticsHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := manager.GetHistoryService().Statistics()
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// DiseasesHandler lists the disease guide, optionally filtered by name.
func DiseasesHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		diseases, err := manager.GetHistoryService().Diseases(r.URL.Query().Get("name"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"diseases": diseases})
	}
}
