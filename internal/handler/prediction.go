package handler

import (
	"bytes"
	"fmt"
	"net/http"

	"leafscan/internal/logger"
	"leafscan/internal/service"
)

// GetPredictionHandler returns a stored prediction including both images.
func GetPredictionHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		p, err := manager.GetHistoryService().Get(id)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// DeletePredictionHandler removes a stored prediction.
func DeletePredictionHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		if err := manager.GetHistoryService().Delete(id); err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Prediction deleted"})
	}
}

// DownloadPredictionHandler sends a zip with the original image, the
// heatmap and the prediction metadata.
func DownloadPredictionHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		svc := manager.GetHistoryService()
		p, err := svc.Get(id)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		var buf bytes.Buffer
		if err := svc.WriteArchive(&buf, p); err != nil {
			writeError(w, logger, err)
			return
		}

		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"prediction_%d.zip\"", id))
		w.WriteHeader(http.StatusOK)
		buf.WriteTo(w)
	}
}
