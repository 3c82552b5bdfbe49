package handler

import (
	"net/http"

	"leafscan/internal/dto"
	"leafscan/internal/logger"
	"leafscan/internal/service"
)

// ModelsHandler lists the selectable models with their labels.
func ModelsHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := manager.GetModels().Catalog().Entries()
		models := make([]dto.ModelSummary, len(entries))
		for i, e := range entries {
			models[i] = dto.ModelSummary{ID: e.ID, Labels: e.Labels}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"models": models})
	}
}

// ModelsInfoHandler reports artifact and cache state for every model.
func ModelsInfoHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		registry := manager.GetModels()
		ids := registry.Catalog().IDs()

		infos := make([]dto.ModelInfo, 0, len(ids))
		for _, id := range ids {
			info, err := registry.Info(id)
			if err != nil {
				writeError(w, logger, err)
				return
			}
			infos = append(infos, info)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"models": infos})
	}
}

// HealthHandler reports that the server is up.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
