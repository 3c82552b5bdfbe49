package handler

import (
	"net/http"

	"leafscan/internal/logger"
	"leafscan/internal/service"
)

// RunMaintenanceHandler runs the maintenance job now instead of waiting for
// its schedule.
func RunMaintenanceHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc := manager.GetMaintenanceService()
		if svc == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "maintenance is disabled"})
			return
		}

		report, err := svc.RunOnce()
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"repaired": report.Repaired,
			"expired":  report.Expired,
		})
	}
}
