package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"leafscan/internal/config"
	"leafscan/internal/logger"
	"leafscan/internal/service"
	"leafscan/internal/service/ai"
)

// multipartMemory is how much of a form is kept in memory before spilling
// to temporary files.
const multipartMemory = 8 << 20

// PredictHandler classifies an uploaded leaf image, stores the result and
// returns it with its heatmap. Form fields: file, model and optional target.
func PredictHandler(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadSize)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			writeError(w, logger, fmt.Errorf("%w: failed to parse form: %w", errBadRequest, err))
			return
		}
		defer r.MultipartForm.RemoveAll()

		modelID := strings.TrimSpace(r.FormValue("model"))
		if modelID == "" {
			writeError(w, logger, fmt.Errorf("%w: missing model", errBadRequest))
			return
		}

		target := -1
		if v := strings.TrimSpace(r.FormValue("target")); v != "" {
			t, err := strconv.Atoi(v)
			if err != nil || t < 0 {
				writeError(w, logger, fmt.Errorf("%w: invalid target %q", errBadRequest, v))
				return
			}
			target = t
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, logger, fmt.Errorf("%w: no file uploaded", errBadRequest))
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, logger, fmt.Errorf("failed to read upload: %w", err))
			return
		}
		if len(data) == 0 {
			writeError(w, logger, fmt.Errorf("%w: empty file", ai.ErrInvalidImage))
			return
		}

		upload := ai.Upload{
			FileName:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		}

		result, err := manager.AnalyzeAndRecord(r.Context(), modelID, upload, target)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		logger.Info("%s via %s: %s", header.Filename, modelID, result.Summary())
		writeJSON(w, http.StatusOK, result)
	}
}
