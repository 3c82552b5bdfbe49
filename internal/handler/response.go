package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"leafscan/internal/logger"
	"leafscan/internal/repository"
	"leafscan/internal/service/ai"
	"leafscan/internal/service/history"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// errBadRequest marks malformed client input that is not an ai error kind.
var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest),
		errors.Is(err, ai.ErrUnknownModel),
		errors.Is(err, ai.ErrInvalidImage),
		errors.Is(err, history.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, ai.ErrModelNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ai.ErrIndexOutOfRange),
		errors.Is(err, ai.ErrSaliencyUnsupported):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeError logs err and answers with its status. Internal errors are not
// echoed to the client.
func writeError(w http.ResponseWriter, logger *logger.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("Request failed: %v", err)
		msg = "Internal Server Error"
	} else {
		logger.Warning("Request rejected (%d): %v", status, err)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// pathID parses the {id} wildcard.
func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid prediction id %q", errBadRequest, raw)
	}
	return id, nil
}
