package dto

import (
	"time"

	"leafscan/internal/model"
)

// HistoryPage is a paginated response payload for the prediction history.
type HistoryPage struct {
	Predictions []model.Prediction `json:"predictions"`
	Total       int                `json:"total"`
	TotalPages  int                `json:"totalPages"`
	CurrentPage int                `json:"currentPage"`
	Limit       int                `json:"pageSize"`
}

// ExportRow is one line of the history export.
type ExportRow struct {
	ID             int64   `csv:"id"`
	Timestamp      string  `csv:"timestamp"`
	ModelName      string  `csv:"model_name"`
	PredictedClass string  `csv:"predicted_class"`
	Confidence     float64 `csv:"confidence"`
	FileName       string  `csv:"file_name"`
	FileSize       int64   `csv:"file_size"`
	FileType       string  `csv:"file_type"`
}

// ExportHeader lists the export columns in ExportRow order.
var ExportHeader = []string{"id", "timestamp", "model_name", "predicted_class", "confidence", "file_name", "file_size", "file_type"}

// NewExportRow flattens a stored prediction for export.
func NewExportRow(p model.Prediction) ExportRow {
	return ExportRow{
		ID:             p.ID,
		Timestamp:      p.Timestamp.UTC().Format(time.RFC3339),
		ModelName:      p.ModelName,
		PredictedClass: p.PredictedClass,
		Confidence:     p.Confidence,
		FileName:       p.FileName,
		FileSize:       p.FileSize,
		FileType:       p.FileType,
	}
}

// Values returns the row as cells in ExportHeader order.
func (r ExportRow) Values() []interface{} {
	return []interface{}{r.ID, r.Timestamp, r.ModelName, r.PredictedClass, r.Confidence, r.FileName, r.FileSize, r.FileType}
}
