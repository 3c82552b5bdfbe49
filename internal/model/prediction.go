package model

import "time"

// Prediction represents a stored classification result.
type Prediction struct {
	ID             int64     `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	ModelName      string    `json:"model_name"`
	PredictedClass string    `json:"predicted_class"`
	Confidence     float64   `json:"confidence"`
	FileName       string    `json:"file_name"`
	FileSize       int64     `json:"file_size"`
	FileType       string    `json:"file_type"`
	ImageData      string    `json:"image_data,omitempty"`
	HeatmapData    string    `json:"heatmap_data,omitempty"`
}
