package dto

import "fmt"

// ClassScore is the probability the network assigned to one class.
type ClassScore struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// PredictionResult is the response payload of a single image analysis.
type PredictionResult struct {
	ID             int64        `json:"id,omitempty"`
	Model          string       `json:"model"`
	PredictedClass string       `json:"predicted_class"`
	ClassIndex     int          `json:"class_index"`
	Confidence     float64      `json:"confidence"`
	Probabilities  []ClassScore `json:"probabilities"`
	ImageData      string       `json:"image_data"`
	HeatmapData    string       `json:"heatmap_data"`
	FileName       string       `json:"file_name"`
	FileSize       int64        `json:"file_size"`
	FileSizeText   string       `json:"file_size_text"`
	FileType       string       `json:"file_type"`
	Disease        interface{}  `json:"disease,omitempty"`
}

// Summary renders the result the way the upload page shows it.
func (r *PredictionResult) Summary() string {
	return fmt.Sprintf("Prediction: %s (Confidence: %.2f%%)", r.PredictedClass, r.Confidence)
}
