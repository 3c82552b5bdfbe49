package dto

import (
	"time"

	"leafscan/internal/model"
)

// EventPrediction is the type of the live feed message sent for each stored
// prediction.
const EventPrediction = "prediction"

// PredictionEvent is pushed to websocket clients. The prediction carries no
// image payloads; clients fetch them by id.
type PredictionEvent struct {
	Type       string           `json:"type"`
	Prediction model.Prediction `json:"prediction"`
	SentAt     time.Time        `json:"sent_at"`
}

// NewPredictionEvent strips image data from p and stamps the event.
func NewPredictionEvent(p model.Prediction) PredictionEvent {
	p.ImageData = ""
	p.HeatmapData = ""
	return PredictionEvent{Type: EventPrediction, Prediction: p, SentAt: time.Now().UTC()}
}
