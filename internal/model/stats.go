package model

import "encoding/json"

// LabelCount pairs a name with the number of predictions carrying it.
type LabelCount struct {
	Name  string
	Count int
}

// MarshalJSON encodes the pair as a two element array: ["Apple - Scab", 3].
func (c LabelCount) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{c.Name, c.Count})
}

// PredictionStats contains statistics about stored predictions.
type PredictionStats struct {
	TotalPredictions   int          `json:"total_predictions"`
	CommonDiseases     []LabelCount `json:"common_diseases"`
	AvgConfidence      float64      `json:"avg_confidence"`
	PredictionsByModel []LabelCount `json:"predictions_by_model"`
	RecentPredictions  int          `json:"recent_predictions"`
}
