package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPredictionStats_MarshalJSON(t *testing.T) {
	stats := PredictionStats{
		TotalPredictions: 3,
		CommonDiseases:   []LabelCount{{Name: "Apple - Scab", Count: 2}, {Name: "Olive - Healthy", Count: 1}},
		AvgConfidence:    87.5,
	}

	data, err := json.Marshal(stats)
	require.NoError(t, err)
	require.Contains(t, string(data), `"common_diseases":[["Apple - Scab",2],["Olive - Healthy",1]]`)
	require.Contains(t, string(data), `"avg_confidence":87.5`)
}
