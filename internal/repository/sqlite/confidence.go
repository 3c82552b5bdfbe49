package sqlite

import (
	"math"
	"strconv"
	"strings"
)

// coerceConfidence turns whatever the driver handed back for a confidence
// column into a finite float. Anything that is not cleanly numeric is 0.
func coerceConfidence(v interface{}) float64 {
	var f float64
	switch c := v.(type) {
	case float64:
		f = c
	case float32:
		f = float64(c)
	case int64:
		f = float64(c)
	case int:
		f = float64(c)
	case []byte:
		f = parseConfidence(string(c))
	case string:
		f = parseConfidence(c)
	default:
		return 0
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func parseConfidence(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
