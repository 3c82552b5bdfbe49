package ai

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"time"

	"leafscan/internal/dto"
	"leafscan/internal/logger"
)

// Upload is an image received from a client.
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Analyzer runs the full pipeline: load, preprocess, classify, explain and
// composite.
type Analyzer struct {
	loader    *Loader
	alpha     float64
	maxPixels int
	logger    *logger.Logger
}

// NewAnalyzer creates an analyzer blending heatmaps with alpha and refusing
// uploads larger than maxPixels once decoded. A non-positive maxPixels uses
// DefaultMaxPixels.
func NewAnalyzer(loader *Loader, alpha float64, maxPixels int, logger *logger.Logger) *Analyzer {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Analyzer{loader: loader, alpha: alpha, maxPixels: maxPixels, logger: logger}
}

// Loader returns the model loader.
func (a *Analyzer) Loader() *Loader {
	return a.loader
}

// Analyze classifies the upload with model id and explains class target, or
// the predicted class when target is negative. Every stage fails fast with
// its own error kind.
func (a *Analyzer) Analyze(ctx context.Context, id string, up Upload, target int) (*dto.PredictionResult, error) {
	start := time.Now()

	m, err := a.loader.Load(id)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h, w := m.InputSize()
	x, err := Preprocess(up.Data, h, w, a.maxPixels)
	if err != nil {
		return nil, err
	}

	cls, err := Classify(m, x)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if target < 0 {
		target = cls.Index
	}
	sal, err := Saliency(m, x, target)
	if err != nil {
		return nil, err
	}

	overlay, err := Composite(sal, x, a.alpha)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, overlay); err != nil {
		return nil, fmt.Errorf("failed to encode heatmap: %w", err)
	}

	mediaType := mediaTypeOf(up.ContentType, up.Data)
	size := int64(len(up.Data))
	result := &dto.PredictionResult{
		Model:          id,
		PredictedClass: cls.Label,
		ClassIndex:     cls.Index,
		Confidence:     cls.Confidence,
		Probabilities:  scores(cls.Probabilities, m.Labels),
		ImageData:      DataURI(mediaType, up.Data),
		HeatmapData:    DataURI("image/png", buf.Bytes()),
		FileName:       up.FileName,
		FileSize:       size,
		FileSizeText:   dto.FormatFileSize(size),
		FileType:       mediaType,
	}

	a.logger.Debug("Analyzed %s with %s in %s: %s", up.FileName, id, time.Since(start), result.Summary())
	return result, nil
}

func scores(probs []float32, labels []string) []dto.ClassScore {
	out := make([]dto.ClassScore, len(probs))
	for i, p := range probs {
		label := fmt.Sprintf("class_%d", i)
		if i < len(labels) {
			label = labels[i]
		}
		out[i] = dto.ClassScore{Label: label, Probability: float64(p)}
	}
	return out
}
