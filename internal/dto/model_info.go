package dto

import "time"

// ModelSummary lists a selectable model.
type ModelSummary struct {
	ID     string   `json:"id"`
	Labels []string `json:"labels"`
}

// ModelInfo describes a model and the state of its artifact.
type ModelInfo struct {
	ID            string     `json:"id"`
	Artifact      string     `json:"artifact"`
	Labels        []string   `json:"labels"`
	Available     bool       `json:"available"`
	Size          int64      `json:"size,omitempty"`
	SizeText      string     `json:"size_text,omitempty"`
	ModifiedAt    *time.Time `json:"modified_at,omitempty"`
	Cached        bool       `json:"cached"`
	InputSize     []int      `json:"input_size,omitempty"`
	NumClasses    int        `json:"num_classes,omitempty"`
	SaliencyLayer string     `json:"saliency_layer,omitempty"`
	Layers        []Layer    `json:"layers,omitempty"`
}

// Layer is one prepared layer of a loaded model.
type Layer struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	OutputShape []int  `json:"output_shape"`
}
