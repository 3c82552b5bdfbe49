package ai

import "errors"

// Error kinds returned by the pipeline. Stage errors wrap one of these, plus
// the underlying cause where there is one.
var (
	// ErrUnknownModel means the identifier is not in the catalog. No file
	// is opened before this is returned.
	ErrUnknownModel = errors.New("unknown model")
	// ErrModelNotFound means the catalog knows the model but its artifact
	// is missing from the model directory.
	ErrModelNotFound = errors.New("model not found")
	// ErrModelLoad means the artifact exists but could not be decoded or
	// fails validation.
	ErrModelLoad = errors.New("model load failed")

	ErrInvalidImage        = errors.New("invalid image")
	ErrIndexOutOfRange     = errors.New("index out of range")
	ErrSaliencyUnsupported = errors.New("saliency unsupported for this architecture")
	ErrShapeMismatch       = errors.New("shape mismatch")
)
