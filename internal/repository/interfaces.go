package repository

import (
	"errors"
	"time"

	"leafscan/internal/model"
)

// ErrNotFound is returned when an operation targets a row that does not exist.
var ErrNotFound = errors.New("record not found")

// PredictionRepository defines the interface for prediction data operations.
type PredictionRepository interface {
	// Create operations
	Insert(p *model.Prediction) (int64, error)

	// Read operations
	GetByID(id int64) (*model.Prediction, error)
	List(limit, offset int) ([]model.Prediction, error)
	ListAll() ([]model.Prediction, error)
	Count() (int, error)
	Statistics() (*model.PredictionStats, error)

	// Update operations
	RepairConfidence() (int, error)

	// Delete operations
	Delete(id int64) error
	DeleteAll() (int64, error)
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

// DiseaseRepository defines the interface for the disease reference guide.
type DiseaseRepository interface {
	List(nameFilter string) ([]model.Disease, error)
	GetByName(name string) (*model.Disease, error)
}
