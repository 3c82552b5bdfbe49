package sqlite

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"leafscan/internal/model"
	"leafscan/internal/repository"
)

// timeLayout matches SQLite's CURRENT_TIMESTAMP so datetime() comparisons work
// on the stored text.
const timeLayout = "2006-01-02 15:04:05"

// PredictionRepository implements repository.PredictionRepository for SQLite.
type PredictionRepository struct {
	db *DB
}

// NewPredictionRepository creates a new SQLite prediction repository.
func NewPredictionRepository(db *DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// Insert stores a prediction and returns its new id. A zero timestamp is
// replaced with the current time.
func (r *PredictionRepository) Insert(p *model.Prediction) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	result, err := r.db.Conn().Exec(`
		INSERT INTO predictions
		(timestamp, model_name, predicted_class, confidence, file_name, file_size, file_type, image_data, heatmap_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ts.UTC().Format(timeLayout), p.ModelName, p.PredictedClass, coerceConfidence(p.Confidence),
		p.FileName, p.FileSize, p.FileType, p.ImageData, p.HeatmapData)
	if err != nil {
		return 0, fmt.Errorf("failed to insert prediction: %w", err)
	}

	return result.LastInsertId()
}

// GetByID retrieves a full prediction, images included. Returns nil when
// the id does not exist.
func (r *PredictionRepository) GetByID(id int64) (*model.Prediction, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`
		SELECT id, timestamp, model_name, predicted_class, confidence, file_name, file_size, file_type,
		       COALESCE(image_data, ''), COALESCE(heatmap_data, '')
		FROM predictions WHERE id = ?
	`, id)

	var (
		p    model.Prediction
		ts   string
		conf interface{}
	)
	err := row.Scan(&p.ID, &ts, &p.ModelName, &p.PredictedClass, &conf, &p.FileName,
		&p.FileSize, &p.FileType, &p.ImageData, &p.HeatmapData)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}

	p.Timestamp = parseTimestamp(ts)
	p.Confidence = coerceConfidence(conf)
	return &p, nil
}

// List returns prediction summaries, newest first, without image payloads.
func (r *PredictionRepository) List(limit, offset int) ([]model.Prediction, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	return r.querySummaries(`
		SELECT id, timestamp, model_name, predicted_class, confidence, file_name, file_size, file_type
		FROM predictions
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
}

// ListAll returns every prediction summary, newest first.
func (r *PredictionRepository) ListAll() ([]model.Prediction, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	return r.querySummaries(`
		SELECT id, timestamp, model_name, predicted_class, confidence, file_name, file_size, file_type
		FROM predictions
		ORDER BY timestamp DESC, id DESC
	`)
}

func (r *PredictionRepository) querySummaries(query string, args ...interface{}) ([]model.Prediction, error) {
	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	predictions := []model.Prediction{}
	for rows.Next() {
		var (
			p    model.Prediction
			ts   string
			conf interface{}
		)
		if err := rows.Scan(&p.ID, &ts, &p.ModelName, &p.PredictedClass, &conf,
			&p.FileName, &p.FileSize, &p.FileType); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		p.Timestamp = parseTimestamp(ts)
		p.Confidence = coerceConfidence(conf)
		predictions = append(predictions, p)
	}

	return predictions, rows.Err()
}

// Count returns the number of stored predictions.
func (r *PredictionRepository) Count() (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM predictions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count predictions: %w", err)
	}
	return count, nil
}

// Statistics summarizes the prediction history.
func (r *PredictionRepository) Statistics() (*model.PredictionStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	stats := &model.PredictionStats{
		CommonDiseases:     []model.LabelCount{},
		PredictionsByModel: []model.LabelCount{},
	}

	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM predictions`).Scan(&stats.TotalPredictions); err != nil {
		return nil, fmt.Errorf("failed to count predictions: %w", err)
	}

	var err error
	stats.CommonDiseases, err = r.labelCounts(`
		SELECT predicted_class, COUNT(*) AS n FROM predictions
		GROUP BY predicted_class ORDER BY n DESC, predicted_class LIMIT 5
	`)
	if err != nil {
		return nil, err
	}

	var avg sql.NullFloat64
	if err := r.db.Conn().QueryRow(`SELECT AVG(confidence) FROM predictions`).Scan(&avg); err != nil {
		return nil, fmt.Errorf("failed to average confidence: %w", err)
	}
	if avg.Valid && !math.IsNaN(avg.Float64) && !math.IsInf(avg.Float64, 0) {
		stats.AvgConfidence = math.Round(avg.Float64*100) / 100
	}

	stats.PredictionsByModel, err = r.labelCounts(`
		SELECT model_name, COUNT(*) AS n FROM predictions
		GROUP BY model_name ORDER BY n DESC, model_name
	`)
	if err != nil {
		return nil, err
	}

	if err := r.db.Conn().QueryRow(`
		SELECT COUNT(*) FROM predictions WHERE timestamp >= datetime('now', '-7 days')
	`).Scan(&stats.RecentPredictions); err != nil {
		return nil, fmt.Errorf("failed to count recent predictions: %w", err)
	}

	return stats, nil
}

func (r *PredictionRepository) labelCounts(query string) ([]model.LabelCount, error) {
	rows, err := r.db.Conn().Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query statistics: %w", err)
	}
	defer rows.Close()

	counts := []model.LabelCount{}
	for rows.Next() {
		var c model.LabelCount
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan statistics: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// RepairConfidence rewrites every stored confidence that is not a REAL to
// its coerced value and returns how many rows changed.
func (r *PredictionRepository) RepairConfidence() (int, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT id, confidence FROM predictions WHERE typeof(confidence) != 'real'`)
	if err != nil {
		return 0, fmt.Errorf("failed to query confidence values: %w", err)
	}

	fixes := map[int64]float64{}
	for rows.Next() {
		var (
			id   int64
			conf interface{}
		)
		if err := rows.Scan(&id, &conf); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan confidence: %w", err)
		}
		fixes[id] = coerceConfidence(conf)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for id, conf := range fixes {
		if _, err := tx.Exec(`UPDATE predictions SET confidence = ? WHERE id = ?`, conf, id); err != nil {
			return 0, fmt.Errorf("failed to repair prediction %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit repair: %w", err)
	}
	return len(fixes), nil
}

// Delete removes one prediction. Returns repository.ErrNotFound when the id
// does not exist.
func (r *PredictionRepository) Delete(id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`DELETE FROM predictions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete prediction: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete prediction: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteAll removes every prediction.
func (r *PredictionRepository) DeleteAll() (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`DELETE FROM predictions`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete predictions: %w", err)
	}
	return result.RowsAffected()
}

// DeleteOlderThan removes predictions stored before cutoff.
func (r *PredictionRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`DELETE FROM predictions WHERE timestamp < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old predictions: %w", err)
	}
	return result.RowsAffected()
}

// parseTimestamp reads the stored UTC text. Rows written by other tools may
// carry a zone suffix or a T separator.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}

var _ repository.PredictionRepository = (*PredictionRepository)(nil)
var _ repository.DiseaseRepository = (*DiseaseRepository)(nil)
