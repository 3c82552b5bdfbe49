package sqlite

import (
	"database/sql"
	"fmt"

	"leafscan/internal/model"
)

var defaultDiseases = []model.Disease{
	{
		Name:           "Apple - Rotten",
		Description:    "Rot in apples caused by various fungal and bacterial pathogens",
		Symptoms:       "Brown spots, soft texture, unpleasant odor",
		Causes:         "Fungal/bacterial infection, improper storage",
		Treatment:      "Remove affected parts, improve storage conditions",
		Prevention:     "Proper harvesting, good storage practices",
		SeverityLevel:  "Medium",
		AffectedPlants: "Apple",
	},
	{
		Name:           "Apple - Blotch",
		Description:    "Sooty blotch and flyspeck disease complex",
		Symptoms:       "Dark, sooty patches on fruit surface",
		Causes:         "Fungal pathogens in humid conditions",
		Treatment:      "Fungicide application, improve air circulation",
		Prevention:     "Pruning for airflow, preventive spraying",
		SeverityLevel:  "Low",
		AffectedPlants: "Apple",
	},
	{
		Name:           "Apple - Scab",
		Description:    "Common fungal disease affecting leaves and fruit",
		Symptoms:       "Olive-green to black spots on leaves and fruit",
		Causes:         "Fungal infection (Venturia inaequalis)",
		Treatment:      "Fungicide treatment, resistant varieties",
		Prevention:     "Good sanitation, resistant cultivars",
		SeverityLevel:  "High",
		AffectedPlants: "Apple",
	},
	{
		Name:           "Citrus - Black-Spot",
		Description:    "Fungal disease causing dark spots",
		Symptoms:       "Black or dark brown spots on fruit and leaves",
		Causes:         "Fungal infection in warm, humid conditions",
		Treatment:      "Copper-based fungicides, improve drainage",
		Prevention:     "Proper spacing, avoid overhead irrigation",
		SeverityLevel:  "Medium",
		AffectedPlants: "Citrus",
	},
	{
		Name:           "Citrus - Canker",
		Description:    "Bacterial disease causing lesions",
		Symptoms:       "Raised, corky lesions on fruit, leaves, and twigs",
		Causes:         "Bacterial infection (Xanthomonas citri)",
		Treatment:      "Copper sprays, remove infected plant parts",
		Prevention:     "Windbreaks, avoid overhead watering",
		SeverityLevel:  "High",
		AffectedPlants: "Citrus",
	},
	{
		Name:           "Tomato - Rotten",
		Description:    "Various rot diseases in tomatoes",
		Symptoms:       "Soft, watery spots, foul odor",
		Causes:         "Bacterial or fungal infection",
		Treatment:      "Remove affected fruits, improve ventilation",
		Prevention:     "Proper watering, good air circulation",
		SeverityLevel:  "Medium",
		AffectedPlants: "Tomato",
	},
	{
		Name:           "Olive - Anthracnose",
		Description:    "Fungal disease affecting olives",
		Symptoms:       "Dark, sunken spots on fruit",
		Causes:         "Fungal infection in wet conditions",
		Treatment:      "Fungicide application, prune for airflow",
		Prevention:     "Resistant varieties, proper pruning",
		SeverityLevel:  "Medium",
		AffectedPlants: "Olive",
	},
}

// seedDiseases populates the guide when the table is empty.
func (db *DB) seedDiseases() error {
	var count int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM disease_info`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO disease_info
		(disease_name, description, symptoms, causes, treatment, prevention, severity_level, affected_plants)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, d := range defaultDiseases {
		if _, err := stmt.Exec(d.Name, d.Description, d.Symptoms, d.Causes, d.Treatment,
			d.Prevention, d.SeverityLevel, d.AffectedPlants); err != nil {
			return fmt.Errorf("failed to insert disease %s: %w", d.Name, err)
		}
	}

	return tx.Commit()
}

// DiseaseRepository implements repository.DiseaseRepository for SQLite.
type DiseaseRepository struct {
	db *DB
}

// NewDiseaseRepository creates a new SQLite disease repository.
func NewDiseaseRepository(db *DB) *DiseaseRepository {
	return &DiseaseRepository{db: db}
}

const diseaseColumns = `id, disease_name, description, symptoms, causes, treatment, prevention, severity_level, affected_plants`

// List returns guide entries whose name contains nameFilter, or all entries
// when the filter is empty.
func (r *DiseaseRepository) List(nameFilter string) ([]model.Disease, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var (
		rows *sql.Rows
		err  error
	)
	if nameFilter != "" {
		rows, err = r.db.Conn().Query(`SELECT `+diseaseColumns+` FROM disease_info
			WHERE disease_name LIKE ? ORDER BY disease_name`, "%"+nameFilter+"%")
	} else {
		rows, err = r.db.Conn().Query(`SELECT ` + diseaseColumns + ` FROM disease_info ORDER BY disease_name`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query diseases: %w", err)
	}
	defer rows.Close()

	diseases := []model.Disease{}
	for rows.Next() {
		d, err := scanDisease(rows)
		if err != nil {
			return nil, err
		}
		diseases = append(diseases, *d)
	}

	return diseases, rows.Err()
}

// GetByName returns the guide entry with exactly the given name, or nil.
func (r *DiseaseRepository) GetByName(name string) (*model.Disease, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`SELECT `+diseaseColumns+` FROM disease_info WHERE disease_name = ?`, name)
	d, err := scanDisease(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDisease(row rowScanner) (*model.Disease, error) {
	var d model.Disease
	err := row.Scan(&d.ID, &d.Name, &d.Description, &d.Symptoms, &d.Causes,
		&d.Treatment, &d.Prevention, &d.SeverityLevel, &d.AffectedPlants)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan disease: %w", err)
	}
	return &d, nil
}
