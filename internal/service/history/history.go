package history

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"
	jsoniter "github.com/json-iterator/go"
	"github.com/xuri/excelize/v2"

	"leafscan/internal/dto"
	"leafscan/internal/logger"
	"leafscan/internal/model"
	"leafscan/internal/repository"
	"leafscan/internal/service/ai"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

const (
	// DefaultPageSize is used when a history request has no limit.
	DefaultPageSize = 20
	// MaxPageSize caps the limit of a history request.
	MaxPageSize = 100

	sheetName = "History"
)

// ErrUnsupportedFormat is returned by Export for unknown formats.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Broadcaster receives every newly stored prediction.
type Broadcaster interface {
	BroadcastEvent(event dto.PredictionEvent)
}

// Service stores analysis results and serves the prediction history.
type Service struct {
	predictions repository.PredictionRepository
	diseases    repository.DiseaseRepository
	broadcaster Broadcaster
	logger      *logger.Logger
}

// NewService creates a history service. broadcaster may be nil.
func NewService(predictions repository.PredictionRepository, diseases repository.DiseaseRepository,
	broadcaster Broadcaster, logger *logger.Logger) *Service {
	return &Service{
		predictions: predictions,
		diseases:    diseases,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Record persists an analysis result, fills in its id and disease guide
// entry, and announces it on the live feed.
func (s *Service) Record(result *dto.PredictionResult) (int64, error) {
	p := model.Prediction{
		Timestamp:      time.Now().UTC(),
		ModelName:      result.Model,
		PredictedClass: result.PredictedClass,
		Confidence:     result.Confidence,
		FileName:       result.FileName,
		FileSize:       result.FileSize,
		FileType:       result.FileType,
		ImageData:      result.ImageData,
		HeatmapData:    result.HeatmapData,
	}

	id, err := s.predictions.Insert(&p)
	if err != nil {
		return 0, err
	}
	p.ID = id
	result.ID = id

	if s.diseases != nil {
		disease, err := s.diseases.GetByName(result.PredictedClass)
		if err != nil {
			s.logger.Warning("Disease lookup for %s failed: %v", result.PredictedClass, err)
		} else if disease != nil {
			result.Disease = disease
		}
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastEvent(dto.NewPredictionEvent(p))
	}

	s.logger.Info("Stored prediction %d: %s", id, result.Summary())
	return id, nil
}

// List returns one page of prediction summaries, newest first.
func (s *Service) List(page, limit int) (*dto.HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	total, err := s.predictions.Count()
	if err != nil {
		return nil, err
	}
	predictions, err := s.predictions.List(limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}

	return &dto.HistoryPage{
		Predictions: predictions,
		Total:       total,
		TotalPages:  (total + limit - 1) / limit,
		CurrentPage: page,
		Limit:       limit,
	}, nil
}

// Get returns a full prediction or repository.ErrNotFound.
func (s *Service) Get(id int64) (*model.Prediction, error) {
	p, err := s.predictions.GetByID(id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("prediction %d: %w", id, repository.ErrNotFound)
	}
	return p, nil
}

// Delete removes one prediction.
func (s *Service) Delete(id int64) error {
	if err := s.predictions.Delete(id); err != nil {
		return err
	}
	s.logger.Info("Deleted prediction %d", id)
	return nil
}

// Clear removes all predictions.
func (s *Service) Clear() (int64, error) {
	n, err := s.predictions.DeleteAll()
	if err != nil {
		return 0, err
	}
	s.logger.Info("Cleared prediction history (%d records)", n)
	return n, nil
}

// Statistics summarizes the stored predictions.
func (s *Service) Statistics() (*model.PredictionStats, error) {
	return s.predictions.Statistics()
}

// Diseases lists disease guide entries matching name.
func (s *Service) Diseases(name string) ([]model.Disease, error) {
	return s.diseases.List(name)
}

// Export writes the whole history in format to w.
func (s *Service) Export(w io.Writer, format string) error {
	predictions, err := s.predictions.ListAll()
	if err != nil {
		return err
	}
	rows := make([]dto.ExportRow, len(predictions))
	for i, p := range predictions {
		rows[i] = dto.NewExportRow(p)
	}

	switch format {
	case "", FormatCSV:
		if err := gocsv.Marshal(rows, w); err != nil {
			return fmt.Errorf("failed to write csv: %w", err)
		}
		return nil
	case FormatXLSX:
		return writeWorkbook(w, rows)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func writeWorkbook(w io.Writer, rows []dto.ExportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, len(dto.ExportHeader))
	for i, h := range dto.ExportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := row.Values()
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// ContentType returns the MIME type of an export format.
func ContentType(format string) string {
	if format == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// WriteArchive writes a zip holding the original upload, the heatmap
// overlay and the prediction metadata.
func (s *Service) WriteArchive(w io.Writer, p *model.Prediction) error {
	zw := zip.NewWriter(w)
	base := fmt.Sprintf("prediction_%d", p.ID)

	for _, img := range []struct {
		name string
		uri  string
	}{
		{"original", p.ImageData},
		{"heatmap", p.HeatmapData},
	} {
		if img.uri == "" {
			continue
		}
		mediaType, data, err := ai.DecodeDataURI(img.uri)
		if err != nil {
			return fmt.Errorf("failed to decode %s image: %w", img.name, err)
		}
		if err := addFile(zw, base+"_"+img.name+ai.ExtensionFor(mediaType), p.Timestamp, data); err != nil {
			return err
		}
	}

	meta := *p
	meta.ImageData = ""
	meta.HeatmapData = ""
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := addFile(zw, base+".json", p.Timestamp, data); err != nil {
		return err
	}

	return zw.Close()
}

func addFile(zw *zip.Writer, name string, modified time.Time, data []byte) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
