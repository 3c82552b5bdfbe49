package history

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"leafscan/internal/dto"
	"leafscan/internal/logger"
	"leafscan/internal/repository"
	"leafscan/internal/repository/sqlite"
	"leafscan/internal/service/ai"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []dto.PredictionEvent
}

func (b *recordingBroadcaster) BroadcastEvent(event dto.PredictionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func setupService(t *testing.T) (*Service, *recordingBroadcaster) {
	t.Helper()

	db, err := sqlite.New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	b := &recordingBroadcaster{}
	svc := NewService(sqlite.NewPredictionRepository(db), sqlite.NewDiseaseRepository(db), b, logger.Discard())
	return svc, b
}

func sampleResult(class string, confidence float64) *dto.PredictionResult {
	return &dto.PredictionResult{
		Model:          "Apple",
		PredictedClass: class,
		Confidence:     confidence,
		ImageData:      ai.DataURI("image/jpeg", []byte{0xff, 0xd8, 0xff, 0xe0}),
		HeatmapData:    ai.DataURI("image/png", []byte("\x89PNG\r\n\x1a\n")),
		FileName:       "leaf.jpg",
		FileSize:       4,
		FileType:       "image/jpeg",
	}
}

func TestRecord_StoresBroadcastsAndAttachesDisease(t *testing.T) {
	svc, b := setupService(t)

	result := sampleResult("Apple - Scab", 91.5)
	id, err := svc.Record(result)
	require.NoError(t, err)
	require.Equal(t, id, result.ID)
	require.NotNil(t, result.Disease)

	stored, err := svc.Get(id)
	require.NoError(t, err)
	require.Equal(t, "Apple - Scab", stored.PredictedClass)
	require.Equal(t, result.ImageData, stored.ImageData)

	require.Len(t, b.events, 1)
	require.Equal(t, dto.EventPrediction, b.events[0].Type)
	require.Equal(t, id, b.events[0].Prediction.ID)
	require.Empty(t, b.events[0].Prediction.ImageData)

	healthy := sampleResult("Apple - Healthy", 80)
	_, err = svc.Record(healthy)
	require.NoError(t, err)
	require.Nil(t, healthy.Disease)
}

func TestList_Pagination(t *testing.T) {
	svc, _ := setupService(t)

	for i := 0; i < 5; i++ {
		_, err := svc.Record(sampleResult("Apple - Blotch", 70))
		require.NoError(t, err)
	}

	page, err := svc.List(2, 2)
	require.NoError(t, err)
	require.Equal(t, 5, page.Total)
	require.Equal(t, 3, page.TotalPages)
	require.Equal(t, 2, page.CurrentPage)
	require.Len(t, page.Predictions, 2)

	page, err = svc.List(0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, page.CurrentPage)
	require.Equal(t, DefaultPageSize, page.Limit)
	require.Len(t, page.Predictions, 5)

	page, err = svc.List(1, 1000)
	require.NoError(t, err)
	require.Equal(t, MaxPageSize, page.Limit)
}

func TestGetDeleteClear(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.Get(42)
	require.True(t, errors.Is(err, repository.ErrNotFound))

	id, err := svc.Record(sampleResult("Citrus - Canker", 60))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(id))
	require.True(t, errors.Is(svc.Delete(id), repository.ErrNotFound))

	for i := 0; i < 3; i++ {
		_, err := svc.Record(sampleResult("Citrus - Canker", 60))
		require.NoError(t, err)
	}
	n, err := svc.Clear()
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	stats, err := svc.Statistics()
	require.NoError(t, err)
	require.Zero(t, stats.TotalPredictions)
}

func TestDiseases_Filter(t *testing.T) {
	svc, _ := setupService(t)

	diseases, err := svc.Diseases("citrus")
	require.NoError(t, err)
	require.Len(t, diseases, 2)
}

func TestExport_CSV(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.Record(sampleResult("Apple - Rotten", 88.25))
	require.NoError(t, err)
	_, err = svc.Record(sampleResult("Apple - Scab", 55))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.Export(&buf, FormatCSV))

	var rows []dto.ExportRow
	require.NoError(t, gocsv.UnmarshalBytes(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	require.Equal(t, "Apple - Scab", rows[0].PredictedClass)
	require.InDelta(t, 88.25, rows[1].Confidence, 1e-9)
	require.NotContains(t, buf.String(), "base64")
}

func TestExport_XLSX(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.Record(sampleResult("Olive - Anthracnose", 77))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.Export(&buf, FormatXLSX))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, dto.ExportHeader, rows[0])
	require.Equal(t, "Olive - Anthracnose", rows[1][3])
}

func TestExport_UnknownFormat(t *testing.T) {
	svc, _ := setupService(t)

	err := svc.Export(io.Discard, "pdf")
	require.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestWriteArchive(t *testing.T) {
	svc, _ := setupService(t)

	id, err := svc.Record(sampleResult("Apple - Scab", 91.5))
	require.NoError(t, err)
	p, err := svc.Get(id)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.WriteArchive(&buf, p))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	files := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		files[f.Name] = data
	}

	base := "prediction_" + strconv.FormatInt(id, 10)
	require.Equal(t, []byte{0xff, 0xd8, 0xff, 0xe0}, files[base+"_original.jpg"])
	require.Equal(t, []byte("\x89PNG\r\n\x1a\n"), files[base+"_heatmap.png"])
	require.Contains(t, string(files[base+".json"]), `"predicted_class": "Apple - Scab"`)
	require.NotContains(t, string(files[base+".json"]), "base64")
}

func TestWriteArchive_BadImage(t *testing.T) {
	svc, _ := setupService(t)

	p, err := svc.Get(mustRecord(t, svc))
	require.NoError(t, err)
	p.HeatmapData = "not a data uri"

	require.Error(t, svc.WriteArchive(io.Discard, p))
}

func mustRecord(t *testing.T, svc *Service) int64 {
	t.Helper()
	id, err := svc.Record(sampleResult("Apple - Blotch", 50))
	require.NoError(t, err)
	return id
}
