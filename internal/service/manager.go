package service

import (
	"context"

	"leafscan/internal/dto"
	"leafscan/internal/logger"
	"leafscan/internal/service/ai"
	"leafscan/internal/service/history"
	"leafscan/internal/service/maintenance"
	"leafscan/internal/service/websocket"
)

// Analyzer classifies an upload and renders its heatmap.
type Analyzer interface {
	Analyze(ctx context.Context, id string, up ai.Upload, target int) (*dto.PredictionResult, error)
}

// ModelRegistry lists models and manages the loaded-model cache.
type ModelRegistry interface {
	Catalog() *ai.Catalog
	Info(id string) (dto.ModelInfo, error)
	Purge() int
}

// Manager bundles the services the HTTP layer works with.
type Manager struct {
	analyzer         Analyzer
	models           ModelRegistry
	historyService   *history.Service
	websocketService *websocket.HubService
	maintenance      *maintenance.Service
	logger           *logger.Logger
}

func NewManager(analyzer Analyzer, models ModelRegistry, historyService *history.Service,
	websocketService *websocket.HubService, maintenanceService *maintenance.Service, logger *logger.Logger) *Manager {
	return &Manager{
		analyzer:         analyzer,
		models:           models,
		historyService:   historyService,
		websocketService: websocketService,
		maintenance:      maintenanceService,
		logger:           logger,
	}
}

// AnalyzeAndRecord runs the pipeline and stores the result. Nothing is
// stored when analysis fails.
func (m *Manager) AnalyzeAndRecord(ctx context.Context, id string, up ai.Upload, target int) (*dto.PredictionResult, error) {
	result, err := m.analyzer.Analyze(ctx, id, up, target)
	if err != nil {
		return nil, err
	}
	if _, err := m.historyService.Record(result); err != nil {
		return nil, err
	}
	return result, nil
}

func (m *Manager) GetModels() ModelRegistry {
	return m.models
}

func (m *Manager) GetHistoryService() *history.Service {
	return m.historyService
}

func (m *Manager) GetWebsocketService() *websocket.HubService {
	return m.websocketService
}

func (m *Manager) GetMaintenanceService() *maintenance.Service {
	return m.maintenance
}
