package maintenance

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"leafscan/internal/logger"
	"leafscan/internal/repository"
)

// Report describes one maintenance run.
type Report struct {
	Repaired int
	Expired  int64
}

// Service repairs stored confidences and expires old predictions on a
// cron schedule.
type Service struct {
	predictions repository.PredictionRepository
	retention   time.Duration
	logger      *logger.Logger
	cron        *cron.Cron
	now         func() time.Time
}

// NewService creates a maintenance service. A zero retention keeps every
// prediction.
func NewService(predictions repository.PredictionRepository, retention time.Duration, logger *logger.Logger) *Service {
	return &Service{
		predictions: predictions,
		retention:   retention,
		logger:      logger,
		cron:        cron.New(),
		now:         time.Now,
	}
}

// Schedule registers RunOnce under a standard cron expression or a
// descriptor such as "@daily". An empty schedule disables the job.
func (s *Service) Schedule(spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", spec, err)
	}

	_, err := s.cron.AddFunc(spec, func() {
		if _, err := s.RunOnce(); err != nil {
			s.logger.Error("Maintenance run failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}
	s.logger.Info("Maintenance scheduled: %s", spec)
	return nil
}

// Start runs the scheduler in its own goroutine.
func (s *Service) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce repairs non-numeric confidences and, when a retention is set,
// deletes predictions older than it.
func (s *Service) RunOnce() (Report, error) {
	var report Report

	repaired, err := s.predictions.RepairConfidence()
	if err != nil {
		return report, fmt.Errorf("failed to repair confidences: %w", err)
	}
	report.Repaired = repaired

	if s.retention > 0 {
		expired, err := s.predictions.DeleteOlderThan(s.now().Add(-s.retention))
		if err != nil {
			return report, fmt.Errorf("failed to expire predictions: %w", err)
		}
		report.Expired = expired
	}

	if report.Repaired > 0 || report.Expired > 0 {
		s.logger.Info("Maintenance: repaired %d confidences, expired %d predictions", report.Repaired, report.Expired)
	}
	return report, nil
}
