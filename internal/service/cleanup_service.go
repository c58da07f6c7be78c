package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CleanupReport итог очистки просроченных документов
type CleanupReport struct {
	Cutoff  time.Time   `json:"cutoff"`
	DryRun  bool        `json:"dry_run"`
	Found   []uuid.UUID `json:"found"`
	Deleted int64       `json:"deleted"`
}

// CleanupService мягко удаляет документы, срок действия которых истек давно
type CleanupService struct {
	docs   DocumentStore
	logger *zap.Logger
	now    func() time.Time
}

func NewCleanupService(docs DocumentStore, logger *zap.Logger) *CleanupService {
	return &CleanupService{
		docs:   docs,
		logger: logger.With(zap.String("service", "cleanup_service")),
		now:    time.Now,
	}
}

// Run удаляет документы с датой истечения раньше чем days дней назад
func (s *CleanupService) Run(ctx context.Context, days int, dryRun bool) (*CleanupReport, error) {
	if days < 0 {
		days = 0
	}
	today := s.now().UTC()
	cutoff := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -days)

	expired, err := s.docs.ListExpired(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	report := &CleanupReport{Cutoff: cutoff, DryRun: dryRun, Found: make([]uuid.UUID, 0, len(expired))}
	for _, d := range expired {
		report.Found = append(report.Found, d.ID)
	}
	if dryRun || len(expired) == 0 {
		s.logger.Info("expired documents found",
			zap.Int("count", len(expired)), zap.Time("cutoff", cutoff), zap.Bool("dry_run", dryRun))
		return report, nil
	}

	report.Deleted, err = s.docs.SoftDeleteExpired(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	s.logger.Info("expired documents soft-deleted",
		zap.Int64("deleted", report.Deleted), zap.Time("cutoff", cutoff))
	return report, nil
}

// StartTicker периодически запускает очистку до отмены контекста
func (s *CleanupService) StartTicker(ctx context.Context, interval time.Duration, days int) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Run(ctx, days, false); err != nil {
					s.logger.Error("cleanup failed", zap.Error(err))
				}
			}
		}
	}()
}
