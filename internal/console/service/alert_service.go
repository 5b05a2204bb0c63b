package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/yardwatch/internal/domain"
)

type AlertReader interface {
	ListAlerts(ctx context.Context, f domain.AlertFilter) ([]domain.AlertRecord, error)
}

type AlertService struct {
	repo AlertReader
}

func NewAlertService(repo AlertReader) *AlertService {
	return &AlertService{repo: repo}
}

func (s *AlertService) List(ctx context.Context, f domain.AlertFilter) ([]domain.AlertRecord, error) {
	records, err := s.repo.ListAlerts(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("alert_service: failed to fetch alerts: %w", err)
	}
	if records == nil {
		records = []domain.AlertRecord{}
	}
	return records, nil
}
