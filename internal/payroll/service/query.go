package service

import (
	"context"

	"github.com/malipo/malipo-backend/internal/payroll/domain"
	"github.com/malipo/malipo-backend/internal/payroll/repository"
)

// RunWithDetails represents a run with its per-employee details
type RunWithDetails struct {
	*domain.PayrollRun
	Details []domain.PayrollDetail `json:"details"`
}

// GetRun gets a run with its details
func (s *PayrollService) GetRun(ctx context.Context, runID string) (*RunWithDetails, error) {
	run, err := s.runRepo.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	details, err := s.runRepo.ListDetails(ctx, runID)
	if err != nil {
		return nil, err
	}

	return &RunWithDetails{
		PayrollRun: run,
		Details:    details,
	}, nil
}

// ListRuns lists the tenant's runs newest period first
func (s *PayrollService) ListRuns(ctx context.Context, filter repository.ListRunsFilter, page, perPage int) ([]domain.PayrollRun, int64, error) {
	page, perPage = normalizePage(page, perPage)
	return s.runRepo.List(ctx, filter, page, perPage)
}

// ListAudit lists the tenant's payroll audit trail newest first
func (s *PayrollService) ListAudit(ctx context.Context, page, perPage int) ([]*domain.AuditEntry, int64, error) {
	page, perPage = normalizePage(page, perPage)
	return s.auditRepo.List(ctx, page, perPage)
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage
}
