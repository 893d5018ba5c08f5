// Package service orchestrates payroll runs: the calculation pipeline,
// the draft lifecycle and the audit trail around them. Business rules
// live in the domain package; this layer owns transactions, period
// locking and event publication.
package service

import (
	"github.com/malipo/malipo-backend/internal/payroll/events"
	"github.com/malipo/malipo-backend/internal/payroll/repository"
	"github.com/malipo/malipo-backend/pkg/config"
	"github.com/malipo/malipo-backend/pkg/database"
	"github.com/malipo/malipo-backend/pkg/logger"
)

// PayrollService handles payroll run business logic
type PayrollService struct {
	db             *database.DB
	employeeRepo   *repository.EmployeeRepository
	assignmentRepo *repository.AssignmentRepository
	loanRepo       *repository.LoanRepository
	ratesRepo      *repository.RatesRepository
	runRepo        *repository.RunRepository
	auditRepo      *repository.AuditRepository
	publisher      *events.PayrollEventPublisher
	cfg            config.PayrollConfig
	logger         *logger.Logger
}

// NewPayrollService creates a new payroll service
func NewPayrollService(
	db *database.DB,
	employeeRepo *repository.EmployeeRepository,
	assignmentRepo *repository.AssignmentRepository,
	loanRepo *repository.LoanRepository,
	ratesRepo *repository.RatesRepository,
	runRepo *repository.RunRepository,
	auditRepo *repository.AuditRepository,
	publisher *events.PayrollEventPublisher,
	cfg config.PayrollConfig,
	log *logger.Logger,
) *PayrollService {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	return &PayrollService{
		db:             db,
		employeeRepo:   employeeRepo,
		assignmentRepo: assignmentRepo,
		loanRepo:       loanRepo,
		ratesRepo:      ratesRepo,
		runRepo:        runRepo,
		auditRepo:      auditRepo,
		publisher:      publisher,
		cfg:            cfg,
		logger:         log,
	}
}
