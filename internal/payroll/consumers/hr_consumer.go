package consumers

import (
	"context"
	"fmt"
	"time"

	"github.com/malipo/malipo-backend/internal/payroll/domain"
	"github.com/malipo/malipo-backend/internal/payroll/repository"
	"github.com/malipo/malipo-backend/pkg/errors"
	"github.com/malipo/malipo-backend/pkg/logger"
	"github.com/malipo/malipo-backend/pkg/messaging"
	"github.com/malipo/malipo-backend/pkg/tenant"
)

// HREventHandler mirrors HR events into the payroll read model
// (testable without RabbitMQ). All handlers are idempotent upserts
// keyed by the HR-side IDs, so redelivered events converge on the
// same state.
type HREventHandler struct {
	employeeRepo   *repository.EmployeeRepository
	assignmentRepo *repository.AssignmentRepository
	loanRepo       *repository.LoanRepository
	logger         *logger.Logger
}

// NewHREventHandler creates a new handler for testing purposes
func NewHREventHandler(
	employeeRepo *repository.EmployeeRepository,
	assignmentRepo *repository.AssignmentRepository,
	loanRepo *repository.LoanRepository,
	log *logger.Logger,
) *HREventHandler {
	return &HREventHandler{
		employeeRepo:   employeeRepo,
		assignmentRepo: assignmentRepo,
		loanRepo:       loanRepo,
		logger:         log,
	}
}

// HandleEvent processes a single HR event
func (h *HREventHandler) HandleEvent(ctx context.Context, event *messaging.Event) error {
	switch event.Type {
	case messaging.EventHREmployeeUpserted:
		return h.handleEmployeeUpserted(ctx, event)
	case messaging.EventHREmployeeDeactivated:
		return h.handleEmployeeDeactivated(ctx, event)
	case messaging.EventHRAllowanceUpserted:
		return h.handleAllowanceUpserted(ctx, event)
	case messaging.EventHRAllowanceRevoked:
		return h.handleAllowanceRevoked(ctx, event)
	case messaging.EventHRDeductionUpserted:
		return h.handleDeductionUpserted(ctx, event)
	case messaging.EventHRDeductionRevoked:
		return h.handleDeductionRevoked(ctx, event)
	case messaging.EventHRLoanScheduled:
		return h.handleLoanScheduled(ctx, event)
	default:
		h.logger.Warn().Str("event_type", event.Type).Msg("unknown event type received")
		return nil
	}
}

// HREventConsumer consumes HR events from the message broker
type HREventConsumer struct {
	consumer *messaging.Consumer
	handler  *HREventHandler
	logger   *logger.Logger
}

// NewHREventConsumer creates a new HR event consumer
func NewHREventConsumer(
	rmq *messaging.RabbitMQ,
	employeeRepo *repository.EmployeeRepository,
	assignmentRepo *repository.AssignmentRepository,
	loanRepo *repository.LoanRepository,
	log *logger.Logger,
) (*HREventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "payroll-service.hr-events", log)
	if err != nil {
		return nil, err
	}

	// Subscribe to HR events with pattern hr.#
	if err := consumer.Subscribe(messaging.ExchangeHREvents, "hr.#"); err != nil {
		return nil, err
	}

	handler := NewHREventHandler(employeeRepo, assignmentRepo, loanRepo, log)

	c := &HREventConsumer{
		consumer: consumer,
		handler:  handler,
		logger:   log,
	}

	// Register handlers
	consumer.RegisterHandler(messaging.EventHREmployeeUpserted, handler.handleEmployeeUpserted)
	consumer.RegisterHandler(messaging.EventHREmployeeDeactivated, handler.handleEmployeeDeactivated)
	consumer.RegisterHandler(messaging.EventHRAllowanceUpserted, handler.handleAllowanceUpserted)
	consumer.RegisterHandler(messaging.EventHRAllowanceRevoked, handler.handleAllowanceRevoked)
	consumer.RegisterHandler(messaging.EventHRDeductionUpserted, handler.handleDeductionUpserted)
	consumer.RegisterHandler(messaging.EventHRDeductionRevoked, handler.handleDeductionRevoked)
	consumer.RegisterHandler(messaging.EventHRLoanScheduled, handler.handleLoanScheduled)

	return c, nil
}

// Start starts consuming messages
func (c *HREventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (h *HREventHandler) handleEmployeeUpserted(ctx context.Context, event *messaging.Event) error {
	var data messaging.HREmployeeUpsertedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	if data.TenantID == "" {
		return errors.BadRequest("employee.upserted event missing tenant_id")
	}

	h.logger.Info().
		Str("employee_id", data.EmployeeID).
		Str("employee_number", data.EmployeeNumber).
		Msg("received employee upserted event")

	// Create tenant context from event data
	ctx = tenant.WithTenantID(ctx, data.TenantID)

	emp := &domain.Employee{
		ID:                data.EmployeeID,
		TenantID:          data.TenantID,
		EmployeeNumber:    data.EmployeeNumber,
		FirstName:         data.FirstName,
		LastName:          data.LastName,
		Email:             data.Email,
		DepartmentID:      data.DepartmentID,
		BaseSalaryCents:   data.BaseSalaryCents,
		Status:            data.Status,
		PaymentMethod:     data.PaymentMethod,
		BankName:          data.BankName,
		BankAccountNumber: data.BankAccountNumber,
		MobileMoneyNumber: data.MobileMoneyNumber,
		PaysPAYE:          data.PaysPAYE,
		PaysNSSF:          data.PaysNSSF,
		PaysSHIF:          data.PaysSHIF,
		PaysHousingLevy:   data.PaysHousingLevy,
		PaysLoanDeduction: data.PaysLoanDeduction,
	}
	if emp.Status == "" {
		emp.Status = domain.EmployeeStatusActive
	}

	return h.employeeRepo.Upsert(ctx, emp)
}

func (h *HREventHandler) handleEmployeeDeactivated(ctx context.Context, event *messaging.Event) error {
	var data messaging.HREmployeeDeactivatedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	h.logger.Info().
		Str("employee_id", data.EmployeeID).
		Msg("received employee deactivated event")

	ctx = tenant.WithTenantID(ctx, data.TenantID)

	if err := h.employeeRepo.Deactivate(ctx, data.EmployeeID); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			// Employee never reached this service; nothing to deactivate
			h.logger.Warn().Str("employee_id", data.EmployeeID).Msg("deactivation for unknown employee, ignoring")
			return nil
		}
		return err
	}

	return nil
}

func (h *HREventHandler) handleAllowanceUpserted(ctx context.Context, event *messaging.Event) error {
	var data messaging.HRAllowanceUpsertedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	h.logger.Info().
		Str("assignment_id", data.AssignmentID).
		Str("name", data.Name).
		Msg("received allowance upserted event")

	ctx = tenant.WithTenantID(ctx, data.TenantID)

	from, to, err := resolveWindow(data.Window)
	if err != nil {
		return fmt.Errorf("allowance %s: %w", data.AssignmentID, err)
	}

	return h.assignmentRepo.UpsertAllowance(ctx, &domain.AllowanceAssignment{
		ID:            data.AssignmentID,
		TenantID:      data.TenantID,
		Name:          data.Name,
		EmployeeID:    data.EmployeeID,
		DepartmentID:  data.DepartmentID,
		CalcMode:      data.CalcMode,
		AmountCents:   data.AmountCents,
		RateBp:        data.RateBp,
		IsCash:        data.IsCash,
		IsActive:      data.IsActive,
		EffectiveFrom: from,
		EffectiveTo:   to,
	})
}

func (h *HREventHandler) handleAllowanceRevoked(ctx context.Context, event *messaging.Event) error {
	var data messaging.HRAllowanceRevokedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	h.logger.Info().
		Str("assignment_id", data.AssignmentID).
		Msg("received allowance revoked event")

	ctx = tenant.WithTenantID(ctx, data.TenantID)

	if err := h.assignmentRepo.RevokeAllowance(ctx, data.AssignmentID); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil
		}
		return err
	}

	return nil
}

func (h *HREventHandler) handleDeductionUpserted(ctx context.Context, event *messaging.Event) error {
	var data messaging.HRDeductionUpsertedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	h.logger.Info().
		Str("assignment_id", data.AssignmentID).
		Str("name", data.Name).
		Msg("received deduction upserted event")

	ctx = tenant.WithTenantID(ctx, data.TenantID)

	from, to, err := resolveWindow(data.Window)
	if err != nil {
		return fmt.Errorf("deduction %s: %w", data.AssignmentID, err)
	}

	return h.assignmentRepo.UpsertDeduction(ctx, &domain.DeductionAssignment{
		ID:            data.AssignmentID,
		TenantID:      data.TenantID,
		Name:          data.Name,
		EmployeeID:    data.EmployeeID,
		DepartmentID:  data.DepartmentID,
		CalcMode:      data.CalcMode,
		AmountCents:   data.AmountCents,
		RateBp:        data.RateBp,
		IsOneTime:     data.IsOneTime,
		IsActive:      data.IsActive,
		EffectiveFrom: from,
		EffectiveTo:   to,
	})
}

func (h *HREventHandler) handleDeductionRevoked(ctx context.Context, event *messaging.Event) error {
	var data messaging.HRDeductionRevokedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	h.logger.Info().
		Str("assignment_id", data.AssignmentID).
		Msg("received deduction revoked event")

	ctx = tenant.WithTenantID(ctx, data.TenantID)

	if err := h.assignmentRepo.RevokeDeduction(ctx, data.AssignmentID); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil
		}
		return err
	}

	return nil
}

func (h *HREventHandler) handleLoanScheduled(ctx context.Context, event *messaging.Event) error {
	var data messaging.HRLoanScheduledEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	h.logger.Info().
		Str("loan_id", data.LoanID).
		Str("employee_id", data.EmployeeID).
		Int64("balance_cents", data.BalanceCents).
		Msg("received loan scheduled event")

	ctx = tenant.WithTenantID(ctx, data.TenantID)

	return h.loanRepo.Upsert(ctx, &domain.LoanLedgerEntry{
		ID:                    data.LoanID,
		TenantID:              data.TenantID,
		EmployeeID:            data.EmployeeID,
		Name:                  data.Name,
		PrincipalCents:        data.PrincipalCents,
		BalanceCents:          data.BalanceCents,
		MonthlyDeductionCents: data.MonthlyDeductionCents,
		IsActive:              data.IsActive,
	})
}

// resolveWindow turns an HR validity window into explicit dates. HR
// sends either dates or a single (month, year) pay period; the period
// form maps to the month's first and last day.
func resolveWindow(w messaging.HRAssignmentWindow) (time.Time, *time.Time, error) {
	if w.EffectiveFrom != nil {
		return *w.EffectiveFrom, w.EffectiveTo, nil
	}

	if w.PeriodMonth != 0 || w.PeriodYear != 0 {
		p := domain.Period{Month: w.PeriodMonth, Year: w.PeriodYear}
		if err := p.Validate(); err != nil {
			return time.Time{}, nil, err
		}
		end := p.End()
		return p.Start(), &end, nil
	}

	return time.Time{}, nil, errors.BadRequest("window has neither dates nor pay period")
}
