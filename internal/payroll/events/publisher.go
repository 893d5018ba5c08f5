package events

import (
	"context"

	"github.com/malipo/malipo-backend/internal/payroll/domain"
	"github.com/malipo/malipo-backend/pkg/logger"
	"github.com/malipo/malipo-backend/pkg/messaging"
)

// PayrollEventPublisher publishes payroll run lifecycle events
type PayrollEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewPayrollEventPublisher creates a new payroll event publisher
func NewPayrollEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*PayrollEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangePayrollEvents, "payroll-service", log)
	if err != nil {
		return nil, err
	}

	return &PayrollEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishRunCalculated publishes a run calculated event
func (p *PayrollEventPublisher) PublishRunCalculated(ctx context.Context, run *domain.PayrollRun) {
	if p == nil {
		return
	}

	data := messaging.PayrollRunCalculatedEvent{
		RunID:         run.ID,
		TenantID:      run.TenantID,
		RunNumber:     run.RunNumber,
		PeriodMonth:   run.PeriodMonth,
		PeriodYear:    run.PeriodYear,
		EmployeeCount: run.EmployeeCount,
		GrossPayCents: run.GrossPayCents,
		NetPayCents:   run.NetPayCents,
	}

	if err := p.publisher.Publish(ctx, messaging.EventPayrollRunCalculated, data); err != nil {
		p.logger.Error().Err(err).Str("run_id", run.ID).Msg("failed to publish run calculated event")
	}
}

// PublishRunCompleted publishes a run completed event
func (p *PayrollEventPublisher) PublishRunCompleted(ctx context.Context, run *domain.PayrollRun) {
	if p == nil {
		return
	}

	completedBy := ""
	if run.CompletedBy != nil {
		completedBy = *run.CompletedBy
	}

	data := messaging.PayrollRunCompletedEvent{
		RunID:                    run.ID,
		TenantID:                 run.TenantID,
		RunNumber:                run.RunNumber,
		PeriodMonth:              run.PeriodMonth,
		PeriodYear:               run.PeriodYear,
		EmployeeCount:            run.EmployeeCount,
		GrossPayCents:            run.GrossPayCents,
		PAYECents:                run.PAYECents,
		StatutoryDeductionsCents: run.StatutoryDeductionsCents,
		NetPayCents:              run.NetPayCents,
		CompletedBy:              completedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventPayrollRunCompleted, data); err != nil {
		p.logger.Error().Err(err).Str("run_id", run.ID).Msg("failed to publish run completed event")
	}
}

// PublishRunCancelled publishes a run cancelled event
func (p *PayrollEventPublisher) PublishRunCancelled(ctx context.Context, run *domain.PayrollRun) {
	if p == nil {
		return
	}

	cancelledBy := ""
	if run.CancelledBy != nil {
		cancelledBy = *run.CancelledBy
	}

	data := messaging.PayrollRunCancelledEvent{
		RunID:       run.ID,
		TenantID:    run.TenantID,
		RunNumber:   run.RunNumber,
		PeriodMonth: run.PeriodMonth,
		PeriodYear:  run.PeriodYear,
		CancelledBy: cancelledBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventPayrollRunCancelled, data); err != nil {
		p.logger.Error().Err(err).Str("run_id", run.ID).Msg("failed to publish run cancelled event")
	}
}
