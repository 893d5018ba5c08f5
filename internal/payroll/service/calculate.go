package service

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/malipo/malipo-backend/internal/payroll/domain"
	"github.com/malipo/malipo-backend/pkg/actor"
	"github.com/malipo/malipo-backend/pkg/database"
	"github.com/malipo/malipo-backend/pkg/errors"
	"github.com/malipo/malipo-backend/pkg/tenant"
)

// CalculateRun computes the draft payroll run for a period. An existing
// draft for the same period is replaced wholesale; a completed run
// blocks recalculation. The whole operation runs in one transaction
// under a per-period advisory lock, so either the full run lands or
// nothing does, and two concurrent calculations of the same period
// cannot interleave.
func (s *PayrollService) CalculateRun(ctx context.Context, period domain.Period) (*domain.PayrollRun, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	act := actor.FromContextOrSystem(ctx)

	// Assignment validity windows are checked against the day the run
	// is calculated. Truncation matters: the windows are DATE columns,
	// so an assignment starting today must already apply.
	asOf := time.Now().UTC().Truncate(24 * time.Hour)

	var (
		run           *domain.PayrollRun
		replacedRunID string
	)

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		locked, err := database.TryAcquirePeriodLock(ctx, tx, tenantID, period.Year, period.Month)
		if err != nil {
			return err
		}
		if !locked {
			return errors.NewWithKey("CONFLICT", "payroll.period_in_progress", http.StatusConflict,
				map[string]string{"period": period.String()}).WithErr(errors.ErrConflict)
		}

		runs := s.runRepo.WithTx(tx)

		existing, err := runs.FindActiveByPeriod(ctx, period)
		if err != nil {
			return err
		}
		if existing != nil {
			if !existing.IsDraft() {
				return errors.NewWithKey("CONFLICT", "payroll.run_already_completed", http.StatusConflict,
					map[string]string{"period": period.String()}).WithErr(errors.ErrConflict)
			}
			if err := runs.DeleteDraft(ctx, existing.ID); err != nil {
				return err
			}
			replacedRunID = existing.ID
		}

		employees, err := s.employeeRepo.WithTx(tx).ListActive(ctx)
		if err != nil {
			return err
		}
		if len(employees) == 0 {
			return errors.NewWithKey("NOT_FOUND", "payroll.no_active_employees", http.StatusNotFound).
				WithErr(errors.ErrNotFound)
		}

		rates, err := s.ratesRepo.WithTx(tx).EffectiveAt(ctx, period.Start())
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				return errors.NewWithKey("VALIDATION_ERROR", "payroll.rates_missing", http.StatusBadRequest,
					map[string]string{"period": period.String()}).WithErr(errors.ErrValidation)
			}
			return err
		}

		assignments := s.assignmentRepo.WithTx(tx)
		allowances, err := assignments.ListApplicableAllowances(ctx, asOf)
		if err != nil {
			return err
		}
		deductions, err := assignments.ListApplicableDeductions(ctx, asOf)
		if err != nil {
			return err
		}

		loans, err := s.loanRepo.WithTx(tx).ListOpen(ctx)
		if err != nil {
			return err
		}

		details, err := s.computeDetails(ctx, employees, allowances, deductions, loans, rates, asOf)
		if err != nil {
			return err
		}

		seq, err := runs.CountForPeriod(ctx, period)
		if err != nil {
			return err
		}

		run = &domain.PayrollRun{
			RunNumber:   domain.FormatRunNumber(period, seq+1),
			PeriodMonth: period.Month,
			PeriodYear:  period.Year,
			CreatedBy:   &act.ID,
		}
		for _, d := range details {
			run.EmployeeCount++
			run.GrossPayCents += d.GrossPayCents
			run.StatutoryDeductionsCents += d.StatutoryTotalCents()
			run.PAYECents += d.PAYECents
			run.NetPayCents += d.NetPayCents
		}

		if err := runs.Insert(ctx, run); err != nil {
			return err
		}
		for _, d := range details {
			d.RunID = run.ID
		}
		if err := runs.InsertDetails(ctx, details); err != nil {
			return err
		}

		action := domain.AuditActionCalculated
		auditDetails := map[string]interface{}{
			"run_number":     run.RunNumber,
			"period":         period.String(),
			"employee_count": run.EmployeeCount,
		}
		if replacedRunID != "" {
			action = domain.AuditActionRecalculated
			auditDetails["replaced_run_id"] = replacedRunID
		}

		return s.auditRepo.WithTx(tx).Create(ctx, &domain.AuditEntry{
			RunID:     run.ID,
			Action:    action,
			ActorID:   act.ID,
			ActorName: act.Email,
			Details:   auditDetails,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithTenantID(tenantID).WithRunID(run.ID).Info().
		Str("run_number", run.RunNumber).
		Str("period", period.String()).
		Int("employee_count", run.EmployeeCount).
		Int64("gross_pay_cents", run.GrossPayCents).
		Int64("net_pay_cents", run.NetPayCents).
		Bool("recalculated", replacedRunID != "").
		Msg("payroll run calculated")

	s.publisher.PublishRunCalculated(ctx, run)

	return run, nil
}

// computeDetails fans the per-employee computation out over a bounded
// worker pool. Resolution and compute are pure, so workers share the
// resolver and rates without locking; the first failure cancels the
// rest. Results keep the employee list's order.
func (s *PayrollService) computeDetails(
	ctx context.Context,
	employees []domain.Employee,
	allowances []domain.AllowanceAssignment,
	deductions []domain.DeductionAssignment,
	loans []domain.LoanLedgerEntry,
	rates *domain.StatutoryRates,
	asOf time.Time,
) ([]*domain.PayrollDetail, error) {
	resolver := domain.NewVariablePayResolver(allowances, deductions, asOf)

	loansByEmployee := make(map[string][]domain.LoanLedgerEntry)
	for _, l := range loans {
		loansByEmployee[l.EmployeeID] = append(loansByEmployee[l.EmployeeID], l)
	}

	details := make([]*domain.PayrollDetail, len(employees))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range employees {
		i := i
		emp := &employees[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			allowanceLines, err := resolver.ResolveAllowances(emp)
			if err != nil {
				return err
			}
			deductionLines, err := resolver.ResolveDeductions(emp)
			if err != nil {
				return err
			}

			detail, err := domain.ComputeDetail(domain.ComputeInput{
				Employee:       emp,
				AllowanceLines: allowanceLines,
				DeductionLines: deductionLines,
				LoanDueCents:   domain.LoanDeductionDue(loansByEmployee[emp.ID]),
				Rates:          rates,
			})
			if err != nil {
				return err
			}

			details[i] = detail
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return details, nil
}
