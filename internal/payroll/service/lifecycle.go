package service

import (
	"context"
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/malipo/malipo-backend/internal/payroll/domain"
	"github.com/malipo/malipo-backend/internal/payroll/repository"
	"github.com/malipo/malipo-backend/pkg/actor"
	"github.com/malipo/malipo-backend/pkg/database"
	"github.com/malipo/malipo-backend/pkg/errors"
)

// CompleteRun finalizes a draft run: the status flips to completed,
// withheld loan instalments are applied to the ledger and one-time
// deductions are consumed, all in one transaction. Completing a run
// that is not a draft fails with a conflict and changes nothing.
func (s *PayrollService) CompleteRun(ctx context.Context, runID string) (*domain.PayrollRun, error) {
	act := actor.FromContextOrSystem(ctx)

	var run *domain.PayrollRun

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		runs := s.runRepo.WithTx(tx)

		// Peek for the period so the advisory lock can be taken up
		// front; period columns never change after insert. The lock
		// serializes completion against calculate and cancel.
		peek, err := runs.GetByID(ctx, runID)
		if err != nil {
			return err
		}
		if err := database.AcquirePeriodLock(ctx, tx, peek.TenantID, peek.PeriodYear, peek.PeriodMonth); err != nil {
			return err
		}

		affected, err := runs.MarkCompleted(ctx, runID, act.ID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return s.transitionConflict(ctx, runs, runID)
		}

		if err := s.applyLoanDeductions(ctx, tx, runID); err != nil {
			return err
		}

		// Finalization consumes one-time deductions: every matching
		// assignment for the tenant is switched off so the next run
		// no longer picks them up.
		if _, err := s.assignmentRepo.WithTx(tx).DeactivateOneTimeDeductions(ctx); err != nil {
			return err
		}

		run, err = runs.GetByID(ctx, runID)
		if err != nil {
			return err
		}

		return s.auditRepo.WithTx(tx).Create(ctx, &domain.AuditEntry{
			RunID:     run.ID,
			Action:    domain.AuditActionCompleted,
			ActorID:   act.ID,
			ActorName: act.Email,
			Details: map[string]interface{}{
				"run_number":    run.RunNumber,
				"period":        run.Period().String(),
				"net_pay_cents": run.NetPayCents,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithTenantID(run.TenantID).WithRunID(run.ID).Info().
		Str("run_number", run.RunNumber).
		Int64("net_pay_cents", run.NetPayCents).
		Msg("payroll run completed")

	s.publisher.PublishRunCompleted(ctx, run)

	return run, nil
}

// CancelRun abandons a draft run. Details stay on record under the
// cancelled run but no ledger is touched, and the period becomes free
// for a fresh calculation. Cancelling a non-draft run fails with a
// conflict.
func (s *PayrollService) CancelRun(ctx context.Context, runID string) (*domain.PayrollRun, error) {
	act := actor.FromContextOrSystem(ctx)

	var run *domain.PayrollRun

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		runs := s.runRepo.WithTx(tx)

		peek, err := runs.GetByID(ctx, runID)
		if err != nil {
			return err
		}
		if err := database.AcquirePeriodLock(ctx, tx, peek.TenantID, peek.PeriodYear, peek.PeriodMonth); err != nil {
			return err
		}

		affected, err := runs.MarkCancelled(ctx, runID, act.ID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return s.transitionConflict(ctx, runs, runID)
		}

		run, err = runs.GetByID(ctx, runID)
		if err != nil {
			return err
		}

		return s.auditRepo.WithTx(tx).Create(ctx, &domain.AuditEntry{
			RunID:     run.ID,
			Action:    domain.AuditActionCancelled,
			ActorID:   act.ID,
			ActorName: act.Email,
			Details: map[string]interface{}{
				"run_number": run.RunNumber,
				"period":     run.Period().String(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithTenantID(run.TenantID).WithRunID(run.ID).Info().
		Str("run_number", run.RunNumber).
		Msg("payroll run cancelled")

	s.publisher.PublishRunCancelled(ctx, run)

	return run, nil
}

// applyLoanDeductions pushes the run's withheld instalments to the loan
// ledger. Each detail is stamped before its balance moves and the stamp
// is checked again on retries, so an instalment is never applied twice.
func (s *PayrollService) applyLoanDeductions(ctx context.Context, tx *sqlx.Tx, runID string) error {
	runs := s.runRepo.WithTx(tx)
	loans := s.loanRepo.WithTx(tx)

	details, err := runs.ListUnappliedLoanDetails(ctx, runID)
	if err != nil {
		return err
	}

	for i := range details {
		d := &details[i]

		stamped, err := runs.StampLoanApplied(ctx, d.ID)
		if err != nil {
			return err
		}
		if !stamped {
			continue
		}

		applied, err := loans.ApplyDeduction(ctx, d.EmployeeID, d.LoanDeductionCents)
		if err != nil {
			return err
		}
		if !applied {
			s.logger.WithRunID(runID).Warn().
				Str("employee_id", d.EmployeeID).
				Int64("amount_cents", d.LoanDeductionCents).
				Msg("loan deduction withheld but no ledger entry to apply it to")
		}
	}

	return nil
}

// transitionConflict reports why a draft-only transition matched no
// rows: the run vanished, was already completed, or already cancelled.
func (s *PayrollService) transitionConflict(ctx context.Context, runs *repository.RunRepository, runID string) error {
	run, err := runs.GetByID(ctx, runID)
	if err != nil {
		return err
	}

	if run.Status == domain.RunStatusCompleted {
		return errors.NewWithKey("CONFLICT", "payroll.run_already_completed", http.StatusConflict,
			map[string]string{"period": run.Period().String()}).WithErr(errors.ErrConflict)
	}
	return errors.NewWithKey("CONFLICT", "payroll.run_not_draft", http.StatusConflict).
		WithErr(errors.ErrConflict)
}
