package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/malipo/malipo-backend/internal/payroll/domain"
	"github.com/malipo/malipo-backend/pkg/database"
	"github.com/malipo/malipo-backend/pkg/errors"
	"github.com/malipo/malipo-backend/pkg/tenant"
)

const runColumns = `id, tenant_id, run_number, period_month, period_year, status,
       employee_count, gross_pay_cents, statutory_deductions_cents, paye_cents, net_pay_cents,
       created_by, completed_by, completed_at, cancelled_by, cancelled_at,
       created_at, updated_at`

const detailColumns = `id, tenant_id, run_id, employee_id, employee_number, employee_name,
       base_salary_cents, cash_allowances_cents, noncash_benefits_cents, gross_pay_cents,
       taxable_income_cents, paye_cents,
       nssf_tier1_cents, nssf_tier2_cents, nssf_cents, shif_cents, housing_levy_cents,
       loan_deduction_cents, custom_deductions_cents, total_deductions_cents, net_pay_cents,
       payment_method, payment_ref, allowance_lines, deduction_lines, loan_applied_at,
       created_at`

// RunRepository persists payroll runs and their per-employee details.
type RunRepository struct {
	db *database.DB
	q  database.Queryer
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *database.DB) *RunRepository {
	return &RunRepository{db: db, q: db.DB}
}

// WithTx returns a copy of the repository bound to the transaction.
func (r *RunRepository) WithTx(tx *sqlx.Tx) *RunRepository {
	return &RunRepository{db: r.db, q: tx}
}

// FindActiveByPeriod returns the tenant's non-cancelled run for the
// period, or nil when the period has never been calculated. Cancelled
// runs do not block a fresh calculation.
func (r *RunRepository) FindActiveByPeriod(ctx context.Context, p domain.Period) (*domain.PayrollRun, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + runColumns + `
		FROM payroll_runs
		WHERE tenant_id = $1 AND period_year = $2 AND period_month = $3
		  AND status <> $4
	`

	var run domain.PayrollRun
	err = r.q.GetContext(ctx, &run, query, tenantID, p.Year, p.Month, domain.RunStatusCancelled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return &run, nil
}

// CountForPeriod counts every run ever created for the period,
// cancelled included. Feeds the run number sequence.
func (r *RunRepository) CountForPeriod(ctx context.Context, p domain.Period) (int, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return 0, err
	}

	var count int
	err = r.q.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM payroll_runs
		WHERE tenant_id = $1 AND period_year = $2 AND period_month = $3
	`, tenantID, p.Year, p.Month)
	if err != nil {
		return 0, mapErr(err)
	}
	return count, nil
}

// DeleteDraft removes a draft run; details cascade. Recompute replaces
// the draft wholesale instead of patching it.
func (r *RunRepository) DeleteDraft(ctx context.Context, runID string) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	result, err := r.q.ExecContext(ctx, `
		DELETE FROM payroll_runs
		WHERE tenant_id = $1 AND id = $2 AND status = $3
	`, tenantID, runID, domain.RunStatusDraft)
	if err != nil {
		return mapErr(err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("payroll run")
	}
	return nil
}

// Insert creates a new run row.
func (r *RunRepository) Insert(ctx context.Context, run *domain.PayrollRun) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}
	run.TenantID = tenantID

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = domain.RunStatusDraft
	}

	query := `
		INSERT INTO payroll_runs (
			id, tenant_id, run_number, period_month, period_year, status,
			employee_count, gross_pay_cents, statutory_deductions_cents, paye_cents, net_pay_cents,
			created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	err = r.q.QueryRowxContext(ctx, query,
		run.ID, run.TenantID, run.RunNumber, run.PeriodMonth, run.PeriodYear, run.Status,
		run.EmployeeCount, run.GrossPayCents, run.StatutoryDeductionsCents, run.PAYECents, run.NetPayCents,
		run.CreatedBy,
	).Scan(&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	return nil
}

// InsertDetails writes the per-employee details of a run. Called
// inside the calculation transaction so the batch lands atomically.
func (r *RunRepository) InsertDetails(ctx context.Context, details []*domain.PayrollDetail) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payroll_details (
			id, tenant_id, run_id, employee_id, employee_number, employee_name,
			base_salary_cents, cash_allowances_cents, noncash_benefits_cents, gross_pay_cents,
			taxable_income_cents, paye_cents,
			nssf_tier1_cents, nssf_tier2_cents, nssf_cents, shif_cents, housing_levy_cents,
			loan_deduction_cents, custom_deductions_cents, total_deductions_cents, net_pay_cents,
			payment_method, payment_ref, allowance_lines, deduction_lines
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25
		) RETURNING created_at
	`

	for _, d := range details {
		d.TenantID = tenantID
		if d.ID == "" {
			d.ID = uuid.New().String()
		}

		err := r.q.QueryRowxContext(ctx, query,
			d.ID, d.TenantID, d.RunID, d.EmployeeID, d.EmployeeNumber, d.EmployeeName,
			d.BaseSalaryCents, d.CashAllowancesCents, d.NonCashBenefitsCents, d.GrossPayCents,
			d.TaxableIncomeCents, d.PAYECents,
			d.NSSFTier1Cents, d.NSSFTier2Cents, d.NSSFCents, d.SHIFCents, d.HousingLevyCents,
			d.LoanDeductionCents, d.CustomDeductionsCents, d.TotalDeductionsCents, d.NetPayCents,
			d.PaymentMethod, d.PaymentRef, d.AllowanceLines, d.DeductionLines,
		).Scan(&d.CreatedAt)
		if err != nil {
			return mapErr(err)
		}
	}
	return nil
}

// GetByID gets a run by ID within the tenant.
func (r *RunRepository) GetByID(ctx context.Context, runID string) (*domain.PayrollRun, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + runColumns + `
		FROM payroll_runs
		WHERE tenant_id = $1 AND id = $2
	`

	var run domain.PayrollRun
	err = r.q.GetContext(ctx, &run, query, tenantID, runID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("payroll run")
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return &run, nil
}

// ListDetails returns a run's details ordered by employee name.
func (r *RunRepository) ListDetails(ctx context.Context, runID string) ([]domain.PayrollDetail, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + detailColumns + `
		FROM payroll_details
		WHERE tenant_id = $1 AND run_id = $2
		ORDER BY employee_name, employee_number
	`

	var details []domain.PayrollDetail
	if err := r.q.SelectContext(ctx, &details, query, tenantID, runID); err != nil {
		return nil, mapErr(err)
	}
	return details, nil
}

// ListRunsFilter narrows the run listing.
type ListRunsFilter struct {
	Year   int
	Status string
}

// List returns the tenant's runs newest period first.
func (r *RunRepository) List(ctx context.Context, filter ListRunsFilter, page, perPage int) ([]domain.PayrollRun, int64, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, 0, err
	}

	where := `WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if filter.Year != 0 {
		args = append(args, filter.Year)
		where += fmt.Sprintf(` AND period_year = $%d`, len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}

	var total int64
	if err := r.q.GetContext(ctx, &total, `SELECT COUNT(*) FROM payroll_runs `+where, args...); err != nil {
		return nil, 0, mapErr(err)
	}

	args = append(args, perPage, (page-1)*perPage)
	query := fmt.Sprintf(`
		SELECT %s
		FROM payroll_runs
		%s
		ORDER BY period_year DESC, period_month DESC, created_at DESC
		LIMIT $%d OFFSET $%d
	`, runColumns, where, len(args)-1, len(args))

	var runs []domain.PayrollRun
	if err := r.q.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, 0, mapErr(err)
	}
	return runs, total, nil
}

// MarkCompleted flips a draft run to completed, stamping the actor.
// Returns the number of rows updated: zero means the run is missing or
// not a draft, and the caller decides which.
func (r *RunRepository) MarkCompleted(ctx context.Context, runID, actorID string) (int64, error) {
	return r.transition(ctx, runID, actorID, domain.RunStatusCompleted)
}

// MarkCancelled flips a draft run to cancelled, stamping the actor.
func (r *RunRepository) MarkCancelled(ctx context.Context, runID, actorID string) (int64, error) {
	return r.transition(ctx, runID, actorID, domain.RunStatusCancelled)
}

func (r *RunRepository) transition(ctx context.Context, runID, actorID, to string) (int64, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return 0, err
	}

	var query string
	switch to {
	case domain.RunStatusCompleted:
		query = `
			UPDATE payroll_runs
			SET status = $4, completed_by = $3, completed_at = now(), updated_at = now()
			WHERE tenant_id = $1 AND id = $2 AND status = 'draft'
		`
	case domain.RunStatusCancelled:
		query = `
			UPDATE payroll_runs
			SET status = $4, cancelled_by = $3, cancelled_at = now(), updated_at = now()
			WHERE tenant_id = $1 AND id = $2 AND status = 'draft'
		`
	default:
		return 0, errors.Internal(fmt.Sprintf("unsupported run transition to %q", to))
	}

	result, err := r.q.ExecContext(ctx, query, tenantID, runID, actorID, to)
	if err != nil {
		return 0, mapErr(err)
	}

	affected, _ := result.RowsAffected()
	return affected, nil
}

// ListUnappliedLoanDetails returns the run's details that carry a loan
// deduction not yet pushed to the ledger. The loan_applied_at stamp
// makes completion retries skip already-applied rows.
func (r *RunRepository) ListUnappliedLoanDetails(ctx context.Context, runID string) ([]domain.PayrollDetail, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + detailColumns + `
		FROM payroll_details
		WHERE tenant_id = $1 AND run_id = $2
		  AND loan_deduction_cents > 0 AND loan_applied_at IS NULL
		ORDER BY employee_id
	`

	var details []domain.PayrollDetail
	if err := r.q.SelectContext(ctx, &details, query, tenantID, runID); err != nil {
		return nil, mapErr(err)
	}
	return details, nil
}

// StampLoanApplied marks a detail's loan deduction as pushed to the
// ledger. The IS NULL guard keeps a concurrent retry from stamping (and
// the caller from applying) twice.
func (r *RunRepository) StampLoanApplied(ctx context.Context, detailID string) (bool, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return false, err
	}

	result, err := r.q.ExecContext(ctx, `
		UPDATE payroll_details
		SET loan_applied_at = now()
		WHERE tenant_id = $1 AND id = $2 AND loan_applied_at IS NULL
	`, tenantID, detailID)
	if err != nil {
		return false, mapErr(err)
	}

	affected, _ := result.RowsAffected()
	return affected > 0, nil
}
