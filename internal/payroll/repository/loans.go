package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/malipo/malipo-backend/internal/payroll/domain"
	"github.com/malipo/malipo-backend/pkg/database"
	"github.com/malipo/malipo-backend/pkg/tenant"
)

// LoanRepository handles the amortizing loan ledger. One row per
// (tenant, employee); HR upserts it, completed runs decrement it.
type LoanRepository struct {
	db *database.DB
	q  database.Queryer
}

// NewLoanRepository creates a new loan repository
func NewLoanRepository(db *database.DB) *LoanRepository {
	return &LoanRepository{db: db, q: db.DB}
}

// WithTx returns a copy of the repository bound to the transaction.
func (r *LoanRepository) WithTx(tx *sqlx.Tx) *LoanRepository {
	return &LoanRepository{db: r.db, q: tx}
}

// ListOpen returns the tenant's loans that still collect deductions.
func (r *LoanRepository) ListOpen(ctx context.Context) ([]domain.LoanLedgerEntry, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, employee_id, name, principal_cents, balance_cents,
		       monthly_deduction_cents, is_active, created_at, updated_at
		FROM loan_ledger
		WHERE tenant_id = $1 AND is_active AND balance_cents > 0
		ORDER BY employee_id
	`

	var entries []domain.LoanLedgerEntry
	if err := r.q.SelectContext(ctx, &entries, query, tenantID); err != nil {
		return nil, mapErr(err)
	}
	return entries, nil
}

// Upsert writes a ledger entry keyed by employee: HR schedules at most
// one open loan per employee, and rescheduling replaces the terms.
func (r *LoanRepository) Upsert(ctx context.Context, entry *domain.LoanLedgerEntry) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}
	entry.TenantID = tenantID

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO loan_ledger (
			id, tenant_id, employee_id, name, principal_cents, balance_cents,
			monthly_deduction_cents, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, employee_id) DO UPDATE SET
			name = EXCLUDED.name,
			principal_cents = EXCLUDED.principal_cents,
			balance_cents = EXCLUDED.balance_cents,
			monthly_deduction_cents = EXCLUDED.monthly_deduction_cents,
			is_active = EXCLUDED.is_active,
			updated_at = now()
		RETURNING id, created_at, updated_at
	`

	err = r.q.QueryRowxContext(ctx, query,
		entry.ID, entry.TenantID, entry.EmployeeID, entry.Name,
		entry.PrincipalCents, entry.BalanceCents,
		entry.MonthlyDeductionCents, entry.IsActive,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	return nil
}

// ApplyDeduction reduces an employee's loan balance by the withheld
// amount, flooring at zero so a terminal instalment cannot drive the
// ledger negative. Missing ledger rows are a no-op: the detail held a
// deduction the ledger no longer knows, which the caller logs.
func (r *LoanRepository) ApplyDeduction(ctx context.Context, employeeID string, amountCents int64) (bool, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return false, err
	}

	result, err := r.q.ExecContext(ctx, `
		UPDATE loan_ledger
		SET balance_cents = GREATEST(balance_cents - $3, 0), updated_at = now()
		WHERE tenant_id = $1 AND employee_id = $2
	`, tenantID, employeeID, amountCents)
	if err != nil {
		return false, mapErr(err)
	}

	affected, _ := result.RowsAffected()
	return affected > 0, nil
}
