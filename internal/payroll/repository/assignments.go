package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/malipo/malipo-backend/internal/payroll/domain"
	"github.com/malipo/malipo-backend/pkg/database"
	"github.com/malipo/malipo-backend/pkg/errors"
	"github.com/malipo/malipo-backend/pkg/tenant"
)

// AssignmentRepository handles allowance and deduction assignments.
// Both tables share a shape; only the cash/one-time flag differs.
type AssignmentRepository struct {
	db *database.DB
	q  database.Queryer
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *database.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db, q: db.DB}
}

// WithTx returns a copy of the repository bound to the transaction.
func (r *AssignmentRepository) WithTx(tx *sqlx.Tx) *AssignmentRepository {
	return &AssignmentRepository{db: r.db, q: tx}
}

// ListApplicableAllowances returns the tenant's active allowance
// assignments whose validity window contains asOf. Scope matching is
// done in memory by the resolver.
func (r *AssignmentRepository) ListApplicableAllowances(ctx context.Context, asOf time.Time) ([]domain.AllowanceAssignment, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, employee_id, department_id,
		       calc_mode, amount_cents, rate_bp, is_cash, is_active,
		       effective_from, effective_to, created_at, updated_at
		FROM allowance_assignments
		WHERE tenant_id = $1
		  AND is_active
		  AND effective_from <= $2
		  AND (effective_to IS NULL OR effective_to >= $2)
		ORDER BY name, id
	`

	var assignments []domain.AllowanceAssignment
	if err := r.q.SelectContext(ctx, &assignments, query, tenantID, asOf); err != nil {
		return nil, mapErr(err)
	}
	return assignments, nil
}

// ListApplicableDeductions mirrors ListApplicableAllowances for the
// deduction side.
func (r *AssignmentRepository) ListApplicableDeductions(ctx context.Context, asOf time.Time) ([]domain.DeductionAssignment, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, employee_id, department_id,
		       calc_mode, amount_cents, rate_bp, is_one_time, is_active,
		       effective_from, effective_to, created_at, updated_at
		FROM deduction_assignments
		WHERE tenant_id = $1
		  AND is_active
		  AND effective_from <= $2
		  AND (effective_to IS NULL OR effective_to >= $2)
		ORDER BY name, id
	`

	var assignments []domain.DeductionAssignment
	if err := r.q.SelectContext(ctx, &assignments, query, tenantID, asOf); err != nil {
		return nil, mapErr(err)
	}
	return assignments, nil
}

// UpsertAllowance writes an allowance assignment keyed by the HR
// system's id.
func (r *AssignmentRepository) UpsertAllowance(ctx context.Context, a *domain.AllowanceAssignment) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}
	a.TenantID = tenantID

	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	query := `
		INSERT INTO allowance_assignments (
			id, tenant_id, name, employee_id, department_id,
			calc_mode, amount_cents, rate_bp, is_cash, is_active,
			effective_from, effective_to
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			employee_id = EXCLUDED.employee_id,
			department_id = EXCLUDED.department_id,
			calc_mode = EXCLUDED.calc_mode,
			amount_cents = EXCLUDED.amount_cents,
			rate_bp = EXCLUDED.rate_bp,
			is_cash = EXCLUDED.is_cash,
			is_active = EXCLUDED.is_active,
			effective_from = EXCLUDED.effective_from,
			effective_to = EXCLUDED.effective_to,
			updated_at = now()
		WHERE allowance_assignments.tenant_id = EXCLUDED.tenant_id
		RETURNING created_at, updated_at
	`

	err = r.q.QueryRowxContext(ctx, query,
		a.ID, a.TenantID, a.Name, a.EmployeeID, a.DepartmentID,
		a.CalcMode, a.AmountCents, a.RateBp, a.IsCash, a.IsActive,
		a.EffectiveFrom, a.EffectiveTo,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	return nil
}

// UpsertDeduction writes a deduction assignment keyed by the HR
// system's id.
func (r *AssignmentRepository) UpsertDeduction(ctx context.Context, d *domain.DeductionAssignment) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}
	d.TenantID = tenantID

	if d.ID == "" {
		d.ID = uuid.New().String()
	}

	query := `
		INSERT INTO deduction_assignments (
			id, tenant_id, name, employee_id, department_id,
			calc_mode, amount_cents, rate_bp, is_one_time, is_active,
			effective_from, effective_to
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			employee_id = EXCLUDED.employee_id,
			department_id = EXCLUDED.department_id,
			calc_mode = EXCLUDED.calc_mode,
			amount_cents = EXCLUDED.amount_cents,
			rate_bp = EXCLUDED.rate_bp,
			is_one_time = EXCLUDED.is_one_time,
			is_active = EXCLUDED.is_active,
			effective_from = EXCLUDED.effective_from,
			effective_to = EXCLUDED.effective_to,
			updated_at = now()
		WHERE deduction_assignments.tenant_id = EXCLUDED.tenant_id
		RETURNING created_at, updated_at
	`

	err = r.q.QueryRowxContext(ctx, query,
		d.ID, d.TenantID, d.Name, d.EmployeeID, d.DepartmentID,
		d.CalcMode, d.AmountCents, d.RateBp, d.IsOneTime, d.IsActive,
		d.EffectiveFrom, d.EffectiveTo,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	return nil
}

// RevokeAllowance deactivates an allowance assignment.
func (r *AssignmentRepository) RevokeAllowance(ctx context.Context, id string) error {
	return r.revoke(ctx, "allowance_assignments", id)
}

// RevokeDeduction deactivates a deduction assignment.
func (r *AssignmentRepository) RevokeDeduction(ctx context.Context, id string) error {
	return r.revoke(ctx, "deduction_assignments", id)
}

func (r *AssignmentRepository) revoke(ctx context.Context, table, id string) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	result, err := r.q.ExecContext(ctx, `
		UPDATE `+table+` SET is_active = FALSE, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	if err != nil {
		return mapErr(err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("assignment")
	}
	return nil
}

// DeactivateOneTimeDeductions retires every active one-time deduction
// of the tenant. Called when a run completes so the next period does
// not re-apply them. Returns the number of assignments retired.
func (r *AssignmentRepository) DeactivateOneTimeDeductions(ctx context.Context) (int64, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return 0, err
	}

	result, err := r.q.ExecContext(ctx, `
		UPDATE deduction_assignments SET is_active = FALSE, updated_at = now()
		WHERE tenant_id = $1 AND is_one_time AND is_active
	`, tenantID)
	if err != nil {
		return 0, mapErr(err)
	}

	affected, _ := result.RowsAffected()
	return affected, nil
}
