package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/malipo/malipo-backend/internal/payroll/domain"
	"github.com/malipo/malipo-backend/pkg/database"
	"github.com/malipo/malipo-backend/pkg/errors"
	"github.com/malipo/malipo-backend/pkg/tenant"
)

const employeeColumns = `id, tenant_id, employee_number, first_name, last_name, email,
       department_id, base_salary_cents, status, payment_method,
       bank_name, bank_account_number, mobile_money_number,
       pays_paye, pays_nssf, pays_shif, pays_housing_levy, pays_loan_deduction,
       created_at, updated_at`

// EmployeeRepository handles the employee read model. Rows are written
// by the HR event consumer and read by the orchestrator.
type EmployeeRepository struct {
	db *database.DB
	q  database.Queryer
}

// NewEmployeeRepository creates a new employee repository
func NewEmployeeRepository(db *database.DB) *EmployeeRepository {
	return &EmployeeRepository{db: db, q: db.DB}
}

// WithTx returns a copy of the repository bound to the transaction.
func (r *EmployeeRepository) WithTx(tx *sqlx.Tx) *EmployeeRepository {
	return &EmployeeRepository{db: r.db, q: tx}
}

// ListActive returns every active employee of the tenant, ordered by
// employee number for stable run output.
func (r *EmployeeRepository) ListActive(ctx context.Context) ([]domain.Employee, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + employeeColumns + `
		FROM employees
		WHERE tenant_id = $1 AND status = $2
		ORDER BY employee_number
	`

	var employees []domain.Employee
	if err := r.q.SelectContext(ctx, &employees, query, tenantID, domain.EmployeeStatusActive); err != nil {
		return nil, mapErr(err)
	}
	return employees, nil
}

// GetByID gets an employee by ID within the tenant.
func (r *EmployeeRepository) GetByID(ctx context.Context, id string) (*domain.Employee, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + employeeColumns + `
		FROM employees
		WHERE tenant_id = $1 AND id = $2
	`

	var emp domain.Employee
	err = r.q.GetContext(ctx, &emp, query, tenantID, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("employee")
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return &emp, nil
}

// Upsert writes an employee row keyed by the HR system's id, so replays
// of the same event settle on the same row. The tenant guard on the
// conflict branch keeps a colliding id from touching another tenant.
func (r *EmployeeRepository) Upsert(ctx context.Context, emp *domain.Employee) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}
	emp.TenantID = tenantID

	if emp.ID == "" {
		emp.ID = uuid.New().String()
	}
	if emp.Status == "" {
		emp.Status = domain.EmployeeStatusActive
	}

	query := `
		INSERT INTO employees (
			id, tenant_id, employee_number, first_name, last_name, email,
			department_id, base_salary_cents, status, payment_method,
			bank_name, bank_account_number, mobile_money_number,
			pays_paye, pays_nssf, pays_shif, pays_housing_levy, pays_loan_deduction
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
		ON CONFLICT (id) DO UPDATE SET
			employee_number = EXCLUDED.employee_number,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			email = EXCLUDED.email,
			department_id = EXCLUDED.department_id,
			base_salary_cents = EXCLUDED.base_salary_cents,
			status = EXCLUDED.status,
			payment_method = EXCLUDED.payment_method,
			bank_name = EXCLUDED.bank_name,
			bank_account_number = EXCLUDED.bank_account_number,
			mobile_money_number = EXCLUDED.mobile_money_number,
			pays_paye = EXCLUDED.pays_paye,
			pays_nssf = EXCLUDED.pays_nssf,
			pays_shif = EXCLUDED.pays_shif,
			pays_housing_levy = EXCLUDED.pays_housing_levy,
			pays_loan_deduction = EXCLUDED.pays_loan_deduction,
			updated_at = now()
		WHERE employees.tenant_id = EXCLUDED.tenant_id
		RETURNING created_at, updated_at
	`

	err = r.q.QueryRowxContext(ctx, query,
		emp.ID, emp.TenantID, emp.EmployeeNumber, emp.FirstName, emp.LastName, emp.Email,
		emp.DepartmentID, emp.BaseSalaryCents, emp.Status, emp.PaymentMethod,
		emp.BankName, emp.BankAccountNumber, emp.MobileMoneyNumber,
		emp.PaysPAYE, emp.PaysNSSF, emp.PaysSHIF, emp.PaysHousingLevy, emp.PaysLoanDeduction,
	).Scan(&emp.CreatedAt, &emp.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	return nil
}

// Deactivate marks an employee inactive so future runs skip them.
func (r *EmployeeRepository) Deactivate(ctx context.Context, employeeID string) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	result, err := r.q.ExecContext(ctx, `
		UPDATE employees SET status = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, employeeID, domain.EmployeeStatusInactive)
	if err != nil {
		return mapErr(err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("employee")
	}
	return nil
}
