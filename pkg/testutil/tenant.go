package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/malipo/malipo-backend/pkg/tenant"
)

// TestTenant represents a tenant created for testing. Tenancy is
// row-scoped (tenant_id columns), so a test tenant is just an ID the
// repositories filter by.
type TestTenant struct {
	ID   string
	Name string
	Slug string
}

// TenantManager tracks test tenants and wipes their rows afterwards
type TenantManager struct {
	db      *sqlx.DB
	tenants []TestTenant
	mu      sync.Mutex
}

// NewTenantManager creates a new tenant manager for tests
func NewTenantManager(db *sqlx.DB) *TenantManager {
	return &TenantManager{
		db:      db,
		tenants: make([]TestTenant, 0),
	}
}

// CreateTenant registers a new isolated tenant for testing. Each test
// should use its own tenant so parallel tests never see each other's
// rows.
//
// Usage:
//
//	tm := testutil.NewTenantManager(db)
//	tenant, _ := tm.CreateTenant(ctx, "acme-ltd")
//	ctx = testutil.WithTestTenant(ctx, tenant)
//
//	// Repository operations now run scoped to this tenant
//	employees, err := employeeRepo.ListActive(ctx)
func (tm *TenantManager) CreateTenant(ctx context.Context, name string) (*TestTenant, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	t := TestTenant{
		ID:   uuid.New().String(),
		Name: name,
		Slug: strings.ToLower(strings.ReplaceAll(name, " ", "-")),
	}

	tm.tenants = append(tm.tenants, t)
	return &t, nil
}

// tenantTables lists every tenant-scoped table in deletion order.
// payroll_details cascades from payroll_runs; statutory_rates is
// global and never wiped per tenant.
var tenantTables = []string{
	"payroll_audit_log",
	"payroll_runs",
	"loan_ledger",
	"allowance_assignments",
	"deduction_assignments",
	"employees",
}

// DropTenant removes all rows belonging to a test tenant
func (tm *TenantManager) DropTenant(ctx context.Context, t *TestTenant) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if err := tm.wipe(ctx, t.ID); err != nil {
		return err
	}

	for i, tracked := range tm.tenants {
		if tracked.ID == t.ID {
			tm.tenants = append(tm.tenants[:i], tm.tenants[i+1:]...)
			break
		}
	}

	return nil
}

// Cleanup wipes the rows of every tenant created by this manager.
// Call this in TestMain or test cleanup.
func (tm *TenantManager) Cleanup(ctx context.Context) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	var lastErr error
	for _, t := range tm.tenants {
		if err := tm.wipe(ctx, t.ID); err != nil {
			lastErr = err
		}
	}

	tm.tenants = make([]TestTenant, 0)
	return lastErr
}

func (tm *TenantManager) wipe(ctx context.Context, tenantID string) error {
	for _, table := range tenantTables {
		if _, err := tm.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE tenant_id = $1", tenantID); err != nil {
			return err
		}
	}
	return nil
}

// WithTestTenant creates a context with tenant information for testing.
// This is the primary way to set up tenant context in tests.
func WithTestTenant(ctx context.Context, t *TestTenant) context.Context {
	return tenant.WithTenantContext(ctx, t.ID, t.Slug)
}

// TestTenantContext creates a context with a fixed fake tenant for
// simple unit tests that don't need actual database isolation.
func TestTenantContext() context.Context {
	return tenant.WithTenantContext(
		context.Background(),
		"00000000-0000-0000-0000-000000000001",
		"test-tenant",
	)
}

// PayrollMigrations returns the payroll service schema for tests.
// Employee, assignment and loan rows carry no cross-table foreign keys
// because HR events may arrive in any order; payroll_details is the
// only child table and cascades from its run.
func PayrollMigrations() []string {
	return []string{
		// Employee read model (owned by HR, mirrored by the consumer)
		`CREATE TABLE IF NOT EXISTS employees (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id UUID NOT NULL,
			employee_number VARCHAR(50) NOT NULL,
			first_name VARCHAR(100) NOT NULL,
			last_name VARCHAR(100) NOT NULL,
			email VARCHAR(255),
			department_id UUID,
			base_salary_cents BIGINT NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			payment_method VARCHAR(20) NOT NULL DEFAULT 'bank_transfer',
			bank_name VARCHAR(255),
			bank_account_number VARCHAR(100),
			mobile_money_number VARCHAR(50),
			pays_paye BOOLEAN NOT NULL DEFAULT TRUE,
			pays_nssf BOOLEAN NOT NULL DEFAULT TRUE,
			pays_shif BOOLEAN NOT NULL DEFAULT TRUE,
			pays_housing_levy BOOLEAN NOT NULL DEFAULT TRUE,
			pays_loan_deduction BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT employees_status_valid CHECK (status IN ('active', 'inactive')),
			CONSTRAINT employees_number_unique UNIQUE (tenant_id, employee_number)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_employees_tenant_status ON employees(tenant_id, status)`,

		// Allowance assignments: exactly one scope, value column must
		// match the calculation mode
		`CREATE TABLE IF NOT EXISTS allowance_assignments (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id UUID NOT NULL,
			name VARCHAR(255) NOT NULL,
			employee_id UUID,
			department_id UUID,
			calc_mode VARCHAR(20) NOT NULL,
			amount_cents BIGINT,
			rate_bp INTEGER,
			is_cash BOOLEAN NOT NULL DEFAULT TRUE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			effective_from DATE NOT NULL,
			effective_to DATE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT allowance_scope_one_of CHECK ((employee_id IS NULL) <> (department_id IS NULL)),
			CONSTRAINT allowance_calc_mode_valid CHECK (
				(calc_mode = 'fixed' AND amount_cents IS NOT NULL) OR
				(calc_mode = 'percent_of_base' AND rate_bp IS NOT NULL)
			)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_allowance_assignments_tenant ON allowance_assignments(tenant_id) WHERE is_active`,

		// Deduction assignments: same shape minus is_cash, plus is_one_time
		`CREATE TABLE IF NOT EXISTS deduction_assignments (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id UUID NOT NULL,
			name VARCHAR(255) NOT NULL,
			employee_id UUID,
			department_id UUID,
			calc_mode VARCHAR(20) NOT NULL,
			amount_cents BIGINT,
			rate_bp INTEGER,
			is_one_time BOOLEAN NOT NULL DEFAULT FALSE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			effective_from DATE NOT NULL,
			effective_to DATE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT deduction_scope_one_of CHECK ((employee_id IS NULL) <> (department_id IS NULL)),
			CONSTRAINT deduction_calc_mode_valid CHECK (
				(calc_mode = 'fixed' AND amount_cents IS NOT NULL) OR
				(calc_mode = 'percent_of_base' AND rate_bp IS NOT NULL)
			)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_deduction_assignments_tenant ON deduction_assignments(tenant_id) WHERE is_active`,

		// Loan ledger: one open loan per employee, balance floored at zero
		`CREATE TABLE IF NOT EXISTS loan_ledger (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id UUID NOT NULL,
			employee_id UUID NOT NULL,
			name VARCHAR(255) NOT NULL,
			principal_cents BIGINT NOT NULL DEFAULT 0,
			balance_cents BIGINT NOT NULL DEFAULT 0,
			monthly_deduction_cents BIGINT NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT loan_balance_non_negative CHECK (balance_cents >= 0),
			CONSTRAINT loan_monthly_non_negative CHECK (monthly_deduction_cents >= 0),
			CONSTRAINT loan_employee_unique UNIQUE (tenant_id, employee_id)
		)`,

		// Statutory rate sets are law, not tenant data
		`CREATE TABLE IF NOT EXISTS statutory_rates (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			effective_from DATE UNIQUE NOT NULL,
			paye_bands JSONB NOT NULL,
			personal_relief_cents BIGINT NOT NULL,
			nssf_lower_ceiling_cents BIGINT NOT NULL,
			nssf_upper_ceiling_cents BIGINT NOT NULL,
			nssf_rate_bp INTEGER NOT NULL,
			shif_rate_bp INTEGER NOT NULL,
			housing_levy_rate_bp INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Payroll runs: at most one non-cancelled run per period
		`CREATE TABLE IF NOT EXISTS payroll_runs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id UUID NOT NULL,
			run_number VARCHAR(50) NOT NULL,
			period_month SMALLINT NOT NULL,
			period_year INTEGER NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'draft',
			employee_count INTEGER NOT NULL DEFAULT 0,
			gross_pay_cents BIGINT NOT NULL DEFAULT 0,
			statutory_deductions_cents BIGINT NOT NULL DEFAULT 0,
			paye_cents BIGINT NOT NULL DEFAULT 0,
			net_pay_cents BIGINT NOT NULL DEFAULT 0,
			created_by UUID,
			completed_by UUID,
			completed_at TIMESTAMPTZ,
			cancelled_by UUID,
			cancelled_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT run_status_valid CHECK (status IN ('draft', 'completed', 'cancelled')),
			CONSTRAINT run_period_month_valid CHECK (period_month BETWEEN 1 AND 12),
			CONSTRAINT run_number_unique UNIQUE (tenant_id, run_number)
		)`,

		`CREATE UNIQUE INDEX IF NOT EXISTS uq_payroll_runs_active_period
			ON payroll_runs(tenant_id, period_year, period_month)
			WHERE status <> 'cancelled'`,

		// Per-employee details: frozen snapshots, cascade with their run
		`CREATE TABLE IF NOT EXISTS payroll_details (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id UUID NOT NULL,
			run_id UUID NOT NULL REFERENCES payroll_runs(id) ON DELETE CASCADE,
			employee_id UUID NOT NULL,
			employee_number VARCHAR(50) NOT NULL,
			employee_name VARCHAR(255) NOT NULL,
			base_salary_cents BIGINT NOT NULL DEFAULT 0,
			cash_allowances_cents BIGINT NOT NULL DEFAULT 0,
			noncash_benefits_cents BIGINT NOT NULL DEFAULT 0,
			gross_pay_cents BIGINT NOT NULL DEFAULT 0,
			taxable_income_cents BIGINT NOT NULL DEFAULT 0,
			paye_cents BIGINT NOT NULL DEFAULT 0,
			nssf_tier1_cents BIGINT NOT NULL DEFAULT 0,
			nssf_tier2_cents BIGINT NOT NULL DEFAULT 0,
			nssf_cents BIGINT NOT NULL DEFAULT 0,
			shif_cents BIGINT NOT NULL DEFAULT 0,
			housing_levy_cents BIGINT NOT NULL DEFAULT 0,
			loan_deduction_cents BIGINT NOT NULL DEFAULT 0,
			custom_deductions_cents BIGINT NOT NULL DEFAULT 0,
			total_deductions_cents BIGINT NOT NULL DEFAULT 0,
			net_pay_cents BIGINT NOT NULL DEFAULT 0,
			payment_method VARCHAR(20) NOT NULL,
			payment_ref VARCHAR(100) NOT NULL DEFAULT '',
			allowance_lines JSONB NOT NULL DEFAULT '[]',
			deduction_lines JSONB NOT NULL DEFAULT '[]',
			loan_applied_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT detail_employee_unique UNIQUE (run_id, employee_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_payroll_details_run ON payroll_details(run_id)`,

		// Run lifecycle audit trail
		`CREATE TABLE IF NOT EXISTS payroll_audit_log (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id UUID NOT NULL,
			run_id UUID NOT NULL,
			action VARCHAR(100) NOT NULL,
			actor_id UUID NOT NULL,
			actor_name VARCHAR(255) NOT NULL,
			details JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_payroll_audit_log_tenant ON payroll_audit_log(tenant_id, created_at DESC)`,
	}
}
