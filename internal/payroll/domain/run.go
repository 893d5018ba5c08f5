package domain

import (
	"fmt"
	"time"
)

// Run lifecycle states. A draft can be recomputed, completed or
// cancelled; completed and cancelled runs are immutable.
const (
	RunStatusDraft     = "draft"
	RunStatusCompleted = "completed"
	RunStatusCancelled = "cancelled"
)

// PayrollRun is one calculation of a pay period for a tenant. At most
// one non-cancelled run may exist per (tenant, period), enforced by a
// partial unique index.
type PayrollRun struct {
	ID          string `json:"id" db:"id"`
	TenantID    string `json:"tenant_id" db:"tenant_id"`
	RunNumber   string `json:"run_number" db:"run_number"`
	PeriodMonth int    `json:"period_month" db:"period_month"`
	PeriodYear  int    `json:"period_year" db:"period_year"`
	Status      string `json:"status" db:"status"`

	EmployeeCount            int   `json:"employee_count" db:"employee_count"`
	GrossPayCents            int64 `json:"gross_pay_cents" db:"gross_pay_cents"`
	StatutoryDeductionsCents int64 `json:"statutory_deductions_cents" db:"statutory_deductions_cents"`
	PAYECents                int64 `json:"paye_cents" db:"paye_cents"`
	NetPayCents              int64 `json:"net_pay_cents" db:"net_pay_cents"`

	CreatedBy   *string    `json:"created_by,omitempty" db:"created_by"`
	CompletedBy *string    `json:"completed_by,omitempty" db:"completed_by"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CancelledBy *string    `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Period returns the run's pay period.
func (r *PayrollRun) Period() Period {
	return Period{Month: r.PeriodMonth, Year: r.PeriodYear}
}

// IsDraft reports whether the run can still be recomputed, completed
// or cancelled.
func (r *PayrollRun) IsDraft() bool {
	return r.Status == RunStatusDraft
}

// FormatRunNumber builds the human-facing run identifier, e.g.
// PR-202601-2 for the second run calculated for January 2026.
func FormatRunNumber(p Period, seq int) string {
	return fmt.Sprintf("PR-%04d%02d-%d", p.Year, p.Month, seq)
}

// PayrollDetail is the frozen per-employee result of a run. Employee
// identity fields are denormalized so payslips survive later employee
// edits; pay lines snapshot the variable-pay assignments as applied.
type PayrollDetail struct {
	ID             string `json:"id" db:"id"`
	TenantID       string `json:"tenant_id" db:"tenant_id"`
	RunID          string `json:"run_id" db:"run_id"`
	EmployeeID     string `json:"employee_id" db:"employee_id"`
	EmployeeNumber string `json:"employee_number" db:"employee_number"`
	EmployeeName   string `json:"employee_name" db:"employee_name"`

	BaseSalaryCents      int64 `json:"base_salary_cents" db:"base_salary_cents"`
	CashAllowancesCents  int64 `json:"cash_allowances_cents" db:"cash_allowances_cents"`
	NonCashBenefitsCents int64 `json:"noncash_benefits_cents" db:"noncash_benefits_cents"`
	GrossPayCents        int64 `json:"gross_pay_cents" db:"gross_pay_cents"`

	TaxableIncomeCents int64 `json:"taxable_income_cents" db:"taxable_income_cents"`
	PAYECents          int64 `json:"paye_cents" db:"paye_cents"`

	NSSFTier1Cents   int64 `json:"nssf_tier1_cents" db:"nssf_tier1_cents"`
	NSSFTier2Cents   int64 `json:"nssf_tier2_cents" db:"nssf_tier2_cents"`
	NSSFCents        int64 `json:"nssf_cents" db:"nssf_cents"`
	SHIFCents        int64 `json:"shif_cents" db:"shif_cents"`
	HousingLevyCents int64 `json:"housing_levy_cents" db:"housing_levy_cents"`

	LoanDeductionCents    int64 `json:"loan_deduction_cents" db:"loan_deduction_cents"`
	CustomDeductionsCents int64 `json:"custom_deductions_cents" db:"custom_deductions_cents"`
	TotalDeductionsCents  int64 `json:"total_deductions_cents" db:"total_deductions_cents"`
	NetPayCents           int64 `json:"net_pay_cents" db:"net_pay_cents"`

	PaymentMethod string `json:"payment_method" db:"payment_method"`
	PaymentRef    string `json:"payment_ref" db:"payment_ref"`

	AllowanceLines PayLines `json:"allowance_lines" db:"allowance_lines"`
	DeductionLines PayLines `json:"deduction_lines" db:"deduction_lines"`

	LoanAppliedAt *time.Time `json:"loan_applied_at,omitempty" db:"loan_applied_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// StatutoryTotalCents sums the non-PAYE statutory contributions on the
// detail. PAYE is aggregated separately on the run.
func (d *PayrollDetail) StatutoryTotalCents() int64 {
	return d.NSSFCents + d.SHIFCents + d.HousingLevyCents
}

// Audit actions recorded against a run.
const (
	AuditActionCalculated   = "payroll.run.calculated"
	AuditActionRecalculated = "payroll.run.recalculated"
	AuditActionCompleted    = "payroll.run.completed"
	AuditActionCancelled    = "payroll.run.cancelled"
)

// AuditEntry records one lifecycle action taken against a run.
type AuditEntry struct {
	ID        string                 `json:"id" db:"id"`
	TenantID  string                 `json:"tenant_id" db:"tenant_id"`
	RunID     string                 `json:"run_id" db:"run_id"`
	Action    string                 `json:"action" db:"action"`
	ActorID   string                 `json:"actor_id" db:"actor_id"`
	ActorName string                 `json:"actor_name" db:"actor_name"`
	Details   map[string]interface{} `json:"details,omitempty" db:"-"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}
