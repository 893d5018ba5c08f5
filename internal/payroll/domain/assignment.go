package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/malipo/malipo-backend/pkg/errors"
)

// Calculation modes for variable-pay assignments.
const (
	CalcModeFixed         = "fixed"
	CalcModePercentOfBase = "percent_of_base"
)

// Assignment scopes (recorded on resolved pay lines).
const (
	ScopeEmployee   = "employee"
	ScopeDepartment = "department"
)

// AllowanceAssignment grants a recurring allowance to one employee or
// to every employee of a department — exactly one of the two scopes is
// set, enforced by a CHECK constraint. The validity window is stored as
// explicit dates; (month, year) windows are normalized at ingestion.
type AllowanceAssignment struct {
	ID           string  `json:"id" db:"id"`
	TenantID     string  `json:"tenant_id" db:"tenant_id"`
	Name         string  `json:"name" db:"name"`
	EmployeeID   *string `json:"employee_id,omitempty" db:"employee_id"`
	DepartmentID *string `json:"department_id,omitempty" db:"department_id"`

	CalcMode    string `json:"calc_mode" db:"calc_mode"`
	AmountCents *int64 `json:"amount_cents,omitempty" db:"amount_cents"`
	RateBp      *int64 `json:"rate_bp,omitempty" db:"rate_bp"`

	// IsCash splits cash allowances (part of gross pay) from non-cash
	// benefits in kind (part of net pay, reported but not taxed here).
	IsCash   bool `json:"is_cash" db:"is_cash"`
	IsActive bool `json:"is_active" db:"is_active"`

	EffectiveFrom time.Time  `json:"effective_from" db:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" db:"effective_to"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DeductionAssignment is the deduction counterpart of an allowance
// assignment. One-time deductions are deactivated by the run that
// consumes them once it completes.
type DeductionAssignment struct {
	ID           string  `json:"id" db:"id"`
	TenantID     string  `json:"tenant_id" db:"tenant_id"`
	Name         string  `json:"name" db:"name"`
	EmployeeID   *string `json:"employee_id,omitempty" db:"employee_id"`
	DepartmentID *string `json:"department_id,omitempty" db:"department_id"`

	CalcMode    string `json:"calc_mode" db:"calc_mode"`
	AmountCents *int64 `json:"amount_cents,omitempty" db:"amount_cents"`
	RateBp      *int64 `json:"rate_bp,omitempty" db:"rate_bp"`

	IsOneTime bool `json:"is_one_time" db:"is_one_time"`
	IsActive  bool `json:"is_active" db:"is_active"`

	EffectiveFrom time.Time  `json:"effective_from" db:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" db:"effective_to"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// windowContains reports whether an assignment window covers the given
// date. A nil end is open-ended.
func windowContains(from time.Time, to *time.Time, asOf time.Time) bool {
	if asOf.Before(from) {
		return false
	}
	if to != nil && asOf.After(*to) {
		return false
	}
	return true
}

// AppliesAt reports whether the allowance is active and its validity
// window contains the as-of date.
func (a *AllowanceAssignment) AppliesAt(asOf time.Time) bool {
	return a.IsActive && windowContains(a.EffectiveFrom, a.EffectiveTo, asOf)
}

// AppliesAt reports whether the deduction is active and its validity
// window contains the as-of date.
func (d *DeductionAssignment) AppliesAt(asOf time.Time) bool {
	return d.IsActive && windowContains(d.EffectiveFrom, d.EffectiveTo, asOf)
}

// assignmentValue computes the monetary value of one assignment for an
// employee. Percentage assignments always compute against base salary,
// never against a running gross.
func assignmentValue(name, calcMode string, amountCents, rateBp *int64, baseSalaryCents int64) (int64, error) {
	switch calcMode {
	case CalcModeFixed:
		if amountCents == nil {
			return 0, errors.Invariant(fmt.Sprintf("fixed assignment %q has no amount", name))
		}
		if *amountCents < 0 {
			return 0, errors.Invariant(fmt.Sprintf("assignment %q has negative amount %d", name, *amountCents))
		}
		return *amountCents, nil
	case CalcModePercentOfBase:
		if rateBp == nil {
			return 0, errors.Invariant(fmt.Sprintf("percent assignment %q has no rate", name))
		}
		return ApplyRate(baseSalaryCents, *rateBp)
	default:
		return 0, errors.Invariant(fmt.Sprintf("assignment %q has unknown calc mode %q", name, calcMode))
	}
}

// PayLine is the resolved snapshot of one assignment applied to one
// employee in one run. The run detail stores these as JSONB so that
// downstream reporting sees what was paid even after the assignment
// itself changes.
type PayLine struct {
	AssignmentID string `json:"assignment_id"`
	Name         string `json:"name"`
	AmountCents  int64  `json:"amount_cents"`
	Scope        string `json:"scope"`
	IsCash       bool   `json:"is_cash,omitempty"`
	IsOneTime    bool   `json:"is_one_time,omitempty"`
}

// PayLines is stored as a JSONB column on payroll_details.
type PayLines []PayLine

// Value implements driver.Valuer for JSONB storage.
func (l PayLines) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal(PayLines{})
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner for JSONB retrieval.
func (l *PayLines) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	case nil:
		*l = nil
		return nil
	default:
		return fmt.Errorf("cannot scan %T into PayLines", src)
	}
}
