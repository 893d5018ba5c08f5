package domain

import (
	"time"

	"github.com/malipo/malipo-backend/pkg/errors"
)

// Employee statuses
const (
	EmployeeStatusActive   = "active"
	EmployeeStatusInactive = "inactive"
)

// Payment methods
const (
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodMobileMoney  = "mobile_money"
	PaymentMethodCash         = "cash"
)

// Employee is the payroll read model of a staff member. Rows are owned
// by the HR system and kept in sync by the event consumer; the engine
// never creates employees through its own API.
type Employee struct {
	ID             string  `json:"id" db:"id"`
	TenantID       string  `json:"tenant_id" db:"tenant_id"`
	EmployeeNumber string  `json:"employee_number" db:"employee_number"`
	FirstName      string  `json:"first_name" db:"first_name"`
	LastName       string  `json:"last_name" db:"last_name"`
	Email          *string `json:"email,omitempty" db:"email"`
	DepartmentID   *string `json:"department_id,omitempty" db:"department_id"`

	BaseSalaryCents int64  `json:"base_salary_cents" db:"base_salary_cents"`
	Status          string `json:"status" db:"status"`

	PaymentMethod     string  `json:"payment_method" db:"payment_method"`
	BankName          *string `json:"bank_name,omitempty" db:"bank_name"`
	BankAccountNumber *string `json:"bank_account_number,omitempty" db:"bank_account_number"`
	MobileMoneyNumber *string `json:"mobile_money_number,omitempty" db:"mobile_money_number"`

	// Per-scheme opt-in flags. An opted-out employee contributes zero
	// to that scheme and is excluded from its run total, but the detail
	// row still records the explicit zero.
	PaysPAYE          bool `json:"pays_paye" db:"pays_paye"`
	PaysNSSF          bool `json:"pays_nssf" db:"pays_nssf"`
	PaysSHIF          bool `json:"pays_shif" db:"pays_shif"`
	PaysHousingLevy   bool `json:"pays_housing_levy" db:"pays_housing_levy"`
	PaysLoanDeduction bool `json:"pays_loan_deduction" db:"pays_loan_deduction"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FullName returns the employee's display name for payslips and logs.
func (e *Employee) FullName() string {
	return e.FirstName + " " + e.LastName
}

// IsActive reports whether the employee is included in payroll runs.
func (e *Employee) IsActive() bool {
	return e.Status == EmployeeStatusActive
}

// PaymentRef resolves the payment identifier for the employee's chosen
// method: the bank account for transfers, the mobile number for mobile
// money, empty for cash. A missing identifier aborts the run rather
// than producing a detail nobody can pay out.
func (e *Employee) PaymentRef() (string, error) {
	switch e.PaymentMethod {
	case PaymentMethodBankTransfer:
		if e.BankAccountNumber == nil || *e.BankAccountNumber == "" {
			return "", errors.Validation(map[string]string{
				e.EmployeeNumber: "bank account number required for bank transfer",
			})
		}
		return *e.BankAccountNumber, nil
	case PaymentMethodMobileMoney:
		if e.MobileMoneyNumber == nil || *e.MobileMoneyNumber == "" {
			return "", errors.Validation(map[string]string{
				e.EmployeeNumber: "mobile money number required for mobile money",
			})
		}
		return *e.MobileMoneyNumber, nil
	case PaymentMethodCash:
		return "", nil
	default:
		return "", errors.Validation(map[string]string{
			e.EmployeeNumber: "unknown payment method " + e.PaymentMethod,
		})
	}
}
