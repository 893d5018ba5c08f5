package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/malipo/malipo-backend/internal/payroll/domain"
)

// FixtureFactory creates payroll domain fixtures with sensible
// defaults. Tenant IDs are left empty: the repositories stamp them
// from the request context on write.
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Employee creates an active bank-paid employee with all statutory
// schemes opted in and a base salary of KES 50,000.
func (f *FixtureFactory) Employee(opts ...func(*domain.Employee)) *domain.Employee {
	seq := f.nextSeq()
	account := fmt.Sprintf("01100%06d", seq)

	emp := &domain.Employee{
		ID:                uuid.New().String(),
		EmployeeNumber:    fmt.Sprintf("EMP-%04d", seq),
		FirstName:         fmt.Sprintf("Employee%d", seq),
		LastName:          "Test",
		Email:             PtrString(fmt.Sprintf("employee%d@acme.co.ke", seq)),
		BaseSalaryCents:   5_000_000,
		Status:            domain.EmployeeStatusActive,
		PaymentMethod:     domain.PaymentMethodBankTransfer,
		BankName:          PtrString("Equity Bank"),
		BankAccountNumber: &account,
		PaysPAYE:          true,
		PaysNSSF:          true,
		PaysSHIF:          true,
		PaysHousingLevy:   true,
		PaysLoanDeduction: true,
	}

	for _, opt := range opts {
		opt(emp)
	}

	return emp
}

// WithEmployeeName sets the employee's first and last name
func WithEmployeeName(first, last string) func(*domain.Employee) {
	return func(e *domain.Employee) {
		e.FirstName = first
		e.LastName = last
	}
}

// WithBaseSalary sets the employee's monthly base salary in cents
func WithBaseSalary(cents int64) func(*domain.Employee) {
	return func(e *domain.Employee) {
		e.BaseSalaryCents = cents
	}
}

// WithDepartment puts the employee in a department
func WithDepartment(departmentID string) func(*domain.Employee) {
	return func(e *domain.Employee) {
		e.DepartmentID = &departmentID
	}
}

// WithEmployeeStatus sets the employee's status
func WithEmployeeStatus(status string) func(*domain.Employee) {
	return func(e *domain.Employee) {
		e.Status = status
	}
}

// WithMobileMoney switches the employee to mobile money payment
func WithMobileMoney(number string) func(*domain.Employee) {
	return func(e *domain.Employee) {
		e.PaymentMethod = domain.PaymentMethodMobileMoney
		e.MobileMoneyNumber = &number
		e.BankName = nil
		e.BankAccountNumber = nil
	}
}

// WithCashPayment switches the employee to cash payment
func WithCashPayment() func(*domain.Employee) {
	return func(e *domain.Employee) {
		e.PaymentMethod = domain.PaymentMethodCash
		e.BankName = nil
		e.BankAccountNumber = nil
		e.MobileMoneyNumber = nil
	}
}

// Allowance creates an active employee-scoped fixed cash allowance of
// KES 5,000, effective since 2024. Pass AllowanceFor or
// AllowanceForDepartment to re-scope it.
func (f *FixtureFactory) Allowance(opts ...func(*domain.AllowanceAssignment)) *domain.AllowanceAssignment {
	seq := f.nextSeq()

	a := &domain.AllowanceAssignment{
		ID:            uuid.New().String(),
		Name:          fmt.Sprintf("House Allowance %d", seq),
		CalcMode:      domain.CalcModeFixed,
		AmountCents:   PtrInt64(500_000),
		IsCash:        true,
		IsActive:      true,
		EffectiveFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// AllowanceFor scopes the allowance to one employee
func AllowanceFor(employeeID string) func(*domain.AllowanceAssignment) {
	return func(a *domain.AllowanceAssignment) {
		a.EmployeeID = &employeeID
		a.DepartmentID = nil
	}
}

// AllowanceForDepartment scopes the allowance to a department
func AllowanceForDepartment(departmentID string) func(*domain.AllowanceAssignment) {
	return func(a *domain.AllowanceAssignment) {
		a.DepartmentID = &departmentID
		a.EmployeeID = nil
	}
}

// AllowanceNamed sets the allowance name
func AllowanceNamed(name string) func(*domain.AllowanceAssignment) {
	return func(a *domain.AllowanceAssignment) {
		a.Name = name
	}
}

// AllowanceAmount makes the allowance a fixed amount in cents
func AllowanceAmount(cents int64) func(*domain.AllowanceAssignment) {
	return func(a *domain.AllowanceAssignment) {
		a.CalcMode = domain.CalcModeFixed
		a.AmountCents = PtrInt64(cents)
		a.RateBp = nil
	}
}

// AllowancePercent makes the allowance a percentage of base salary,
// in basis points
func AllowancePercent(rateBp int64) func(*domain.AllowanceAssignment) {
	return func(a *domain.AllowanceAssignment) {
		a.CalcMode = domain.CalcModePercentOfBase
		a.RateBp = PtrInt64(rateBp)
		a.AmountCents = nil
	}
}

// AllowanceNonCash marks the allowance as a benefit in kind
func AllowanceNonCash() func(*domain.AllowanceAssignment) {
	return func(a *domain.AllowanceAssignment) {
		a.IsCash = false
	}
}

// AllowanceWindow sets the validity window. A nil end is open-ended.
func AllowanceWindow(from time.Time, to *time.Time) func(*domain.AllowanceAssignment) {
	return func(a *domain.AllowanceAssignment) {
		a.EffectiveFrom = from
		a.EffectiveTo = to
	}
}

// Deduction creates an active employee-scoped fixed deduction of
// KES 2,000, effective since 2024.
func (f *FixtureFactory) Deduction(opts ...func(*domain.DeductionAssignment)) *domain.DeductionAssignment {
	seq := f.nextSeq()

	d := &domain.DeductionAssignment{
		ID:            uuid.New().String(),
		Name:          fmt.Sprintf("Welfare Fund %d", seq),
		CalcMode:      domain.CalcModeFixed,
		AmountCents:   PtrInt64(200_000),
		IsActive:      true,
		EffectiveFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// DeductionFor scopes the deduction to one employee
func DeductionFor(employeeID string) func(*domain.DeductionAssignment) {
	return func(d *domain.DeductionAssignment) {
		d.EmployeeID = &employeeID
		d.DepartmentID = nil
	}
}

// DeductionForDepartment scopes the deduction to a department
func DeductionForDepartment(departmentID string) func(*domain.DeductionAssignment) {
	return func(d *domain.DeductionAssignment) {
		d.DepartmentID = &departmentID
		d.EmployeeID = nil
	}
}

// DeductionNamed sets the deduction name
func DeductionNamed(name string) func(*domain.DeductionAssignment) {
	return func(d *domain.DeductionAssignment) {
		d.Name = name
	}
}

// DeductionAmount makes the deduction a fixed amount in cents
func DeductionAmount(cents int64) func(*domain.DeductionAssignment) {
	return func(d *domain.DeductionAssignment) {
		d.CalcMode = domain.CalcModeFixed
		d.AmountCents = PtrInt64(cents)
		d.RateBp = nil
	}
}

// DeductionPercent makes the deduction a percentage of base salary,
// in basis points
func DeductionPercent(rateBp int64) func(*domain.DeductionAssignment) {
	return func(d *domain.DeductionAssignment) {
		d.CalcMode = domain.CalcModePercentOfBase
		d.RateBp = PtrInt64(rateBp)
		d.AmountCents = nil
	}
}

// DeductionOneTime marks the deduction as consumed by a single run
func DeductionOneTime() func(*domain.DeductionAssignment) {
	return func(d *domain.DeductionAssignment) {
		d.IsOneTime = true
	}
}

// DeductionWindow sets the validity window. A nil end is open-ended.
func DeductionWindow(from time.Time, to *time.Time) func(*domain.DeductionAssignment) {
	return func(d *domain.DeductionAssignment) {
		d.EffectiveFrom = from
		d.EffectiveTo = to
	}
}

// Loan creates an active loan ledger entry for the employee:
// KES 240,000 principal, KES 180,000 outstanding, KES 4,000 monthly.
func (f *FixtureFactory) Loan(employeeID string, opts ...func(*domain.LoanLedgerEntry)) *domain.LoanLedgerEntry {
	seq := f.nextSeq()

	l := &domain.LoanLedgerEntry{
		ID:                    uuid.New().String(),
		EmployeeID:            employeeID,
		Name:                  fmt.Sprintf("Staff Loan %d", seq),
		PrincipalCents:        24_000_000,
		BalanceCents:          18_000_000,
		MonthlyDeductionCents: 400_000,
		IsActive:              true,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// LoanBalance sets the outstanding balance in cents
func LoanBalance(cents int64) func(*domain.LoanLedgerEntry) {
	return func(l *domain.LoanLedgerEntry) {
		l.BalanceCents = cents
	}
}

// LoanMonthly sets the monthly instalment in cents
func LoanMonthly(cents int64) func(*domain.LoanLedgerEntry) {
	return func(l *domain.LoanLedgerEntry) {
		l.MonthlyDeductionCents = cents
	}
}

// LoanInactive deactivates the loan
func LoanInactive() func(*domain.LoanLedgerEntry) {
	return func(l *domain.LoanLedgerEntry) {
		l.IsActive = false
	}
}

// KenyaRates returns the FY 2024/25 statutory rate set: the five PAYE
// bands with KES 2,400 personal relief, NSSF tier ceilings at KES
// 8,000 and 72,000 with a 6% rate, SHIF at 2.75% and the Affordable
// Housing Levy at 1.5%.
func (f *FixtureFactory) KenyaRates() *domain.StatutoryRates {
	return &domain.StatutoryRates{
		ID:            uuid.New().String(),
		EffectiveFrom: time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC),
		PAYEBands: domain.TaxBands{
			{UpperCents: PtrInt64(2_400_000), RateBp: 1000},
			{UpperCents: PtrInt64(3_233_300), RateBp: 2500},
			{UpperCents: PtrInt64(50_000_000), RateBp: 3000},
			{UpperCents: PtrInt64(80_000_000), RateBp: 3250},
			{UpperCents: nil, RateBp: 3500},
		},
		PersonalReliefCents:   240_000,
		NSSFLowerCeilingCents: 800_000,
		NSSFUpperCeilingCents: 7_200_000,
		NSSFRateBp:            600,
		SHIFRateBp:            275,
		HousingLevyRateBp:     150,
	}
}
