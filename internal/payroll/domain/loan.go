package domain

import "time"

// LoanLedgerEntry tracks an amortizing salary advance or staff loan.
// Each completed run reduces the outstanding balance by the applied
// monthly deduction; the ledger never goes negative.
type LoanLedgerEntry struct {
	ID                    string    `json:"id" db:"id"`
	TenantID              string    `json:"tenant_id" db:"tenant_id"`
	EmployeeID            string    `json:"employee_id" db:"employee_id"`
	Name                  string    `json:"name" db:"name"`
	PrincipalCents        int64     `json:"principal_cents" db:"principal_cents"`
	BalanceCents          int64     `json:"balance_cents" db:"balance_cents"`
	MonthlyDeductionCents int64     `json:"monthly_deduction_cents" db:"monthly_deduction_cents"`
	IsActive              bool      `json:"is_active" db:"is_active"`
	CreatedAt             time.Time `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time `json:"updated_at" db:"updated_at"`
}

// DeductionDue returns the amount to withhold this period: the monthly
// instalment, capped at the remaining balance so the final instalment
// never overshoots.
func (e *LoanLedgerEntry) DeductionDue() int64 {
	if !e.IsActive || e.BalanceCents <= 0 {
		return 0
	}
	return minCents(e.MonthlyDeductionCents, e.BalanceCents)
}

// LoanDeductionDue sums the deduction due over the employee's ledger
// entries. The ledger holds at most one open loan per employee; a nil
// slice contributes nothing.
func LoanDeductionDue(entries []LoanLedgerEntry) int64 {
	var total int64
	for i := range entries {
		total += entries[i].DeductionDue()
	}
	return total
}
