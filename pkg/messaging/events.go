package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types. Published events use the payroll.* keys; the hr.* keys
// are consumed from the HR system, which owns employees, assignments
// and loan scheduling.
const (
	// Published payroll lifecycle events
	EventPayrollRunCalculated = "payroll.run.calculated"
	EventPayrollRunCompleted  = "payroll.run.completed"
	EventPayrollRunCancelled  = "payroll.run.cancelled"

	// Consumed HR read-model events
	EventHREmployeeUpserted    = "hr.employee.upserted"
	EventHREmployeeDeactivated = "hr.employee.deactivated"
	EventHRAllowanceUpserted   = "hr.allowance.upserted"
	EventHRAllowanceRevoked    = "hr.allowance.revoked"
	EventHRDeductionUpserted   = "hr.deduction.upserted"
	EventHRDeductionRevoked    = "hr.deduction.revoked"
	EventHRLoanScheduled       = "hr.loan.scheduled"
)

// Exchange names
const (
	ExchangePayrollEvents = "payroll.events"
	ExchangeHREvents      = "hr.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.New().String()
}

// Payroll Events

// PayrollRunCalculatedEvent is published when a run lands in draft.
type PayrollRunCalculatedEvent struct {
	RunID         string `json:"run_id"`
	TenantID      string `json:"tenant_id"`
	RunNumber     string `json:"run_number"`
	PeriodMonth   int    `json:"period_month"`
	PeriodYear    int    `json:"period_year"`
	EmployeeCount int    `json:"employee_count"`
	GrossPayCents int64  `json:"gross_pay_cents"`
	NetPayCents   int64  `json:"net_pay_cents"`
}

// PayrollRunCompletedEvent is published when a run is finalized. This
// is the hand-off point for payslip generation, bank files and email
// delivery, which live in downstream services.
type PayrollRunCompletedEvent struct {
	RunID                    string `json:"run_id"`
	TenantID                 string `json:"tenant_id"`
	RunNumber                string `json:"run_number"`
	PeriodMonth              int    `json:"period_month"`
	PeriodYear               int    `json:"period_year"`
	EmployeeCount            int    `json:"employee_count"`
	GrossPayCents            int64  `json:"gross_pay_cents"`
	PAYECents                int64  `json:"paye_cents"`
	StatutoryDeductionsCents int64  `json:"statutory_deductions_cents"`
	NetPayCents              int64  `json:"net_pay_cents"`
	CompletedBy              string `json:"completed_by"`
}

// PayrollRunCancelledEvent is published when a draft run is discarded.
type PayrollRunCancelledEvent struct {
	RunID       string `json:"run_id"`
	TenantID    string `json:"tenant_id"`
	RunNumber   string `json:"run_number"`
	PeriodMonth int    `json:"period_month"`
	PeriodYear  int    `json:"period_year"`
	CancelledBy string `json:"cancelled_by"`
}

// HR Events (consumed)

// HREmployeeUpsertedEvent mirrors an employee create or update in the
// HR system into the payroll read model.
type HREmployeeUpsertedEvent struct {
	EmployeeID     string  `json:"employee_id"`
	TenantID       string  `json:"tenant_id"`
	EmployeeNumber string  `json:"employee_number"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Email          *string `json:"email,omitempty"`
	DepartmentID   *string `json:"department_id,omitempty"`

	BaseSalaryCents int64  `json:"base_salary_cents"`
	Status          string `json:"status"`

	PaymentMethod     string  `json:"payment_method"`
	BankName          *string `json:"bank_name,omitempty"`
	BankAccountNumber *string `json:"bank_account_number,omitempty"`
	MobileMoneyNumber *string `json:"mobile_money_number,omitempty"`

	PaysPAYE          bool `json:"pays_paye"`
	PaysNSSF          bool `json:"pays_nssf"`
	PaysSHIF          bool `json:"pays_shif"`
	PaysHousingLevy   bool `json:"pays_housing_levy"`
	PaysLoanDeduction bool `json:"pays_loan_deduction"`
}

// HREmployeeDeactivatedEvent removes an employee from future runs.
type HREmployeeDeactivatedEvent struct {
	EmployeeID string `json:"employee_id"`
	TenantID   string `json:"tenant_id"`
}

// HRAssignmentWindow carries the validity window of an assignment.
// HR sends either explicit dates or a single (month, year) pay period;
// the consumer normalizes the latter to the month's first and last day.
type HRAssignmentWindow struct {
	EffectiveFrom *time.Time `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
	PeriodMonth   int        `json:"period_month,omitempty"`
	PeriodYear    int        `json:"period_year,omitempty"`
}

// HRAllowanceUpsertedEvent mirrors an allowance assignment.
type HRAllowanceUpsertedEvent struct {
	AssignmentID string  `json:"assignment_id"`
	TenantID     string  `json:"tenant_id"`
	Name         string  `json:"name"`
	EmployeeID   *string `json:"employee_id,omitempty"`
	DepartmentID *string `json:"department_id,omitempty"`

	CalcMode    string `json:"calc_mode"`
	AmountCents *int64 `json:"amount_cents,omitempty"`
	RateBp      *int64 `json:"rate_bp,omitempty"`

	IsCash   bool `json:"is_cash"`
	IsActive bool `json:"is_active"`

	Window HRAssignmentWindow `json:"window"`
}

// HRAllowanceRevokedEvent deactivates an allowance assignment.
type HRAllowanceRevokedEvent struct {
	AssignmentID string `json:"assignment_id"`
	TenantID     string `json:"tenant_id"`
}

// HRDeductionUpsertedEvent mirrors a deduction assignment.
type HRDeductionUpsertedEvent struct {
	AssignmentID string  `json:"assignment_id"`
	TenantID     string  `json:"tenant_id"`
	Name         string  `json:"name"`
	EmployeeID   *string `json:"employee_id,omitempty"`
	DepartmentID *string `json:"department_id,omitempty"`

	CalcMode    string `json:"calc_mode"`
	AmountCents *int64 `json:"amount_cents,omitempty"`
	RateBp      *int64 `json:"rate_bp,omitempty"`

	IsOneTime bool `json:"is_one_time"`
	IsActive  bool `json:"is_active"`

	Window HRAssignmentWindow `json:"window"`
}

// HRDeductionRevokedEvent deactivates a deduction assignment.
type HRDeductionRevokedEvent struct {
	AssignmentID string `json:"assignment_id"`
	TenantID     string `json:"tenant_id"`
}

// HRLoanScheduledEvent creates or reschedules an employee loan. HR is
// the source of truth for terms; this service only decrements the
// balance as runs complete.
type HRLoanScheduledEvent struct {
	LoanID                string `json:"loan_id"`
	TenantID              string `json:"tenant_id"`
	EmployeeID            string `json:"employee_id"`
	Name                  string `json:"name"`
	PrincipalCents        int64  `json:"principal_cents"`
	BalanceCents          int64  `json:"balance_cents"`
	MonthlyDeductionCents int64  `json:"monthly_deduction_cents"`
	IsActive              bool   `json:"is_active"`
}
