package database

import (
	"strings"

	"github.com/lib/pq"

	"github.com/malipo/malipo-backend/pkg/errors"
)

// MapPQError translates a PostgreSQL driver error into a typed
// application error, or returns nil when the error is not a pq.Error
// or carries no useful mapping. Constraint names here must track the
// schema; an unmapped constraint still gets a generic message of the
// right kind.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	case "23514": // check_violation
		return mapCheckConstraint(pqErr)

	case "23505": // unique_violation
		return errors.Conflict(uniqueViolationMessage(pqErr.Constraint))

	case "23503": // foreign_key_violation
		return errors.BadRequest("referenced record does not exist")

	case "23502": // not_null_violation
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{col: "must not be empty"})

	case "40001", "40P01": // serialization_failure, deadlock_detected
		return errors.Transient(pqErr)
	}

	// Connection exceptions (08xxx), insufficient resources (53xxx) and
	// operator intervention (57xxx, e.g. admin shutdown) mean the store
	// is temporarily unavailable rather than the request being wrong.
	switch pqErr.Code.Class() {
	case "08", "53", "57":
		return errors.Transient(pqErr)
	}

	return nil
}

func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	switch c := pqErr.Constraint; {
	case strings.Contains(c, "run_status_valid"):
		return errors.Validation(map[string]string{
			"status": "must be one of: draft, completed, cancelled",
		})

	case strings.Contains(c, "employees_status_valid"):
		return errors.Validation(map[string]string{
			"status": "must be one of: active, inactive",
		})

	case strings.Contains(c, "calc_mode_valid"):
		return errors.Validation(map[string]string{
			"calc_mode": "fixed requires amount_cents, percent_of_base requires rate_bp",
		})

	case strings.Contains(c, "scope_one_of"):
		return errors.Validation(map[string]string{
			"scope": "exactly one of employee_id or department_id must be set",
		})

	case strings.Contains(c, "period_month_valid"):
		return errors.Validation(map[string]string{
			"month": "must be between 1 and 12",
		})

	case strings.Contains(c, "balance_non_negative"):
		return errors.Validation(map[string]string{
			"balance": "must not be negative",
		})

	case strings.Contains(c, "monthly_non_negative"):
		return errors.Validation(map[string]string{
			"monthly_deduction": "must not be negative",
		})

	default:
		return errors.BadRequest("data validation failed: " + pqErr.Constraint)
	}
}

func uniqueViolationMessage(constraint string) string {
	switch {
	case strings.Contains(constraint, "active_period"):
		return "a payroll run for this period already exists"
	case strings.Contains(constraint, "run_number_unique"):
		return "a payroll run with this run number already exists"
	case strings.Contains(constraint, "employees_number_unique"):
		return "an employee with this employee number already exists"
	case strings.Contains(constraint, "loan_employee_unique"):
		return "this employee already has an active loan"
	case strings.Contains(constraint, "detail_employee_unique"):
		return "this employee is already included in the run"
	default:
		return "a record with these values already exists"
	}
}
