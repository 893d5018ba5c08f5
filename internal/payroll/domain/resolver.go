package domain

import "time"

// VariablePayResolver matches allowance and deduction assignments to
// employees for one calculation. It is built once per run from the
// batch-loaded assignments and is safe for concurrent reads.
//
// Both scopes apply: an employee with a direct assignment AND a
// department assignment of the same name receives both lines.
type VariablePayResolver struct {
	asOf time.Time

	allowByEmployee    map[string][]*AllowanceAssignment
	allowByDepartment  map[string][]*AllowanceAssignment
	deductByEmployee   map[string][]*DeductionAssignment
	deductByDepartment map[string][]*DeductionAssignment
}

// NewVariablePayResolver indexes active assignments whose validity
// window contains asOf. Inactive and out-of-window assignments are
// dropped at construction so resolution is a pure lookup.
func NewVariablePayResolver(allowances []AllowanceAssignment, deductions []DeductionAssignment, asOf time.Time) *VariablePayResolver {
	r := &VariablePayResolver{
		asOf:               asOf,
		allowByEmployee:    make(map[string][]*AllowanceAssignment),
		allowByDepartment:  make(map[string][]*AllowanceAssignment),
		deductByEmployee:   make(map[string][]*DeductionAssignment),
		deductByDepartment: make(map[string][]*DeductionAssignment),
	}
	for i := range allowances {
		a := &allowances[i]
		if !a.AppliesAt(asOf) {
			continue
		}
		switch {
		case a.EmployeeID != nil:
			r.allowByEmployee[*a.EmployeeID] = append(r.allowByEmployee[*a.EmployeeID], a)
		case a.DepartmentID != nil:
			r.allowByDepartment[*a.DepartmentID] = append(r.allowByDepartment[*a.DepartmentID], a)
		}
	}
	for i := range deductions {
		d := &deductions[i]
		if !d.AppliesAt(asOf) {
			continue
		}
		switch {
		case d.EmployeeID != nil:
			r.deductByEmployee[*d.EmployeeID] = append(r.deductByEmployee[*d.EmployeeID], d)
		case d.DepartmentID != nil:
			r.deductByDepartment[*d.DepartmentID] = append(r.deductByDepartment[*d.DepartmentID], d)
		}
	}
	return r
}

// ResolveAllowances returns the allowance pay lines for the employee:
// direct assignments first, then department-scoped ones.
func (r *VariablePayResolver) ResolveAllowances(emp *Employee) (PayLines, error) {
	var lines PayLines
	for _, a := range r.allowByEmployee[emp.ID] {
		amount, err := assignmentValue(a.Name, a.CalcMode, a.AmountCents, a.RateBp, emp.BaseSalaryCents)
		if err != nil {
			return nil, err
		}
		lines = append(lines, PayLine{
			AssignmentID: a.ID,
			Name:         a.Name,
			AmountCents:  amount,
			Scope:        ScopeEmployee,
			IsCash:       a.IsCash,
		})
	}
	if emp.DepartmentID != nil {
		for _, a := range r.allowByDepartment[*emp.DepartmentID] {
			amount, err := assignmentValue(a.Name, a.CalcMode, a.AmountCents, a.RateBp, emp.BaseSalaryCents)
			if err != nil {
				return nil, err
			}
			lines = append(lines, PayLine{
				AssignmentID: a.ID,
				Name:         a.Name,
				AmountCents:  amount,
				Scope:        ScopeDepartment,
				IsCash:       a.IsCash,
			})
		}
	}
	return lines, nil
}

// ResolveDeductions returns the custom deduction pay lines for the
// employee: direct assignments first, then department-scoped ones.
func (r *VariablePayResolver) ResolveDeductions(emp *Employee) (PayLines, error) {
	var lines PayLines
	for _, d := range r.deductByEmployee[emp.ID] {
		amount, err := assignmentValue(d.Name, d.CalcMode, d.AmountCents, d.RateBp, emp.BaseSalaryCents)
		if err != nil {
			return nil, err
		}
		lines = append(lines, PayLine{
			AssignmentID: d.ID,
			Name:         d.Name,
			AmountCents:  amount,
			Scope:        ScopeEmployee,
			IsOneTime:    d.IsOneTime,
		})
	}
	if emp.DepartmentID != nil {
		for _, d := range r.deductByDepartment[*emp.DepartmentID] {
			amount, err := assignmentValue(d.Name, d.CalcMode, d.AmountCents, d.RateBp, emp.BaseSalaryCents)
			if err != nil {
				return nil, err
			}
			lines = append(lines, PayLine{
				AssignmentID: d.ID,
				Name:         d.Name,
				AmountCents:  amount,
				Scope:        ScopeDepartment,
				IsOneTime:    d.IsOneTime,
			})
		}
	}
	return lines, nil
}
