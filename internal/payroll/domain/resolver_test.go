package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malipo/malipo-backend/internal/payroll/domain"
	"github.com/malipo/malipo-backend/pkg/errors"
)

var resolverAsOf = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func str(v string) *string { return &v }

func bp(v int64) *int64 { return &v }

func testEmployee() *domain.Employee {
	return &domain.Employee{
		ID:              "emp-1",
		TenantID:        "tenant-1",
		EmployeeNumber:  "EMP-001",
		FirstName:       "Wanjiku",
		LastName:        "Kamau",
		DepartmentID:    str("dept-1"),
		BaseSalaryCents: 5_000_000,
		Status:          domain.EmployeeStatusActive,
		PaymentMethod:   domain.PaymentMethodCash,
	}
}

func allowance(id, name string, mutate func(*domain.AllowanceAssignment)) domain.AllowanceAssignment {
	a := domain.AllowanceAssignment{
		ID:            id,
		TenantID:      "tenant-1",
		Name:          name,
		EmployeeID:    str("emp-1"),
		CalcMode:      domain.CalcModeFixed,
		AmountCents:   cents(100_000),
		IsCash:        true,
		IsActive:      true,
		EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if mutate != nil {
		mutate(&a)
	}
	return a
}

func deduction(id, name string, mutate func(*domain.DeductionAssignment)) domain.DeductionAssignment {
	d := domain.DeductionAssignment{
		ID:            id,
		TenantID:      "tenant-1",
		Name:          name,
		EmployeeID:    str("emp-1"),
		CalcMode:      domain.CalcModeFixed,
		AmountCents:   cents(50_000),
		IsActive:      true,
		EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if mutate != nil {
		mutate(&d)
	}
	return d
}

func TestResolver_BothScopesApply(t *testing.T) {
	// An employee-scoped and a department-scoped allowance of the same
	// name both land on the payslip. No dedup.
	allowances := []domain.AllowanceAssignment{
		allowance("a-1", "Transport", nil),
		allowance("a-2", "Transport", func(a *domain.AllowanceAssignment) {
			a.EmployeeID = nil
			a.DepartmentID = str("dept-1")
			a.AmountCents = cents(30_000)
		}),
	}

	r := domain.NewVariablePayResolver(allowances, nil, resolverAsOf)
	lines, err := r.ResolveAllowances(testEmployee())
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, "a-1", lines[0].AssignmentID)
	assert.Equal(t, domain.ScopeEmployee, lines[0].Scope)
	assert.Equal(t, int64(100_000), lines[0].AmountCents)

	assert.Equal(t, "a-2", lines[1].AssignmentID)
	assert.Equal(t, domain.ScopeDepartment, lines[1].Scope)
	assert.Equal(t, int64(30_000), lines[1].AmountCents)
}

func TestResolver_PercentComputesOffBaseSalary(t *testing.T) {
	// Percentage assignments are defined against base salary, never a
	// running gross. Documented product behavior, not an accident.
	allowances := []domain.AllowanceAssignment{
		allowance("a-fixed", "Housing", nil),
		allowance("a-pct", "Commission", func(a *domain.AllowanceAssignment) {
			a.CalcMode = domain.CalcModePercentOfBase
			a.AmountCents = nil
			a.RateBp = bp(1000) // 10%
		}),
	}

	r := domain.NewVariablePayResolver(allowances, nil, resolverAsOf)
	lines, err := r.ResolveAllowances(testEmployee())
	require.NoError(t, err)
	require.Len(t, lines, 2)

	// 10% of 5_000_000 base, unaffected by the fixed allowance
	assert.Equal(t, int64(500_000), lines[1].AmountCents)
}

func TestResolver_ValidityWindow(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*domain.AllowanceAssignment)
		applies bool
	}{
		{"open-ended window", nil, true},
		{"window closes today", func(a *domain.AllowanceAssignment) {
			a.EffectiveTo = &resolverAsOf
		}, true},
		{"expired window", func(a *domain.AllowanceAssignment) {
			to := resolverAsOf.AddDate(0, 0, -1)
			a.EffectiveTo = &to
		}, false},
		{"not yet effective", func(a *domain.AllowanceAssignment) {
			a.EffectiveFrom = resolverAsOf.AddDate(0, 1, 0)
		}, false},
		{"inactive", func(a *domain.AllowanceAssignment) {
			a.IsActive = false
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := domain.NewVariablePayResolver(
				[]domain.AllowanceAssignment{allowance("a-1", "Transport", tt.mutate)},
				nil, resolverAsOf,
			)
			lines, err := r.ResolveAllowances(testEmployee())
			require.NoError(t, err)
			if tt.applies {
				assert.Len(t, lines, 1)
			} else {
				assert.Empty(t, lines)
			}
		})
	}
}

func TestResolver_DepartmentScopeNeedsDepartment(t *testing.T) {
	allowances := []domain.AllowanceAssignment{
		allowance("a-1", "Field Allowance", func(a *domain.AllowanceAssignment) {
			a.EmployeeID = nil
			a.DepartmentID = str("dept-1")
		}),
	}
	r := domain.NewVariablePayResolver(allowances, nil, resolverAsOf)

	emp := testEmployee()
	emp.DepartmentID = nil

	lines, err := r.ResolveAllowances(emp)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestResolver_Deductions(t *testing.T) {
	deductions := []domain.DeductionAssignment{
		deduction("d-1", "Sacco", nil),
		deduction("d-2", "Salary Advance Recovery", func(d *domain.DeductionAssignment) {
			d.IsOneTime = true
			d.AmountCents = cents(200_000)
		}),
		deduction("d-3", "Welfare", func(d *domain.DeductionAssignment) {
			d.EmployeeID = nil
			d.DepartmentID = str("dept-1")
			d.CalcMode = domain.CalcModePercentOfBase
			d.AmountCents = nil
			d.RateBp = bp(100) // 1%
		}),
	}

	r := domain.NewVariablePayResolver(nil, deductions, resolverAsOf)
	lines, err := r.ResolveDeductions(testEmployee())
	require.NoError(t, err)
	require.Len(t, lines, 3)

	assert.False(t, lines[0].IsOneTime)
	assert.True(t, lines[1].IsOneTime)
	assert.Equal(t, int64(200_000), lines[1].AmountCents)
	assert.Equal(t, domain.ScopeDepartment, lines[2].Scope)
	assert.Equal(t, int64(50_000), lines[2].AmountCents) // 1% of base
}

func TestResolver_MalformedAssignments(t *testing.T) {
	t.Run("fixed without amount", func(t *testing.T) {
		r := domain.NewVariablePayResolver([]domain.AllowanceAssignment{
			allowance("a-1", "Broken", func(a *domain.AllowanceAssignment) {
				a.AmountCents = nil
			}),
		}, nil, resolverAsOf)

		_, err := r.ResolveAllowances(testEmployee())
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvariant))
	})

	t.Run("percent without rate", func(t *testing.T) {
		r := domain.NewVariablePayResolver([]domain.AllowanceAssignment{
			allowance("a-1", "Broken", func(a *domain.AllowanceAssignment) {
				a.CalcMode = domain.CalcModePercentOfBase
				a.AmountCents = nil
				a.RateBp = nil
			}),
		}, nil, resolverAsOf)

		_, err := r.ResolveAllowances(testEmployee())
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvariant))
	})

	t.Run("negative fixed amount", func(t *testing.T) {
		r := domain.NewVariablePayResolver(nil, []domain.DeductionAssignment{
			deduction("d-1", "Broken", func(d *domain.DeductionAssignment) {
				d.AmountCents = cents(-500)
			}),
		}, resolverAsOf)

		_, err := r.ResolveDeductions(testEmployee())
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvariant))
	})

	t.Run("unknown calc mode", func(t *testing.T) {
		r := domain.NewVariablePayResolver([]domain.AllowanceAssignment{
			allowance("a-1", "Broken", func(a *domain.AllowanceAssignment) {
				a.CalcMode = "hourly"
			}),
		}, nil, resolverAsOf)

		_, err := r.ResolveAllowances(testEmployee())
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvariant))
	})
}
