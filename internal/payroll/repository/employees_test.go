package repository_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malipo/malipo-backend/internal/payroll/domain"
	"github.com/malipo/malipo-backend/internal/payroll/repository"
	"github.com/malipo/malipo-backend/pkg/errors"
	"github.com/malipo/malipo-backend/pkg/testutil"
)

func TestEmployeeRepository_UpsertReplays(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupPayrollTenant(t, ctx, "employees-upsert")
	tctx := suite.TenantContext(tenant)

	repo := repository.NewEmployeeRepository(suite.DB)

	emp := suite.Fixtures.Employee(testutil.WithBaseSalary(6_000_000))
	require.NoError(t, repo.Upsert(tctx, emp))
	created := emp.CreatedAt

	// a replayed HR event with a raise settles on the same row
	emp.BaseSalaryCents = 6_500_000
	require.NoError(t, repo.Upsert(tctx, emp))
	assert.Equal(t, created, emp.CreatedAt)

	got, err := repo.GetByID(tctx, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6_500_000), got.BaseSalaryCents)

	active, err := repo.ListActive(tctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestEmployeeRepository_ListActiveOrdered(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupPayrollTenant(t, ctx, "employees-list")
	tctx := suite.TenantContext(tenant)

	repo := repository.NewEmployeeRepository(suite.DB)

	second := suite.Fixtures.Employee()
	second.EmployeeNumber = "STAFF-0002"
	first := suite.Fixtures.Employee()
	first.EmployeeNumber = "STAFF-0001"
	gone := suite.Fixtures.Employee(testutil.WithEmployeeStatus(domain.EmployeeStatusInactive))
	gone.EmployeeNumber = "STAFF-0000"

	for _, e := range []*domain.Employee{second, first, gone} {
		require.NoError(t, repo.Upsert(tctx, e))
	}

	active, err := repo.ListActive(tctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "STAFF-0001", active[0].EmployeeNumber)
	assert.Equal(t, "STAFF-0002", active[1].EmployeeNumber)
}

func TestEmployeeRepository_Deactivate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupPayrollTenant(t, ctx, "employees-deactivate")
	tctx := suite.TenantContext(tenant)

	repo := repository.NewEmployeeRepository(suite.DB)

	emp := suite.Fixtures.Employee()
	require.NoError(t, repo.Upsert(tctx, emp))

	require.NoError(t, repo.Deactivate(tctx, emp.ID))

	active, err := repo.ListActive(tctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	// the row survives for historical lookups
	got, err := repo.GetByID(tctx, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EmployeeStatusInactive, got.Status)

	err = repo.Deactivate(tctx, uuid.New().String())
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestEmployeeRepository_UpsertTenantGuard(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	victim := suite.SetupPayrollTenant(t, ctx, "employees-guard-victim")
	attacker := suite.SetupPayrollTenant(t, ctx, "employees-guard-other")
	victimCtx := suite.TenantContext(victim)
	attackerCtx := suite.TenantContext(attacker)

	repo := repository.NewEmployeeRepository(suite.DB)

	emp := suite.Fixtures.Employee(testutil.WithBaseSalary(6_000_000))
	require.NoError(t, repo.Upsert(victimCtx, emp))

	// replaying the same employee id under another tenant must not
	// touch the existing row
	hijack := suite.Fixtures.Employee(testutil.WithBaseSalary(1))
	hijack.ID = emp.ID
	err := repo.Upsert(attackerCtx, hijack)
	require.Error(t, err)

	got, err := repo.GetByID(victimCtx, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6_000_000), got.BaseSalaryCents)
	assert.Equal(t, victim.ID, got.TenantID)

	_, err = repo.GetByID(attackerCtx, emp.ID)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}
