package repository_test

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malipo/malipo-backend/internal/payroll/domain"
	"github.com/malipo/malipo-backend/internal/payroll/repository"
	"github.com/malipo/malipo-backend/pkg/errors"
	"github.com/malipo/malipo-backend/pkg/tenant"
	"github.com/malipo/malipo-backend/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	ctx := context.Background()
	var err error

	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		panic("failed to create integration suite: " + err.Error())
	}
	defer suite.Cleanup(ctx)

	code := m.Run()
	os.Exit(code)
}

// insertRun writes a minimal draft run for the period. The sequence
// feeds the run number, which is unique per tenant.
func insertRun(t *testing.T, ctx context.Context, month, year, seq int) *domain.PayrollRun {
	t.Helper()
	run := &domain.PayrollRun{
		RunNumber:                domain.FormatRunNumber(domain.Period{Month: month, Year: year}, seq),
		PeriodMonth:              month,
		PeriodYear:               year,
		EmployeeCount:            1,
		GrossPayCents:            5_000_000,
		StatutoryDeductionsCents: 512_500,
		PAYECents:                584_585,
		NetPayCents:              3_902_915,
	}
	require.NoError(t, repository.NewRunRepository(suite.DB).Insert(ctx, run))
	return run
}

// insertDetail attaches a detail row to the run.
func insertDetail(t *testing.T, ctx context.Context, runID string, loanCents int64) *domain.PayrollDetail {
	t.Helper()
	seq := uuid.New().String()[:8]
	detail := &domain.PayrollDetail{
		RunID:              runID,
		EmployeeID:         uuid.New().String(),
		EmployeeNumber:     "EMP-" + seq,
		EmployeeName:       "Detail " + seq,
		BaseSalaryCents:    5_000_000,
		GrossPayCents:      5_000_000,
		LoanDeductionCents: loanCents,
		PaymentMethod:      domain.PaymentMethodBankTransfer,
	}
	require.NoError(t, repository.NewRunRepository(suite.DB).InsertDetails(ctx, []*domain.PayrollDetail{detail}))
	return detail
}

func TestRunRepository_InsertAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenantA := suite.SetupPayrollTenant(t, ctx, "runs-insert-a")
	tenantB := suite.SetupPayrollTenant(t, ctx, "runs-insert-b")
	ctxA := suite.TenantContext(tenantA)
	ctxB := suite.TenantContext(tenantB)

	repo := repository.NewRunRepository(suite.DB)

	run := insertRun(t, ctxA, 1, 2026, 1)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, domain.RunStatusDraft, run.Status)
	assert.False(t, run.CreatedAt.IsZero())

	got, err := repo.GetByID(ctxA, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.RunNumber, got.RunNumber)
	assert.Equal(t, tenantA.ID, got.TenantID)
	assert.Equal(t, int64(3_902_915), got.NetPayCents)

	// unknown id
	_, err = repo.GetByID(ctxA, uuid.New().String())
	assert.ErrorIs(t, err, errors.ErrNotFound)

	// runs are invisible across tenants
	_, err = repo.GetByID(ctxB, run.ID)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRunRepository_OnePerPeriod(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupPayrollTenant(t, ctx, "runs-one-per-period")
	tctx := suite.TenantContext(tenant)

	repo := repository.NewRunRepository(suite.DB)
	insertRun(t, tctx, 2, 2026, 1)

	// the partial unique index rejects a second live run for the period
	dup := &domain.PayrollRun{
		RunNumber:   domain.FormatRunNumber(domain.Period{Month: 2, Year: 2026}, 2),
		PeriodMonth: 2,
		PeriodYear:  2026,
	}
	err := repo.Insert(tctx, dup)
	assert.ErrorIs(t, err, errors.ErrConflict)
}

func TestRunRepository_FindActiveByPeriod(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupPayrollTenant(t, ctx, "runs-find-active")
	tctx := suite.TenantContext(tenant)

	repo := repository.NewRunRepository(suite.DB)
	period := domain.Period{Month: 3, Year: 2026}

	found, err := repo.FindActiveByPeriod(tctx, period)
	require.NoError(t, err)
	assert.Nil(t, found)

	run := insertRun(t, tctx, 3, 2026, 1)
	found, err = repo.FindActiveByPeriod(tctx, period)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, run.ID, found.ID)

	// a cancelled run no longer blocks the period
	affected, err := repo.MarkCancelled(tctx, run.ID, uuid.New().String())
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)

	found, err = repo.FindActiveByPeriod(tctx, period)
	require.NoError(t, err)
	assert.Nil(t, found)

	// but it still counts toward the run number sequence
	count, err := repo.CountForPeriod(tctx, period)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunRepository_DeleteDraft(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupPayrollTenant(t, ctx, "runs-delete-draft")
	tctx := suite.TenantContext(tenant)

	repo := repository.NewRunRepository(suite.DB)

	run := insertRun(t, tctx, 4, 2026, 1)
	insertDetail(t, tctx, run.ID, 0)

	require.NoError(t, repo.DeleteDraft(tctx, run.ID))

	_, err := repo.GetByID(tctx, run.ID)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	// details cascade with the run
	details, err := repo.ListDetails(tctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, details)

	// completed runs cannot be deleted
	final := insertRun(t, tctx, 5, 2026, 1)
	affected, err := repo.MarkCompleted(tctx, final.ID, uuid.New().String())
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)

	err = repo.DeleteDraft(tctx, final.ID)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRunRepository_Transitions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupPayrollTenant(t, ctx, "runs-transitions")
	tctx := suite.TenantContext(tenant)

	repo := repository.NewRunRepository(suite.DB)
	actorID := uuid.New().String()

	run := insertRun(t, tctx, 6, 2026, 1)

	affected, err := repo.MarkCompleted(tctx, run.ID, actorID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	got, err := repo.GetByID(tctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedBy)
	assert.Equal(t, actorID, *got.CompletedBy)
	assert.NotNil(t, got.CompletedAt)

	// transitions only fire from draft
	affected, err = repo.MarkCompleted(tctx, run.ID, actorID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, affected)

	affected, err = repo.MarkCancelled(tctx, run.ID, actorID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, affected)
}

func TestRunRepository_LoanStamps(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupPayrollTenant(t, ctx, "runs-loan-stamps")
	tctx := suite.TenantContext(tenant)

	repo := repository.NewRunRepository(suite.DB)

	run := insertRun(t, tctx, 7, 2026, 1)
	withLoan := insertDetail(t, tctx, run.ID, 400_000)
	insertDetail(t, tctx, run.ID, 0)

	unapplied, err := repo.ListUnappliedLoanDetails(tctx, run.ID)
	require.NoError(t, err)
	require.Len(t, unapplied, 1)
	assert.Equal(t, withLoan.ID, unapplied[0].ID)

	stamped, err := repo.StampLoanApplied(tctx, withLoan.ID)
	require.NoError(t, err)
	assert.True(t, stamped)

	// the stamp is write-once, so retries see false
	stamped, err = repo.StampLoanApplied(tctx, withLoan.ID)
	require.NoError(t, err)
	assert.False(t, stamped)

	unapplied, err = repo.ListUnappliedLoanDetails(tctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, unapplied)
}

func TestRunRepository_ListScopedToTenant(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenantA := suite.SetupPayrollTenant(t, ctx, "runs-list-a")
	tenantB := suite.SetupPayrollTenant(t, ctx, "runs-list-b")
	ctxA := suite.TenantContext(tenantA)
	ctxB := suite.TenantContext(tenantB)

	repo := repository.NewRunRepository(suite.DB)

	insertRun(t, ctxA, 8, 2026, 1)
	insertRun(t, ctxA, 9, 2026, 1)
	insertRun(t, ctxB, 8, 2026, 1)

	runs, total, err := repo.List(ctxA, repository.ListRunsFilter{}, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, runs, 2)
	// newest period first
	assert.Equal(t, 9, runs[0].PeriodMonth)
	assert.Equal(t, 8, runs[1].PeriodMonth)

	runs, total, err = repo.List(ctxB, repository.ListRunsFilter{}, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, runs, 1)
	assert.Equal(t, tenantB.ID, runs[0].TenantID)
}

// TestRunRepository_MapsDriverErrors checks the translation of driver
// failures into typed errors without a live database, which also keeps
// it running under -short.
func TestRunRepository_MapsDriverErrors(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewRunRepository(mockDB.DB)
	ctx := tenant.WithTenantContext(context.Background(), uuid.New().String(), "acme")

	mockDB.ExpectQuery("SELECT").WillReturnError(sql.ErrNoRows)
	_, err := repo.GetByID(ctx, uuid.New().String())
	assert.ErrorIs(t, err, errors.ErrNotFound)

	mockDB.ExpectQuery("INSERT INTO payroll_runs").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_payroll_runs_active_period"})
	err = repo.Insert(ctx, &domain.PayrollRun{RunNumber: "PR-202601-1", PeriodMonth: 1, PeriodYear: 2026})
	assert.ErrorIs(t, err, errors.ErrConflict)

	mockDB.ExpectQuery("INSERT INTO payroll_details").
		WillReturnError(&pq.Error{Code: "23503", Constraint: "payroll_details_run_id_fkey"})
	err = repo.InsertDetails(ctx, []*domain.PayrollDetail{{RunID: uuid.New().String()}})
	assert.ErrorIs(t, err, errors.ErrBadRequest)

	mockDB.ExpectExec("UPDATE payroll_runs").
		WillReturnError(&pq.Error{Code: "40001"})
	_, err = repo.MarkCompleted(ctx, uuid.New().String(), uuid.New().String())
	assert.ErrorIs(t, err, errors.ErrTransient)

	mockDB.ExpectationsWereMet(t)
}
