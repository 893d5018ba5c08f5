package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/malipo/malipo-backend/pkg/database"
	"github.com/malipo/malipo-backend/pkg/logger"
)

// One container serves every integration suite in the test binary;
// suites isolate themselves per tenant instead of per database.
var (
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// IntegrationSuite wires a test package to the shared PostgreSQL
// container. Create one in TestMain, then carve out a tenant per test
// with SetupPayrollTenant.
type IntegrationSuite struct {
	RawDB    *sqlx.DB
	DB       *database.DB
	Fixtures *FixtureFactory
	Logger   *logger.Logger

	tenants *TenantManager
}

// NewIntegrationSuite connects to the shared container, applying the
// payroll schema if it is not there yet.
func NewIntegrationSuite(ctx context.Context) (*IntegrationSuite, error) {
	container, db, err := sharedContainer(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.New("test", "test")
	wrapped, err := database.NewWithDSN(container.DSN, log)
	if err != nil {
		return nil, err
	}

	// Safe to reapply, the DDL is IF NOT EXISTS throughout.
	if err := container.ApplySchema(ctx, db); err != nil {
		return nil, err
	}

	return &IntegrationSuite{
		RawDB:    db,
		DB:       wrapped,
		Fixtures: NewFixtureFactory(),
		Logger:   log,
		tenants:  NewTenantManager(db),
	}, nil
}

func sharedContainer(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = StartPostgres(ctx)
		if containerErr != nil {
			return
		}
		globalDB, containerErr = globalContainer.Connect(ctx)
	})
	return globalContainer, globalDB, containerErr
}

// SetupPayrollTenant creates an isolated tenant whose rows are wiped
// when the test finishes.
func (s *IntegrationSuite) SetupPayrollTenant(t *testing.T, ctx context.Context, name string) *TestTenant {
	t.Helper()

	tenant, err := s.tenants.CreateTenant(ctx, name)
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	t.Cleanup(func() {
		if err := s.tenants.DropTenant(ctx, tenant); err != nil {
			t.Logf("warning: failed to clean up tenant %s: %v", tenant.Slug, err)
		}
	})

	return tenant
}

// SeedStatutoryRates inserts a statutory rate set unless one already
// covers the date. Rates are global, so tests share a single seeded
// set instead of inserting per tenant.
func (s *IntegrationSuite) SeedStatutoryRates(t *testing.T, ctx context.Context) {
	t.Helper()

	rates := s.Fixtures.KenyaRates()

	_, err := s.RawDB.ExecContext(ctx, `
		INSERT INTO statutory_rates (
			id, effective_from, paye_bands, personal_relief_cents,
			nssf_lower_ceiling_cents, nssf_upper_ceiling_cents, nssf_rate_bp,
			shif_rate_bp, housing_levy_rate_bp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (effective_from) DO NOTHING
	`, rates.ID, rates.EffectiveFrom, rates.PAYEBands, rates.PersonalReliefCents,
		rates.NSSFLowerCeilingCents, rates.NSSFUpperCeilingCents, rates.NSSFRateBp,
		rates.SHIFRateBp, rates.HousingLevyRateBp)
	if err != nil {
		t.Fatalf("failed to seed statutory rates: %v", err)
	}
}

// TenantContext returns a context carrying the tenant, shaped the way
// the auth middleware would have built it.
func (s *IntegrationSuite) TenantContext(tenant *TestTenant) context.Context {
	return WithTestTenant(context.Background(), tenant)
}

// Cleanup drops all tenants created through this suite. The container
// is shared across packages, so it stays up.
func (s *IntegrationSuite) Cleanup(ctx context.Context) error {
	return s.tenants.Cleanup(ctx)
}

// TerminateContainer stops the shared container. Call it from TestMain
// after the run; when skipped, the testcontainers reaper collects the
// container once the process exits.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		globalContainer.Terminate(ctx)
	}
}
