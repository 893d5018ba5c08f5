package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/malipo/malipo-backend/internal/payroll/domain"
	"github.com/malipo/malipo-backend/pkg/database"
	"github.com/malipo/malipo-backend/pkg/errors"
)

// RatesRepository handles the versioned statutory rate sets. Rates are
// law, not tenant data, so the table is not tenant-scoped.
type RatesRepository struct {
	db *database.DB
	q  database.Queryer
}

// NewRatesRepository creates a new rates repository
func NewRatesRepository(db *database.DB) *RatesRepository {
	return &RatesRepository{db: db, q: db.DB}
}

// WithTx returns a copy of the repository bound to the transaction.
func (r *RatesRepository) WithTx(tx *sqlx.Tx) *RatesRepository {
	return &RatesRepository{db: r.db, q: tx}
}

// EffectiveAt returns the newest rate set effective on or before the
// given date, typically the first day of the pay period.
func (r *RatesRepository) EffectiveAt(ctx context.Context, at time.Time) (*domain.StatutoryRates, error) {
	query := `
		SELECT id, effective_from, paye_bands, personal_relief_cents,
		       nssf_lower_ceiling_cents, nssf_upper_ceiling_cents, nssf_rate_bp,
		       shif_rate_bp, housing_levy_rate_bp, created_at
		FROM statutory_rates
		WHERE effective_from <= $1
		ORDER BY effective_from DESC
		LIMIT 1
	`

	var rates domain.StatutoryRates
	err := r.q.GetContext(ctx, &rates, query, at)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("statutory rates")
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return &rates, nil
}

// Insert adds a new rate set. Used by seeds and the ops tooling; there
// is no tenant-facing API for it.
func (r *RatesRepository) Insert(ctx context.Context, rates *domain.StatutoryRates) error {
	if rates.ID == "" {
		rates.ID = uuid.New().String()
	}

	query := `
		INSERT INTO statutory_rates (
			id, effective_from, paye_bands, personal_relief_cents,
			nssf_lower_ceiling_cents, nssf_upper_ceiling_cents, nssf_rate_bp,
			shif_rate_bp, housing_levy_rate_bp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := r.q.QueryRowxContext(ctx, query,
		rates.ID, rates.EffectiveFrom, rates.PAYEBands, rates.PersonalReliefCents,
		rates.NSSFLowerCeilingCents, rates.NSSFUpperCeilingCents, rates.NSSFRateBp,
		rates.SHIFRateBp, rates.HousingLevyRateBp,
	).Scan(&rates.CreatedAt)
	if err != nil {
		return mapErr(err)
	}
	return nil
}
