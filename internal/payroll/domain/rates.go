package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TaxBand is one slice of the progressive income-tax schedule. A nil
// UpperCents marks the open top band. Bands are stored ordered by
// ascending upper bound.
type TaxBand struct {
	UpperCents *int64 `json:"upper_cents"`
	RateBp     int64  `json:"rate_bp"`
}

// TaxBands is stored as a JSONB column on statutory_rates.
type TaxBands []TaxBand

// Value implements driver.Valuer for JSONB storage.
func (b TaxBands) Value() (driver.Value, error) {
	return json.Marshal(b)
}

// Scan implements sql.Scanner for JSONB retrieval.
func (b *TaxBands) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, b)
	case string:
		return json.Unmarshal([]byte(v), b)
	case nil:
		*b = nil
		return nil
	default:
		return fmt.Errorf("cannot scan %T into TaxBands", src)
	}
}

// StatutoryRates is the versioned set of deduction constants for one
// effective date. Rates are law, not tenant data: a new row is added
// when the jurisdiction changes them, and the engine picks the newest
// row effective on or before the run's period start. Changing rates is
// a data update, never a code change.
type StatutoryRates struct {
	ID                    string    `json:"id" db:"id"`
	EffectiveFrom         time.Time `json:"effective_from" db:"effective_from"`
	PAYEBands             TaxBands  `json:"paye_bands" db:"paye_bands"`
	PersonalReliefCents   int64     `json:"personal_relief_cents" db:"personal_relief_cents"`
	NSSFLowerCeilingCents int64     `json:"nssf_lower_ceiling_cents" db:"nssf_lower_ceiling_cents"`
	NSSFUpperCeilingCents int64     `json:"nssf_upper_ceiling_cents" db:"nssf_upper_ceiling_cents"`
	NSSFRateBp            int64     `json:"nssf_rate_bp" db:"nssf_rate_bp"`
	SHIFRateBp            int64     `json:"shif_rate_bp" db:"shif_rate_bp"`
	HousingLevyRateBp     int64     `json:"housing_levy_rate_bp" db:"housing_levy_rate_bp"`
	CreatedAt             time.Time `json:"created_at" db:"created_at"`
}
