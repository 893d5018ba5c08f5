package domain

import (
	"fmt"

	"github.com/malipo/malipo-backend/pkg/errors"
)

// The statutory calculators are pure functions of their monetary
// inputs. They reject negative bases outright: a negative salary or
// taxable income means the upstream data is corrupt, and clamping it
// would silently skew run totals.

// CalculatePAYE applies the progressive tax bands to taxable income,
// subtracts the monthly personal relief and floors the result at zero.
// Bands must be ordered by ascending upper bound with the final band
// open (nil upper).
func CalculatePAYE(taxableCents int64, bands TaxBands, reliefCents int64) (int64, error) {
	if taxableCents < 0 {
		return 0, errors.Invariant(fmt.Sprintf("PAYE on negative taxable income %d", taxableCents))
	}
	if len(bands) == 0 {
		return 0, errors.Invariant("PAYE bands not configured")
	}

	var tax int64
	remaining := taxableCents
	var prevUpper int64

	for i, band := range bands {
		if remaining <= 0 {
			break
		}

		var width int64
		if band.UpperCents == nil {
			if i != len(bands)-1 {
				return 0, errors.Invariant("open PAYE band before the last position")
			}
			width = remaining
		} else {
			if *band.UpperCents <= prevUpper {
				return 0, errors.Invariant("PAYE bands out of order")
			}
			width = *band.UpperCents - prevUpper
			prevUpper = *band.UpperCents
		}

		slice, err := ApplyRate(minCents(remaining, width), band.RateBp)
		if err != nil {
			return 0, err
		}
		tax += slice
		remaining -= width
	}

	return maxCents(tax-reliefCents, 0), nil
}

// NSSFContribution carries the tiered pension breakdown. Statutory
// filings report the tiers separately, so the total alone is not enough.
type NSSFContribution struct {
	Tier1Cents int64 `json:"tier1_cents"`
	Tier2Cents int64 `json:"tier2_cents"`
}

// Total returns the combined contribution.
func (c NSSFContribution) Total() int64 {
	return c.Tier1Cents + c.Tier2Cents
}

// CalculateNSSF computes the two-tier pension contribution on a base
// salary. Tier 1 covers earnings up to the lower ceiling, tier 2 the
// slice between the ceilings; earnings above the upper ceiling do not
// contribute, so the total is capped at rate x upper ceiling.
func CalculateNSSF(baseCents, lowerCeilingCents, upperCeilingCents, rateBp int64) (NSSFContribution, error) {
	if baseCents < 0 {
		return NSSFContribution{}, errors.Invariant(fmt.Sprintf("NSSF on negative base salary %d", baseCents))
	}
	if lowerCeilingCents <= 0 || upperCeilingCents <= lowerCeilingCents {
		return NSSFContribution{}, errors.Invariant("NSSF ceilings misconfigured")
	}

	tier1, err := ApplyRate(minCents(baseCents, lowerCeilingCents), rateBp)
	if err != nil {
		return NSSFContribution{}, err
	}

	tier2Base := minCents(maxCents(baseCents-lowerCeilingCents, 0), upperCeilingCents-lowerCeilingCents)
	tier2, err := ApplyRate(tier2Base, rateBp)
	if err != nil {
		return NSSFContribution{}, err
	}

	return NSSFContribution{Tier1Cents: tier1, Tier2Cents: tier2}, nil
}

// CalculateLevy computes a flat-rate levy (SHIF, housing levy) on gross
// pay, rounding half-up at the cent.
func CalculateLevy(grossCents, rateBp int64) (int64, error) {
	if grossCents < 0 {
		return 0, errors.Invariant(fmt.Sprintf("levy on negative gross pay %d", grossCents))
	}
	return ApplyRate(grossCents, rateBp)
}
