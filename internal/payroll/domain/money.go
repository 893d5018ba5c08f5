// Package domain holds the payroll entities and the pure calculation
// logic: statutory calculators, the variable-pay resolver and the
// per-employee computation. Nothing in this package touches the
// database or the broker, so every function here is safe to re-run.
package domain

import (
	"fmt"

	"github.com/malipo/malipo-backend/pkg/errors"
)

// All monetary amounts are int64 cents (KES minor units). Rates are
// integer basis points: 10000 bp = 100%, 275 bp = 2.75%.
const bpDivisor = 10_000

// ApplyRate multiplies an amount by a basis-point rate, rounding
// half-up at the cent. Statutory filings use the same rounding, so
// the rule must not change.
func ApplyRate(amountCents int64, rateBp int64) (int64, error) {
	if amountCents < 0 {
		return 0, errors.Invariant(fmt.Sprintf("rate applied to negative amount %d", amountCents))
	}
	if rateBp < 0 {
		return 0, errors.Invariant(fmt.Sprintf("negative rate %dbp", rateBp))
	}
	if amountCents == 0 || rateBp == 0 {
		return 0, nil
	}

	n := amountCents * rateBp
	q := n / bpDivisor
	if n%bpDivisor >= bpDivisor/2 {
		q++
	}
	return q, nil
}

func minCents(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxCents(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
