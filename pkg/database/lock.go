package database

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jmoiron/sqlx"
)

// PeriodLockKey derives a 64-bit advisory lock key from a tenant and a payroll
// period. The same inputs always produce the same key, so two transactions
// working on the same (tenant, year, month) serialize against each other while
// different periods proceed in parallel.
func PeriodLockKey(tenantID string, year, month int) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s:%04d:%02d", tenantID, year, month)
	return int64(h.Sum64())
}

// AcquirePeriodLock takes a transaction-scoped advisory lock for the given
// tenant and period. The lock is released automatically when the transaction
// commits or rolls back. Blocks until the lock is available, so callers should
// bound the context.
func AcquirePeriodLock(ctx context.Context, tx *sqlx.Tx, tenantID string, year, month int) error {
	key := PeriodLockKey(tenantID, year, month)
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", key); err != nil {
		return fmt.Errorf("acquire period lock: %w", err)
	}
	return nil
}

// TryAcquirePeriodLock attempts the same lock without blocking. Returns
// false when another transaction already holds it, which callers surface
// as a conflict instead of queueing work behind the holder.
func TryAcquirePeriodLock(ctx context.Context, tx *sqlx.Tx, tenantID string, year, month int) (bool, error) {
	key := PeriodLockKey(tenantID, year, month)
	var acquired bool
	if err := tx.GetContext(ctx, &acquired, "SELECT pg_try_advisory_xact_lock($1)", key); err != nil {
		return false, fmt.Errorf("acquire period lock: %w", err)
	}
	return acquired, nil
}
