// Package repository persists the payroll read models and run results.
// Every table is row-scoped by tenant_id; the tenant is resolved from
// the request context, never from request parameters.
package repository

import "github.com/malipo/malipo-backend/pkg/database"

// mapErr translates driver errors into typed application errors where
// possible and passes everything else through.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}
