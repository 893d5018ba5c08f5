// Package permissions matches granted permission strings against the
// permission a route requires.
//
// Grants take three shapes: "*" (full access), "payroll.*" (every
// action under a resource), and "payroll.runs.read" (one action).
package permissions

import "strings"

// Permissions enforced by the payroll service.
const (
	PayrollRunsRead      = "payroll.runs.read"
	PayrollRunsCalculate = "payroll.runs.calculate"
	PayrollRunsComplete  = "payroll.runs.complete"
	PayrollRunsCancel    = "payroll.runs.cancel"
	PayrollAuditRead     = "payroll.audit.read"
)

// HasPermission reports whether any granted permission covers required.
// An empty requirement always passes.
func HasPermission(grants []string, required string) bool {
	if required == "" {
		return true
	}
	for _, g := range grants {
		if covers(g, required) {
			return true
		}
	}
	return false
}

// covers reports whether a single grant satisfies required. A trailing
// ".*" covers everything under its prefix, so "payroll.*" covers
// "payroll.runs.read" but not "payments.runs.read" or bare "payroll".
func covers(grant, required string) bool {
	if grant == "*" || grant == required {
		return true
	}
	if !strings.HasSuffix(grant, ".*") {
		return false
	}
	return strings.HasPrefix(required, grant[:len(grant)-1])
}
