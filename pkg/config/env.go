package config

import "strings"

// Environment names. The environment steers validation strictness and
// logger output format, nothing else.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// IsProductionLike reports whether the environment warrants production
// safety checks. Staging runs with production-grade configuration, so
// it counts.
func IsProductionLike(environment string) bool {
	switch strings.ToLower(environment) {
	case EnvProduction, EnvStaging:
		return true
	default:
		return false
	}
}
