package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malipo/malipo-backend/internal/payroll/domain"
	"github.com/malipo/malipo-backend/pkg/errors"
)

func TestPeriod_Validate(t *testing.T) {
	tests := []struct {
		name   string
		period domain.Period
		valid  bool
	}{
		{"january", domain.Period{Month: 1, Year: 2026}, true},
		{"december", domain.Period{Month: 12, Year: 2026}, true},
		{"month zero", domain.Period{Month: 0, Year: 2026}, false},
		{"month thirteen", domain.Period{Month: 13, Year: 2026}, false},
		{"year too small", domain.Period{Month: 6, Year: 1999}, false},
		{"year too large", domain.Period{Month: 6, Year: 2101}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.period.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrValidation))
			}
		})
	}
}

func TestPeriod_Bounds(t *testing.T) {
	p := domain.Period{Month: 2, Year: 2024} // leap year
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), p.Start())
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), p.End())
	assert.Equal(t, "2024-02", p.String())
}

func TestFormatRunNumber(t *testing.T) {
	assert.Equal(t, "PR-202601-1", domain.FormatRunNumber(domain.Period{Month: 1, Year: 2026}, 1))
	assert.Equal(t, "PR-202612-3", domain.FormatRunNumber(domain.Period{Month: 12, Year: 2026}, 3))
}
